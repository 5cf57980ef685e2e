package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimitra/backend/internal/domain"
	"medimitra/backend/internal/events"
)

type recordingSink struct {
	mu       sync.Mutex
	messages []Message
}

func (s *recordingSink) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func placedEnvelope(t *testing.T) events.Envelope {
	t.Helper()
	storeID := int64(11)
	env, err := events.NewEnvelope(events.EventOrderPlaced, 42, events.NewOrderPlaced(domain.Order{
		ID:            42,
		Reference:     "ORD-20261019-ABCDEF123456",
		StoreID:       &storeID,
		PaymentMethod: "COD",
		TotalAmount:   decimal.RequireFromString("270"),
		Items: []domain.OrderItem{
			{MedicineID: 1, MedicineName: "Paracetamol 500mg", Quantity: 3, Price: decimal.RequireFromString("50")},
			{MedicineID: 2, MedicineName: "Amoxicillin 250mg", Quantity: 1, Price: decimal.RequireFromString("120")},
		},
	}))
	require.NoError(t, err)
	return env
}

func TestRenderOrderPlaced(t *testing.T) {
	msg, err := Render(placedEnvelope(t))
	require.NoError(t, err)

	require.NotNil(t, msg.StoreID)
	assert.Equal(t, int64(11), *msg.StoreID)
	assert.Equal(t, int64(42), msg.OrderID)
	assert.Contains(t, msg.Text, "270.00")
	assert.Contains(t, msg.Text, "3x Paracetamol 500mg")
}

func TestRenderStatusChangeWithoutStore(t *testing.T) {
	env, err := events.NewEnvelope(events.EventOrderStatusChanged, 7, events.OrderStatusChanged{OrderID: 7, From: "PENDING", To: "CANCELLED"})
	require.NoError(t, err)

	msg, err := Render(env)
	require.NoError(t, err)
	assert.Nil(t, msg.StoreID)
	assert.Equal(t, "order 7 moved PENDING -> CANCELLED", msg.Text)
}

func TestRenderRejectsUnknownType(t *testing.T) {
	_, err := Render(events.Envelope{EventType: "OrderShipped"})
	assert.Error(t, err)
}

func TestHandleDropsRedeliveredEvents(t *testing.T) {
	sink := &recordingSink{}
	n := New(sink, nil)
	env := placedEnvelope(t)

	require.NoError(t, n.Handle(context.Background(), env))
	require.NoError(t, n.Handle(context.Background(), env))

	assert.Len(t, sink.messages, 1)
}

type failingSink struct{ calls int }

func (s *failingSink) Deliver(_ context.Context, _ Message) error {
	s.calls++
	if s.calls == 1 {
		return assert.AnError
	}
	return nil
}

func TestHandleRetriesAfterFailedDelivery(t *testing.T) {
	sink := &failingSink{}
	n := New(sink, NewMemoryDeduper(time.Hour))
	env := placedEnvelope(t)

	require.ErrorIs(t, n.Handle(context.Background(), env), assert.AnError)
	require.NoError(t, n.Handle(context.Background(), env))
	assert.Equal(t, 2, sink.calls)
}

func TestHandleMarksUnknownTypesUnprocessable(t *testing.T) {
	sink := &recordingSink{}
	n := New(sink, nil)

	err := n.Handle(context.Background(), events.Envelope{EventID: "evt-1", EventType: "OrderShipped"})
	require.ErrorIs(t, err, events.ErrUnprocessable)
	assert.Empty(t, sink.messages)
}

func TestMemoryDeduperExpiresIDs(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(time.Hour)
	clock := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return clock }

	first, err := d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)
	first, err = d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, first)

	clock = clock.Add(30 * time.Minute)
	_, err = d.FirstSeen(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	// evt-1 is past its hour; evt-2 is not.
	clock = clock.Add(45 * time.Minute)
	first, err = d.FirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, first)
	_, err = d.FirstSeen(ctx, "evt-3")
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	// Everything from before is swept once it expires.
	clock = clock.Add(2 * time.Hour)
	_, err = d.FirstSeen(ctx, "evt-4")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
}
