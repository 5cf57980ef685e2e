package events

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medimitra/backend/internal/domain"
)

func TestTopicFor(t *testing.T) {
	cases := map[string]string{
		EventOrderPlaced:        TopicOrderPlaced,
		EventOrderStatusChanged: TopicOrderStatusChanged,
		EventOrderDeleted:       TopicOrderDeleted,
	}
	for eventType, want := range cases {
		got, err := TopicFor(eventType)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := TopicFor("OrderRefunded")
	assert.Error(t, err)
}

func TestNewEnvelopeRoundTripsPayload(t *testing.T) {
	storeID := int64(11)
	order := domain.Order{
		ID:            42,
		Reference:     "ORD-20260310-ABC123",
		UserID:        17,
		StoreID:       &storeID,
		PaymentMethod: "COD",
		TotalAmount:   decimal.RequireFromString("270.00"),
		Items: []domain.OrderItem{
			{MedicineID: 1, MedicineName: "Paracetamol 500mg", Quantity: 3, Price: decimal.NewFromInt(50)},
			{MedicineID: 2, MedicineName: "Amoxicillin 250mg", Quantity: 1, Price: decimal.NewFromInt(120)},
		},
	}

	env, err := NewEnvelope(EventOrderPlaced, order.ID, NewOrderPlaced(order))
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, EventOrderPlaced, env.EventType)
	assert.Equal(t, EventVersion, env.EventVersion)
	assert.Equal(t, Producer, env.Producer)
	assert.Equal(t, []byte("42"), env.Key())
	assert.False(t, env.OccurredAt.IsZero())

	placed, err := DecodePayload[OrderPlaced](env)
	require.NoError(t, err)
	assert.Equal(t, order.Reference, placed.Reference)
	require.NotNil(t, placed.StoreID)
	assert.Equal(t, storeID, *placed.StoreID)
	assert.True(t, placed.TotalAmount.Equal(order.TotalAmount))
	require.Len(t, placed.Items, 2)
	assert.Equal(t, "Paracetamol 500mg", placed.Items[0].Name)
}

func TestNewEnvelopeRejectsUnknownType(t *testing.T) {
	_, err := NewEnvelope("OrderRefunded", 1, struct{}{})
	assert.Error(t, err)
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	_, err := DecodePayload[OrderDeleted](Envelope{EventType: EventOrderDeleted, Payload: []byte("{not json")})
	assert.Error(t, err)
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	a, err := NewEnvelope(EventOrderDeleted, 7, OrderDeleted{OrderID: 7})
	require.NoError(t, err)
	b, err := NewEnvelope(EventOrderDeleted, 7, OrderDeleted{OrderID: 7})
	require.NoError(t, err)
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.Equal(t, a.Key(), b.Key())
}

func TestMemoryPublisherKeepsOrder(t *testing.T) {
	p := &MemoryPublisher{}
	for _, id := range []int64{1, 2, 3} {
		env, err := NewEnvelope(EventOrderStatusChanged, id, OrderStatusChanged{OrderID: id, From: "PENDING", To: "RECEIVED"})
		require.NoError(t, err)
		require.NoError(t, p.Publish(context.Background(), env))
	}

	got := p.Envelopes()
	require.Len(t, got, 3)
	for i, env := range got {
		changed, err := DecodePayload[OrderStatusChanged](env)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), changed.OrderID)
	}

	// Envelopes returns a copy.
	got[0].EventType = "mutated"
	assert.Equal(t, EventOrderStatusChanged, p.Envelopes()[0].EventType)
}

func TestNoopPublisherAcceptsEverything(t *testing.T) {
	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), Envelope{}))
}
