package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func testConsumer(r messageReader) *Consumer {
	c := newConsumer(r, 1)
	c.retryBase = time.Millisecond
	c.retryMax = 4 * time.Millisecond
	return c
}

func statusMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	env, err := NewEnvelope(EventOrderStatusChanged, 5, OrderStatusChanged{OrderID: 5, From: "PENDING", To: "RECEIVED"})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Topic: TopicOrderStatusChanged, Offset: offset, Value: raw}
}

func TestHandleRetriesUntilHandlerSucceeds(t *testing.T) {
	r := &fakeReader{}
	c := testConsumer(r)
	calls := 0
	h := func(_ context.Context, env Envelope) error {
		calls++
		assert.Equal(t, EventOrderStatusChanged, env.EventType)
		if calls < 4 {
			return errors.New("sink unavailable")
		}
		return nil
	}

	c.handle(context.Background(), h, statusMessage(t, 17))

	assert.Equal(t, 4, calls)
	assert.Equal(t, []int64{17}, r.offsets())
}

func TestHandleStopsRetryingWhenCancelled(t *testing.T) {
	r := &fakeReader{}
	c := testConsumer(r)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	h := func(_ context.Context, _ Envelope) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("sink unavailable")
	}

	done := make(chan struct{})
	go func() {
		c.handle(ctx, h, statusMessage(t, 3))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handle kept retrying after cancellation")
	}
	assert.Equal(t, 3, calls)
	assert.Empty(t, r.offsets())
}

func TestHandleCommitsUnprocessableWithoutRetry(t *testing.T) {
	r := &fakeReader{}
	c := testConsumer(r)
	calls := 0
	h := func(_ context.Context, _ Envelope) error {
		calls++
		return errors.Join(ErrUnprocessable, errors.New("unknown event type"))
	}

	c.handle(context.Background(), h, statusMessage(t, 9))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{9}, r.offsets())
}

func TestHandleCommitsUndecodableMessages(t *testing.T) {
	r := &fakeReader{}
	c := testConsumer(r)
	called := false

	c.handle(context.Background(), func(context.Context, Envelope) error {
		called = true
		return nil
	}, kafka.Message{Offset: 2, Value: []byte("not json")})

	assert.False(t, called)
	assert.Equal(t, []int64{2}, r.offsets())
}
