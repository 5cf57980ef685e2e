// Package notify turns order events into store-facing notifications.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"medimitra/backend/internal/events"
)

// Message is one notification addressed to a store, or to the admin desk when
// the order has no store.
type Message struct {
	EventID string
	StoreID *int64
	OrderID int64
	Text    string
}

type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// Deduper records event ids. FirstSeen claims an id; Forget releases a claim
// so a failed delivery can be retried.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Notifier struct {
	sink  Sink
	dedup Deduper
}

// DefaultDedupTTL is how long a handled event id is remembered.
const DefaultDedupTTL = 24 * time.Hour

func New(sink Sink, dedup Deduper) *Notifier {
	if dedup == nil {
		dedup = NewMemoryDeduper(DefaultDedupTTL)
	}
	return &Notifier{sink: sink, dedup: dedup}
}

// Handle is an events.Handler. Redelivered events are dropped. Events that
// cannot be rendered are reported as events.ErrUnprocessable; a failed
// delivery releases the event id so the consumer's retry is not dropped.
func (n *Notifier) Handle(ctx context.Context, env events.Envelope) error {
	msg, err := Render(env)
	if err != nil {
		return fmt.Errorf("%w: %v", events.ErrUnprocessable, err)
	}

	first, err := n.dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		log.Printf("[notify] WARN: dedup lookup failed for %s: %v", env.EventID, err)
	} else if !first {
		return nil
	}

	if err := n.sink.Deliver(ctx, msg); err != nil {
		if ferr := n.dedup.Forget(ctx, env.EventID); ferr != nil {
			log.Printf("[notify] WARN: release %s: %v", env.EventID, ferr)
		}
		return err
	}
	return nil
}

// Render builds the notification text for an envelope.
func Render(env events.Envelope) (Message, error) {
	msg := Message{EventID: env.EventID}
	switch env.EventType {
	case events.EventOrderPlaced:
		p, err := events.DecodePayload[events.OrderPlaced](env)
		if err != nil {
			return Message{}, err
		}
		names := make([]string, 0, len(p.Items))
		for _, line := range p.Items {
			names = append(names, fmt.Sprintf("%dx %s", line.Quantity, line.Name))
		}
		msg.StoreID, msg.OrderID = p.StoreID, p.OrderID
		msg.Text = fmt.Sprintf("new order %s (%s, %s): %s", p.Reference, p.TotalAmount.StringFixed(2), p.PaymentMethod, strings.Join(names, ", "))
	case events.EventOrderStatusChanged:
		p, err := events.DecodePayload[events.OrderStatusChanged](env)
		if err != nil {
			return Message{}, err
		}
		msg.StoreID, msg.OrderID = p.StoreID, p.OrderID
		msg.Text = fmt.Sprintf("order %d moved %s -> %s", p.OrderID, p.From, p.To)
	case events.EventOrderDeleted:
		p, err := events.DecodePayload[events.OrderDeleted](env)
		if err != nil {
			return Message{}, err
		}
		msg.StoreID, msg.OrderID = p.StoreID, p.OrderID
		msg.Text = fmt.Sprintf("order %d (%s) deleted by %s", p.OrderID, p.Status, strings.ToLower(p.DeletedBy))
	default:
		return Message{}, fmt.Errorf("unsupported event type %q", env.EventType)
	}
	return msg, nil
}

// LogSink writes notifications to the process log.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, msg Message) error {
	target := "admin"
	if msg.StoreID != nil {
		target = fmt.Sprintf("store %d", *msg.StoreID)
	}
	log.Printf("[notify] %s: %s", target, msg.Text)
	return nil
}

// MemoryDeduper is the single-process fallback for RedisDeduper. Ids expire
// after ttl like the Redis keys do.
type MemoryDeduper struct {
	mu        sync.Mutex
	ttl       time.Duration
	seen      map[string]time.Time
	nextSweep time.Time
	now       func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !now.Before(d.nextSweep) {
		for id, expires := range d.seen {
			if !now.Before(expires) {
				delete(d.seen, id)
			}
		}
		d.nextSweep = now.Add(d.ttl / 4)
	}

	if expires, ok := d.seen[eventID]; ok && now.Before(expires) {
		return false, nil
	}
	d.seen[eventID] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Forget(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

// Len reports how many event ids are currently remembered.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

const keyDedup = "medimitra:notify:dedup:%s"

// RedisDeduper shares seen event ids across notifier replicas.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(addr string, password string, db int, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

func (d *RedisDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.client.SetNX(ctx, fmt.Sprintf(keyDedup, eventID), "1", d.ttl).Result()
}

func (d *RedisDeduper) Forget(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, fmt.Sprintf(keyDedup, eventID)).Err()
}
