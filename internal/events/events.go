package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"medimitra/backend/internal/domain"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"
)

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderDeleted       = "order.deleted"
)

const (
	Producer     = "medimitra-api"
	EventVersion = 1
)

// TopicFor maps an event type to the topic it is published on.
func TopicFor(eventType string) (string, error) {
	switch eventType {
	case EventOrderPlaced:
		return TopicOrderPlaced, nil
	case EventOrderStatusChanged:
		return TopicOrderStatusChanged, nil
	case EventOrderDeleted:
		return TopicOrderDeleted, nil
	}
	return "", fmt.Errorf("unknown event type %q", eventType)
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Key is the partition key. All events of one order share it so they stay ordered.
func (e Envelope) Key() []byte {
	return []byte(e.CorrelationID)
}

func NewEnvelope(eventType string, orderID int64, payload any) (Envelope, error) {
	if _, err := TopicFor(eventType); err != nil {
		return Envelope{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      Producer,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals an envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	return out, nil
}

type OrderLine struct {
	MedicineID int64           `json:"medicine_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

type OrderPlaced struct {
	OrderID       int64           `json:"order_id"`
	Reference     string          `json:"reference"`
	UserID        int64           `json:"user_id"`
	StoreID       *int64          `json:"store_id"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []OrderLine     `json:"items"`
}

func NewOrderPlaced(order domain.Order) OrderPlaced {
	lines := make([]OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, OrderLine{
			MedicineID: item.MedicineID,
			Name:       item.MedicineName,
			Quantity:   item.Quantity,
			Price:      item.Price,
		})
	}
	return OrderPlaced{
		OrderID:       order.ID,
		Reference:     order.Reference,
		UserID:        order.UserID,
		StoreID:       order.StoreID,
		PaymentMethod: order.PaymentMethod,
		TotalAmount:   order.TotalAmount,
		Items:         lines,
	}
}

type OrderStatusChanged struct {
	OrderID int64  `json:"order_id"`
	StoreID *int64 `json:"store_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type OrderDeleted struct {
	OrderID   int64  `json:"order_id"`
	StoreID   *int64 `json:"store_id"`
	Status    string `json:"status"`
	DeletedBy string `json:"deleted_by"`
}

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Envelope) error {
	return nil
}

// MemoryPublisher keeps published envelopes in order. Used by tests and local runs.
type MemoryPublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
}

func (p *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, env)
	return nil
}

func (p *MemoryPublisher) Envelopes() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Envelope, len(p.envelopes))
	copy(out, p.envelopes)
	return out
}
