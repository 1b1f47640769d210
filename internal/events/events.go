package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventPaymentInitiated = "booking_payment_initiated"
	EventPaymentSucceeded = "booking_payment_succeeded"
	EventPaymentFailed    = "booking_payment_failed"
	EventPaymentRefunded  = "booking_payment_refunded"
	EventStatusChanged    = "booking_payment_status_changed"
)

// AllEventTypes lists every event the payment service publishes.
var AllEventTypes = []string{
	EventPaymentInitiated,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventStatusChanged,
}

// PaymentEventPayload is the booking and attempt snapshot carried by payment events.
type PaymentEventPayload struct {
	BookingID      string    `json:"booking_id"`
	Reference      string    `json:"reference,omitempty"`
	Method         string    `json:"method,omitempty"`
	Network        string    `json:"network,omitempty"`
	Amount         float64   `json:"amount"`
	TotalAmount    float64   `json:"total_amount"`
	AmountPaid     float64   `json:"amount_paid"`
	PaymentType    string    `json:"payment_type,omitempty"`
	PaymentStatus  string    `json:"payment_status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	AttemptStatus  string    `json:"attempt_status,omitempty"`
	HostelID       string    `json:"hostel_id,omitempty"`
	RoomID         string    `json:"room_id,omitempty"`
	CustomerName   string    `json:"customer_name,omitempty"`
	CustomerEmail  string    `json:"customer_email,omitempty"`
	ChangedBy      string    `json:"changed_by,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload.
func (e *Event) Decode(out interface{}) error {
	return json.Unmarshal(e.Payload, out)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every payment event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, eventType := range AllEventTypes {
		b.Subscribe(eventType, handler)
	}
}

// Publish runs every subscriber synchronously. A failing handler does not
// stop the others; their errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
