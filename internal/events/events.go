package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/models"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingCancelled     = "booking_cancelled"
	EventBookingStatusChanged = "booking_status_changed"
)

// BookingEventPayload is the booking snapshot handed to subscribers.
type BookingEventPayload struct {
	BookingID      string               `json:"booking_id"`
	UserID         string               `json:"user_id"`
	ServiceID      string               `json:"service_id"`
	CompanyID      string               `json:"company_id,omitempty"`
	Date           string               `json:"date"`
	TimeSlot       string               `json:"time_slot"`
	Status         models.BookingStatus `json:"status"`
	PreviousStatus models.BookingStatus `json:"previous_status,omitempty"`
	Reason         string               `json:"reason,omitempty"`
	ChangedBy      string               `json:"changed_by,omitempty"`
}

// NewBookingPayload snapshots b. prev is empty for newly created bookings.
func NewBookingPayload(b *models.Booking, prev models.BookingStatus, changedBy string) BookingEventPayload {
	return BookingEventPayload{
		BookingID:      b.ID,
		UserID:         b.UserID,
		ServiceID:      b.ServiceID,
		CompanyID:      b.CompanyID,
		Date:           b.DateString(),
		TimeSlot:       b.TimeSlot,
		Status:         b.Status,
		PreviousStatus: prev,
		Reason:         b.CancellationReason,
		ChangedBy:      changedBy,
	}
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type EventHandler func(event *Event) error

// EventBus is an in-process synchronous pub/sub. A nil bus drops events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every booking event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range []string{EventBookingCreated, EventBookingCancelled, EventBookingStatusChanged} {
		b.Subscribe(t, handler)
	}
}

// Publish runs the subscribers of event.Type in registration order. A
// failing handler is logged and does not stop the others.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// AuditLogger returns a handler that writes each event to logger.
func AuditLogger(logger *zerolog.Logger) EventHandler {
	return func(event *Event) error {
		var p BookingEventPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		logger.Info().
			Str("event", event.Type).
			Str("booking_id", p.BookingID).
			Str("service_id", p.ServiceID).
			Str("date", p.Date).
			Str("time_slot", p.TimeSlot).
			Str("status", string(p.Status)).
			Str("previous_status", string(p.PreviousStatus)).
			Str("changed_by", p.ChangedBy).
			Msg("Booking event")
		return nil
	}
}
