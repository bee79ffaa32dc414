package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventItinerarySaved     = "itinerary_saved"
	EventItinerarySubmitted = "itinerary_submitted"
	EventItineraryApproved  = "itinerary_approved"
	EventItineraryRejected  = "itinerary_rejected"
)

// ItineraryEventPayload is the snapshot handed to event consumers.
type ItineraryEventPayload struct {
	BookingID    string    `json:"booking_id"`
	TourName     string    `json:"tour_name,omitempty"`
	LeadTraveler string    `json:"lead_traveler,omitempty"`
	Version      int64     `json:"version,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	EditorID     string    `json:"editor_id,omitempty"`
	Status       string    `json:"status"`
	Reviewer     string    `json:"reviewer,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	DaysChanged  int       `json:"days_changed,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Event is a lightweight domain event.
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

// EventBus is an in-process pub/sub.
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

// Publish runs every handler for the event type in subscription order on the
// caller's goroutine. A failing handler does not stop the others; all errors
// are returned joined.
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

// PublishJSON serializes the payload and publishes it. A nil bus drops events.
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

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
