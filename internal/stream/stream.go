package stream

import (
	"context"
	"sync"
	"time"
)

// Action tags a booking event on the live feed.
type Action string

const (
	ActionBooked    Action = "booked"
	ActionCancelled Action = "cancelled"
)

// BookingEvent is pushed to dashboard subscribers whenever the reservation
// engine commits a mutation, so clients see updates without re-fetching the
// whole calendar after every change.
type BookingEvent struct {
	Action      Action    `json:"action"`
	BookingID   string    `json:"booking_id"`
	SlotID      string    `json:"slot_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	PatientName string    `json:"patient_name"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stream fan-outs booking events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan BookingEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan BookingEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan BookingEvent {
	ch := make(chan BookingEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt BookingEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
