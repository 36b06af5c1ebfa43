package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinicdesk.org/internal/ids"
)

// PatientResolver looks up the patient snapshot that gets frozen into a
// booking. The accounts store satisfies this.
type PatientResolver interface {
	ResolvePatient(ctx context.Context, id string) (Patient, error)
}

// Service defines the reservation engine operations.
type Service interface {
	SeedSlots(ctx context.Context, slots []Slot) (int, error)
	ListAvailable(ctx context.Context) ([]Slot, error)
	Book(ctx context.Context, slotID, patientID string) (Booking, error)
	Cancel(ctx context.Context, bookingID string, actor Actor) (Booking, error)
	BookingsByPatient(ctx context.Context, patientID string) ([]Booking, error)
	AllBookings(ctx context.Context) ([]Booking, error)
	Report(ctx context.Context, today string) (Report, error)
}

// InMemory implements Service with in-process concurrency safety. All
// mutations of the slot/booking pair happen under one write lock, which is
// what guarantees at most one confirmed booking per slot.
type InMemory struct {
	resolver PatientResolver

	mu       sync.RWMutex
	slots    map[string]*Slot
	order    []string // slot IDs in generation order
	bookings []Booking
	byID     map[string]int // booking ID -> index into bookings
}

// NewInMemory creates an empty engine. Patients are resolved through the
// provided resolver at booking time.
func NewInMemory(resolver PatientResolver) *InMemory {
	return &InMemory{
		resolver: resolver,
		slots:    make(map[string]*Slot),
		byID:     make(map[string]int),
	}
}

// SeedSlots installs the generated calendar. It only runs against an empty
// store and reports how many slots were installed; a second call is a no-op.
func (s *InMemory) SeedSlots(ctx context.Context, slots []Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.slots) > 0 {
		return 0, nil
	}
	for i := range slots {
		slot := slots[i]
		s.slots[slot.ID] = &slot
		s.order = append(s.order, slot.ID)
	}
	return len(slots), nil
}

func (s *InMemory) ListAvailable(ctx context.Context) ([]Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Slot, 0, len(s.order))
	for _, id := range s.order {
		if slot := s.slots[id]; slot.Available {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (s *InMemory) Book(ctx context.Context, slotID, patientID string) (Booking, error) {
	// Resolve before taking the lock; a failed lookup must not touch state.
	patient, err := s.resolver.ResolvePatient(ctx, patientID)
	if err != nil {
		return Booking{}, ErrPatientNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return Booking{}, ErrSlotNotFound
	}
	if !slot.Available {
		return Booking{}, ErrSlotUnavailable
	}

	slot.Available = false
	slot.PatientID = patient.ID
	slot.PatientName = patient.Name

	b := Booking{
		ID:           ids.New(),
		SlotID:       slot.ID,
		PatientID:    patient.ID,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		Date:         slot.Date,
		Time:         slot.Time,
		Status:       StatusConfirmed,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[b.ID] = len(s.bookings)
	s.bookings = append(s.bookings, b)
	return b, nil
}

func (s *InMemory) Cancel(ctx context.Context, bookingID string, actor Actor) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[bookingID]
	if !ok {
		return Booking{}, ErrBookingNotFound
	}
	b := &s.bookings[idx]
	if !actor.Admin && b.PatientID != actor.ID {
		return Booking{}, ErrCancelForbidden
	}
	// Replayed cancel: the slot may have been rebooked by someone else since,
	// so it must not be reopened. Return the record as-is.
	if b.Status == StatusCancelled {
		return *b, nil
	}

	b.Status = StatusCancelled
	// Reopen the slot if it still exists. Tolerate an already-open slot:
	// it cannot occur under correct sequencing but must not fail a cancel.
	if slot, ok := s.slots[b.SlotID]; ok {
		slot.Available = true
		slot.PatientID = ""
		slot.PatientName = ""
	}
	return *b, nil
}

func (s *InMemory) BookingsByPatient(ctx context.Context, patientID string) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Booking{}
	for _, b := range s.bookings {
		if b.PatientID == patientID && b.Status == StatusConfirmed {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *InMemory) AllBookings(ctx context.Context) ([]Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Booking{}
	for _, b := range s.bookings {
		if b.Status == StatusConfirmed {
			out = append(out, b)
		}
	}
	sortByDate(out)
	return out, nil
}

func (s *InMemory) Report(ctx context.Context, today string) (Report, error) {
	confirmed, err := s.AllBookings(ctx)
	if err != nil {
		return Report{}, err
	}
	return buildReport(confirmed, today), nil
}

// sortByDate orders bookings by date then time then creation order. Dates and
// times are ISO-style strings, so lexicographic order is chronological.
func sortByDate(bs []Booking) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Date != bs[j].Date {
			return bs[i].Date < bs[j].Date
		}
		return bs[i].Time < bs[j].Time
	})
}
