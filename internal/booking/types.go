package booking

import (
	"errors"
	"time"
)

// Slot is a single bookable calendar unit (one clinic hour on one day).
// Dates and times are kept as the display strings the calendar generator
// produced ("2024-01-02", "09:00") so bookings stay readable even after the
// slot universe is regenerated.
type Slot struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Available   bool   `json:"available"`
	PatientID   string `json:"patient_id,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
}

// BookingStatus enumerates the lifecycle of a booking. Cancellation is a
// status change, never a delete: the ledger is append-only.
type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Booking is a reservation against exactly one slot. Patient and slot fields
// are denormalized at booking time so the record stands on its own for
// reporting.
type Booking struct {
	ID           string        `json:"id"`
	SlotID       string        `json:"slot_id"`
	PatientID    string        `json:"patient_id"`
	PatientName  string        `json:"patient_name"`
	PatientEmail string        `json:"patient_email"`
	Date         string        `json:"date"`
	Time         string        `json:"time"`
	Status       BookingStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Patient is the subset of an account the engine needs when booking.
type Patient struct {
	ID    string
	Name  string
	Email string
}

// Actor identifies who is performing a cancel. Admins may cancel any
// booking; patients only their own.
type Actor struct {
	ID    string
	Admin bool
}

// Report aggregates the confirmed ledger for the admin dashboard.
type Report struct {
	TotalBookings    int       `json:"total_bookings"`
	TodayCount       int       `json:"today_count"`
	UpcomingCount    int       `json:"upcoming_count"`
	DistinctPatients int       `json:"distinct_patients"`
	Today            []Booking `json:"today"`
	Upcoming         []Booking `json:"upcoming"`
}

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrSlotUnavailable = errors.New("slot is no longer available")
	ErrPatientNotFound = errors.New("patient not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrCancelForbidden = errors.New("not allowed to cancel this booking")
)
