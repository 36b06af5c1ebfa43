package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"clinicdesk.org/internal/audit"
	"clinicdesk.org/internal/auth"
	"clinicdesk.org/internal/booking"
	"clinicdesk.org/internal/obs"
	"clinicdesk.org/internal/stream"
)

type bookRequest struct {
	SlotID string `json:"slot_id"`
}

type slotListResponse struct {
	Items []booking.Slot `json:"items"`
	AsOf  time.Time      `json:"as_of"`
}

type bookingListResponse struct {
	Items []booking.Booking `json:"items"`
	AsOf  time.Time         `json:"as_of"`
}

func (a *API) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	slots, err := a.engine.ListAvailable(r.Context())
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slotListResponse{Items: slots, AsOf: time.Now().UTC()})
}

func (a *API) handleBookingsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createBooking(w, r)
	case http.MethodGet:
		a.listMyBookings(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	slotID := strings.TrimSpace(req.SlotID)
	if slotID == "" {
		writeError(w, r, http.StatusBadRequest, "slot_id is required")
		return
	}

	b, err := a.engine.Book(r.Context(), slotID, identity.ID)
	if err != nil {
		obs.BookingOp("book", "error")
		if errors.Is(err, booking.ErrSlotUnavailable) {
			obs.BookingConflict()
		}
		handleBookingError(w, r, err)
		return
	}
	obs.BookingOp("book", "ok")

	a.publish(stream.BookingEvent{
		Action:      stream.ActionBooked,
		BookingID:   b.ID,
		SlotID:      b.SlotID,
		Date:        b.Date,
		Time:        b.Time,
		PatientName: b.PatientName,
		Timestamp:   time.Now().UTC(),
	})
	_ = audit.LogEvent(r.Context(), "booking.book", map[string]any{
		"booking_id": b.ID,
		"slot_id":    b.SlotID,
		"date":       b.Date,
		"time":       b.Time,
	})

	w.Header().Set("Location", "/v1/bookings/"+b.ID)
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) listMyBookings(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	items, err := a.engine.BookingsByPatient(r.Context(), identity.ID)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingListResponse{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) handleAllBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.engine.AllBookings(r.Context())
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingListResponse{Items: items, AsOf: time.Now().UTC()})
}

// handleBookingResource routes /v1/bookings/{id}/cancel.
func (a *API) handleBookingResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/bookings/")
	if path == "" || !strings.HasSuffix(path, "/cancel") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := strings.TrimSuffix(path, "/cancel")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.cancelBooking(w, r, id)
}

func (a *API) cancelBooking(w http.ResponseWriter, r *http.Request, bookingID string) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	b, err := a.engine.Cancel(r.Context(), bookingID, booking.Actor{
		ID:    identity.ID,
		Admin: identity.IsAdmin(),
	})
	if err != nil {
		obs.BookingOp("cancel", "error")
		handleBookingError(w, r, err)
		return
	}
	obs.BookingOp("cancel", "ok")

	a.publish(stream.BookingEvent{
		Action:      stream.ActionCancelled,
		BookingID:   b.ID,
		SlotID:      b.SlotID,
		Date:        b.Date,
		Time:        b.Time,
		PatientName: b.PatientName,
		Timestamp:   time.Now().UTC(),
	})
	_ = audit.LogEvent(r.Context(), "booking.cancel", map[string]any{
		"booking_id": b.ID,
		"slot_id":    b.SlotID,
	})

	// Return the authoritative updated record so callers get
	// read-your-writes without a follow-up query.
	writeJSON(w, http.StatusOK, b)
}

func (a *API) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	today := time.Now().UTC().Format("2006-01-02")
	report, err := a.engine.Report(r.Context(), today)
	if err != nil {
		handleBookingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) publish(evt stream.BookingEvent) {
	if a.stream != nil {
		a.stream.Publish(evt)
	}
}

func handleBookingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrSlotNotFound),
		errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrCancelForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
