package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"clinicdesk.org/internal/accounts"
	"clinicdesk.org/internal/auth"
	"clinicdesk.org/internal/booking"
	"clinicdesk.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func scenarioSlots() []booking.Slot {
	// Two days, 09:00 and 10:00 only -> four slots.
	return []booking.Slot{
		{ID: booking.SlotID("2024-01-02", 9), Date: "2024-01-02", Time: "09:00", Available: true},
		{ID: booking.SlotID("2024-01-02", 10), Date: "2024-01-02", Time: "10:00", Available: true},
		{ID: booking.SlotID("2024-01-03", 9), Date: "2024-01-03", Time: "09:00", Available: true},
		{ID: booking.SlotID("2024-01-03", 10), Date: "2024-01-03", Time: "10:00", Available: true},
	}
}

func newTestAPI(t *testing.T, slots []booking.Slot) *apiClient {
	t.Helper()

	t.Setenv("CLINIC_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	accts := accounts.NewService(accounts.NewInMemory())
	if err := accts.EnsureDefaultAdmin(context.Background(), "admin-pass"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	engine := booking.NewInMemory(accts)
	if _, err := engine.SeedSlots(context.Background(), slots); err != nil {
		t.Fatalf("seed slots: %v", err)
	}

	api := New(ReadyProbe{}, "test", engine, accts, stream.New())
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) register(name, email, password, role string) sessionResponse {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
		"role":     role,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	return decode[sessionResponse](c.t, resp)
}

func (c *apiClient) login(email, password string) sessionResponse {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	return decode[sessionResponse](c.t, resp)
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestBookCancelRebookFlow(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())

	session := api.register("Alice Smith", "alice@example.com", "s3cret", "patient")
	if session.Token == "" || session.User.Email != "alice@example.com" {
		t.Fatalf("unexpected session: %+v", session)
	}
	hdr := bearerHeader(session.Token)

	// Four open slots to start.
	resp := api.get("/v1/slots", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("slots status: %d", resp.StatusCode)
	}
	slots := decode[slotListResponse](t, resp)
	if len(slots.Items) != 4 {
		t.Fatalf("expected 4 open slots, got %d", len(slots.Items))
	}

	// Book 2024-01-02 09:00.
	slotID := booking.SlotID("2024-01-02", 9)
	resp = api.post("/v1/bookings", map[string]any{"slot_id": slotID}, hdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book status: %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc == "" {
		t.Fatalf("expected Location header")
	}
	b := decode[booking.Booking](t, resp)
	if b.Status != booking.StatusConfirmed || b.SlotID != slotID {
		t.Fatalf("unexpected booking: %+v", b)
	}

	// The booked slot is gone from the open list.
	resp = api.get("/v1/slots", nil, nil)
	slots = decode[slotListResponse](t, resp)
	if len(slots.Items) != 3 {
		t.Fatalf("expected 3 open slots after booking, got %d", len(slots.Items))
	}
	for _, s := range slots.Items {
		if s.ID == slotID {
			t.Fatalf("booked slot still listed")
		}
	}

	// Booking the same slot again conflicts.
	resp = api.post("/v1/bookings", map[string]any{"slot_id": slotID}, hdr)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on double book, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// My bookings lists the confirmed one.
	resp = api.get("/v1/bookings", nil, hdr)
	mine := decode[bookingListResponse](t, resp)
	if len(mine.Items) != 1 || mine.Items[0].ID != b.ID {
		t.Fatalf("unexpected my bookings: %+v", mine.Items)
	}

	// Cancel as the owner; the updated record comes back.
	resp = api.post("/v1/bookings/"+b.ID+"/cancel", nil, hdr)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status: %d", resp.StatusCode)
	}
	cancelled := decode[booking.Booking](t, resp)
	if cancelled.Status != booking.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// Slot reappears and the confirmed list is empty again.
	resp = api.get("/v1/slots", nil, nil)
	slots = decode[slotListResponse](t, resp)
	if len(slots.Items) != 4 {
		t.Fatalf("expected slot to reopen, got %d", len(slots.Items))
	}
	resp = api.get("/v1/bookings", nil, hdr)
	mine = decode[bookingListResponse](t, resp)
	if len(mine.Items) != 0 {
		t.Fatalf("expected no confirmed bookings, got %d", len(mine.Items))
	}

	// The reopened slot can be booked again under a fresh booking id.
	resp = api.post("/v1/bookings", map[string]any{"slot_id": slotID}, hdr)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("rebook status: %d", resp.StatusCode)
	}
	rebooked := decode[booking.Booking](t, resp)
	if rebooked.ID == b.ID {
		t.Fatalf("rebooking reused booking id")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())

	api.register("Alice", "alice@example.com", "pw", "patient")
	resp := api.post("/v1/auth/register", map[string]any{
		"name":     "Other Alice",
		"email":    "alice@example.com",
		"password": "pw2",
		"role":     "patient",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())
	api.register("Alice", "alice@example.com", "s3cret", "patient")

	resp := api.post("/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != "invalid email or password" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestBookingRequiresAuth(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())

	resp := api.post("/v1/bookings", map[string]any{
		"slot_id": booking.SlotID("2024-01-02", 9),
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())
	session := api.register("Alice", "alice@example.com", "pw", "patient")

	expired, err := auth.GenerateToken(auth.Identity{
		ID:    session.User.ID,
		Email: session.User.Email,
		Name:  session.User.Name,
		Role:  "patient",
	}, time.Millisecond)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	resp := api.get("/v1/bookings", nil, bearerHeader(expired))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != "token expired" {
		t.Fatalf("expected expiry message, got %v", body["error"])
	}
}

func TestPatientCannotCancelOthersBooking(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())

	alice := api.register("Alice", "alice@example.com", "pw", "patient")
	bob := api.register("Bob", "bob@example.com", "pw", "patient")

	resp := api.post("/v1/bookings", map[string]any{
		"slot_id": booking.SlotID("2024-01-02", 9),
	}, bearerHeader(alice.Token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book status: %d", resp.StatusCode)
	}
	b := decode[booking.Booking](t, resp)

	resp = api.post("/v1/bookings/"+b.ID+"/cancel", nil, bearerHeader(bob.Token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAdminEndpoints(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())

	alice := api.register("Alice", "alice@example.com", "pw", "patient")
	admin := api.login("admin@clinic.com", "admin-pass")

	resp := api.post("/v1/bookings", map[string]any{
		"slot_id": booking.SlotID("2024-01-03", 9),
	}, bearerHeader(alice.Token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book status: %d", resp.StatusCode)
	}
	b := decode[booking.Booking](t, resp)

	// Patients cannot read the full ledger.
	resp = api.get("/v1/bookings/all", nil, bearerHeader(alice.Token))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for patient, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Admin reads the ledger and the report.
	resp = api.get("/v1/bookings/all", nil, bearerHeader(admin.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("all bookings status: %d", resp.StatusCode)
	}
	all := decode[bookingListResponse](t, resp)
	if len(all.Items) != 1 || all.Items[0].ID != b.ID {
		t.Fatalf("unexpected ledger: %+v", all.Items)
	}

	resp = api.get("/v1/reports/summary", nil, bearerHeader(admin.Token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status: %d", resp.StatusCode)
	}
	report := decode[booking.Report](t, resp)
	if report.TotalBookings != 1 || report.DistinctPatients != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	// Admin can cancel anyone's booking.
	resp = api.post("/v1/bookings/"+b.ID+"/cancel", nil, bearerHeader(admin.Token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin cancel status: %d", resp.StatusCode)
	}
}

func TestCancelUnknownBooking(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())
	session := api.register("Alice", "alice@example.com", "pw", "patient")

	resp := api.post("/v1/bookings/no-such-id/cancel", nil, bearerHeader(session.Token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestBookUnknownSlot(t *testing.T) {
	api := newTestAPI(t, scenarioSlots())
	session := api.register("Alice", "alice@example.com", "pw", "patient")

	resp := api.post("/v1/bookings", map[string]any{
		"slot_id": "slot-2030-01-01-9",
	}, bearerHeader(session.Token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status: %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
