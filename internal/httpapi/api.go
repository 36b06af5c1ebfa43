package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"clinicdesk.org/internal/accounts"
	"clinicdesk.org/internal/booking"
	"clinicdesk.org/internal/obs"
	"clinicdesk.org/internal/stream"
)

// ReadyProbe reports whether the backing store can be reached. With no DB
// configured (pure in-memory deployment) the probe always passes.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the reservation engine and account store.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	engine   booking.Service
	accounts *accounts.Service
	stream   *stream.Stream

	tokenTTL   time.Duration
	rateBurst  int
	ratePerSec int
}

// New wires the routes. The stream may be nil to disable the live feed.
func New(rp ReadyProbe, version string, engine booking.Service, accts *accounts.Service, st *stream.Stream) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		engine:     engine,
		accounts:   accts,
		stream:     st,
		tokenTTL:   0, // auth.DefaultTTL applies
		rateBurst:  20,
		ratePerSec: 10,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// sessions
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	// reservation engine
	a.mux.HandleFunc("/v1/slots", a.handleSlots)
	a.mux.HandleFunc("/v1/bookings", a.handleBookingsCollection)
	a.mux.Handle("/v1/bookings/all", RequireRole("admin")(http.HandlerFunc(a.handleAllBookings)))
	a.mux.HandleFunc("/v1/bookings/", a.handleBookingResource)
	a.mux.Handle("/v1/reports/summary", RequireRole("admin")(http.HandlerFunc(a.handleReportSummary)))

	// live booking feed
	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetTokenTTL overrides the session lifetime. Zero or negative keeps the
// default.
func (a *API) SetTokenTTL(d time.Duration) {
	a.tokenTTL = d
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
