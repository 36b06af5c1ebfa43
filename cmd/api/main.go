package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clinicdesk.org/internal/accounts"
	"clinicdesk.org/internal/booking"
	"clinicdesk.org/internal/httpapi"
	"clinicdesk.org/internal/obs"
	"clinicdesk.org/internal/store/pg"
	"clinicdesk.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if os.Getenv("CLINIC_AUTH_SECRET") == "" {
		log.Fatal("CLINIC_AUTH_SECRET is required")
	}

	ctx := context.Background()

	// Durable store when a DSN is configured, in-memory otherwise. The
	// in-memory mode is for development and demos; it loses state on restart.
	var (
		engine booking.Service
		store  accounts.Store
		probe  httpapi.ReadyProbe
		closer func()
	)
	if dsn := os.Getenv("CLINIC_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		engine = pgStore
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
		closer = func() { _ = pgStore.Close() }
	} else {
		mem := accounts.NewInMemory()
		store = mem
		probe = httpapi.ReadyProbe{}
		closer = func() {}
	}

	var opts []accounts.Option
	if os.Getenv("CLINIC_INSECURE_PASSWORDS") == "1" {
		log.Println("WARNING: insecure password mode enabled, any password authenticates")
		opts = append(opts, accounts.WithInsecurePasswords())
	}
	accts := accounts.NewService(store, opts...)
	if engine == nil {
		engine = booking.NewInMemory(accts)
	}

	adminPassword := os.Getenv("CLINIC_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin"
	}
	if err := accts.EnsureDefaultAdmin(ctx, adminPassword); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	slots := booking.GenerateSlots(time.Now().UTC(),
		booking.DefaultWindowDays, booking.DefaultStartHour, booking.DefaultEndHour, true)
	if n, err := engine.SeedSlots(ctx, slots); err != nil {
		log.Fatalf("seed slots: %v", err)
	} else if n > 0 {
		log.Printf("seeded %d slots", n)
	}

	api := httpapi.New(probe, version, engine, accts, stream.New())
	if raw := os.Getenv("CLINIC_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid CLINIC_TOKEN_TTL %q: %v", raw, err)
		}
		api.SetTokenTTL(ttl)
	}

	addr := os.Getenv("CLINIC_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting clinicdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	closer()
	log.Println("Stopped")
}
