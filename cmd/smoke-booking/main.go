package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"clinicdesk.org/internal/booking/remote"
)

func main() {
	base := os.Getenv("CLINIC_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := remote.New(base)

	email := fmt.Sprintf("smoke-%d@example.com", time.Now().UnixNano())
	if _, err := client.Register(ctx, "Smoke Test", email, "smoke-pass", "patient"); err != nil {
		log.Fatalf("register: %v", err)
	}

	slots, err := client.Slots(ctx)
	if err != nil {
		log.Fatalf("list slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no open slots to book")
	}
	open := len(slots)

	b, err := client.Book(ctx, slots[0].ID)
	if err != nil {
		log.Fatalf("book %s: %v", slots[0].ID, err)
	}

	slots, err = client.Slots(ctx)
	if err != nil {
		log.Fatalf("list slots after book: %v", err)
	}
	if len(slots) != open-1 {
		log.Fatalf("expected %d open slots after booking, got %d", open-1, len(slots))
	}

	mine, err := client.MyBookings(ctx)
	if err != nil {
		log.Fatalf("my bookings: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != b.ID {
		log.Fatalf("booking missing from my list: %+v", mine)
	}

	if _, err := client.Cancel(ctx, b.ID); err != nil {
		log.Fatalf("cancel: %v", err)
	}

	slots, err = client.Slots(ctx)
	if err != nil {
		log.Fatalf("list slots after cancel: %v", err)
	}
	if len(slots) != open {
		log.Fatalf("expected slot to reopen, got %d of %d", len(slots), open)
	}

	fmt.Printf("✅ booking smoke test passed: slot=%s booking=%s\n", b.SlotID, b.ID)
}
