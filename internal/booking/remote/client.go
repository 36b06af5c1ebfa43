// Package remote is a typed HTTP client for the clinicdesk API. It is used by
// the smoke binary and is suitable for other Go services that need to talk to
// a running instance.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clinicdesk.org/internal/booking"
)

// Client talks to one clinicdesk API instance. The zero value is not usable;
// construct it with New.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SetToken installs the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

// Session is the issued credential plus the account it belongs to.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}

// APIError carries the server's status and error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type listEnvelope[T any] struct {
	Items []T `json:"items"`
}

// Register creates an account and stores the returned token on the client.
func (c *Client) Register(ctx context.Context, name, email, password, role string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/v1/auth/register", map[string]string{
		"name": name, "email": email, "password": password, "role": role,
	}, &s)
	if err != nil {
		return Session{}, err
	}
	c.token = s.Token
	return s, nil
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, &s)
	if err != nil {
		return Session{}, err
	}
	c.token = s.Token
	return s, nil
}

// Slots lists open slots.
func (c *Client) Slots(ctx context.Context) ([]booking.Slot, error) {
	var env listEnvelope[booking.Slot]
	if err := c.do(ctx, http.MethodGet, "/v1/slots", nil, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}

// Book reserves a slot for the authenticated patient.
func (c *Client) Book(ctx context.Context, slotID string) (booking.Booking, error) {
	var b booking.Booking
	err := c.do(ctx, http.MethodPost, "/v1/bookings", map[string]string{"slot_id": slotID}, &b)
	return b, err
}

// MyBookings lists the authenticated patient's confirmed bookings.
func (c *Client) MyBookings(ctx context.Context) ([]booking.Booking, error) {
	var env listEnvelope[booking.Booking]
	if err := c.do(ctx, http.MethodGet, "/v1/bookings", nil, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}

// Cancel cancels a booking and returns the updated record.
func (c *Client) Cancel(ctx context.Context, bookingID string) (booking.Booking, error) {
	var b booking.Booking
	err := c.do(ctx, http.MethodPost, "/v1/bookings/"+bookingID+"/cancel", nil, &b)
	return b, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{Status: resp.StatusCode, Message: errBody.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
