package accounts

import (
	"context"
	"strings"
	"time"

	"clinicdesk.org/internal/auth"
	"clinicdesk.org/internal/booking"
	"clinicdesk.org/internal/ids"
)

// Service wraps a Store with registration and credential checks.
type Service struct {
	store Store

	// insecurePasswords reproduces the original demo policy: any non-empty
	// password authenticates an existing user. Off by default; only enabled
	// through an explicit configuration flag.
	insecurePasswords bool
}

// Option configures Service.
type Option func(*Service)

// WithInsecurePasswords enables the accept-any-password demo mode.
func WithInsecurePasswords() Option {
	return func(s *Service) { s.insecurePasswords = true }
}

// NewService constructs the account service over the given store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new user. Duplicate-email rejection is delegated to the
// store's Create so it holds under concurrent registrations.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return User{}, ErrMissingField
	}
	if !role.Valid() {
		return User{}, ErrInvalidRole
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate resolves credentials to an identity. Unknown email, empty
// password and a failed password check all collapse into ErrNotFound so the
// caller cannot probe which part was wrong.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return User{}, ErrNotFound
	}
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return User{}, ErrNotFound
	}
	if !s.insecurePasswords {
		if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
			return User{}, ErrNotFound
		}
	}
	return *u, nil
}

// Find returns the user with the given id.
func (s *Service) Find(ctx context.Context, id string) (User, error) {
	u, err := s.store.Find(ctx, id)
	if err != nil {
		return User{}, err
	}
	return *u, nil
}

// ResolvePatient satisfies booking.PatientResolver: the engine freezes this
// snapshot into every booking it creates.
func (s *Service) ResolvePatient(ctx context.Context, id string) (booking.Patient, error) {
	u, err := s.store.Find(ctx, id)
	if err != nil {
		return booking.Patient{}, err
	}
	return booking.Patient{ID: u.ID, Name: u.Name, Email: u.Email}, nil
}

// Default clinic administrator, installed only into an empty store.
const (
	defaultAdminEmail = "admin@clinic.com"
	defaultAdminName  = "Dr. Admin"
)

// EnsureDefaultAdmin seeds the built-in admin account when no users exist
// yet, so a fresh deployment can be administered immediately.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, password string) error {
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := User{
		ID:           ids.New(),
		Email:        defaultAdminEmail,
		Name:         defaultAdminName,
		Role:         RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	err = s.store.Create(ctx, &u)
	if err == ErrDuplicateEmail {
		// Lost a race against another instance seeding the same store.
		return nil
	}
	return err
}
