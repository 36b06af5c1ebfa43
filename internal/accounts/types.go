package accounts

import (
	"errors"
	"time"
)

// Role is the access level of an account. There are exactly two.
type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool { return r == RolePatient || r == RoleAdmin }

// User is an identity record. Immutable after registration.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	ErrNotFound       = errors.New("accounts: not found")
	ErrDuplicateEmail = errors.New("accounts: email already exists")
	ErrMissingField   = errors.New("accounts: all fields are required")
	ErrInvalidRole    = errors.New("accounts: invalid role")
)
