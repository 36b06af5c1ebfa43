package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"clinicdesk.org/internal/accounts"
	"clinicdesk.org/internal/audit"
	"clinicdesk.org/internal/auth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      accounts.User `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := accounts.Role(strings.TrimSpace(req.Role))
	if role == "" {
		role = accounts.RolePatient
	}

	user, err := a.accounts.Register(r.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrMissingField), errors.Is(err, accounts.ErrInvalidRole):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, accounts.ErrDuplicateEmail):
			writeError(w, r, http.StatusConflict, "email already exists")
		default:
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "accounts.register", map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
	})
	a.writeSession(w, r, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// One message for every failure mode, so callers cannot probe
		// which part of the credentials was wrong.
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	}

	_ = audit.LogEvent(r.Context(), "accounts.login", map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
	})
	a.writeSession(w, r, user)
}

func (a *API) writeSession(w http.ResponseWriter, r *http.Request, user accounts.User) {
	ttl := a.tokenTTL
	if ttl <= 0 {
		ttl = auth.DefaultTTL
	}
	token, err := auth.GenerateToken(auth.Identity{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  string(user.Role),
	}, ttl)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(ttl),
		User:      user,
	})
}
