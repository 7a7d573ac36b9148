// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

// Package httpapi is the HTTP adapter for SafeVault. It owns the
// transport concerns only: JSON decoding, input sanitization, request
// validation, and the mapping of domain errors to status codes. All
// authentication and authorization decisions are delegated to the auth
// service and the access gate.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/safevault/safevault/internal/access"
	"github.com/safevault/safevault/internal/auth"
	"github.com/safevault/safevault/internal/observability"
	"github.com/safevault/safevault/internal/sanitize"
)

// maxBodyBytes caps request bodies. Registration payloads are tiny;
// anything larger is hostile or broken.
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler serves the SafeVault HTTP API.
type Handler struct {
	auth    *auth.Service
	users   auth.UserRepository
	gate    *access.Gate
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler constructs a Handler. metrics may be nil (tests); logger
// falls back to slog.Default.
func NewHandler(svc *auth.Service, users auth.UserRepository, gate *access.Gate, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:    svc,
		users:   users,
		gate:    gate,
		metrics: metrics,
		logger:  logger,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=1,max=100"`
	Email    string `json:"email"    validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Role     string `json:"role"     validate:"omitempty,oneof=user admin"`
}

type registerResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userSummary struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	// Sanitize before validation so a value that is pure markup fails
	// the required check instead of being stored empty.
	req.Username = sanitize.Text(req.Username, auth.MaxUsernameLength)
	req.Email = sanitize.Email(req.Email)

	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password, auth.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateUser):
			writeError(w, http.StatusConflict, "DUPLICATE_USER", "username is already taken")
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "user store is unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "registration failed",
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RegistrationsTotal.Inc()
	}
	writeSuccess(w, http.StatusCreated, registerResponse{
		UserID:   user.ID.String(),
		Username: sanitize.ForDisplay(user.Username),
		Role:     string(user.Role),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
		return
	}

	req.Username = sanitize.Text(req.Username, auth.MaxUsernameLength)

	session, token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.countLogin("invalid_credentials")
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		case errors.Is(err, auth.ErrAccountLocked):
			h.countLogin("locked")
			writeError(w, http.StatusLocked, "ACCOUNT_LOCKED", "account temporarily locked")
		case errors.Is(err, auth.ErrStoreUnavailable):
			h.countLogin("error")
			writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "user store is unavailable")
		default:
			h.countLogin("error")
			h.logger.ErrorContext(r.Context(), "login failed",
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	h.countLogin("success")
	writeSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		Role:      string(session.Role),
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	// Revocation is idempotent: unknown, expired, and missing tokens all
	// land in the same place.
	h.auth.Logout(bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	decision := h.gate.Authorize(bearerToken(r), auth.RoleAdmin)
	h.countDecision(decision)

	switch decision {
	case access.Allowed:
		writeSuccess(w, http.StatusOK, map[string]string{
			"message": "welcome to the admin area",
			"role":    string(auth.RoleAdmin),
		})
	case access.Forbidden:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
	default:
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "valid session token required")
	}
}

func (h *Handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	decision := h.gate.Decide(bearerToken(r), "list", "users")
	h.countDecision(decision)

	switch decision {
	case access.Allowed:
		// fall through to the listing below
	case access.Forbidden:
		writeError(w, http.StatusForbidden, "FORBIDDEN", "permission list:users required")
		return
	default:
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "valid session token required")
		return
	}

	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "user store is unavailable")
		return
	}

	// Usernames are sanitized at ingestion and additionally encoded for
	// display here. Encoding happens at render time, never at storage.
	summaries := make([]userSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummary{
			Username: sanitize.ForDisplay(u.Username),
			Role:     string(u.Role),
		})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"users": summaries})
}

func (h *Handler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countDecision(d access.Decision) {
	if h.metrics != nil {
		h.metrics.AuthzDecisions.WithLabelValues(d.String()).Inc()
	}
}

// decodeBody decodes a JSON request body, rejecting unknown fields and
// oversized payloads.
func decodeBody(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// validationMessage flattens a validator error into a single readable
// line without echoing submitted values back to the client.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	for _, fe := range verrs {
		return fmt.Sprintf("field %s failed on the %s rule", fe.Field(), fe.Tag())
	}
	return "invalid request"
}
