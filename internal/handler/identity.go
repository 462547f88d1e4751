package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/aryan0dhankhar/identityhub/internal/featureflags"
	"github.com/aryan0dhankhar/identityhub/internal/respond"
	"github.com/aryan0dhankhar/identityhub/internal/security/audit"
	"github.com/aryan0dhankhar/identityhub/internal/security/middleware"
	"github.com/aryan0dhankhar/identityhub/internal/service"
)

// UserResponse is the public shape of a user record. The password
// digest never appears here.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// CredentialRequest is the signup/signin request body.
type CredentialRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the update-password request body.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// IdentityHandler handles signup, signin, whoami, and password change.
type IdentityHandler struct {
	identity *service.IdentityService
	audit    *audit.Logger
	logger   *slog.Logger
}

// NewIdentityHandler creates a new identity handler
func NewIdentityHandler(identity *service.IdentityService, auditLog *audit.Logger, logger *slog.Logger) *IdentityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityHandler{
		identity: identity,
		audit:    auditLog,
		logger:   logger,
	}
}

// Signup handles POST /api/v1/system/signup
func (h *IdentityHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if featureflags.Enabled("signup_disabled") {
		respond.New(w).
			SetMeta(respond.QueryMeta(r)).
			SetResult(map[string]string{"message": "Signups are currently disabled."}).
			SetStatus(respond.StatusForbidden).
			Build()
		return
	}

	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.New(w).
			SetMeta(respond.QueryMeta(r)).
			SetErrors(err).
			SetResult(map[string]string{"message": "Invalid request parameters."}).
			SetStatus(respond.StatusInvalid).
			Build()
		return
	}

	user, err := h.identity.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.As(err, &validationErr):
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetErrors(validationErr.Errs()...).
				SetResult(map[string]string{"message": "Invalid input values."}).
				SetStatus(respond.StatusInvalid).
				Build()
		case errors.Is(err, service.ErrDuplicateUsername):
			h.audit.LogSignup(r.Context(), req.Username, "", "duplicate")
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetResult(map[string]string{"message": "User already exists with this username. Please signin."}).
				SetStatus(respond.StatusInvalid).
				Build()
		default:
			h.internalError(w, r, err)
		}
		return
	}

	h.audit.LogSignup(r.Context(), user.Username, user.ID, "created")
	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(map[string]any{
			"message": "User created.",
			"user":    toUserResponse(user),
		}).
		SetStatus(respond.StatusCreated).
		Build()
}

// Signin handles POST /api/v1/system/signin
func (h *IdentityHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.New(w).
			SetMeta(respond.QueryMeta(r)).
			SetErrors(err).
			SetResult(map[string]string{"message": "Invalid request parameters."}).
			SetStatus(respond.StatusInvalid).
			Build()
		return
	}

	token, user, err := h.identity.Signin(r.Context(), req.Username, req.Password)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.As(err, &validationErr):
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetErrors(validationErr.Errs()...).
				SetResult(map[string]string{"message": "Invalid input values."}).
				SetStatus(respond.StatusInvalid).
				Build()
		case errors.Is(err, domain.ErrUserNotFound):
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetResult(map[string]string{"message": "User does not exist with this username"}).
				SetStatus(respond.StatusNotFound).
				Build()
		case errors.Is(err, service.ErrPasswordMismatch):
			h.audit.LogSignin(r.Context(), req.Username, "", "mismatch")
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetResult(map[string]string{"message": "Username and password combination does not match."}).
				SetStatus(respond.StatusInvalid).
				Build()
		case errors.Is(err, service.ErrSigninThrottled):
			h.audit.LogDenied(r.Context(), req.Username, "signin throttled")
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetResult(map[string]string{"message": "Too many failed signin attempts. Try again later."}).
				SetStatus(respond.StatusForbidden).
				Build()
		default:
			h.internalError(w, r, err)
		}
		return
	}

	h.audit.LogSignin(r.Context(), user.Username, user.ID, "success")
	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(map[string]string{"token": token}).
		SetStatus(respond.StatusSuccess).
		Build()
}

// WhoAmI handles GET /api/v1/system/me. The authorization gate has
// already verified the token; the claim is returned verbatim.
func (h *IdentityHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respond.New(w).
			SetResult(map[string]string{"message": "Authorization token is required."}).
			SetStatus(respond.StatusUnauthorized).
			Build()
		return
	}

	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(claims).
		SetStatus(respond.StatusSuccess).
		Build()
}

// ChangePassword handles POST /api/v1/system/me/update-password
func (h *IdentityHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respond.New(w).
			SetResult(map[string]string{"message": "Authorization token is required."}).
			SetStatus(respond.StatusUnauthorized).
			Build()
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" {
		respond.New(w).
			SetMeta(respond.QueryMeta(r)).
			SetResult(map[string]string{"message": "Invalid request parameters."}).
			SetStatus(respond.StatusInvalid).
			Build()
		return
	}

	user, err := h.identity.ChangePassword(r.Context(), claims.Username, req.OldPassword, req.NewPassword)
	if err != nil {
		var validationErr *service.ValidationError
		switch {
		case errors.Is(err, service.ErrPasswordMismatch):
			h.audit.LogPasswordChange(r.Context(), claims.Username, claims.UserID, "mismatch")
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetResult(map[string]string{"message": "Old password does not match current password."}).
				SetStatus(respond.StatusInvalid).
				Build()
		case errors.As(err, &validationErr):
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetErrors(validationErr.Errs()...).
				SetResult(map[string]string{"message": "Invalid input values."}).
				SetStatus(respond.StatusInvalid).
				Build()
		case errors.Is(err, domain.ErrUserNotFound):
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetResult(map[string]string{"message": "User does not exist with this username"}).
				SetStatus(respond.StatusNotFound).
				Build()
		default:
			h.internalError(w, r, err)
		}
		return
	}

	h.audit.LogPasswordChange(r.Context(), user.Username, user.ID, "success")
	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(toUserResponse(user)).
		SetStatus(respond.StatusSuccess).
		Build()
}

func (h *IdentityHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("exception in api handler",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetErrors(err).
		SetResult(map[string]string{"message": "Caught an exception in API Handler."}).
		SetStatus(respond.StatusError).
		Build()
}
