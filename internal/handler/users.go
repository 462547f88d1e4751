package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/aryan0dhankhar/identityhub/internal/respond"
	"github.com/aryan0dhankhar/identityhub/internal/security/cipher"
	"github.com/aryan0dhankhar/identityhub/internal/service"
	"github.com/aryan0dhankhar/identityhub/pkg/cache"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 10
	userCacheTTL     = 30 * time.Second
)

// UsersHandler exposes the authorized CRUD surface over the directory.
type UsersHandler struct {
	directory domain.UserDirectory
	identity  *service.IdentityService
	cipher    *cipher.Cipher
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(
	directory domain.UserDirectory,
	identity *service.IdentityService,
	credCipher *cipher.Cipher,
	userCache *cache.Cache,
	logger *slog.Logger,
) *UsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsersHandler{
		directory: directory,
		identity:  identity,
		cipher:    credCipher,
		cache:     userCache,
		logger:    logger,
	}
}

// List handles GET /api/v1/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultListLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.invalidParams(w, r)
			return
		}
		limit = parsed
	}

	skip := 0
	if raw := query.Get("skip"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.invalidParams(w, r)
			return
		}
		skip = parsed
	}

	filter := domain.ListFilter{Username: query.Get("username")}
	if raw := query.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.invalidParams(w, r)
			return
		}
		filter.Active = &active
	}

	users, total, err := h.directory.List(filter, limit, skip)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	results := make([]UserResponse, 0, len(users))
	for _, u := range users {
		results = append(results, toUserResponse(u))
	}

	meta := respond.QueryMeta(r)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["totalCount"] = total

	respond.New(w).
		SetMeta(meta).
		SetResult(results).
		SetStatus(respond.StatusSuccess).
		Build()
}

// Create handles POST /api/v1/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.invalidParams(w, r)
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
			respond.New(w).
				SetMeta(respond.QueryMeta(r)).
				SetResult(map[string]string{"message": "User already exists with this username"}).
				SetStatus(respond.StatusInvalid).
				Build()
		default:
			h.internalError(w, r, err)
		}
		return
	}

	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(toUserResponse(user)).
		SetStatus(respond.StatusCreated).
		Build()
}

// Get handles GET /api/v1/users/{id}
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.invalidParams(w, r)
		return
	}

	if cached, ok := h.cache.Get(cacheKey(id)); ok {
		respond.New(w).
			SetMeta(respond.QueryMeta(r)).
			SetResult(cached.(UserResponse)).
			SetStatus(respond.StatusSuccess).
			Build()
		return
	}

	user, err := h.directory.FindByID(id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			h.userNotFound(w, r)
			return
		}
		h.internalError(w, r, err)
		return
	}

	result := toUserResponse(user)
	h.cache.Set(cacheKey(id), result, userCacheTTL)

	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(result).
		SetStatus(respond.StatusSuccess).
		Build()
}

// UpdatePassword handles PUT /api/v1/users/{id}. This is the
// directory-level password update; it does not require the old password.
func (h *UsersHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.invalidParams(w, r)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Password) < 8 {
		h.invalidParams(w, r)
		return
	}

	digest, err := h.cipher.Digest(req.Password)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	user, err := h.directory.UpdatePassword(id, digest)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			h.userNotFound(w, r)
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.cache.Delete(cacheKey(id))

	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(toUserResponse(user)).
		SetStatus(respond.StatusSuccess).
		Build()
}

// Delete handles DELETE /api/v1/users/{id}
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.invalidParams(w, r)
		return
	}

	if err := h.directory.Delete(id); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			h.userNotFound(w, r)
			return
		}
		h.internalError(w, r, err)
		return
	}

	h.cache.Delete(cacheKey(id))
	h.logger.Info("user deleted", slog.String("user_id", id))

	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(map[string]string{"message": "User deleted."}).
		SetStatus(respond.StatusSuccess).
		Build()
}

func (h *UsersHandler) invalidParams(w http.ResponseWriter, r *http.Request) {
	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(map[string]string{"message": "Invalid request parameters."}).
		SetStatus(respond.StatusInvalid).
		Build()
}

func (h *UsersHandler) userNotFound(w http.ResponseWriter, r *http.Request) {
	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(map[string]string{"message": "User does not exist with this id"}).
		SetStatus(respond.StatusNotFound).
		Build()
}

func (h *UsersHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
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

func cacheKey(id string) string {
	return "user:" + id
}
