package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aryan0dhankhar/identityhub/internal/observability/metrics"
	"github.com/aryan0dhankhar/identityhub/internal/respond"
	"github.com/aryan0dhankhar/identityhub/internal/security/token"
)

type claimsContextKey struct{}
type requestIDContextKey struct{}

// Authorize rejects requests that do not carry a verifiable bearer token
// and attaches the decoded claims to the request context for downstream
// handlers. Verification failure is terminal for the request.
func Authorize(tokens *token.Manager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				metrics.ObserveTokenVerification("missing")
				respond.New(w).
					SetResult(map[string]string{"message": "Authorization token is required."}).
					SetStatus(respond.StatusUnauthorized).
					Build()
				return
			}

			parts := strings.Split(header, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				metrics.ObserveTokenVerification("malformed")
				respond.New(w).
					SetResult(map[string]string{"message": "Authorization token needs to be in Bearer format."}).
					SetStatus(respond.StatusUnauthorized).
					Build()
				return
			}

			claims, err := tokens.Verify(parts[1])
			if err != nil {
				metrics.ObserveTokenVerification("rejected")
				log.Info("rejected bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				respond.New(w).
					SetResult(map[string]string{"message": "Authorization token is invalid."}).
					SetErrors(err).
					SetStatus(respond.StatusUnauthorized).
					Build()
				return
			}

			metrics.ObserveTokenVerification("verified")
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the verified claims attached by Authorize,
// or nil when the request never passed the gate.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	if c := ctx.Value(claimsContextKey{}); c != nil {
		return c.(*token.Claims)
	}
	return nil
}

// RequestID tags every request with a short random id for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err == nil {
			id := hex.EncodeToString(buf)
			w.Header().Set("X-Request-ID", id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequestIDFromContext returns the request id set by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if id := ctx.Value(requestIDContextKey{}); id != nil {
		return id.(string)
	}
	return ""
}

// Recover converts an escaped panic into a single internal-error
// envelope so that no fault reaches the client unshaped.
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic in handler",
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
					)
					respond.New(w).
						SetResult(map[string]string{"message": "Caught an exception in API Handler."}).
						SetStatus(respond.StatusError).
						Build()
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateJSONContentType ensures body-carrying requests declare JSON.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			contentType := r.Header.Get("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", contentType),
					slog.String("method", r.Method),
				)
				respond.New(w).
					SetResult(map[string]string{"message": "Content-Type must be application/json."}).
					SetStatus(respond.StatusInvalid).
					Build()
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
