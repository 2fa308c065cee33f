package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/jedilnik/internal/approval"
	"github.com/erazemk/jedilnik/internal/auth"
	"github.com/erazemk/jedilnik/internal/store"
)

type contextKey string

const claimsKey contextKey = "claims"

// authenticate returns the claims of a valid, unrevoked bearer token, or
// nil if the request carries none.
func authenticate(r *http.Request, secret string, db *sql.DB) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return nil, nil
	}

	claims, err := auth.ValidateToken(secret, tokenStr)
	if err != nil {
		return nil, nil
	}

	revoked, err := store.IsTokenRevoked(r.Context(), db, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, nil
	}
	return claims, nil
}

// AuthMiddleware rejects requests without a valid bearer token and adds the
// claims to the context.
func AuthMiddleware(secret string, db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, secret, db)
			if err != nil {
				slog.Error("checking token", "error", err)
				jsonError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if claims == nil {
				jsonError(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// IdentifyMiddleware adds claims to the context when a valid token is
// present and passes anonymous requests through unchanged.
func IdentifyMiddleware(secret string, db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, secret, db)
			if err != nil {
				slog.Error("checking token", "error", err)
				jsonError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if claims != nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSiteAdmin allows only the site administrator through.
func RequireSiteAdmin(authorizer *approval.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal(r.Context())
			if !p.Authenticated {
				jsonError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !authorizer.IsSiteAdmin(p) {
				jsonError(w, http.StatusForbidden, "site administrator only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the JWT claims from the context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// principal converts the request identity into an approval principal.
func principal(ctx context.Context) approval.Principal {
	claims := GetClaims(ctx)
	if claims == nil {
		return approval.Principal{}
	}
	return approval.Principal{Email: claims.Email, Authenticated: true}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		}
		if rec.status >= http.StatusInternalServerError {
			slog.Warn("request failed", attrs...)
			return
		}
		slog.Info("request", attrs...)
	})
}
