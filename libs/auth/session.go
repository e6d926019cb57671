package auth

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/clinicazen/platform/libs/apperr"
	"github.com/clinicazen/platform/libs/httpx"
)

const SessionCookie = "zen_session"

// Principal is the caller of a single request. It is resolved from the
// request on every call and never cached between requests.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UserID != ""
}

type Verifier interface {
	Verify(token string) (Principal, error)
}

// Authenticate resolves the session from the Authorization bearer token or
// the session cookie. Requests without a valid session continue anonymously.
func Authenticate(v Verifier, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				logger.Debug("session rejected", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func RequireAuth(logger *slog.Logger) httpx.Middleware {
	return RequireRole(logger)
}

// RequireRole rejects anonymous callers with 401 and, when roles is not
// empty, callers holding none of them with 403.
func RequireRole(logger *slog.Logger, roles ...Role) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				httpx.WriteError(r.Context(), w, logger, apperr.Unauthorized())
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, p.Role) {
				httpx.WriteError(r.Context(), w, logger, apperr.Forbidden(""))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	// Browsers cannot set headers on websocket upgrades.
	if r.Header.Get("Upgrade") != "" {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
