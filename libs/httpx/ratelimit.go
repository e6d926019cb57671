package httpx

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
)

// WithRateLimit is the single-instance limiter, used when Redis is not configured.
func WithRateLimit(limit int, window time.Duration) Middleware {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) { return clientKey(r), nil }),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeRateLimited(w)
		}),
	)
}

func writeRateLimited(w http.ResponseWriter) {
	WriteJSON(w, http.StatusTooManyRequests, errorBody{
		Error:   "RATE_LIMITED",
		Message: "Demasiadas solicitudes. Inténtalo de nuevo en unos segundos.",
	})
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
