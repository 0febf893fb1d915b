package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

var errRateLimited = errors.New("rate limit exceeded")

// rateWindow is the sliding window every per-IP budget is counted over.
const rateWindow = time.Minute

// rateLimit allows perMinute requests per client IP. The key is the IP left
// in RemoteAddr by TrustedRealIP, so forwarded headers are only honoured
// from trusted proxies. httprate sets Retry-After before the limit handler
// runs; the handler writes the usual RATE001 error body.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
		}),
	)
}
