package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/milesdash/internal/config"
	"github.com/JonMunkholm/milesdash/internal/logging"
)

// APIKeyHeader carries the key checked by APIKeyAuth.
const APIKeyHeader = "X-API-Key"

type authFailure struct {
	status  int
	message string
	code    string
}

var (
	errMissingKey = authFailure{http.StatusUnauthorized, "missing API key", "AUTH001"}
	errInvalidKey = authFailure{http.StatusForbidden, "invalid API key", "AUTH002"}
)

// APIKeyAuth guards the JSON mutation endpoints. With RequireAPIKey off
// every request passes; with it on and no keys configured every request is
// rejected, which config validation refuses to start with.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			switch {
			case key == "":
				rejectAuth(w, r, errMissingKey)
			case !matchesAny(key, cfg.APIKeys):
				rejectAuth(w, r, errInvalidKey)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// matchesAny compares key against every configured key in constant time,
// so timing does not reveal which key (if any) matched.
func matchesAny(key string, keys []string) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return match == 1
}

func rejectAuth(w http.ResponseWriter, r *http.Request, f authFailure) {
	logging.FromContext(r.Context()).Warn("auth: "+f.message,
		"path", r.URL.Path,
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
		"code", f.code,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   f.message,
		"message": f.message,
		"code":    f.code,
	})
}
