package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/milesdash/internal/core"
)

// withClient tags ctx with the client IP and User-Agent for upload logging.
func withClient(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, clientIP(r), r.UserAgent())
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
