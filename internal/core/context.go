package core

import "context"

type contextKey string

const (
	ctxKeyClientIP  contextKey = "upload_client_ip"
	ctxKeyUserAgent contextKey = "upload_user_agent"
)

// ContextWithClient records who sent an upload so its log lines can say so.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClientIP, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// ClientFromContext returns the values stored by ContextWithClient.
func ClientFromContext(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ctxKeyClientIP).(string)
	userAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, userAgent
}

// uploadLogFields returns slog key/value pairs describing the client.
func uploadLogFields(ctx context.Context) []any {
	ip, ua := ClientFromContext(ctx)
	var fields []any
	if ip != "" {
		fields = append(fields, "client_ip", ip)
	}
	if ua != "" {
		fields = append(fields, "user_agent", ua)
	}
	return fields
}
