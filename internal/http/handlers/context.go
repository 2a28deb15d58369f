package handlers

import (
	"context"
	"net"
	"net/http"
)

type contextKey int

const clientIPKey contextKey = iota

// ClientIPMiddleware records the request's client IP in the context so huma
// handlers can reach it. Must run after chi's RealIP middleware.
func ClientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey, ip)))
	})
}

// ClientIP returns the client IP recorded by ClientIPMiddleware, or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
