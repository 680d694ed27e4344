package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// ClientIP extracts client ip from common headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware stores the caller's address and user agent in the request
// context so services can stamp audit entries without seeing the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), requestInfoKey{}, requestInfo{ip: ClientIP(r), userAgent: r.UserAgent()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Annotate fills the request-derived fields of an entry from ctx.
func Annotate(ctx context.Context, entry Entry) Entry {
	if ctx == nil {
		return entry
	}
	info, ok := ctx.Value(requestInfoKey{}).(requestInfo)
	if !ok {
		return entry
	}
	if entry.IP == "" {
		entry.IP = info.ip
	}
	if entry.UserAgent == "" {
		entry.UserAgent = info.userAgent
	}
	return entry
}
