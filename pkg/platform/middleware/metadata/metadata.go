// Package metadata records who is calling: client address and user agent.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"auditlog/pkg/requestcontext"
)

// ClientMetadata stores the client IP, the User-Agent and its device label in
// the request context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientIP(r.Context(), ClientIPFromRequest(r))
		ctx = requestcontext.WithUserAgent(ctx, ua)
		ctx = requestcontext.WithDevice(ctx, DeviceLabel(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLabel renders a User-Agent as "<browser> on <os>". Clients that are
// not browsers get their product token, bots are prefixed.
func DeviceLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "Mozilla/") {
		return productToken(raw)
	}

	ua := useragent.New(raw)
	label, _ := ua.Browser()
	if label == "" {
		label = productToken(ua.UA())
	}
	if os := ua.OS(); os != "" {
		label += " on " + os
	}
	if ua.Bot() {
		label = "bot " + label
	}
	return label
}

// productToken returns the leading product name of a User-Agent, e.g. "curl"
// for "curl/8.0".
func productToken(raw string) string {
	first, _, _ := strings.Cut(raw, " ")
	name, _, _ := strings.Cut(first, "/")
	return name
}
