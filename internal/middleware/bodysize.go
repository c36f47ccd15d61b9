package middleware

import (
	"net/http"
)

// Body size limits.
const (
	// MaxWebhookBodySize bounds gateway webhook payloads. Text messages
	// are tiny; the headroom covers message metadata on media events.
	MaxWebhookBodySize = 1 << 20 // 1MB

	// MaxJSONBodySize bounds the operational JSON endpoints (log level).
	MaxJSONBodySize = 64 << 10 // 64KB
)

// BodySizeLimiter rejects request bodies over maxBytes.
func BodySizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}

			// MaxBytesReader catches chunked bodies that lie about length.
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}
