package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RequestID header key
const RequestIDHeader = "X-Request-ID"

// MaxRequestIDLength bounds inbound request ids that are reused verbatim.
const MaxRequestIDLength = 128

// requestIDContextKey is a custom type to avoid context key collisions
type requestIDContextKey string

const RequestIDContextKey requestIDContextKey = "request_id"

// RequestID reuses an inbound X-Request-ID of 1-128 characters or synthesizes
// one, stores it in the request context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !acceptableRequestID(requestID) {
			requestID = NewRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewRequestID synthesizes an id of the form req_<unix-millis>_<random hex>.
func NewRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func acceptableRequestID(id string) bool {
	n := utf8.RuneCountInString(id)
	return n > 0 && n <= MaxRequestIDLength
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return requestID
	}
	return ""
}
