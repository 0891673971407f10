package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/artofficial/intake/internal/metrics"
	"github.com/artofficial/intake/internal/observability"
)

// Recovery middleware recovers from panics and logs them. The response body
// never carries the panic value or stack.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = NewRequestID()
				}

				panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", "Internal server error").
					WithCorrelationID(requestID)
				panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

				if observability.ServerLogger != nil {
					observability.ServerLogger.Error("Recovered from panic",
						zap.String("request_id", requestID),
						zap.String("panic", fmt.Sprintf("%v", err)),
						zap.String("stack_trace", string(debug.Stack())))
				}

				metrics.RecordPanic()

				writeErrorResponse(w, panicErr, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the flat error body shared with the API handlers.
type ErrorResponse struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// writeErrorResponse writes error response directly (avoid circular import)
func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, statusCode int) {
	response := ErrorResponse{
		RequestID: envelope.CorrelationID,
		Success:   false,
		Error:     envelope.Code,
		Message:   envelope.Message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(RequestIDHeader, envelope.CorrelationID)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
