package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/artofficial/intake/internal/metrics"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/observability"
	"github.com/artofficial/intake/internal/server/middleware"
)

// Public error codes.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeRateLimited         = "RATE_LIMITED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeUpstream            = "EXTERNAL_SERVICE_ERROR"
)

const (
	internalMessage = "Internal server error"

	detailRetryAfter = "retry_after"
)

// Error creation helpers

func NewValidationError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeValidation, message)
}

// NewRateLimitedError builds a RATE_LIMITED envelope carrying the Retry-After seconds.
func NewRateLimitedError(retryAfter int) *errors.ErrorEnvelope {
	if retryAfter < 1 {
		retryAfter = 1
	}
	env := errors.NewErrorEnvelope(CodeRateLimited, "Rate limit exceeded")
	env = env.WithDetails(map[string]interface{}{detailRetryAfter: retryAfter})
	env, _ = env.WithSeverity(errors.SeverityMedium)
	return env
}

func NewProviderUnavailableError() *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeProviderUnavailable, "No newsletter provider configured")
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// NewInternalError builds an INTERNAL_ERROR envelope. The public message is
// always generic; reason is kept in the envelope context for logs only.
func NewInternalError(reason string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeInternal, internalMessage)
	if reason != "" {
		env, _ = env.WithContext(map[string]interface{}{"reason": reason})
	}
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

// NewServiceUnavailableError is used by operational endpoints (health, metrics).
func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeServiceUnavailable, message)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

func NewUpstreamError(message string) *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(CodeUpstream, message)
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// providerFailure is satisfied by backend adapter errors.
type providerFailure interface {
	ProviderName() string
	HTTPStatus() int
}

// FromNewsletter maps a pipeline error onto its public envelope. Provider
// failures are folded into INTERNAL_ERROR; their provider name and upstream
// status stay in the envelope context.
func FromNewsletter(ctx context.Context, err error) *errors.ErrorEnvelope {
	var nerr *newsletter.Error
	if !stderrors.As(err, &nerr) || nerr == nil {
		return EnsureCorrelationID(EnsureEnvelope(err), ctx)
	}

	var env *errors.ErrorEnvelope
	switch nerr.Kind {
	case newsletter.KindValidation:
		env = NewValidationError(nerr.Message)
	case newsletter.KindRateLimited:
		env = NewRateLimitedError(nerr.RetryAfter)
	case newsletter.KindProviderUnavailable:
		env = NewProviderUnavailableError()
	case newsletter.KindProviderError:
		env = NewInternalError(nerr.Kind.String())
		env = withProviderContext(env, nerr.Err)
	case newsletter.KindInternal:
		env = NewInternalError(nerr.Kind.String())
	default:
		env = NewInternalError("unknown error kind")
	}

	return EnsureCorrelationID(env, ctx)
}

func withProviderContext(env *errors.ErrorEnvelope, cause error) *errors.ErrorEnvelope {
	var pf providerFailure
	if !stderrors.As(cause, &pf) {
		return env
	}
	fields := map[string]interface{}{"provider": pf.ProviderName()}
	if status := pf.HTTPStatus(); status > 0 {
		fields["provider_status"] = status
	}
	updated, err := env.WithContext(fields)
	if err != nil {
		return env
	}
	return updated
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, internalMessage)
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	return NewInternalError("unexpected error")
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = middleware.NewRequestID()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeProviderUnavailable, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfter returns the Retry-After seconds carried by the envelope, or 0.
func RetryAfter(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return 0
	}
	switch v := envelope.Details[detailRetryAfter].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// HTTPErrorResponse is the error body returned to callers.
type HTTPErrorResponse struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	RespondWithEnvelope(w, r, FromNewsletter(ctx, err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	message := envelope.Message
	if statusCode >= http.StatusInternalServerError && envelope.Code == CodeInternal {
		message = internalMessage
	}

	response := HTTPErrorResponse{
		RequestID: envelope.CorrelationID,
		Success:   false,
		Error:     envelope.Code,
		Message:   message,
	}

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store")
	header.Set(middleware.RequestIDHeader, envelope.CorrelationID)
	if retryAfter := RetryAfter(envelope); retryAfter > 0 {
		header.Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	metrics.RecordRejection(envelope.Code)
	if r != nil {
		metrics.RecordErrorByEndpoint(middleware.EndpointLabel(r), envelope.Code)
	}
}
