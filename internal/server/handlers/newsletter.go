package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/artofficial/intake/internal/errors"
	"github.com/artofficial/intake/internal/journal"
	"github.com/artofficial/intake/internal/metrics"
	"github.com/artofficial/intake/internal/newsletter"
	"github.com/artofficial/intake/internal/observability"
	"github.com/artofficial/intake/internal/server/middleware"
)

// OutcomeRecorder stores one audit row per completed request.
type OutcomeRecorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// SubscribeResponse is the success body for newsletter submissions.
type SubscribeResponse struct {
	RequestID  string            `json:"requestId"`
	Success    bool              `json:"success"`
	Status     newsletter.Status `json:"status"`
	Provider   string            `json:"provider"`
	Idempotent bool              `json:"idempotent"`
}

// NewsletterHandler serves POST /newsletter.
type NewsletterHandler struct {
	service  *newsletter.Service
	recorder OutcomeRecorder
	now      func() time.Time
}

// NewNewsletterHandler wires the intake service; recorder may be nil.
func NewNewsletterHandler(service *newsletter.Service, recorder OutcomeRecorder) *NewsletterHandler {
	return &NewsletterHandler{service: service, recorder: recorder, now: time.Now}
}

// StatusForOutcome maps a subscription status onto its HTTP status.
func StatusForOutcome(status newsletter.Status) int {
	if status == newsletter.StatusAlreadySubscribed {
		return http.StatusOK
	}
	return http.StatusCreated
}

// ClientKey derives the rate-limit key from the caller address. RealIP has
// already replaced RemoteAddr when a forwarding header was present.
func ClientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return newsletter.FallbackClientKey
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return newsletter.FallbackClientKey
	}
	return addr
}

func (h *NewsletterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	outcome, err := h.service.Submit(ctx, newsletter.Intake{
		ClientKey:   ClientKey(r),
		ContentType: r.Header.Get("Content-Type"),
		Body:        r.Body,
	})
	if err != nil {
		envelope := apperrors.FromNewsletter(ctx, err)
		respondWithError(w, r, envelope)
		h.record(ctx, journal.Entry{
			RequestID:  envelope.CorrelationID,
			Outcome:    journal.OutcomeError,
			ErrorCode:  envelope.Code,
			HTTPStatus: apperrors.HTTPStatusFromEnvelope(envelope),
		})
		return
	}

	requestID := middleware.GetRequestID(ctx)
	if requestID == "" {
		requestID = middleware.NewRequestID()
	}
	status := StatusForOutcome(outcome.Status)

	metrics.RecordSubmission(string(outcome.Status), outcome.Provider)

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store")
	header.Set(middleware.RequestIDHeader, requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SubscribeResponse{
		RequestID:  requestID,
		Success:    true,
		Status:     outcome.Status,
		Provider:   outcome.Provider,
		Idempotent: outcome.Idempotent,
	})

	h.record(ctx, journal.Entry{
		RequestID:  requestID,
		Outcome:    string(outcome.Status),
		Provider:   outcome.Provider,
		HTTPStatus: status,
	})
}

func (h *NewsletterHandler) record(ctx context.Context, entry journal.Entry) {
	if h.recorder == nil {
		return
	}
	entry.CreatedAt = h.now()
	// Detached from request cancellation: the response is already written.
	if err := h.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		metrics.RecordJournalWriteError()
		if observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to journal newsletter outcome",
				zap.String("request_id", entry.RequestID),
				zap.Error(err))
		}
	}
}
