package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"masjid/internal/payments/gateway"
	"masjid/internal/payments/service"
	apperrors "masjid/pkg/errors"
	httputil "masjid/pkg/http"
	"masjid/pkg/logger"
)

const (
	WebhookPath     = "/api/v1/payments/webhook"
	signatureHeader = "Stripe-Signature"
	maxWebhookBytes = 64 << 10
)

type webhookAck struct {
	Received bool `json:"received"`
}

// WebhookHandler receives processor notifications. It is served outside the
// JSON middleware chain since the signature covers the raw body.
type WebhookHandler struct {
	gateway gateway.Gateway
	sink    service.OutcomeSink
	log     *logger.Logger
}

func NewWebhookHandler(gw gateway.Gateway, sink service.OutcomeSink, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		gateway: gw,
		sink:    sink,
		log:     log,
	}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("Webhook payload is too large or unreadable"))
		return
	}

	event, err := h.gateway.ParseWebhook(payload, r.Header.Get(signatureHeader))
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			h.log.Warn("Rejected webhook with invalid signature", "remote_addr", r.RemoteAddr)
			h.writeError(w, apperrors.InvalidInput("Invalid webhook signature"))
			return
		}
		h.log.Error("Failed to parse webhook", "error", err)
		h.writeError(w, apperrors.InvalidInput("Malformed webhook payload"))
		return
	}

	if !event.Relevant {
		h.log.Debug("Ignoring webhook event", "event_id", event.ID, "type", event.Type)
		h.ack(w)
		return
	}

	// An intent without a date is not ours to settle; retries would never help.
	if event.Outcome.DateID == "" {
		h.log.Warn("Webhook outcome carries no date",
			"event_id", event.ID,
			"intent_id", event.Outcome.IntentID,
		)
		h.ack(w)
		return
	}

	if err := h.sink.Deliver(r.Context(), event.Outcome); err != nil {
		h.log.Error("Failed to deliver payment outcome",
			"event_id", event.ID,
			"intent_id", event.Outcome.IntentID,
			"date_id", event.Outcome.DateID,
			"error", err,
		)
		h.writeError(w, err)
		return
	}

	h.log.Info("Webhook processed",
		"event_id", event.ID,
		"type", event.Type,
		"intent_id", event.Outcome.IntentID,
		"status", event.Outcome.Status,
	)
	h.ack(w)
}

func (h *WebhookHandler) ack(w http.ResponseWriter) {
	if err := httputil.WriteJSON(w, http.StatusOK, webhookAck{Received: true}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Webhook", "operation", "WriteJSON", "error", err)
	}
}

func (h *WebhookHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Webhook", "operation", "WriteError", "error", writeErr)
	}
}

func (h *WebhookHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST(WebhookPath, h.Receive)
}
