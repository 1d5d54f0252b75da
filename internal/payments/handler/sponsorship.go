package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"masjid/internal/payments/service"
	httputil "masjid/pkg/http"
	"masjid/pkg/logger"
	"masjid/pkg/middleware"
	"masjid/pkg/model"
)

type SponsorshipHandler struct {
	service service.CheckoutService
	log     *logger.Logger
}

func NewSponsorshipHandler(service service.CheckoutService, log *logger.Logger) *SponsorshipHandler {
	return &SponsorshipHandler{
		service: service,
		log:     log,
	}
}

func (h *SponsorshipHandler) Start(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.SponsorshipRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Start", err)
		return
	}
	req.IdempotencyKey = r.Header.Get(middleware.IdempotencyHeader)

	started, err := h.service.StartSponsorship(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Start", err)
		return
	}

	if err := httputil.WriteCreated(w, started); err != nil {
		h.log.Error("failed to write created response", "handler", "Start", "operation", "WriteCreated", "error", err)
	}
}

// Confirm is polled by the checkout page after the payer returns from the
// payment form.
func (h *SponsorshipHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status, err := h.service.Confirm(r.Context(), ps.ByName("token"))
	if err != nil {
		h.writeError(w, "Confirm", err)
		return
	}

	if err := httputil.WriteSuccess(w, status); err != nil {
		h.log.Error("failed to write success response", "handler", "Confirm", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SponsorshipHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *SponsorshipHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/iftar/sponsorships", h.Start)
	router.POST("/api/v1/iftar/sponsorships/:token/confirm", h.Confirm)
}
