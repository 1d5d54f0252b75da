package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"masjid/internal/campaigns/service"
	"masjid/pkg/contracts"
	apperrors "masjid/pkg/errors"
	httputil "masjid/pkg/http"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

type CampaignHandler struct {
	service service.CampaignService
	guard   contracts.Guard
	log     *logger.Logger
}

func NewCampaignHandler(service service.CampaignService, guard contracts.Guard, log *logger.Logger) *CampaignHandler {
	return &CampaignHandler{
		service: service,
		guard:   guard,
		log:     log,
	}
}

// Active returns the campaign visitors are currently sponsoring.
func (h *CampaignHandler) Active(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	settings, err := h.service.GetActive(r.Context())
	if err != nil {
		h.writeError(w, "Active", err)
		return
	}

	if err := httputil.WriteSuccess(w, settings); err != nil {
		h.log.Error("failed to write success response", "handler", "Active", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	campaigns, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WriteSuccess(w, campaigns); err != nil {
		h.log.Error("failed to write success response", "handler", "List", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	year, err := yearParam(ps)
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	settings, err := h.service.Get(r.Context(), year)
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	if err := httputil.WriteSuccess(w, settings); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CampaignHandler) Put(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	year, err := yearParam(ps)
	if err != nil {
		h.writeError(w, "Put", err)
		return
	}

	var settings model.CampaignSettings
	if err := httputil.DecodeJSON(r, &settings); err != nil {
		h.writeError(w, "Put", err)
		return
	}

	saved, err := h.service.Upsert(r.Context(), year, &settings)
	if err != nil {
		h.writeError(w, "Put", err)
		return
	}

	if err := httputil.WriteSuccess(w, saved); err != nil {
		h.log.Error("failed to write success response", "handler", "Put", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CampaignHandler) Activate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.toggle(w, r, ps, "Activate", h.service.Activate)
}

func (h *CampaignHandler) Deactivate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.toggle(w, r, ps, "Deactivate", h.service.Deactivate)
}

func (h *CampaignHandler) toggle(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	fn func(ctx context.Context, year int) (*model.CampaignSettings, error),
) {
	year, err := yearParam(ps)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	settings, err := fn(r.Context(), year)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, settings); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *CampaignHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func yearParam(ps httprouter.Params) (int, error) {
	raw := ps.ByName("year")
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		return 0, apperrors.InvalidInput("invalid year: " + raw)
	}
	return year, nil
}

func (h *CampaignHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/iftar/campaign", h.Active)

	router.GET("/api/v1/admin/iftar/campaigns", h.guard(h.List))
	router.GET("/api/v1/admin/iftar/campaigns/:year", h.guard(h.Get))
	router.PUT("/api/v1/admin/iftar/campaigns/:year", h.guard(h.Put))
	router.POST("/api/v1/admin/iftar/campaigns/:year/activate", h.guard(h.Activate))
	router.POST("/api/v1/admin/iftar/campaigns/:year/deactivate", h.guard(h.Deactivate))
}
