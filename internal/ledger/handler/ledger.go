package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"masjid/internal/ledger/service"
	"masjid/pkg/contracts"
	apperrors "masjid/pkg/errors"
	httputil "masjid/pkg/http"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

type LedgerHandler struct {
	service service.LedgerService
	guard   contracts.Guard
	log     *logger.Logger
	now     func() time.Time
}

func NewLedgerHandler(service service.LedgerService, guard contracts.Guard, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		guard:   guard,
		log:     log,
		now:     time.Now,
	}
}

type resolveRequest struct {
	Note string `json:"note"`
}

type sweepResponse struct {
	Released int `json:"released"`
}

// PublicDates lists the calendar for ?year= without sponsor references.
func (h *LedgerHandler) PublicDates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	year, err := httputil.ExtractYear(r, h.now())
	if err != nil {
		h.writeError(w, "PublicDates", err)
		return
	}
	onlyAvailable, err := httputil.ExtractBool(r, "only_available", false)
	if err != nil {
		h.writeError(w, "PublicDates", err)
		return
	}

	dates, err := h.service.ListAvailable(r.Context(), year, onlyAvailable)
	if err != nil {
		h.writeError(w, "PublicDates", err)
		return
	}

	if err := httputil.WriteSuccess(w, dates); err != nil {
		h.log.Error("failed to write success response", "handler", "PublicDates", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LedgerHandler) AdminDates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	year, err := httputil.ExtractYear(r, h.now())
	if err != nil {
		h.writeError(w, "AdminDates", err)
		return
	}

	dates, err := h.service.ListDates(r.Context(), year)
	if err != nil {
		h.writeError(w, "AdminDates", err)
		return
	}

	if err := httputil.WriteSuccess(w, dates); err != nil {
		h.log.Error("failed to write success response", "handler", "AdminDates", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LedgerHandler) Years(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	years, err := h.service.ListYears(r.Context())
	if err != nil {
		h.writeError(w, "Years", err)
		return
	}

	if err := httputil.WriteSuccess(w, years); err != nil {
		h.log.Error("failed to write success response", "handler", "Years", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LedgerHandler) Generate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.GenerateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Generate", err)
		return
	}

	result, err := h.service.GenerateDates(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Generate", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "Generate", "operation", "WriteCreated", "error", err)
	}
}

// Update applies a manual edit. An If-Match header carrying the version the
// admin saw turns the edit into a compare-and-set.
func (h *LedgerHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	expected, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	var update model.DateUpdate
	if err := httputil.DecodeJSON(r, &update); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	date, err := h.service.UpdateDate(r.Context(), id, &update, expected)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(date.Version, 10)))
	if err := httputil.WriteSuccess(w, date); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LedgerHandler) Sweep(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	released, err := h.service.ReleaseExpired(r.Context())
	if err != nil {
		h.writeError(w, "Sweep", err)
		return
	}

	if err := httputil.WriteSuccess(w, sweepResponse{Released: released}); err != nil {
		h.log.Error("failed to write success response", "handler", "Sweep", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LedgerHandler) Reconciliations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "Reconciliations", err)
		return
	}
	onlyOpen, err := httputil.ExtractBool(r, "open", true)
	if err != nil {
		h.writeError(w, "Reconciliations", err)
		return
	}

	records, err := h.service.ListReconciliations(r.Context(), onlyOpen, limit, offset)
	if err != nil {
		h.writeError(w, "Reconciliations", err)
		return
	}

	if err := httputil.WriteSuccess(w, records); err != nil {
		h.log.Error("failed to write success response", "handler", "Reconciliations", "operation", "WriteSuccess", "error", err)
	}
}

func (h *LedgerHandler) Resolve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req resolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Resolve", err)
		return
	}

	if err := h.service.ResolveReconciliation(r.Context(), ps.ByName("id"), req.Note); err != nil {
		h.writeError(w, "Resolve", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// parseIfMatch accepts a bare or quoted version number.
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, nil
	}
	header = strings.TrimPrefix(header, "W/")
	header = strings.Trim(header, `"`)

	version, err := strconv.ParseInt(header, 10, 64)
	if err != nil || version < 1 {
		return nil, apperrors.InvalidInput("If-Match must carry the date version")
	}
	return &version, nil
}

func (h *LedgerHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/iftar/dates", h.PublicDates)

	router.GET("/api/v1/admin/iftar/dates", h.guard(h.AdminDates))
	router.POST("/api/v1/admin/iftar/dates/generate", h.guard(h.Generate))
	router.PATCH("/api/v1/admin/iftar/dates/:id", h.guard(h.Update))
	router.GET("/api/v1/admin/iftar/years", h.guard(h.Years))
	router.POST("/api/v1/admin/iftar/sweep", h.guard(h.Sweep))
	router.GET("/api/v1/admin/iftar/reconciliations", h.guard(h.Reconciliations))
	router.POST("/api/v1/admin/iftar/reconciliations/:id/resolve", h.guard(h.Resolve))
}
