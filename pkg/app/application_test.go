package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masjid/internal/ledger/handler"
	"masjid/internal/ledger/repository"
	"masjid/internal/ledger/service"
	"masjid/internal/ledger/validator"
	"masjid/pkg/client"
	"masjid/pkg/config"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

type echoWebhook struct {
	calls int
}

func (e *echoWebhook) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/payments/webhook", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		e.calls++
		w.WriteHeader(http.StatusOK)
	})
}

func openGuard(next httprouter.Handle) httprouter.Handle { return next }

func newTestApplication(t *testing.T) (*Application, *echoWebhook, int) {
	t.Helper()

	store, err := client.OpenSQLite(client.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.DB.Close() })

	cfg := &config.Config{
		Log:               logger.Discard(),
		Client:            &client.Client{SQLite: store},
		Port:              "0",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    5 * time.Second,
		IdempotencyTTL:    time.Minute,
		MaxRequestSize:    1 << 20,
		ClaimTimeout:      15 * time.Minute,
	}

	ledger := service.NewLedgerService(
		repository.NewSQLiteDateRepository(store),
		repository.NewSQLiteReconciliationRepository(store),
		validator.NewLedgerValidator(cfg.Log),
		cfg,
	)
	year := time.Now().UTC().Year()
	_, err = ledger.GenerateDates(context.Background(), &model.GenerateRequest{
		Year:      year,
		StartDate: fmt.Sprintf("%d-03-01", year),
		EndDate:   fmt.Sprintf("%d-03-05", year),
	})
	require.NoError(t, err)

	webhook := &echoWebhook{}
	a := NewApplication(cfg)
	a.SetWebhook("/api/v1/payments/webhook", webhook)
	a.SetApp(handler.NewLedgerHandler(ledger, openGuard, cfg.Log))
	t.Cleanup(func() {
		a.idempotencyStore.Stop()
		a.rateLimiter.Stop()
	})
	return a, webhook, year
}

func serve(a *Application, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestApplication_HealthAndReady(t *testing.T) {
	a, _, _ := newTestApplication(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)
}

func TestApplication_PublicCalendar(t *testing.T) {
	a, _, year := newTestApplication(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/iftar/dates?year=%d", year), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []model.PublicDate `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 5)
	for _, d := range body.Data {
		assert.True(t, d.Available)
		assert.Equal(t, year, d.Year)
	}
}

func TestApplication_WebhookSkipsJSONChain(t *testing.T) {
	a, webhook, _ := newTestApplication(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader("t=1,v1=abc"))
	req.Header.Set("Content-Type", "text/plain")
	rec := serve(a, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, webhook.calls)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/iftar/dates/generate", strings.NewReader("year=2025"))
	req.Header.Set("Content-Type", "text/plain")
	rec = serve(a, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestApplication_UnknownRouteIsNotFound(t *testing.T) {
	a, _, _ := newTestApplication(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
