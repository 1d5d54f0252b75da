package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	apperrors "masjid/pkg/errors"
	httputil "masjid/pkg/http"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

type mockLedgerService struct {
	listAvailableFunc func(ctx context.Context, year int, onlyAvailable bool) ([]model.PublicDate, error)
	listDatesFunc     func(ctx context.Context, year int) ([]*model.BookableDate, error)
	generateFunc      func(ctx context.Context, req *model.GenerateRequest) (*model.GeneratedDates, error)
	updateFunc        func(ctx context.Context, id string, update *model.DateUpdate, expected *int64) (*model.BookableDate, error)
	releaseFunc       func(ctx context.Context) (int, error)
	resolveFunc       func(ctx context.Context, id, note string) error
	listReconFunc     func(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error)
}

func (m *mockLedgerService) GenerateDates(ctx context.Context, req *model.GenerateRequest) (*model.GeneratedDates, error) {
	return m.generateFunc(ctx, req)
}

func (m *mockLedgerService) ListAvailable(ctx context.Context, year int, onlyAvailable bool) ([]model.PublicDate, error) {
	return m.listAvailableFunc(ctx, year, onlyAvailable)
}

func (m *mockLedgerService) ListDates(ctx context.Context, year int) ([]*model.BookableDate, error) {
	return m.listDatesFunc(ctx, year)
}

func (m *mockLedgerService) ListYears(ctx context.Context) ([]int, error) {
	return []int{2025}, nil
}

func (m *mockLedgerService) GetDate(ctx context.Context, id string) (*model.BookableDate, error) {
	return nil, nil
}

func (m *mockLedgerService) BeginClaim(ctx context.Context, dateID, intentID string, email *string) (*model.ClaimResult, error) {
	return nil, nil
}

func (m *mockLedgerService) CommitClaim(ctx context.Context, dateID, intentID, sponsorName string) (*model.ClaimResult, error) {
	return nil, nil
}

func (m *mockLedgerService) ReleaseClaim(ctx context.Context, dateID, intentID string) (*model.ClaimResult, error) {
	return nil, nil
}

func (m *mockLedgerService) ExpireClaim(ctx context.Context, dateID, intentID string) (*model.ClaimResult, error) {
	return nil, nil
}

func (m *mockLedgerService) ReleaseExpired(ctx context.Context) (int, error) {
	return m.releaseFunc(ctx)
}

func (m *mockLedgerService) UpdateDate(ctx context.Context, id string, update *model.DateUpdate, expected *int64) (*model.BookableDate, error) {
	return m.updateFunc(ctx, id, update, expected)
}

func (m *mockLedgerService) ListReconciliations(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error) {
	return m.listReconFunc(ctx, onlyOpen, limit, offset)
}

func (m *mockLedgerService) ResolveReconciliation(ctx context.Context, id, note string) error {
	return m.resolveFunc(ctx, id, note)
}

// headerGuard admits requests carrying X-Test-Admin.
func headerGuard(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if r.Header.Get("X-Test-Admin") == "" {
			_ = httputil.WriteError(w, apperrors.Unauthorized("admin session required"))
			return
		}
		next(w, r, ps)
	}
}

func newTestRouter(svc *mockLedgerService) *httprouter.Router {
	h := NewLedgerHandler(svc, headerGuard, logger.Discard())
	h.now = func() time.Time { return time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) }

	router := httprouter.New()
	h.RegisterRoutes(router)
	return router
}

func TestPublicDates_DefaultsToCurrentYear(t *testing.T) {
	var gotYear int
	var gotOnly bool
	svc := &mockLedgerService{
		listAvailableFunc: func(ctx context.Context, year int, onlyAvailable bool) ([]model.PublicDate, error) {
			gotYear, gotOnly = year, onlyAvailable
			return []model.PublicDate{{ID: "d1", Date: "2026-02-18", Year: 2026, Available: true, Status: model.StateAvailable}}, nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/iftar/dates?only_available=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if gotYear != 2026 || !gotOnly {
		t.Errorf("expected year 2026 and only_available, got %d %v", gotYear, gotOnly)
	}
	if strings.Contains(w.Body.String(), "sponsor_reference") {
		t.Error("public listing must not expose sponsor references")
	}
}

func TestPublicDates_InvalidYear(t *testing.T) {
	router := newTestRouter(&mockLedgerService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/iftar/dates?year=next", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestPublicDates_StoreUnavailable(t *testing.T) {
	svc := &mockLedgerService{
		listAvailableFunc: func(ctx context.Context, year int, onlyAvailable bool) ([]model.PublicDate, error) {
			return nil, apperrors.UnavailableWithCause("ledger store", errors.New("no reachable servers"))
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/iftar/dates?year=2025", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestAdminRoutes_RequireGuard(t *testing.T) {
	router := newTestRouter(&mockLedgerService{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/admin/iftar/dates"},
		{http.MethodPost, "/api/v1/admin/iftar/dates/generate"},
		{http.MethodPatch, "/api/v1/admin/iftar/dates/d1"},
		{http.MethodPost, "/api/v1/admin/iftar/sweep"},
		{http.MethodGet, "/api/v1/admin/iftar/reconciliations"},
		{http.MethodPost, "/api/v1/admin/iftar/reconciliations/r1/resolve"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", w.Code)
			}
		})
	}
}

func TestGenerate_Created(t *testing.T) {
	var received *model.GenerateRequest
	svc := &mockLedgerService{
		generateFunc: func(ctx context.Context, req *model.GenerateRequest) (*model.GeneratedDates, error) {
			received = req
			return &model.GeneratedDates{Year: req.Year, Created: 3}, nil
		},
	}
	router := newTestRouter(svc)

	body := `{"year":2025,"start_date":"2025-03-01","end_date":"2025-03-03"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/iftar/dates/generate", strings.NewReader(body))
	req.Header.Set("X-Test-Admin", "1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if received == nil || received.StartDate != "2025-03-01" || received.Regenerate {
		t.Errorf("unexpected request passed to service: %+v", received)
	}
}

func TestGenerate_UnknownFieldRejected(t *testing.T) {
	router := newTestRouter(&mockLedgerService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/iftar/dates/generate", strings.NewReader(`{"year":2025,"days":30}`))
	req.Header.Set("X-Test-Admin", "1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestUpdate_IfMatch(t *testing.T) {
	tests := []struct {
		name         string
		ifMatch      string
		expectStatus int
		expectVer    *int64
	}{
		{name: "no header", ifMatch: "", expectStatus: http.StatusOK},
		{name: "quoted version", ifMatch: `"4"`, expectStatus: http.StatusOK, expectVer: ptr(int64(4))},
		{name: "weak version", ifMatch: `W/"7"`, expectStatus: http.StatusOK, expectVer: ptr(int64(7))},
		{name: "garbage", ifMatch: "abc", expectStatus: http.StatusBadRequest},
		{name: "zero", ifMatch: "0", expectStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotVer *int64
			called := false
			svc := &mockLedgerService{
				updateFunc: func(ctx context.Context, id string, update *model.DateUpdate, expected *int64) (*model.BookableDate, error) {
					called = true
					gotVer = expected
					return &model.BookableDate{ID: id, Version: 9}, nil
				},
			}
			router := newTestRouter(svc)

			req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/iftar/dates/d1", strings.NewReader(`{"notes":"x"}`))
			req.Header.Set("X-Test-Admin", "1")
			if tt.ifMatch != "" {
				req.Header.Set("If-Match", tt.ifMatch)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectStatus {
				t.Fatalf("expected status %d, got %d", tt.expectStatus, w.Code)
			}
			if tt.expectStatus != http.StatusOK {
				if called {
					t.Error("service must not be called on a bad If-Match")
				}
				return
			}
			if (gotVer == nil) != (tt.expectVer == nil) || (gotVer != nil && *gotVer != *tt.expectVer) {
				t.Errorf("expected version %v, got %v", tt.expectVer, gotVer)
			}
			if w.Header().Get("ETag") != `"9"` {
				t.Errorf("expected ETag \"9\", got %q", w.Header().Get("ETag"))
			}
		})
	}
}

func TestUpdate_ConflictPassesThrough(t *testing.T) {
	svc := &mockLedgerService{
		updateFunc: func(ctx context.Context, id string, update *model.DateUpdate, expected *int64) (*model.BookableDate, error) {
			return nil, apperrors.Conflict("Date d1 was modified by someone else")
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/iftar/dates/d1", strings.NewReader(`{"clear_sponsor":true}`))
	req.Header.Set("X-Test-Admin", "1")
	req.Header.Set("If-Match", "3")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
}

func TestSweep(t *testing.T) {
	svc := &mockLedgerService{
		releaseFunc: func(ctx context.Context) (int, error) { return 4, nil },
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/iftar/sweep", nil)
	req.Header.Set("X-Test-Admin", "1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response struct {
		Data sweepResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Data.Released != 4 {
		t.Errorf("expected 4 released, got %d", response.Data.Released)
	}
}

func TestReconciliations_DefaultsToOpen(t *testing.T) {
	var gotOpen bool
	var gotLimit int
	svc := &mockLedgerService{
		listReconFunc: func(ctx context.Context, onlyOpen bool, limit int, offset int64) ([]*model.Reconciliation, error) {
			gotOpen, gotLimit = onlyOpen, limit
			return []*model.Reconciliation{}, nil
		},
		resolveFunc: func(ctx context.Context, id, note string) error {
			if id != "r1" || note != "refunded" {
				t.Errorf("unexpected resolve call %q %q", id, note)
			}
			return nil
		},
	}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/iftar/reconciliations?limit=5", nil)
	req.Header.Set("X-Test-Admin", "1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !gotOpen || gotLimit != 5 {
		t.Errorf("unexpected list call: status %d open %v limit %d", w.Code, gotOpen, gotLimit)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/iftar/reconciliations/r1/resolve", strings.NewReader(`{"note":"refunded"}`))
	req.Header.Set("X-Test-Admin", "1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectStatus int
	}{
		{"store reachable", nil, http.StatusOK},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := httprouter.New()
			NewHealthHandler(fakePinger{err: tt.err}, logger.Discard()).RegisterRoutes(router)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.expectStatus {
				t.Errorf("expected status %d, got %d", tt.expectStatus, w.Code)
			}
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
