package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"

	"masjid/internal/payments/gateway"
	apperrors "masjid/pkg/errors"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

type mockCheckoutService struct {
	startFunc   func(ctx context.Context, req *model.SponsorshipRequest) (*model.SponsorshipStarted, error)
	confirmFunc func(ctx context.Context, token string) (*model.SponsorshipStatus, error)
}

func (m *mockCheckoutService) StartSponsorship(ctx context.Context, req *model.SponsorshipRequest) (*model.SponsorshipStarted, error) {
	return m.startFunc(ctx, req)
}

func (m *mockCheckoutService) Confirm(ctx context.Context, token string) (*model.SponsorshipStatus, error) {
	return m.confirmFunc(ctx, token)
}

type stubGateway struct {
	event *gateway.Event
	err   error
}

func (g *stubGateway) CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	return nil, errors.New("not used")
}

func (g *stubGateway) GetIntent(ctx context.Context, id string) (*gateway.Intent, error) {
	return nil, errors.New("not used")
}

func (g *stubGateway) CancelIntent(ctx context.Context, id string) error {
	return errors.New("not used")
}

func (g *stubGateway) ParseWebhook(payload []byte, signature string) (*gateway.Event, error) {
	return g.event, g.err
}

type recordingSink struct {
	delivered []model.PaymentOutcome
	err       error
}

func (s *recordingSink) Deliver(ctx context.Context, outcome model.PaymentOutcome) error {
	s.delivered = append(s.delivered, outcome)
	return s.err
}

func TestSponsorshipHandler_Start(t *testing.T) {
	var got *model.SponsorshipRequest
	svc := &mockCheckoutService{
		startFunc: func(ctx context.Context, req *model.SponsorshipRequest) (*model.SponsorshipStarted, error) {
			got = req
			return &model.SponsorshipStarted{PaymentIntentID: "pi_1", ClaimToken: "tok", DateID: req.DateID}, nil
		},
	}
	router := httprouter.New()
	NewSponsorshipHandler(svc, logger.Discard()).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/iftar/sponsorships", strings.NewReader(`{"date_id":"d1","sponsor_name":"Amina"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.DateID != "d1" || got.SponsorName != "Amina" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.IdempotencyKey != "key-1" {
		t.Errorf("expected idempotency key from header, got %q", got.IdempotencyKey)
	}

	var body struct {
		Data model.SponsorshipStarted `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.ClaimToken != "tok" {
		t.Errorf("expected claim token, got %+v", body.Data)
	}
}

func TestSponsorshipHandler_StartConflict(t *testing.T) {
	svc := &mockCheckoutService{
		startFunc: func(ctx context.Context, req *model.SponsorshipRequest) (*model.SponsorshipStarted, error) {
			return nil, apperrors.Conflict("This date was just taken, please choose another")
		},
	}
	router := httprouter.New()
	NewSponsorshipHandler(svc, logger.Discard()).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/iftar/sponsorships", strings.NewReader(`{"date_id":"d1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestSponsorshipHandler_StartRejectsUnknownFields(t *testing.T) {
	svc := &mockCheckoutService{
		startFunc: func(ctx context.Context, req *model.SponsorshipRequest) (*model.SponsorshipStarted, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	router := httprouter.New()
	NewSponsorshipHandler(svc, logger.Discard()).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/iftar/sponsorships", strings.NewReader(`{"date_id":"d1","amount":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSponsorshipHandler_Confirm(t *testing.T) {
	svc := &mockCheckoutService{
		confirmFunc: func(ctx context.Context, token string) (*model.SponsorshipStatus, error) {
			if token != "tok-123" {
				t.Errorf("unexpected token %q", token)
			}
			return &model.SponsorshipStatus{PaymentIntentID: "pi_1", PaymentStatus: model.PaymentSucceeded, Sponsored: true}, nil
		},
	}
	router := httprouter.New()
	NewSponsorshipHandler(svc, logger.Discard()).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/iftar/sponsorships/tok-123/confirm", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"sponsored":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestWebhookHandler(t *testing.T) {
	outcome := model.PaymentOutcome{IntentID: "pi_1", DateID: "d1", Status: model.PaymentSucceeded}

	tests := []struct {
		name          string
		gateway       *stubGateway
		sinkErr       error
		wantStatus    int
		wantDelivered int
	}{
		{
			name:          "relevant outcome is delivered",
			gateway:       &stubGateway{event: &gateway.Event{ID: "evt_1", Relevant: true, Outcome: outcome}},
			wantStatus:    http.StatusOK,
			wantDelivered: 1,
		},
		{
			name:       "invalid signature",
			gateway:    &stubGateway{err: gateway.ErrInvalidSignature},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "irrelevant event is acknowledged",
			gateway:    &stubGateway{event: &gateway.Event{ID: "evt_2", Type: "charge.refunded"}},
			wantStatus: http.StatusOK,
		},
		{
			name: "outcome without date is acknowledged",
			gateway: &stubGateway{event: &gateway.Event{ID: "evt_3", Relevant: true, Outcome: model.PaymentOutcome{
				IntentID: "pi_2",
				Status:   model.PaymentSucceeded,
			}}},
			wantStatus: http.StatusOK,
		},
		{
			name:          "store outage asks for redelivery",
			gateway:       &stubGateway{event: &gateway.Event{ID: "evt_4", Relevant: true, Outcome: outcome}},
			sinkErr:       apperrors.Unavailable("ledger"),
			wantStatus:    http.StatusServiceUnavailable,
			wantDelivered: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{err: tt.sinkErr}
			router := httprouter.New()
			NewWebhookHandler(tt.gateway, sink, logger.Discard()).RegisterRoutes(router)

			req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"id":"evt"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if len(sink.delivered) != tt.wantDelivered {
				t.Errorf("expected %d deliveries, got %d", tt.wantDelivered, len(sink.delivered))
			}
		})
	}
}

func TestWebhookHandler_RejectsOversizedBody(t *testing.T) {
	sink := &recordingSink{}
	router := httprouter.New()
	NewWebhookHandler(&stubGateway{}, sink, logger.Discard()).RegisterRoutes(router)

	body := strings.Repeat("x", maxWebhookBytes+1)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(sink.delivered) != 0 {
		t.Error("nothing should be delivered")
	}
}
