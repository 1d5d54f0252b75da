package service

import (
	"context"
	"errors"
	"strings"
	"time"

	campaignerrors "masjid/internal/campaigns/errors"
	"masjid/internal/campaigns/repository"
	"masjid/internal/campaigns/validator"
	"masjid/pkg/config"
	apperrors "masjid/pkg/errors"
	"masjid/pkg/model"
	"masjid/pkg/sanitizer"
)

type CampaignService interface {
	Upsert(ctx context.Context, year int, settings *model.CampaignSettings) (*model.CampaignSettings, error)
	Get(ctx context.Context, year int) (*model.CampaignSettings, error)
	GetActive(ctx context.Context) (*model.CampaignSettings, error)
	List(ctx context.Context) ([]*model.CampaignSettings, error)
	Activate(ctx context.Context, year int) (*model.CampaignSettings, error)
	Deactivate(ctx context.Context, year int) (*model.CampaignSettings, error)
}

type campaignService struct {
	repo      repository.CampaignRepository
	validator *validator.CampaignValidator
	cfg       *config.Config
	now       func() time.Time
}

func NewCampaignService(repo repository.CampaignRepository, validator *validator.CampaignValidator, cfg *config.Config) CampaignService {
	return &campaignService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Upsert stores the settings for year. The year in the path wins over the
// body, and the active flag is left as it is.
func (s *campaignService) Upsert(ctx context.Context, year int, settings *model.CampaignSettings) (*model.CampaignSettings, error) {
	settings.Year = year
	settings.Title = sanitizer.TrimAndNormalize(settings.Title)
	settings.Description = sanitizer.NormalizeNotes(settings.Description)
	settings.Currency = strings.ToLower(strings.TrimSpace(settings.Currency))
	if settings.Currency == "" {
		settings.Currency = s.cfg.Currency
	}

	if err := s.validator.Validate(settings); err != nil {
		return nil, apperrors.Validation("Campaign settings are invalid", map[string]any{
			"errors": err,
		})
	}

	settings.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, s.storeError("upsert campaign", err, year)
	}

	s.cfg.Log.Info("Campaign settings saved",
		"year", year,
		"start_date", settings.StartDate,
		"end_date", settings.EndDate,
		"cost_per_slot", settings.CostPerSlot,
		"currency", settings.Currency,
	)
	return s.Get(ctx, year)
}

func (s *campaignService) Get(ctx context.Context, year int) (*model.CampaignSettings, error) {
	settings, err := s.repo.FindByYear(ctx, year)
	if err != nil {
		return nil, s.storeError("find campaign", err, year)
	}
	return settings, nil
}

func (s *campaignService) GetActive(ctx context.Context) (*model.CampaignSettings, error) {
	settings, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, s.storeError("find active campaign", err, 0)
	}
	return settings, nil
}

func (s *campaignService) List(ctx context.Context) ([]*model.CampaignSettings, error) {
	campaigns, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.storeError("list campaigns", err, 0)
	}
	return campaigns, nil
}

func (s *campaignService) Activate(ctx context.Context, year int) (*model.CampaignSettings, error) {
	if err := s.repo.Activate(ctx, year, s.now()); err != nil {
		return nil, s.storeError("activate campaign", err, year)
	}
	s.cfg.Log.Info("Campaign activated", "year", year)
	return s.Get(ctx, year)
}

func (s *campaignService) Deactivate(ctx context.Context, year int) (*model.CampaignSettings, error) {
	changed, err := s.repo.Deactivate(ctx, year, s.now())
	if err != nil {
		return nil, s.storeError("deactivate campaign", err, year)
	}
	if changed {
		s.cfg.Log.Info("Campaign deactivated", "year", year)
	}
	return s.Get(ctx, year)
}

func (s *campaignService) storeError(op string, err error, year int) error {
	switch {
	case errors.Is(err, campaignerrors.ErrNotFound):
		return apperrors.NotFound("Campaign").WithDetails(map[string]any{"year": year})
	case errors.Is(err, campaignerrors.ErrNoActiveCampaign):
		return apperrors.NotFound("Active campaign")
	case errors.Is(err, campaignerrors.ErrStoreUnavailable):
		s.cfg.Log.Warn("Campaign store unavailable", "operation", op, "year", year, "error", err)
		return apperrors.UnavailableWithCause("campaign store", err)
	}
	s.cfg.Log.Error("Campaign store operation failed", "operation", op, "year", year, "error", err)
	return apperrors.Internal("Failed to "+op, err)
}
