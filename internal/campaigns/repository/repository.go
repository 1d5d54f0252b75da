package repository

import (
	"context"
	"time"

	"masjid/pkg/config"
	"masjid/pkg/model"
)

const CampaignsCollection = "Iftar_campaigns"

type CampaignRepository interface {
	// Upsert writes the settings for settings.Year. The active flag is never
	// changed here; use Activate and Deactivate.
	Upsert(ctx context.Context, settings *model.CampaignSettings) error
	FindByYear(ctx context.Context, year int) (*model.CampaignSettings, error)
	FindActive(ctx context.Context) (*model.CampaignSettings, error)
	List(ctx context.Context) ([]*model.CampaignSettings, error)
	// Activate makes year the only active campaign.
	Activate(ctx context.Context, year int, now time.Time) error
	// Deactivate reports whether the campaign was active before the call.
	Deactivate(ctx context.Context, year int, now time.Time) (bool, error)
}

func NewCampaignRepository(cfg *config.Config) CampaignRepository {
	if cfg.StoreDriver == config.StoreSQLite {
		return NewSQLiteCampaignRepository(cfg.Client.SQLite)
	}
	return NewMongoCampaignRepository(cfg)
}
