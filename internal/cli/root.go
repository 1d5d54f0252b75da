package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	campaignrepo "masjid/internal/campaigns/repository"
	campaignservice "masjid/internal/campaigns/service"
	campaignvalidator "masjid/internal/campaigns/validator"
	ledgerrepo "masjid/internal/ledger/repository"
	ledgerservice "masjid/internal/ledger/service"
	ledgervalidator "masjid/internal/ledger/validator"
	"masjid/internal/payments/gateway"
	paymentservice "masjid/internal/payments/service"
	"masjid/pkg/config"
)

const ToolName = "sponsorctl"

// Services are the stores an operator command works on.
type Services struct {
	Ledger    ledgerservice.LedgerService
	Campaigns campaignservice.CampaignService
}

// Loader connects the services. The returned func releases connections.
type Loader func(ctx context.Context) (*Services, func(), error)

// NewRootCmd builds the operator CLI. load is called lazily so commands that
// need no store (hash-password, sealer-key) work without one.
func NewRootCmd(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:   ToolName,
		Short: "Operate the iftar sponsorship ledger",
		Long: `sponsorctl runs administrative tasks against the ledger store configured
in the environment: generating a season's dates, sweeping stale claims and
working through the reconciliation queue.`,
		SilenceUsage: true,
	}

	root.AddCommand(HashPasswordCmd())
	root.AddCommand(SealerKeyCmd())
	root.AddCommand(GenerateCmd(load))
	root.AddCommand(DatesCmd(load))
	root.AddCommand(SweepCmd(load))
	root.AddCommand(CampaignCmd(load))
	root.AddCommand(ReconciliationsCmd(load))
	root.AddCommand(ResolveCmd(load))

	return root
}

// EnvLoader connects to the store described by the environment.
func EnvLoader(ctx context.Context) (*Services, func(), error) {
	cfg := config.Load(ToolName)
	cfg.SetStore()

	// A sweep run from here cancels the intents it expires, as the service does.
	var opts []ledgerservice.Option
	if cfg.PaymentsEnabled() {
		gw := gateway.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Log)
		opts = append(opts, ledgerservice.WithExpiryListener(paymentservice.NewIntentCanceler(gw, cfg.Log)))
	}

	services := &Services{
		Ledger: ledgerservice.NewLedgerService(
			ledgerrepo.NewDateRepository(cfg),
			ledgerrepo.NewReconciliationRepository(cfg),
			ledgervalidator.NewLedgerValidator(cfg.Log),
			cfg,
			opts...,
		),
		Campaigns: campaignservice.NewCampaignService(
			campaignrepo.NewCampaignRepository(cfg),
			campaignvalidator.NewCampaignValidator(cfg.Log),
			cfg,
		),
	}
	return services, func() { cfg.Client.GracefulShutdown(ctx, cfg.Log) }, nil
}

// withServices runs fn with connected services.
func withServices(cmd *cobra.Command, load Loader, fn func(ctx context.Context, s *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	services, release, err := load(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer release()

	return fn(ctx, services)
}
