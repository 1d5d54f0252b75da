package main

import (
	"context"

	"github.com/hibiken/asynq"

	"masjid/internal/adminauth"
	campaignhandler "masjid/internal/campaigns/handler"
	campaignrepo "masjid/internal/campaigns/repository"
	campaignservice "masjid/internal/campaigns/service"
	campaignvalidator "masjid/internal/campaigns/validator"
	ledgerhandler "masjid/internal/ledger/handler"
	ledgerrepo "masjid/internal/ledger/repository"
	ledgerservice "masjid/internal/ledger/service"
	ledgervalidator "masjid/internal/ledger/validator"
	"masjid/internal/notify"
	"masjid/internal/payments/gateway"
	paymenthandler "masjid/internal/payments/handler"
	paymentservice "masjid/internal/payments/service"
	"masjid/internal/sweeper"
	"masjid/pkg/app"
	"masjid/pkg/config"
	"masjid/pkg/contracts"
	"masjid/pkg/kafka"
	kafka_config "masjid/pkg/kafka/config"
	kafka_middleware "masjid/pkg/kafka/middleware"
	"masjid/pkg/middleware"
	"masjid/pkg/sealer"
)

const ServiceName = "sponsorships"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStore()

	cfg.Log.Info("Starting Iftar sponsorships service", "store", cfg.StoreDriver)
	serverApp := app.NewApplication(cfg)

	var gw gateway.Gateway
	var canceler *paymentservice.IntentCanceler
	if cfg.PaymentsEnabled() {
		gw = gateway.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Log)
		canceler = paymentservice.NewIntentCanceler(gw, cfg.Log)
	}

	ledger := initLedger(cfg, canceler)
	campaigns := initCampaigns(cfg)

	auth := adminauth.NewAuthenticator(cfg.AdminPasswordHash, cfg.SessionSecret, cfg.SessionTTL)
	if !auth.Enabled() {
		cfg.Log.Warn("Admin access disabled, ADMIN_PASSWORD_HASH and SESSION_SECRET are not set")
	}
	loginLimiter := middleware.NewIPRateLimiter(cfg.LoginRateLimit, cfg.RateLimitWindow, middleware.ClientIP, cfg.Log)
	serverApp.OnShutdown(loginLimiter.Stop)
	authHandler := adminauth.NewAuthHandler(auth, loginLimiter, cfg.CookieSecure, cfg.Log)
	guard := authHandler.RequireAdmin()

	handlers := []contracts.Handler{
		authHandler,
		ledgerhandler.NewLedgerHandler(ledger, guard, cfg.Log),
		campaignhandler.NewCampaignHandler(campaigns, guard, cfg.Log),
	}

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.PaymentsEnabled() {
		sponsorships, webhook := initPayments(ctx, cfg, serverApp, gw, canceler, ledger, campaigns)
		handlers = append(handlers, sponsorships)
		serverApp.SetWebhook(paymenthandler.WebhookPath, webhook)
	} else {
		cfg.Log.Warn("Payments disabled, STRIPE_SECRET_KEY is not set")
	}

	sweep := sweeper.New(ledger, cfg.SweepInterval, cfg.Log)
	go sweep.Run(ctx)
	serverApp.OnShutdown(sweep.Stop)
	// Stoppers run in reverse, so consumers and the sweep see ctx cancelled first.
	serverApp.OnShutdown(cancel)

	serverApp.SetApp(handlers...)
	serverApp.Run()
}

// initLedger wires canceler, when payments are enabled, so every expired
// claim also cancels its payment intent.
func initLedger(cfg *config.Config, canceler *paymentservice.IntentCanceler) ledgerservice.LedgerService {
	var opts []ledgerservice.Option
	if canceler != nil {
		opts = append(opts, ledgerservice.WithExpiryListener(canceler))
	}
	ledger := ledgerservice.NewLedgerService(
		ledgerrepo.NewDateRepository(cfg),
		ledgerrepo.NewReconciliationRepository(cfg),
		ledgervalidator.NewLedgerValidator(cfg.Log),
		cfg,
		opts...,
	)
	cfg.Log.Info("Ledger service initialized", "claim_timeout", cfg.ClaimTimeout)
	return ledger
}

func initCampaigns(cfg *config.Config) campaignservice.CampaignService {
	campaigns := campaignservice.NewCampaignService(
		campaignrepo.NewCampaignRepository(cfg),
		campaignvalidator.NewCampaignValidator(cfg.Log),
		cfg,
	)
	cfg.Log.Info("Campaign service initialized")
	return campaigns
}

func initPayments(
	ctx context.Context,
	cfg *config.Config,
	serverApp *app.Application,
	gw gateway.Gateway,
	canceler *paymentservice.IntentCanceler,
	ledger ledgerservice.LedgerService,
	campaigns campaignservice.CampaignService,
) (*paymenthandler.SponsorshipHandler, *paymenthandler.WebhookHandler) {
	s := initSealer(cfg)
	notifier := notify.NewNotifier(notify.NewMailer(cfg), cfg)

	var events kafka.Publisher
	var kafkaCfg *kafka_config.Config
	if cfg.KafkaEnabled {
		var err error
		kafkaCfg, err = kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		kafkaCfg.LogConfiguration(cfg.Log)

		producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaSponsoredTopic, "", cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create sponsorship event producer", "error", err)
		}
		if kafkaCfg.LogMessages {
			producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		}
		serverApp.OnShutdown(func() { _ = producer.Close() })
		events = producer
	}

	processor := paymentservice.NewOutcomeProcessor(ledger, canceler, notifier, events, cfg)

	var sink paymentservice.OutcomeSink = paymentservice.NewDirectSink(processor)
	if cfg.KafkaEnabled {
		sink = initOutcomeRelay(ctx, cfg, kafkaCfg, serverApp, processor)
	}

	var scheduler paymentservice.ExpiryScheduler = sweeper.NoopScheduler{}
	if cfg.RedisEnabled() {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
		client := asynq.NewClient(redisOpt)
		serverApp.OnShutdown(func() { _ = client.Close() })
		scheduler = sweeper.NewAsynqScheduler(client, cfg.ClaimTimeout, cfg.Log)

		worker := sweeper.NewExpiryWorker(redisOpt, cfg.WorkerCount, ledger, cfg.Log)
		if err := worker.Start(); err != nil {
			cfg.Log.Fatal("Failed to start claim expiry worker", "error", err)
		}
		serverApp.OnShutdown(worker.Stop)
	}

	checkout := paymentservice.NewCheckoutService(ledger, campaigns, gw, sink, scheduler, s, cfg)
	cfg.Log.Info("Payments initialized", "currency", cfg.Currency, "kafka", cfg.KafkaEnabled, "redis", cfg.RedisEnabled())

	return paymenthandler.NewSponsorshipHandler(checkout, cfg.Log),
		paymenthandler.NewWebhookHandler(gw, sink, cfg.Log)
}

// initOutcomeRelay routes outcomes through Kafka so each date's outcomes are
// applied in order by one consumer.
func initOutcomeRelay(
	ctx context.Context,
	cfg *config.Config,
	kafkaCfg *kafka_config.Config,
	serverApp *app.Application,
	processor *paymentservice.OutcomeProcessor,
) paymentservice.OutcomeSink {
	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaOutcomesTopic, cfg.KafkaOutcomesDLQ, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create outcome producer", "error", err)
	}
	if kafkaCfg.LogMessages {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	}

	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.KafkaOutcomesTopic, cfg.KafkaConsumerGroup, cfg.KafkaOutcomesDLQ, processor.HandleMessage, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create outcome consumer", "error", err)
	}
	if kafkaCfg.LogMessages {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	}

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Outcome consumer stopped", "error", err)
		}
	}()
	serverApp.OnShutdown(func() {
		_ = consumer.Close()
		_ = producer.Close()
	})

	return paymentservice.NewKafkaSink(producer, cfg.Log)
}

func initSealer(cfg *config.Config) *sealer.Sealer {
	if cfg.SealerKey == "" {
		cfg.Log.Warn("SEALER_KEY not set, claim tokens will not survive a restart")
		s, err := sealer.NewRandom()
		if err != nil {
			cfg.Log.Fatal("Failed to create sealer", "error", err)
		}
		return s
	}

	s, err := sealer.New(cfg.SealerKey)
	if err != nil {
		cfg.Log.Fatal("Invalid SEALER_KEY", "error", err)
	}
	return s
}
