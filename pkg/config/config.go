package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"masjid/pkg/client"
	"masjid/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	StoreDriver string
	SQLitePath  string

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaEnabled        bool
	KafkaOutcomesTopic  string
	KafkaOutcomesDLQ    string
	KafkaSponsoredTopic string
	KafkaConsumerGroup  string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	LoginRateLimit    int

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string

	MailProvider       string
	MailFromAddress    string
	MailFromName       string
	SESRegion          string
	SESAccessKeyID     string
	SESSecretAccessKey string

	AdminPasswordHash string
	SessionSecret     string
	SessionTTL        time.Duration
	CookieSecure      bool

	ClaimTimeout   time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	WorkerCount    int

	SealerKey string

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the environment (and a local .env outside production), then
// validates and logs the result. Invalid configuration is fatal.
func Load(serviceName string) *Config {
	env := getEnvStr(EnvEnvironment, DefaultEnvironment)
	if env != Production {
		_ = godotenv.Load()
	}

	cfg := FromEnv(serviceName)
	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from the process environment without validating it.
func FromEnv(serviceName string) *Config {
	return &Config{
		Environment: getEnvStr(EnvEnvironment, DefaultEnvironment),

		StoreDriver: strings.ToLower(getEnvStr(EnvStoreDriver, DefaultStoreDriver)),
		SQLitePath:  getEnvStr(EnvSQLitePath, DefaultSQLitePath),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		KafkaEnabled:        getEnvBool(EnvKafkaEnabled, false),
		KafkaOutcomesTopic:  getEnvStr(EnvKafkaOutcomesTopic, DefaultKafkaOutcomesTopic),
		KafkaOutcomesDLQ:    getEnvStr(EnvKafkaOutcomesDLQ, DefaultKafkaOutcomesDLQ),
		KafkaSponsoredTopic: getEnvStr(EnvKafkaSponsoredTopic, DefaultKafkaSponsoredTopic),
		KafkaConsumerGroup:  getEnvStr(EnvKafkaConsumerGroup, DefaultKafkaConsumerGroup),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),
		LoginRateLimit:    getEnvNum(EnvLoginRateLimit, DefaultLoginRateLimit),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		StripeSecretKey:     getEnvStr(EnvStripeSecretKey, ""),
		StripeWebhookSecret: getEnvStr(EnvStripeWebhookSecret, ""),
		Currency:            strings.ToLower(getEnvStr(EnvCurrency, DefaultCurrency)),

		MailProvider:       strings.ToLower(getEnvStr(EnvMailProvider, DefaultMailProvider)),
		MailFromAddress:    getEnvStr(EnvMailFromAddress, ""),
		MailFromName:       getEnvStr(EnvMailFromName, DefaultMailFromName),
		SESRegion:          getEnvStr(EnvSESRegion, ""),
		SESAccessKeyID:     getEnvStr(EnvSESAccessKeyID, ""),
		SESSecretAccessKey: getEnvStr(EnvSESSecretAccessKey, ""),

		AdminPasswordHash: getEnvStr(EnvAdminPasswordHash, ""),
		SessionSecret:     getEnvStr(EnvSessionSecret, ""),
		SessionTTL:        getEnvDuration(EnvSessionTTL, DefaultSessionTTL),
		CookieSecure:      getEnvBool(EnvCookieSecure, true),

		ClaimTimeout:   getEnvDuration(EnvClaimTimeout, DefaultClaimTimeout),
		SweepInterval:  getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatchSize: getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),
		WorkerCount:    getEnvNum(EnvWorkerCount, DefaultWorkerCount),

		SealerKey: getEnvStr(EnvSealerKey, ""),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

// SetStore connects the configured ledger store and, when set, Redis.
func (cfg *Config) SetStore() {
	switch cfg.StoreDriver {
	case StoreSQLite:
		cfg.Client.SetSQLite(cfg.Log, cfg.SQLitePath)
	default:
		cfg.SetMongo()
	}
	if cfg.RedisEnabled() {
		cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) RedisEnabled() bool {
	return cfg.RedisAddr != ""
}

func (cfg *Config) PaymentsEnabled() bool {
	return cfg.StripeSecretKey != ""
}

func (cfg *Config) AdminEnabled() bool {
	return cfg.AdminPasswordHash != "" && cfg.SessionSecret != ""
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			errors = append(errors, "SQLitePath cannot be empty when STORE_DRIVER=sqlite")
		}
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of [mongo, sqlite], got: %s", cfg.StoreDriver))
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	if cfg.KafkaEnabled && (cfg.KafkaOutcomesTopic == "" || cfg.KafkaOutcomesDLQ == "" || cfg.KafkaConsumerGroup == "") {
		errors = append(errors, "Kafka topics and consumer group cannot be empty when KAFKA_ENABLED=true")
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.LoginRateLimit <= 0 {
		errors = append(errors, fmt.Sprintf("LoginRateLimit must be positive, got: %d", cfg.LoginRateLimit))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		errors = append(errors, "StripeWebhookSecret is required when StripeSecretKey is set")
	}
	if !regexp.MustCompile(`^[a-z]{3}$`).MatchString(cfg.Currency) {
		errors = append(errors, fmt.Sprintf("Currency must be a 3-letter ISO code, got: %s", cfg.Currency))
	}

	switch cfg.MailProvider {
	case MailNoop:
	case MailSES:
		if cfg.SESRegion == "" || cfg.MailFromAddress == "" {
			errors = append(errors, "SESRegion and MailFromAddress are required when MAIL_PROVIDER=ses")
		}
	default:
		errors = append(errors, fmt.Sprintf("MailProvider must be one of [ses, noop], got: %s", cfg.MailProvider))
	}

	if cfg.AdminPasswordHash != "" && !strings.HasPrefix(cfg.AdminPasswordHash, "$2") {
		errors = append(errors, "AdminPasswordHash must be a bcrypt hash")
	}
	if cfg.AdminPasswordHash != "" && len(cfg.SessionSecret) < MinSessionSecretLength {
		errors = append(errors, fmt.Sprintf("SessionSecret must be at least %d characters when admin login is enabled", MinSessionSecretLength))
	}
	if cfg.SessionTTL <= 0 {
		errors = append(errors, fmt.Sprintf("SessionTTL must be positive, got: %s", cfg.SessionTTL))
	}

	if cfg.ClaimTimeout < time.Minute {
		errors = append(errors, fmt.Sprintf("ClaimTimeout must be at least 1m, got: %s", cfg.ClaimTimeout))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}
	if cfg.WorkerCount <= 0 {
		errors = append(errors, fmt.Sprintf("WorkerCount must be positive, got: %d", cfg.WorkerCount))
	}

	if cfg.SealerKey == "" {
		if cfg.Environment == Production {
			errors = append(errors, "SealerKey is required in production")
		}
	} else if key, err := base64.StdEncoding.DecodeString(cfg.SealerKey); err != nil || len(key) != 32 {
		errors = append(errors, "SealerKey must be a base64 encoded 32-byte key")
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"environment", cfg.Environment,
		"store_driver", cfg.StoreDriver,
		"sqlite_path", cfg.SQLitePath,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_outcomes_topic", cfg.KafkaOutcomesTopic,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"login_rate_limit", cfg.LoginRateLimit,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"stripe_key_set", cfg.StripeSecretKey != "",
		"stripe_webhook_secret_set", cfg.StripeWebhookSecret != "",
		"currency", cfg.Currency,
		"mail_provider", cfg.MailProvider,
		"mail_from", cfg.MailFromAddress,
		"admin_login_enabled", cfg.AdminEnabled(),
		"session_ttl", cfg.SessionTTL,
		"claim_timeout", cfg.ClaimTimeout,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch_size", cfg.SweepBatchSize,
		"sealer_key_set", cfg.SealerKey != "",
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	cfg.Client.GracefulShutdown(ctx, cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
