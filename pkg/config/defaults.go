package config

import "time"

const (
	Production = "production"

	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"

	MailSES  = "ses"
	MailNoop = "noop"

	DefaultEnvironment = "development"

	DefaultStoreDriver = StoreMongo
	DefaultSQLitePath  = "iftar.db"

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "masjid"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisDB = 0

	DefaultKafkaOutcomesTopic  = "iftar.payment-outcomes"
	DefaultKafkaOutcomesDLQ    = "iftar.payment-outcomes.dlq"
	DefaultKafkaSponsoredTopic = "iftar.sponsorships"
	DefaultKafkaConsumerGroup  = "iftar-ledger"

	DefaultPort = "8080"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute
	DefaultLoginRateLimit    = 5

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultCurrency = "usd"

	DefaultMailProvider = MailNoop
	DefaultMailFromName = "Masjid Iftar Program"

	DefaultSessionTTL = 12 * time.Hour

	DefaultClaimTimeout   = 15 * time.Minute
	DefaultSweepInterval  = 1 * time.Minute
	DefaultSweepBatchSize = 100
	DefaultWorkerCount    = 2

	DefaultPaginationLimit = 100

	MinSessionSecretLength = 32
)
