package config

const (
	EnvEnvironment = "ENVIRONMENT"

	EnvStoreDriver = "STORE_DRIVER"
	EnvSQLitePath  = "SQLITE_PATH"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvKafkaEnabled        = "KAFKA_ENABLED"
	EnvKafkaOutcomesTopic  = "KAFKA_OUTCOMES_TOPIC"
	EnvKafkaOutcomesDLQ    = "KAFKA_OUTCOMES_DLQ_TOPIC"
	EnvKafkaSponsoredTopic = "KAFKA_SPONSORED_TOPIC"
	EnvKafkaConsumerGroup  = "KAFKA_CONSUMER_GROUP"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"
	EnvLoginRateLimit    = "LOGIN_RATE_LIMIT_PER_MINUTE"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvCurrency            = "SPONSORSHIP_CURRENCY"

	EnvMailProvider       = "MAIL_PROVIDER"
	EnvMailFromAddress    = "MAIL_FROM_ADDRESS"
	EnvMailFromName       = "MAIL_FROM_NAME"
	EnvSESRegion          = "SES_REGION"
	EnvSESAccessKeyID     = "SES_ACCESS_KEY_ID"
	EnvSESSecretAccessKey = "SES_SECRET_ACCESS_KEY"

	EnvAdminPasswordHash = "ADMIN_PASSWORD_HASH"
	EnvSessionSecret     = "SESSION_SECRET"
	EnvSessionTTL        = "SESSION_TTL"
	EnvCookieSecure      = "SESSION_COOKIE_SECURE"

	EnvClaimTimeout   = "CLAIM_TIMEOUT"
	EnvSweepInterval  = "SWEEP_INTERVAL"
	EnvSweepBatchSize = "SWEEP_BATCH_SIZE"
	EnvWorkerCount    = "EXPIRY_WORKER_CONCURRENCY"

	EnvSealerKey = "CLAIM_TOKEN_KEY"
)
