package kafka_config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"masjid/pkg/logger"
)

// Config holds the broker, writer and reader settings shared by every
// producer and consumer in the process.
type Config struct {
	Brokers []string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 = all, 0 = none, 1 = leader only
	ProducerCompression  string // "none", "gzip", "snappy", "lz4", "zstd"
	ProducerAsync        bool

	ConsumerStartOffset       int64 // -1 = newest, -2 = oldest
	ConsumerMinBytes          int
	ConsumerMaxBytes          int
	ConsumerMaxWait           time.Duration
	ConsumerCommitInterval    time.Duration
	ConsumerHeartbeatInterval time.Duration
	ConsumerSessionTimeout    time.Duration
	ConsumerRebalanceTimeout  time.Duration
	ConsumerMaxRetries        int

	LogMessages bool
}

func Default() *Config {
	return &Config{
		Brokers:                   []string{DefaultKafkaBrokers},
		ProducerMaxAttempts:       DefaultProducerMaxAttempts,
		ProducerBatchTimeout:      DefaultProducerBatchTimeout,
		ProducerRequireAcks:       DefaultProducerRequireAcks,
		ProducerCompression:       DefaultProducerCompression,
		ProducerAsync:             DefaultProducerAsync,
		ConsumerStartOffset:       DefaultConsumerStartOffset,
		ConsumerMinBytes:          DefaultConsumerMinBytes,
		ConsumerMaxBytes:          DefaultConsumerMaxBytes,
		ConsumerMaxWait:           DefaultConsumerMaxWait,
		ConsumerCommitInterval:    DefaultConsumerCommitInterval,
		ConsumerHeartbeatInterval: DefaultConsumerHeartbeatInterval,
		ConsumerSessionTimeout:    DefaultConsumerSessionTimeout,
		ConsumerRebalanceTimeout:  DefaultConsumerRebalanceTimeout,
		ConsumerMaxRetries:        DefaultConsumerMaxRetries,
		LogMessages:               DefaultLogMessages,
	}
}

// Load reads KAFKA_* variables on top of Default and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	var brokers []string
	for _, broker := range strings.Split(getEnvStr(EnvKafkaBrokers, DefaultKafkaBrokers), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	cfg.Brokers = brokers

	cfg.ProducerMaxAttempts = getEnvInt(EnvKafkaProducerMaxAttempts, cfg.ProducerMaxAttempts)
	cfg.ProducerBatchTimeout = getEnvDuration(EnvKafkaProducerBatchTimeout, cfg.ProducerBatchTimeout)
	cfg.ProducerRequireAcks = getEnvInt(EnvKafkaProducerRequireAcks, cfg.ProducerRequireAcks)
	cfg.ProducerCompression = getEnvStr(EnvKafkaProducerCompression, cfg.ProducerCompression)
	cfg.ProducerAsync = getEnvBool(EnvKafkaProducerAsync, cfg.ProducerAsync)

	cfg.ConsumerStartOffset = int64(getEnvInt(EnvKafkaConsumerStartOffset, int(cfg.ConsumerStartOffset)))
	cfg.ConsumerMinBytes = getEnvInt(EnvKafkaConsumerMinBytes, cfg.ConsumerMinBytes)
	cfg.ConsumerMaxBytes = getEnvInt(EnvKafkaConsumerMaxBytes, cfg.ConsumerMaxBytes)
	cfg.ConsumerMaxWait = getEnvDuration(EnvKafkaConsumerMaxWait, cfg.ConsumerMaxWait)
	cfg.ConsumerCommitInterval = getEnvDuration(EnvKafkaConsumerCommitInterval, cfg.ConsumerCommitInterval)
	cfg.ConsumerHeartbeatInterval = getEnvDuration(EnvKafkaConsumerHeartbeatInterval, cfg.ConsumerHeartbeatInterval)
	cfg.ConsumerSessionTimeout = getEnvDuration(EnvKafkaConsumerSessionTimeout, cfg.ConsumerSessionTimeout)
	cfg.ConsumerRebalanceTimeout = getEnvDuration(EnvKafkaConsumerRebalanceTimeout, cfg.ConsumerRebalanceTimeout)
	cfg.ConsumerMaxRetries = getEnvInt(EnvKafkaConsumerMaxRetries, cfg.ConsumerMaxRetries)

	cfg.LogMessages = getEnvBool(EnvKafkaLogMessages, cfg.LogMessages)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (cfg *Config) Validate() error {
	var problems []error

	if len(cfg.Brokers) == 0 {
		problems = append(problems, errors.New("at least one kafka broker is required"))
	}

	switch cfg.ProducerCompression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		problems = append(problems, fmt.Errorf("producer compression must be one of none, gzip, snappy, lz4, zstd, got %q", cfg.ProducerCompression))
	}

	switch cfg.ProducerRequireAcks {
	case -1, 0, 1:
	default:
		problems = append(problems, fmt.Errorf("producer require acks must be -1, 0 or 1, got %d", cfg.ProducerRequireAcks))
	}

	if cfg.ConsumerStartOffset != -1 && cfg.ConsumerStartOffset != -2 {
		problems = append(problems, fmt.Errorf("consumer start offset must be -1 (newest) or -2 (oldest), got %d", cfg.ConsumerStartOffset))
	}

	positive := map[string]int64{
		"producer max attempts":       int64(cfg.ProducerMaxAttempts),
		"producer batch timeout":      int64(cfg.ProducerBatchTimeout),
		"consumer min bytes":          int64(cfg.ConsumerMinBytes),
		"consumer max bytes":          int64(cfg.ConsumerMaxBytes),
		"consumer max wait":           int64(cfg.ConsumerMaxWait),
		"consumer heartbeat interval": int64(cfg.ConsumerHeartbeatInterval),
		"consumer session timeout":    int64(cfg.ConsumerSessionTimeout),
		"consumer rebalance timeout":  int64(cfg.ConsumerRebalanceTimeout),
	}
	for name, value := range positive {
		if value <= 0 {
			problems = append(problems, fmt.Errorf("%s must be positive", name))
		}
	}

	if cfg.ConsumerMinBytes > cfg.ConsumerMaxBytes {
		problems = append(problems, errors.New("consumer min bytes cannot exceed max bytes"))
	}

	if cfg.ConsumerCommitInterval < 0 {
		problems = append(problems, errors.New("consumer commit interval cannot be negative"))
	}

	if cfg.ConsumerMaxRetries < 0 {
		problems = append(problems, fmt.Errorf("consumer max retries cannot be negative, got %d", cfg.ConsumerMaxRetries))
	}

	if len(problems) > 0 {
		return fmt.Errorf("kafka configuration invalid: %w", errors.Join(problems...))
	}
	return nil
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	if log == nil {
		return
	}

	log.Info("Kafka configuration loaded",
		"brokers", cfg.Brokers,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_batch_timeout", cfg.ProducerBatchTimeout,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"producer_async", cfg.ProducerAsync,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"consumer_commit_interval", cfg.ConsumerCommitInterval,
		"log_messages", cfg.LogMessages,
	)
}

func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
