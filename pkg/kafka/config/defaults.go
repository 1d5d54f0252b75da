package kafka_config

import "time"

const (
	DefaultKafkaBrokers = "localhost:9092"

	// Outcomes are small and rare; a short batch window keeps webhook
	// acknowledgements fast.
	DefaultProducerMaxAttempts  = 5
	DefaultProducerBatchTimeout = 5 * time.Millisecond
	DefaultProducerRequireAcks  = -1
	DefaultProducerCompression  = "lz4"
	DefaultProducerAsync        = false

	// A new consumer group starts from the oldest offset so outcomes
	// published before the first deploy are still applied. A zero commit
	// interval makes every commit synchronous.
	DefaultConsumerStartOffset       = -2
	DefaultConsumerMinBytes          = 1
	DefaultConsumerMaxBytes          = 1 << 20
	DefaultConsumerMaxWait           = 500 * time.Millisecond
	DefaultConsumerCommitInterval    = 0
	DefaultConsumerHeartbeatInterval = 3 * time.Second
	DefaultConsumerSessionTimeout    = 10 * time.Second
	DefaultConsumerRebalanceTimeout  = 30 * time.Second
	DefaultConsumerMaxRetries        = 5

	DefaultLogMessages = true
)
