package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	apperrors "masjid/pkg/errors"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

const (
	TypeClaimExpire = "claim:expire"

	// expirySlack keeps the task from firing before the claim is stale.
	expirySlack    = 30 * time.Second
	expiryMaxRetry = 5
)

type expirePayload struct {
	DateID   string `json:"date_id"`
	IntentID string `json:"intent_id"`
}

// Expirer is the ledger operation an expiry task runs.
type Expirer interface {
	ExpireClaim(ctx context.Context, dateID, intentID string) (*model.ClaimResult, error)
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler enqueues one delayed expiry task per claim.
type AsynqScheduler struct {
	client enqueuer
	delay  time.Duration
	log    *logger.Logger
}

func NewAsynqScheduler(client *asynq.Client, claimTimeout time.Duration, log *logger.Logger) *AsynqScheduler {
	return newAsynqScheduler(client, claimTimeout, log)
}

func newAsynqScheduler(client enqueuer, claimTimeout time.Duration, log *logger.Logger) *AsynqScheduler {
	return &AsynqScheduler{
		client: client,
		delay:  claimTimeout + expirySlack,
		log:    log,
	}
}

func (s *AsynqScheduler) ScheduleExpiry(ctx context.Context, dateID, intentID string) error {
	payload, err := json.Marshal(expirePayload{DateID: dateID, IntentID: intentID})
	if err != nil {
		return fmt.Errorf("failed to encode expiry task: %w", err)
	}

	info, err := s.client.EnqueueContext(ctx,
		asynq.NewTask(TypeClaimExpire, payload),
		asynq.TaskID(expiryTaskID(intentID)),
		asynq.ProcessIn(s.delay),
		asynq.MaxRetry(expiryMaxRetry),
	)
	if err != nil {
		// A retried checkout schedules the same claim twice.
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue expiry task: %w", err)
	}

	s.log.Debug("Claim expiry scheduled", "date_id", dateID, "intent_id", intentID, "task_id", info.ID, "delay", s.delay)
	return nil
}

func expiryTaskID(intentID string) string {
	return TypeClaimExpire + ":" + intentID
}

// NoopScheduler is used without Redis; the periodic sweep releases claims.
type NoopScheduler struct{}

func (NoopScheduler) ScheduleExpiry(ctx context.Context, dateID, intentID string) error {
	return nil
}

// ExpiryWorker consumes expiry tasks.
type ExpiryWorker struct {
	server *asynq.Server
	ledger Expirer
	log    *logger.Logger
}

func NewExpiryWorker(redis asynq.RedisClientOpt, concurrency int, ledger Expirer, log *logger.Logger) *ExpiryWorker {
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})
	return &ExpiryWorker{server: server, ledger: ledger, log: log}
}

func (w *ExpiryWorker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeClaimExpire, w.HandleExpire)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start expiry worker: %w", err)
	}
	w.log.Info("Claim expiry worker started")
	return nil
}

func (w *ExpiryWorker) Stop() {
	w.server.Shutdown()
}

// HandleExpire releases the claim if it is still pending and stale. A claim
// that committed or was released already is left alone.
func (w *ExpiryWorker) HandleExpire(ctx context.Context, task *asynq.Task) error {
	var p expirePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		w.log.Error("Invalid expiry task payload", "error", err)
		return fmt.Errorf("decode expiry task: %v: %w", err, asynq.SkipRetry)
	}

	result, err := w.ledger.ExpireClaim(ctx, p.DateID, p.IntentID)
	if err != nil {
		if appErr := apperrors.AsAppError(err); appErr != nil && !appErr.Retryable() {
			w.log.Warn("Expiry task dropped", "date_id", p.DateID, "intent_id", p.IntentID, "error", err)
			return fmt.Errorf("expire claim: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.log.Debug("Expiry task done",
		"date_id", p.DateID,
		"intent_id", p.IntentID,
		"outcome", result.Outcome,
		"reason", result.Reason,
	)
	return nil
}
