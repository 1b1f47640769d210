package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hostelpay/internal/domain"
	"hostelpay/internal/metrics"
	"hostelpay/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var errStillPending = errors.New("payment still pending at gateway")

// taskPayload is persisted in Task.Payload as JSON.
type taskPayload struct {
	Reference string `json:"reference"`
}

// PaymentWorker consumes task_queue rows: gateway re-verification of open
// attempts and payments ledger upserts.
type PaymentWorker struct {
	store         domain.TaskStore
	reconciler    domain.Reconciler
	ledger        domain.LedgerWriter
	source        domain.LedgerSource
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.Task
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	sweepInterval time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewPaymentWorker builds a worker with sane defaults. ledger may be nil when
// no ledger sheet is configured.
func NewPaymentWorker(
	store domain.TaskStore,
	reconciler domain.Reconciler,
	ledger domain.LedgerWriter,
	source domain.LedgerSource,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *PaymentWorker {
	retry = retry.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &PaymentWorker{
		store:         store,
		reconciler:    reconciler,
		ledger:        ledger,
		source:        source,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.Task, models.WorkerQueueSize),
		redisQueueKey: "payments:queue",
		deadLetterKey: "payments:deadletter",
		pollInterval:  2 * time.Second,
		sweepInterval: time.Minute,
		batchSize:     20,
		logger:        logger,
	}
}

// SetPollInterval overrides how often the database is polled for due tasks.
func (w *PaymentWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// EnqueueVerification schedules a gateway check of reference after the
// initial retry delay. Delayed tasks are only picked up by polling.
func (w *PaymentWorker) EnqueueVerification(ctx context.Context, reference string) error {
	next := w.retryPolicy.FirstCheckAt(time.Now().UTC())
	_, err := w.enqueue(ctx, models.TaskVerifyPayment, reference, &next)
	return err
}

// EnqueueLedgerSync schedules an upsert of reference's ledger row.
func (w *PaymentWorker) EnqueueLedgerSync(ctx context.Context, reference string) error {
	if w.ledger == nil {
		return nil
	}
	task, err := w.enqueue(ctx, models.TaskLedgerUpsert, reference, nil)
	if err != nil {
		return err
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, *task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- *task:
		metrics.SetQueueDepth(len(w.queue))
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

func (w *PaymentWorker) enqueue(ctx context.Context, taskType, reference string, nextRetryAt *time.Time) (*models.Task, error) {
	if reference == "" {
		return nil, errors.New("reference is required")
	}
	payload, err := json.Marshal(taskPayload{Reference: reference})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	task := &models.Task{
		TaskType:    taskType,
		Reference:   reference,
		Payload:     string(payload),
		Status:      models.TaskStatusPending,
		NextRetryAt: nextRetryAt,
	}
	if err := w.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}
	return task, nil
}

// Start launches main loop; stops when ctx is done.
func (w *PaymentWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("payment worker started")
	defer w.logger.Info().Msg("payment worker stopped")

	lastSweep := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastSweep) >= w.sweepInterval {
			w.sweep(ctx)
			lastSweep = time.Now()
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetDueTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch due tasks")
			w.wait(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.wait(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *PaymentWorker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *PaymentWorker) sweep(ctx context.Context) {
	if w.reconciler == nil {
		return
	}
	expired, err := w.reconciler.ReconcileStale(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("stale attempt sweep failed")
		return
	}
	if expired > 0 {
		w.logger.Info().Int("expired", expired).Msg("stale attempts expired")
	}
}

func (w *PaymentWorker) tryLocalQueue() (models.Task, bool) {
	select {
	case t := <-w.queue:
		metrics.SetQueueDepth(len(w.queue))
		return t, true
	default:
		return models.Task{}, false
	}
}

func (w *PaymentWorker) tryRedis(ctx context.Context) (models.Task, bool) {
	if w.redis == nil {
		return models.Task{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.Task{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.Task{}, false
	}
	if len(res) != 2 {
		return models.Task{}, false
	}
	var task models.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.Task{}, false
	}
	return task, true
}

func (w *PaymentWorker) processTask(ctx context.Context, task *models.Task) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *PaymentWorker) handleTask(ctx context.Context, taskType string, payload taskPayload) error {
	if payload.Reference == "" {
		return errors.New("reference missing")
	}

	switch taskType {
	case models.TaskVerifyPayment:
		v, err := w.reconciler.VerifyPayment(ctx, payload.Reference)
		if err != nil {
			return err
		}
		if v.Status == models.VerifyPending {
			return errStillPending
		}
		return nil
	case models.TaskLedgerUpsert:
		if w.ledger == nil {
			return nil
		}
		entry, err := w.source.GetLedgerEntry(ctx, payload.Reference)
		if err != nil {
			return err
		}
		return w.ledger.UpsertPayment(ctx, entry)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *PaymentWorker) retryOrFail(ctx context.Context, task *models.Task, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.retryPolicy.RetryAt(time.Now().UTC(), attempt)
	if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
}

// failTask gives up on task. A verification that never became conclusive
// expires its attempt, which fails a pending booking.
func (w *PaymentWorker) failTask(ctx context.Context, task *models.Task, cause error) {
	if task.TaskType == models.TaskVerifyPayment && task.Reference != "" && w.reconciler != nil {
		if err := w.reconciler.ExpireAttempt(ctx, task.Reference, "verification timed out"); err != nil {
			w.logger.Error().Err(err).Str("reference", task.Reference).Msg("expire attempt")
		}
	}
	if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *PaymentWorker) decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *PaymentWorker) pushRedis(ctx context.Context, task models.Task) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *PaymentWorker) pushDeadLetter(ctx context.Context, task *models.Task) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
