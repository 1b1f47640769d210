package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hostelpay/internal/config"
	"hostelpay/internal/database"
	"hostelpay/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestProcessLedgerTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{}
	source := &fakeSource{}
	worker := NewPaymentWorker(db, &fakeReconciler{}, ledger, source, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueLedgerSync(ctx, "HP-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	stored := loadTask(t, db, task.ID)
	if stored.Status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", stored.Status)
	}
	if stored.RetryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", stored.RetryCount)
	}
	if stored.NextRetryAt != nil {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if len(ledger.upserts) != 1 || ledger.upserts[0] != "HP-1" {
		t.Fatalf("expected one upsert of HP-1, got %v", ledger.upserts)
	}
}

func TestProcessLedgerTaskRetry(t *testing.T) {
	db := newTestDB(t)
	ledger := &fakeLedger{err: errors.New("quota exceeded")}
	worker := NewPaymentWorker(db, &fakeReconciler{}, ledger, &fakeSource{}, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	if err := worker.EnqueueLedgerSync(ctx, "HP-2"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	stored := loadTask(t, db, task.ID)
	if stored.Status != models.TaskStatusRetry {
		t.Fatalf("expected status=retry, got %s", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", stored.RetryCount)
	}
	if stored.NextRetryAt == nil || stored.NextRetryAt.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", stored.NextRetryAt)
	}
}

func TestEnqueueLedgerSyncWithoutLedger(t *testing.T) {
	db := newTestDB(t)
	worker := NewPaymentWorker(db, &fakeReconciler{}, nil, nil, nil, RetryPolicy{}, nil)

	if err := worker.EnqueueLedgerSync(context.Background(), "HP-3"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("no ledger task expected without a ledger")
	}
}

func TestVerificationTaskIsDelayed(t *testing.T) {
	db := newTestDB(t)
	worker := NewPaymentWorker(db, &fakeReconciler{}, nil, nil, nil, RetryPolicy{InitialDelay: time.Hour}, nil)

	ctx := context.Background()
	if err := worker.EnqueueVerification(ctx, "HP-4"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("verification must not bypass its delay")
	}

	due, err := db.GetDueTasks(ctx, 10)
	if err != nil {
		t.Fatalf("due tasks: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due task yet, got %d", len(due))
	}
}

func TestVerificationPendingThenExpired(t *testing.T) {
	db := newTestDB(t)
	reconciler := &fakeReconciler{status: models.VerifyPending}
	worker := NewPaymentWorker(db, reconciler, nil, nil, nil, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}, nil)

	ctx := context.Background()
	task, err := worker.enqueue(ctx, models.TaskVerifyPayment, "HP-5", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	worker.processTask(ctx, task)
	stored := loadTask(t, db, task.ID)
	if stored.Status != models.TaskStatusRetry {
		t.Fatalf("expected retry after pending answer, got %s", stored.Status)
	}
	if len(reconciler.expired) != 0 {
		t.Fatalf("attempt expired too early")
	}

	worker.processTask(ctx, stored)
	stored = loadTask(t, db, task.ID)
	if stored.Status != models.TaskStatusFailed {
		t.Fatalf("expected failed after max retries, got %s", stored.Status)
	}
	if len(reconciler.expired) != 1 || reconciler.expired[0] != "HP-5" {
		t.Fatalf("expected HP-5 to be expired, got %v", reconciler.expired)
	}
}

func TestVerificationConclusive(t *testing.T) {
	db := newTestDB(t)
	reconciler := &fakeReconciler{status: models.VerifySuccess}
	worker := NewPaymentWorker(db, reconciler, nil, nil, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	task, err := worker.enqueue(ctx, models.TaskVerifyPayment, "HP-6", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	worker.processTask(ctx, task)

	if got := loadTask(t, db, task.ID).Status; got != models.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if reconciler.verified != 1 {
		t.Fatalf("expected one verification, got %d", reconciler.verified)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewPaymentWorker(db, &fakeReconciler{}, nil, nil, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	task := &models.Task{TaskType: models.TaskLedgerUpsert, Reference: "HP-7", Payload: "not json"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, task)

	if got := loadTask(t, db, task.ID).Status; got != models.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestRedisQueueAndDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := newTestDB(t)
	ledger := &fakeLedger{err: errors.New("sheet gone")}
	worker := NewPaymentWorker(db, &fakeReconciler{}, ledger, &fakeSource{}, client, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	if err := worker.EnqueueLedgerSync(ctx, "HP-8"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("task should go to redis, not the local queue")
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	if task.Reference != "HP-8" {
		t.Fatalf("unexpected task: %+v", task)
	}

	worker.processTask(ctx, &task)
	dead, err := client.LLen(ctx, worker.deadLetterKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if dead != 1 {
		t.Fatalf("expected one dead letter, got %d", dead)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	reconciler := &fakeReconciler{status: models.VerifySuccess}
	worker := NewPaymentWorker(db, reconciler, nil, nil, nil, RetryPolicy{InitialDelay: time.Millisecond}, nil)
	worker.SetPollInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	if err := worker.EnqueueVerification(ctx, "HP-9"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for reconciler.verifiedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if reconciler.verifiedCount() == 0 {
		t.Fatalf("expected the polled verification to run")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestRetryPolicyFromReconcileConfig(t *testing.T) {
	policy := RetryPolicyFrom(config.ReconcileConfig{MaxRetries: 3, InitialDelay: 5 * time.Second, BackoffFactor: 3})
	if policy.MaxDelay != time.Minute {
		t.Fatalf("expected default ceiling, got %s", policy.MaxDelay)
	}
	if d := policy.NextDelay(3); d != 45*time.Second {
		t.Fatalf("retry 3 expected 45s, got %s", d)
	}
	if d := policy.NextDelay(4); d != time.Minute {
		t.Fatalf("retry 4 expected capped 1m, got %s", d)
	}
	if policy.Exhausted(2) || !policy.Exhausted(3) {
		t.Fatalf("expected to give up on the third failure")
	}

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if got := policy.FirstCheckAt(now); !got.Equal(now.Add(5 * time.Second)) {
		t.Fatalf("first check at %s", got)
	}
	if got := policy.RetryAt(now, 2); !got.Equal(now.Add(15 * time.Second)) {
		t.Fatalf("retry 2 at %s", got)
	}

	empty := RetryPolicyFrom(config.ReconcileConfig{BackoffFactor: 0.5})
	if empty.MaxRetries != 5 || empty.InitialDelay != 2*time.Second || empty.BackoffFactor != 2 {
		t.Fatalf("unexpected defaults: %+v", empty)
	}
	if d := (RetryPolicy{InitialDelay: time.Hour, MaxDelay: time.Minute}).NextDelay(1); d != time.Minute {
		t.Fatalf("first delay must respect the ceiling, got %s", d)
	}
}

func TestDecodePayload(t *testing.T) {
	worker := NewPaymentWorker(nil, nil, nil, nil, nil, RetryPolicy{}, nil)

	t.Run("ValidPayload", func(t *testing.T) {
		decoded, err := worker.decodePayload(`{"reference":"HP-10"}`)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Reference != "HP-10" {
			t.Fatalf("unexpected decoded payload: %+v", decoded)
		}
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		if _, err := worker.decodePayload(`invalid json`); err == nil {
			t.Fatalf("expected error for invalid json")
		}
	})
}

// Helpers

type fakeLedger struct {
	err     error
	upserts []string
}

func (f *fakeLedger) UpsertPayment(_ context.Context, entry *models.LedgerEntry) error {
	f.upserts = append(f.upserts, entry.Reference)
	return f.err
}

type fakeSource struct{}

func (fakeSource) GetLedgerEntry(_ context.Context, reference string) (*models.LedgerEntry, error) {
	return &models.LedgerEntry{PaymentAttempt: models.PaymentAttempt{Reference: reference}}, nil
}

type fakeReconciler struct {
	mu       sync.Mutex
	status   string
	verified int
	expired  []string
}

func (f *fakeReconciler) VerifyPayment(_ context.Context, reference string) (*models.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified++
	return &models.Verification{Status: f.status, Reference: reference}, nil
}

func (f *fakeReconciler) ExpireAttempt(_ context.Context, reference, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, reference)
	return nil
}

func (f *fakeReconciler) ReconcileStale(context.Context) (int, error) {
	return 0, nil
}

func (f *fakeReconciler) verifiedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTask(t *testing.T, db *database.DB, id int64) *models.Task {
	t.Helper()
	task, err := db.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("load task: %v", err)
	}
	return task
}
