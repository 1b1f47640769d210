package domain

import (
	"context"
	"time"

	"hostelpay/internal/gateway"
	"hostelpay/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Repository interface {
	CreateBookingWithAttempt(ctx context.Context, booking *models.Booking, attempt *models.PaymentAttempt) error
	AddAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetAttempt(ctx context.Context, reference string) (*models.PaymentAttempt, error)
	UpdateAttemptStatus(ctx context.Context, reference string, status models.AttemptStatus, lastError string) error
	SettleAttempt(
		ctx context.Context,
		reference string,
		outcome models.AttemptStatus,
		lastError string,
		settle models.SettleFunc,
	) (*models.Booking, *models.PaymentAttempt, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status models.PaymentStatus) error
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.LedgerEntry, error)
	GetLedgerEntry(ctx context.Context, reference string) (*models.LedgerEntry, error)
	ListStaleAttempts(ctx context.Context, cutoff time.Time) ([]*models.PaymentAttempt, error)
	CheckRoomAvailability(ctx context.Context, hostelID, roomID string, checkIn, checkOut time.Time) (bool, error)
}

type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req gateway.InitializeRequest) (*gateway.Authorization, error)
	ChargeMobileMoney(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*gateway.Verification, error)
	ParseWebhook(body []byte, signature string) (*gateway.WebhookEvent, error)
}

// AttemptStore holds the short-lived coordination state of payment attempts.
type AttemptStore interface {
	AcquireAttempt(ctx context.Context, bookingID, reference string, ttl time.Duration) (bool, error)
	ReleaseAttempt(ctx context.Context, bookingID, reference string) error
	ActiveAttempt(ctx context.Context, bookingID string) (string, error)
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ClearProcessed forgets a marker so a redelivery is handled again.
	ClearProcessed(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// TaskQueue schedules background work for a payment reference.
type TaskQueue interface {
	EnqueueVerification(ctx context.Context, reference string) error
	EnqueueLedgerSync(ctx context.Context, reference string) error
}

type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	GetDueTasks(ctx context.Context, limit int) ([]models.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Reconciler settles attempts the customer left unresolved.
type Reconciler interface {
	VerifyPayment(ctx context.Context, reference string) (*models.Verification, error)
	ExpireAttempt(ctx context.Context, reference, reason string) error
	ReconcileStale(ctx context.Context) (int, error)
}

type LedgerWriter interface {
	UpsertPayment(ctx context.Context, entry *models.LedgerEntry) error
}

type LedgerSource interface {
	GetLedgerEntry(ctx context.Context, reference string) (*models.LedgerEntry, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
