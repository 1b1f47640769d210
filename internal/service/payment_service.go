package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hostelpay/internal/config"
	"hostelpay/internal/database"
	"hostelpay/internal/domain"
	"hostelpay/internal/events"
	"hostelpay/internal/gateway"
	"hostelpay/internal/metrics"
	"hostelpay/internal/models"
	"hostelpay/internal/payment"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultMobilePrompt = "Please complete the payment prompt on your phone"

// CardInit is the answer of initialize-payment.
type CardInit struct {
	Reference        string
	BookingID        string
	AccessCode       string
	AuthorizationURL string
}

// MobileInit is the answer of mobile-payment.
type MobileInit struct {
	Reference string
	BookingID string
	Message   string
}

// PaymentService owns the booking payment lifecycle on the server side.
type PaymentService struct {
	repo     domain.Repository
	gateway  domain.PaymentGateway
	attempts domain.AttemptStore
	eventBus domain.EventPublisher
	tasks    domain.TaskQueue
	cfg      config.PaymentsConfig
	logger   *zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewPaymentService(
	repo domain.Repository,
	gw domain.PaymentGateway,
	attempts domain.AttemptStore,
	eventBus domain.EventPublisher,
	cfg config.PaymentsConfig,
	logger *zerolog.Logger,
) *PaymentService {
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = models.DefaultAttemptTTL
	}
	return &PaymentService{
		repo:     repo,
		gateway:  gw,
		attempts: attempts,
		eventBus: eventBus,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// UseTaskQueue attaches the background queue. The worker needs the service
// to run, so it is wired after construction.
func (s *PaymentService) UseTaskQueue(q domain.TaskQueue) {
	s.tasks = q
}

// InitializeCardPayment opens a card transaction for a new booking or for
// the balance of a partial one.
func (s *PaymentService) InitializeCardPayment(ctx context.Context, intent payment.Intent) (*CardInit, error) {
	booking, attempt, err := s.openAttempt(ctx, intent, models.MethodCard)
	if err != nil {
		return nil, err
	}

	start := s.now()
	auth, err := s.gateway.InitializeTransaction(ctx, gateway.InitializeRequest{
		Email:     booking.Customer.Email,
		Amount:    attempt.Amount,
		Reference: attempt.Reference,
		Metadata:  attemptMetadata(booking, attempt),
	})
	metrics.ObserveGateway("initialize", outcome(err), s.now().Sub(start).Seconds())
	if err != nil {
		s.abortAttempt(ctx, attempt, err)
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}

	s.afterInitiated(ctx, booking, attempt)
	return &CardInit{
		Reference:        attempt.Reference,
		BookingID:        booking.ID,
		AccessCode:       auth.AccessCode,
		AuthorizationURL: auth.AuthorizationURL,
	}, nil
}

// InitiateMobilePayment sends a mobile money charge. The customer approves
// it on the handset; the attempt stays pending until verified.
func (s *PaymentService) InitiateMobilePayment(ctx context.Context, intent payment.Intent) (*MobileInit, error) {
	if intent.MobilePayment == nil {
		return nil, &payment.ValidationError{Fields: []string{"mobilePayment"}}
	}
	booking, attempt, err := s.openAttempt(ctx, intent, models.MethodMobileMoney)
	if err != nil {
		return nil, err
	}

	start := s.now()
	charge, err := s.gateway.ChargeMobileMoney(ctx, gateway.ChargeRequest{
		Email:     booking.Customer.Email,
		Amount:    attempt.Amount,
		Reference: attempt.Reference,
		Network:   attempt.Network,
		Phone:     intent.MobilePayment.PhoneNumber,
		Metadata:  attemptMetadata(booking, attempt),
	})
	metrics.ObserveGateway("charge", outcome(err), s.now().Sub(start).Seconds())
	if err == nil && gateway.NormalizeStatus(charge.Status) == gateway.StatusFailed {
		err = fmt.Errorf("%w: charge %s", gateway.ErrRejected, charge.Status)
	}
	if err != nil {
		s.abortAttempt(ctx, attempt, err)
		return nil, fmt.Errorf("charge mobile money: %w", err)
	}

	if err := s.repo.UpdateAttemptStatus(ctx, attempt.Reference, models.AttemptPending, ""); err != nil &&
		!errors.Is(err, database.ErrAlreadyResolved) {
		s.logger.Error().Err(err).Str("reference", attempt.Reference).Msg("Failed to mark attempt pending")
	}
	attempt.Status = models.AttemptPending

	s.afterInitiated(ctx, booking, attempt)

	message := strings.TrimSpace(charge.DisplayText)
	if message == "" {
		message = defaultMobilePrompt
	}
	return &MobileInit{Reference: attempt.Reference, BookingID: booking.ID, Message: message}, nil
}

// VerifyPayment asks the gateway about reference and applies the answer.
// Verifying a resolved attempt returns the stored outcome without another
// gateway call, so the booking is credited once.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*models.Verification, error) {
	attempt, err := s.repo.GetAttempt(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !attempt.Status.Active() {
		return s.storedVerification(ctx, attempt)
	}

	start := s.now()
	gv, err := s.gateway.VerifyTransaction(ctx, reference)
	metrics.ObserveGateway("verify", outcome(err), s.now().Sub(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("verify transaction: %w", err)
	}

	switch gv.Status {
	case gateway.StatusSuccess:
		return s.settleSuccess(ctx, attempt, gv.Amount, "gateway")
	case gateway.StatusFailed:
		return s.settleFailure(ctx, attempt, "gateway status "+gv.GatewayStatus, "gateway")
	}

	if attempt.Status == models.AttemptInitiated && attempt.Method == models.MethodMobileMoney {
		if err := s.repo.UpdateAttemptStatus(ctx, reference, models.AttemptPending, ""); err != nil &&
			!errors.Is(err, database.ErrAlreadyResolved) {
			return nil, err
		}
	}
	metrics.IncVerified(attempt.Method, models.VerifyPending)

	booking, err := s.repo.GetBooking(ctx, attempt.BookingID)
	if err != nil {
		return nil, err
	}
	return &models.Verification{
		Status:        models.VerifyPending,
		Reference:     reference,
		Amount:        attempt.Amount,
		BookingID:     booking.ID,
		PaymentStatus: booking.PaymentStatus,
	}, nil
}

// ExpireAttempt closes an attempt that never reached a conclusive answer.
func (s *PaymentService) ExpireAttempt(ctx context.Context, reference, reason string) error {
	attempt, err := s.repo.GetAttempt(ctx, reference)
	if err != nil {
		return err
	}
	if !attempt.Status.Active() {
		return nil
	}
	_, err = s.settleFailure(ctx, attempt, reason, "reconciler")
	if errors.Is(err, database.ErrAlreadyResolved) {
		return nil
	}
	return err
}

// ReconcileStale re-verifies attempts older than the attempt TTL and expires
// the ones the gateway still reports as pending.
func (s *PaymentService) ReconcileStale(ctx context.Context) (int, error) {
	stale, err := s.repo.ListStaleAttempts(ctx, s.now().UTC().Add(-s.cfg.AttemptTTL))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, attempt := range stale {
		v, err := s.VerifyPayment(ctx, attempt.Reference)
		if err != nil {
			s.logger.Warn().Err(err).Str("reference", attempt.Reference).Msg("Stale attempt verification failed")
			continue
		}
		if v.Status != models.VerifyPending {
			continue
		}
		if err := s.ExpireAttempt(ctx, attempt.Reference, "attempt expired"); err != nil {
			s.logger.Error().Err(err).Str("reference", attempt.Reference).Msg("Failed to expire attempt")
			continue
		}
		expired++
	}
	return expired, nil
}

// HandleWebhook re-verifies the referenced transaction of a signed gateway
// notification. Replays of a processed delivery are ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(body, signature)
	if err != nil {
		return err
	}
	if event.Event != gateway.EventChargeSuccess && event.Event != gateway.EventChargeFailed {
		s.logger.Debug().Str("event", event.Event).Msg("Ignoring webhook event")
		return nil
	}

	key := event.DedupKey()
	fresh, err := s.attempts.MarkProcessed(ctx, key, models.WebhookDedupTTL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Webhook dedupe unavailable")
	} else if !fresh {
		s.logger.Info().Str("reference", event.Data.Reference).Msg("Duplicate webhook ignored")
		return nil
	}

	if _, err := s.VerifyPayment(ctx, event.Data.Reference); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Warn().Str("reference", event.Data.Reference).Msg("Webhook for unknown reference")
			return nil
		}
		// the gateway redelivers on a non-2xx answer; let that delivery through
		if fresh {
			if cerr := s.attempts.ClearProcessed(ctx, key); cerr != nil {
				s.logger.Error().Err(cerr).Str("reference", event.Data.Reference).Msg("Failed to clear webhook marker")
			}
		}
		return err
	}
	return nil
}

// SetPaymentStatus is the admin override. status is "refunded" for the
// booking, or "success"/"failed" to resolve an active attempt by hand.
func (s *PaymentService) SetPaymentStatus(ctx context.Context, reference, status, changedBy string) (*models.Booking, error) {
	attempt, err := s.repo.GetAttempt(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch status {
	case string(models.PaymentRefunded):
		return s.refund(ctx, attempt, changedBy)
	case string(models.AttemptSuccess):
		if _, err := s.settleSuccess(ctx, attempt, attempt.Amount, changedBy); err != nil {
			return nil, err
		}
	case models.VerifyFailed, string(models.AttemptError):
		if _, err := s.settleFailure(ctx, attempt, "manual override by "+changedBy, changedBy); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return s.repo.GetBooking(ctx, attempt.BookingID)
}

func (s *PaymentService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *PaymentService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.LedgerEntry, error) {
	return s.repo.ListPayments(ctx, filter)
}

func (s *PaymentService) openAttempt(ctx context.Context, intent payment.Intent, method string) (*models.Booking, *models.PaymentAttempt, error) {
	if err := intent.Validate(); err != nil {
		return nil, nil, err
	}

	email := strings.ToLower(strings.TrimSpace(intent.Customer.Email))
	allowed, err := s.attempts.CheckRateLimit(ctx, "email:"+email, s.cfg.RateLimit, s.cfg.RateLimitWindow)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Rate limit check failed, allowing request")
	} else if !allowed {
		return nil, nil, ErrRateLimited
	}

	attempt := &models.PaymentAttempt{
		Reference: "HP-" + s.newID(),
		Method:    method,
		Amount:    models.RoundAmount(intent.PaymentAmount),
		Status:    models.AttemptInitiated,
	}
	if intent.MobilePayment != nil {
		attempt.Network = intent.MobilePayment.Network
	}

	var booking *models.Booking
	if intent.BookingID != "" {
		booking, err = s.repo.GetBooking(ctx, intent.BookingID)
		if err != nil {
			return nil, nil, err
		}
		balance, err := payment.BalanceIntent(booking)
		if err != nil {
			return nil, nil, err
		}
		if !payment.SameAmount(intent.PaymentAmount, balance.PaymentAmount) {
			return nil, nil, fmt.Errorf("%w: expected %.2f", ErrAmountMismatch, balance.PaymentAmount)
		}
		attempt.Amount = balance.PaymentAmount
	} else {
		checkIn, checkOut := intent.Dates()
		booking = &models.Booking{
			ID:            s.newID(),
			HostelID:      intent.HostelID,
			RoomID:        intent.RoomID,
			CheckInDate:   checkIn,
			CheckOutDate:  checkOut,
			Duration:      intent.Duration,
			TotalAmount:   intent.TotalAmount,
			PaymentAmount: attempt.Amount,
			PaymentType:   intent.PaymentType,
			PaymentStatus: models.PaymentPending,
			Customer:      intent.Customer,
		}
	}
	attempt.BookingID = booking.ID

	acquired, err := s.attempts.AcquireAttempt(ctx, booking.ID, attempt.Reference, s.cfg.AttemptTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire attempt lock: %w", err)
	}
	if !acquired {
		return nil, nil, database.ErrAttemptInProgress
	}

	if intent.BookingID != "" {
		err = s.repo.AddAttempt(ctx, attempt)
	} else {
		err = s.repo.CreateBookingWithAttempt(ctx, booking, attempt)
	}
	if err != nil {
		s.release(ctx, attempt)
		return nil, nil, err
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("reference", attempt.Reference).
		Str("method", method).
		Float64("amount", attempt.Amount).
		Msg("Payment attempt opened")
	return booking, attempt, nil
}

func (s *PaymentService) afterInitiated(ctx context.Context, booking *models.Booking, attempt *models.PaymentAttempt) {
	metrics.IncInitiated(attempt.Method, booking.PaymentType)
	s.publishEvent(events.EventPaymentInitiated, booking, attempt, "", "customer", "")

	if s.tasks != nil && s.cfg.Reconcile.Enabled {
		if err := s.tasks.EnqueueVerification(ctx, attempt.Reference); err != nil {
			s.logger.Error().Err(err).Str("reference", attempt.Reference).Msg("Failed to enqueue verification")
		}
	}
}

// abortAttempt resolves an attempt the gateway never accepted.
func (s *PaymentService) abortAttempt(ctx context.Context, attempt *models.PaymentAttempt, cause error) {
	s.logger.Warn().Err(cause).Str("reference", attempt.Reference).Msg("Gateway refused payment attempt")
	if _, err := s.settleFailure(ctx, attempt, cause.Error(), "gateway"); err != nil {
		s.logger.Error().Err(err).Str("reference", attempt.Reference).Msg("Failed to resolve aborted attempt")
	}
}

func (s *PaymentService) settleSuccess(ctx context.Context, attempt *models.PaymentAttempt, amount float64, changedBy string) (*models.Verification, error) {
	if !payment.SameAmount(amount, attempt.Amount) {
		// a mismatch is an answer, not an error: the attempt is settled failed
		reason := fmt.Sprintf("amount mismatch: paid %.2f, expected %.2f", amount, attempt.Amount)
		s.logger.Warn().Str("reference", attempt.Reference).Str("reason", reason).Msg("Verified amount differs from attempt")
		return s.settleFailure(ctx, attempt, reason, changedBy)
	}

	var previous models.PaymentStatus
	booking, resolved, err := s.repo.SettleAttempt(ctx, attempt.Reference, models.AttemptSuccess, "",
		func(b *models.Booking, a *models.PaymentAttempt) error {
			previous = b.PaymentStatus
			next, err := payment.Transition(b.PaymentStatus, payment.EventVerified{
				Paid:  b.AmountPaid + a.Amount,
				Total: b.TotalAmount,
			})
			if err != nil {
				return err
			}
			b.PaymentStatus = next
			b.AmountPaid = models.FromMinorUnits(models.ToMinorUnits(b.AmountPaid) + models.ToMinorUnits(a.Amount))
			b.PaymentAmount = a.Amount
			return nil
		})
	if errors.Is(err, database.ErrAlreadyResolved) {
		return verificationOf(booking, resolved), nil
	}
	if err != nil {
		return nil, err
	}

	s.release(ctx, resolved)
	metrics.IncVerified(resolved.Method, models.VerifySuccess)
	metrics.IncTransition(string(previous), string(booking.PaymentStatus))
	s.publishEvent(events.EventPaymentSucceeded, booking, resolved, previous, changedBy, "")
	s.enqueueLedger(ctx, resolved.Reference)

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("reference", resolved.Reference).
		Str("status", string(booking.PaymentStatus)).
		Msg("Payment verified")
	return verificationOf(booking, resolved), nil
}

// settleFailure resolves attempt as error. Only a pending booking becomes
// failed; a partial booking keeps the money already received.
func (s *PaymentService) settleFailure(ctx context.Context, attempt *models.PaymentAttempt, reason, changedBy string) (*models.Verification, error) {
	var previous models.PaymentStatus
	booking, resolved, err := s.repo.SettleAttempt(ctx, attempt.Reference, models.AttemptError, reason,
		func(b *models.Booking, _ *models.PaymentAttempt) error {
			previous = b.PaymentStatus
			if b.PaymentStatus != models.PaymentPending {
				return nil
			}
			next, err := payment.Transition(b.PaymentStatus, payment.EventFailed{})
			if err != nil {
				return err
			}
			b.PaymentStatus = next
			return nil
		})
	if errors.Is(err, database.ErrAlreadyResolved) {
		return verificationOf(booking, resolved), nil
	}
	if err != nil {
		return nil, err
	}

	s.release(ctx, resolved)
	metrics.IncVerified(resolved.Method, models.VerifyFailed)
	if previous != booking.PaymentStatus {
		metrics.IncTransition(string(previous), string(booking.PaymentStatus))
	}
	s.publishEvent(events.EventPaymentFailed, booking, resolved, previous, changedBy, reason)
	s.enqueueLedger(ctx, resolved.Reference)

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("reference", resolved.Reference).
		Str("reason", reason).
		Msg("Payment failed")
	return verificationOf(booking, resolved), nil
}

func (s *PaymentService) refund(ctx context.Context, attempt *models.PaymentAttempt, changedBy string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, attempt.BookingID)
	if err != nil {
		return nil, err
	}
	previous := booking.PaymentStatus
	next, err := payment.Transition(previous, payment.EventRefunded{})
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, next); err != nil {
		return nil, err
	}

	if attempt.Status.Active() {
		err := s.repo.UpdateAttemptStatus(ctx, attempt.Reference, models.AttemptCancelled, "booking refunded")
		if err != nil && !errors.Is(err, database.ErrAlreadyResolved) {
			s.logger.Error().Err(err).Str("reference", attempt.Reference).Msg("Failed to cancel attempt")
		}
		s.release(ctx, attempt)
	}

	updated, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(previous), string(updated.PaymentStatus))
	s.publishEvent(events.EventPaymentRefunded, updated, attempt, previous, changedBy, "")
	s.enqueueLedger(ctx, attempt.Reference)
	return updated, nil
}

func (s *PaymentService) storedVerification(ctx context.Context, attempt *models.PaymentAttempt) (*models.Verification, error) {
	booking, err := s.repo.GetBooking(ctx, attempt.BookingID)
	if err != nil {
		return nil, err
	}
	return verificationOf(booking, attempt), nil
}

func (s *PaymentService) release(ctx context.Context, attempt *models.PaymentAttempt) {
	if err := s.attempts.ReleaseAttempt(ctx, attempt.BookingID, attempt.Reference); err != nil {
		s.logger.Warn().Err(err).Str("reference", attempt.Reference).Msg("Failed to release attempt lock")
	}
}

func (s *PaymentService) enqueueLedger(ctx context.Context, reference string) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.EnqueueLedgerSync(ctx, reference); err != nil {
		s.logger.Error().Err(err).Str("reference", reference).Msg("Failed to enqueue ledger sync")
	}
}

func (s *PaymentService) publishEvent(
	eventType string,
	booking *models.Booking,
	attempt *models.PaymentAttempt,
	previous models.PaymentStatus,
	changedBy, reason string,
) {
	if s.eventBus == nil {
		return
	}

	payload := events.PaymentEventPayload{
		BookingID:      booking.ID,
		Reference:      attempt.Reference,
		Method:         attempt.Method,
		Network:        attempt.Network,
		Amount:         attempt.Amount,
		TotalAmount:    booking.TotalAmount,
		AmountPaid:     booking.AmountPaid,
		PaymentType:    booking.PaymentType,
		PaymentStatus:  string(booking.PaymentStatus),
		PreviousStatus: string(previous),
		AttemptStatus:  string(attempt.Status),
		HostelID:       booking.HostelID,
		RoomID:         booking.RoomID,
		CustomerName:   booking.Customer.FullName,
		CustomerEmail:  booking.Customer.Email,
		ChangedBy:      changedBy,
		Reason:         reason,
		OccurredAt:     s.now().UTC(),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

// verificationOf maps a stored attempt to the verify answer.
func verificationOf(booking *models.Booking, attempt *models.PaymentAttempt) *models.Verification {
	status := models.VerifyPending
	switch attempt.Status {
	case models.AttemptSuccess:
		status = models.VerifySuccess
	case models.AttemptError, models.AttemptCancelled:
		status = models.VerifyFailed
	}
	return &models.Verification{
		Status:        status,
		Reference:     attempt.Reference,
		Amount:        attempt.Amount,
		BookingID:     booking.ID,
		PaymentStatus: booking.PaymentStatus,
	}
}

func attemptMetadata(booking *models.Booking, attempt *models.PaymentAttempt) map[string]string {
	return map[string]string{
		"booking_id":   booking.ID,
		"hostel_id":    booking.HostelID,
		"room_id":      booking.RoomID,
		"payment_type": booking.PaymentType,
		"method":       attempt.Method,
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gateway.ErrRejected):
		return "rejected"
	default:
		return "error"
	}
}
