package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hostelpay/internal/models"
)

const attemptColumns = `reference, booking_id, method, network, amount, status, last_error, created_at, resolved_at`

func insertAttempt(ctx context.Context, tx *sql.Tx, a *models.PaymentAttempt, now time.Time) error {
	var active int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_attempts WHERE booking_id = ? AND status IN (?, ?)`,
		a.BookingID, models.AttemptInitiated, models.AttemptPending,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to check active attempts: %w", err)
	}
	if active > 0 {
		return ErrAttemptInProgress
	}

	a.CreatedAt = now
	if a.Status == "" {
		a.Status = models.AttemptInitiated
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_attempts (`+attemptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Reference, a.BookingID, a.Method, a.Network, a.Amount, a.Status, a.LastError, a.CreatedAt, a.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment attempt: %w", err)
	}
	return nil
}

// AddAttempt records a new attempt against an existing booking.
func (db *DB) AddAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := getBooking(ctx, tx, attempt.BookingID); err != nil {
		return err
	}
	if err := insertAttempt(ctx, tx, attempt, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) GetAttempt(ctx context.Context, reference string) (*models.PaymentAttempt, error) {
	return getAttempt(ctx, db, reference)
}

func getAttempt(ctx context.Context, q queryRower, reference string) (*models.PaymentAttempt, error) {
	row := q.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE reference = ?`, reference)
	var a models.PaymentAttempt
	err := row.Scan(&a.Reference, &a.BookingID, &a.Method, &a.Network, &a.Amount, &a.Status, &a.LastError, &a.CreatedAt, &a.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment attempt: %w", err)
	}
	return &a, nil
}

// UpdateAttemptStatus moves an active attempt to status. Resolving statuses
// stamp resolved_at; resolved attempts are never touched again.
func (db *DB) UpdateAttemptStatus(ctx context.Context, reference string, status models.AttemptStatus, lastError string) error {
	now := time.Now().UTC()
	var resolvedAt *time.Time
	if !status.Active() {
		resolvedAt = &now
	}
	result, err := db.ExecContext(ctx,
		`UPDATE payment_attempts SET status = ?, last_error = ?, resolved_at = ?
		 WHERE reference = ? AND status IN (?, ?)`,
		status, lastError, resolvedAt, reference, models.AttemptInitiated, models.AttemptPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment attempt: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := db.GetAttempt(ctx, reference); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

// SettleAttempt resolves an active attempt and updates its booking in one
// transaction. A resolved attempt yields ErrAlreadyResolved together with the
// stored booking and attempt, so repeated verifications stay idempotent.
func (db *DB) SettleAttempt(
	ctx context.Context,
	reference string,
	outcome models.AttemptStatus,
	lastError string,
	settle models.SettleFunc,
) (*models.Booking, *models.PaymentAttempt, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	attempt, err := getAttempt(ctx, tx, reference)
	if err != nil {
		return nil, nil, err
	}
	booking, err := getBooking(ctx, tx, attempt.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if !attempt.Status.Active() {
		return booking, attempt, ErrAlreadyResolved
	}

	if settle != nil {
		if err := settle(booking, attempt); err != nil {
			return booking, attempt, err
		}
	}

	now := time.Now().UTC()
	if err := updateBookingTx(ctx, tx, booking, now); err != nil {
		return nil, nil, err
	}

	attempt.Status = outcome
	attempt.LastError = lastError
	if !outcome.Active() {
		attempt.ResolvedAt = &now
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE payment_attempts SET status = ?, last_error = ?, resolved_at = ? WHERE reference = ?`,
		attempt.Status, attempt.LastError, attempt.ResolvedAt, attempt.Reference,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve payment attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return booking, attempt, nil
}

// ListPayments returns ledger rows, newest first.
func (db *DB) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.LedgerEntry, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, filter.Status)
	}
	if filter.BookingID != "" {
		where = append(where, "a.booking_id = ?")
		args = append(args, filter.BookingID)
	}
	if filter.Method != "" {
		where = append(where, "a.method = ?")
		args = append(args, filter.Method)
	}

	query := `SELECT a.reference, a.booking_id, a.method, a.network, a.amount, a.status, a.last_error,
			a.created_at, a.resolved_at, b.hostel_id, b.room_id, b.payment_type, b.total_amount,
			b.amount_paid, b.payment_status, b.customer_name, b.customer_email, b.customer_phone
		FROM payment_attempts a JOIN bookings b ON b.id = a.booking_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.reference"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		e := &models.LedgerEntry{}
		err := rows.Scan(
			&e.Reference, &e.BookingID, &e.Method, &e.Network, &e.Amount, &e.Status, &e.LastError,
			&e.CreatedAt, &e.ResolvedAt, &e.HostelID, &e.RoomID, &e.PaymentType, &e.TotalAmount,
			&e.AmountPaid, &e.PaymentStatus, &e.Customer.FullName, &e.Customer.Email, &e.Customer.Phone,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLedgerEntry returns the ledger row of a single attempt.
func (db *DB) GetLedgerEntry(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	attempt, err := db.GetAttempt(ctx, reference)
	if err != nil {
		return nil, err
	}
	booking, err := db.GetBooking(ctx, attempt.BookingID)
	if err != nil {
		return nil, err
	}
	return &models.LedgerEntry{
		PaymentAttempt: *attempt,
		HostelID:       booking.HostelID,
		RoomID:         booking.RoomID,
		PaymentType:    booking.PaymentType,
		TotalAmount:    booking.TotalAmount,
		AmountPaid:     booking.AmountPaid,
		PaymentStatus:  booking.PaymentStatus,
		Customer:       booking.Customer,
	}, nil
}

// ListStaleAttempts returns active attempts created before cutoff.
func (db *DB) ListStaleAttempts(ctx context.Context, cutoff time.Time) ([]*models.PaymentAttempt, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE status IN (?, ?) AND created_at < ? ORDER BY created_at`,
		models.AttemptInitiated, models.AttemptPending, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.PaymentAttempt
	for rows.Next() {
		a := &models.PaymentAttempt{}
		if err := rows.Scan(&a.Reference, &a.BookingID, &a.Method, &a.Network, &a.Amount, &a.Status, &a.LastError, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
