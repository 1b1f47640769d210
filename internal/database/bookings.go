package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hostelpay/internal/models"
)

const bookingColumns = `id, hostel_id, room_id, check_in, check_out, duration, total_amount,
	payment_amount, amount_paid, payment_type, payment_status, customer_name,
	customer_email, customer_phone, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateBookingWithAttempt stores a new pending booking together with its
// first payment attempt, after checking room capacity inside the transaction.
func (db *DB) CreateBookingWithAttempt(ctx context.Context, booking *models.Booking, attempt *models.PaymentAttempt) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	available, err := db.checkAvailability(ctx, tx, booking.HostelID, booking.RoomID, booking.CheckInDate, booking.CheckOutDate)
	if err != nil {
		return err
	}
	if !available {
		return ErrRoomUnavailable
	}

	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentPending
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		booking.ID,
		booking.HostelID,
		booking.RoomID,
		booking.CheckInDate.Format(models.DateLayout),
		booking.CheckOutDate.Format(models.DateLayout),
		booking.Duration,
		booking.TotalAmount,
		booking.PaymentAmount,
		booking.AmountPaid,
		booking.PaymentType,
		booking.PaymentStatus,
		booking.Customer.FullName,
		booking.Customer.Email,
		booking.Customer.Phone,
		booking.CreatedAt,
		booking.UpdatedAt,
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := insertAttempt(ctx, tx, attempt, now); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, q queryRower, id string) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// UpdateBookingStatusWithVersion is the admin path; gateway outcomes go through SettleAttempt.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status models.PaymentStatus) error {
	query := `UPDATE bookings SET payment_status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func updateBookingTx(ctx context.Context, tx *sql.Tx, b *models.Booking, now time.Time) error {
	query := `UPDATE bookings
		SET payment_status = ?, payment_amount = ?, amount_paid = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query, b.PaymentStatus, b.PaymentAmount, b.AmountPaid, now, b.ID, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	b.Version++
	b.UpdatedAt = now
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var checkIn, checkOut string
	err := row.Scan(
		&b.ID, &b.HostelID, &b.RoomID, &checkIn, &checkOut, &b.Duration, &b.TotalAmount,
		&b.PaymentAmount, &b.AmountPaid, &b.PaymentType, &b.PaymentStatus, &b.Customer.FullName,
		&b.Customer.Email, &b.Customer.Phone, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if b.CheckInDate, err = time.Parse(models.DateLayout, checkIn); err != nil {
		return nil, fmt.Errorf("failed to parse check-in date %s: %w", checkIn, err)
	}
	if b.CheckOutDate, err = time.Parse(models.DateLayout, checkOut); err != nil {
		return nil, fmt.Errorf("failed to parse check-out date %s: %w", checkOut, err)
	}
	return &b, nil
}
