package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	intconfig "busbooking/internal/config"
	intdb "busbooking/internal/db"
	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
)

type PaymentRepository struct {
	DB *sql.DB
}

func (r PaymentRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

const paymentColumns = `id, booking_id, provider_order_id,
	COALESCE(provider_payment_id,''), COALESCE(provider_signature,''),
	status, amount, currency, COALESCE(failure_reason,''), created_at, verified_at`

func scanPayment(row rowScanner) (models.PaymentAttempt, error) {
	var (
		a          models.PaymentAttempt
		status     string
		verifiedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID, &a.BookingID, &a.ProviderOrderID,
		&a.ProviderPaymentID, &a.ProviderSignature,
		&status, &a.Amount, &a.Currency, &a.FailureReason, &a.CreatedAt, &verifiedAt,
	); err != nil {
		return models.PaymentAttempt{}, err
	}
	a.Status = models.PaymentStatus(status)
	a.VerifiedAt = intdb.TimePtr(verifiedAt)
	return a, nil
}

func (r PaymentRepository) Create(ctx context.Context, a models.PaymentAttempt) error {
	db := r.db()
	if db == nil {
		return fmt.Errorf("db tidak tersedia")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO payment_attempts
			(id, booking_id, provider_order_id, status, amount, currency, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.BookingID, a.ProviderOrderID, string(a.Status), a.Amount, a.Currency, a.CreatedAt.UTC(),
	)
	if intdb.IsDuplicateKey(err) {
		return fmt.Errorf("insert payment attempt: %w", domain.ErrDuplicate)
	}
	return err
}

func (r PaymentRepository) GetByOrderID(ctx context.Context, providerOrderID string) (models.PaymentAttempt, error) {
	db := r.db()
	if db == nil {
		return models.PaymentAttempt{}, fmt.Errorf("db tidak tersedia")
	}
	a, err := scanPayment(db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_attempts WHERE provider_order_id=? LIMIT 1`, providerOrderID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentAttempt{}, domain.NewError(domain.KindOrderNotFound, "order pembayaran tidak ditemukan")
	}
	return a, err
}

// FindVerified returns the booking's verified attempt, if any.
func (r PaymentRepository) FindVerified(ctx context.Context, bookingID string) (models.PaymentAttempt, bool, error) {
	db := r.db()
	if db == nil {
		return models.PaymentAttempt{}, false, fmt.Errorf("db tidak tersedia")
	}
	a, err := scanPayment(db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_attempts WHERE verified_booking_id=? LIMIT 1`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PaymentAttempt{}, false, nil
	}
	if err != nil {
		return models.PaymentAttempt{}, false, err
	}
	return a, true, nil
}

// Update moves an attempt out of status from. verified_booking_id is only filled for
// Verified attempts, so its unique index admits one verified payment per booking.
func (r PaymentRepository) Update(ctx context.Context, a models.PaymentAttempt, from models.PaymentStatus) error {
	db := r.db()
	if db == nil {
		return fmt.Errorf("db tidak tersedia")
	}
	var verifiedBooking any
	if a.Status == models.PaymentVerified {
		verifiedBooking = a.BookingID
	}
	res, err := db.ExecContext(ctx, `
		UPDATE payment_attempts SET
			status=?, provider_payment_id=?, provider_signature=?, failure_reason=?,
			verified_at=?, verified_booking_id=?
		WHERE id=? AND status=?`,
		string(a.Status), intdb.NullIfEmpty(a.ProviderPaymentID), intdb.NullIfEmpty(a.ProviderSignature),
		intdb.NullIfEmpty(a.FailureReason), intdb.NullTime(a.VerifiedAt), verifiedBooking,
		a.ID, string(from),
	)
	if intdb.IsDuplicateKey(err) {
		return fmt.Errorf("verify payment attempt %s: %w", a.ID, domain.ErrDuplicate)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("payment attempt %s status %s: %w", a.ID, from, domain.ErrStaleWrite)
	}
	return nil
}
