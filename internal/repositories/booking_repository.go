package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	intconfig "busbooking/internal/config"
	intdb "busbooking/internal/db"
	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/utils"
)

type BookingRepository struct {
	DB *sql.DB
}

func (r BookingRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

const bookingColumns = `id, pnr, customer_id, schedule_id, travel_date, departure_at, seat_ids,
	total_amount, currency, status, hold_id,
	COALESCE(pending_attempt_id,''), COALESCE(confirmed_attempt_id,''),
	expires_at, created_at, confirmed_at, cancelled_at, expired_at,
	COALESCE(cancel_reason,''), penalty_amount, refund_amount, COALESCE(refund_method,''), cancel_processed_at,
	version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var (
		b                                   models.Booking
		seats, status                       string
		confirmedAt, cancelledAt, expiredAt sql.NullTime
		reason, method                      string
		penalty, refund                     sql.NullInt64
		processedAt                         sql.NullTime
	)
	if err := row.Scan(
		&b.ID, &b.PNR, &b.CustomerID, &b.ScheduleID, &b.TravelDate, &b.DepartureAt, &seats,
		&b.TotalAmount, &b.Currency, &status, &b.HoldID,
		&b.PendingAttemptID, &b.ConfirmedAttemptID,
		&b.ExpiresAt, &b.CreatedAt, &confirmedAt, &cancelledAt, &expiredAt,
		&reason, &penalty, &refund, &method, &processedAt,
		&b.Version,
	); err != nil {
		return models.Booking{}, err
	}
	b.Status = models.BookingStatus(status)
	b.SeatIDs = utils.SplitSeatList(seats)
	b.ConfirmedAt = intdb.TimePtr(confirmedAt)
	b.CancelledAt = intdb.TimePtr(cancelledAt)
	b.ExpiredAt = intdb.TimePtr(expiredAt)
	if b.Status == models.BookingCancelled || penalty.Valid || refund.Valid {
		b.Cancellation = &models.Cancellation{
			Reason:        reason,
			PenaltyAmount: penalty.Int64,
			RefundAmount:  refund.Int64,
			RefundMethod:  method,
		}
		if processedAt.Valid {
			b.Cancellation.ProcessedAt = processedAt.Time
		}
	}
	return b, nil
}

// Create inserts a new booking. A PNR or hold collision surfaces as domain.ErrDuplicate.
func (r BookingRepository) Create(ctx context.Context, b models.Booking) error {
	db := r.db()
	if db == nil {
		return fmt.Errorf("db tidak tersedia")
	}
	version := b.Version
	if version <= 0 {
		version = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO bookings
			(id, pnr, customer_id, schedule_id, travel_date, departure_at, seat_ids,
			 total_amount, currency, status, hold_id, expires_at, created_at, version)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.PNR, b.CustomerID, b.ScheduleID, b.TravelDate, b.DepartureAt.UTC(), strings.Join(b.SeatIDs, ","),
		b.TotalAmount, b.Currency, string(b.Status), b.HoldID, b.ExpiresAt.UTC(), b.CreatedAt.UTC(), version,
	)
	if intdb.IsDuplicateKey(err) {
		return fmt.Errorf("insert booking: %w", domain.ErrDuplicate)
	}
	return err
}

func (r BookingRepository) GetByID(ctx context.Context, id string) (models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=? LIMIT 1`, id)
}

func (r BookingRepository) GetByHoldID(ctx context.Context, holdID string) (models.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE hold_id=? LIMIT 1`, holdID)
}

func (r BookingRepository) getOne(ctx context.Context, query string, arg any) (models.Booking, error) {
	db := r.db()
	if db == nil {
		return models.Booking{}, fmt.Errorf("db tidak tersedia")
	}
	b, err := scanBooking(db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, domain.NewError(domain.KindBookingNotFound, "booking tidak ditemukan")
	}
	return b, err
}

func (r BookingRepository) PNRExists(ctx context.Context, pnr string) (bool, error) {
	db := r.db()
	if db == nil {
		return false, fmt.Errorf("db tidak tersedia")
	}
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE pnr=? LIMIT 1`, pnr).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Update writes the mutable columns when the stored version still matches b.Version.
func (r BookingRepository) Update(ctx context.Context, b models.Booking) error {
	db := r.db()
	if db == nil {
		return fmt.Errorf("db tidak tersedia")
	}
	var reason, method, penalty, refund, processedAt any
	if c := b.Cancellation; c != nil {
		reason = intdb.NullIfEmpty(c.Reason)
		method = intdb.NullIfEmpty(c.RefundMethod)
		penalty, refund = c.PenaltyAmount, c.RefundAmount
		processedAt = c.ProcessedAt.UTC()
	}
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET
			status=?, pending_attempt_id=?, confirmed_attempt_id=?,
			confirmed_at=?, cancelled_at=?, expired_at=?,
			cancel_reason=?, penalty_amount=?, refund_amount=?, refund_method=?, cancel_processed_at=?,
			version=version+1
		WHERE id=? AND version=?`,
		string(b.Status), intdb.NullIfEmpty(b.PendingAttemptID), intdb.NullIfEmpty(b.ConfirmedAttemptID),
		intdb.NullTime(b.ConfirmedAt), intdb.NullTime(b.CancelledAt), intdb.NullTime(b.ExpiredAt),
		reason, penalty, refund, method, processedAt,
		b.ID, b.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %s version %d: %w", b.ID, b.Version, domain.ErrStaleWrite)
	}
	return nil
}

// ListExpirable returns Held/PendingPayment bookings whose TTL has lapsed at now.
func (r BookingRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	db := r.db()
	if db == nil {
		return nil, fmt.Errorf("db tidak tersedia")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status IN (?,?) AND expires_at<=?
		ORDER BY expires_at ASC LIMIT ?`,
		string(models.BookingHeld), string(models.BookingPendingPayment), now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
