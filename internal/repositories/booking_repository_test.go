package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	intconfig "busbooking/internal/config"
	"busbooking/internal/domain"
	"busbooking/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

var bookingRowColumns = []string{
	"id", "pnr", "customer_id", "schedule_id", "travel_date", "departure_at", "seat_ids",
	"total_amount", "currency", "status", "hold_id",
	"pending_attempt_id", "confirmed_attempt_id",
	"expires_at", "created_at", "confirmed_at", "cancelled_at", "expired_at",
	"cancel_reason", "penalty_amount", "refund_amount", "refund_method", "cancel_processed_at",
	"version",
}

func newMock(t *testing.T) (sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	intconfig.DB = db
	return mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

func TestBookingCreate_DuplicatePNR(t *testing.T) {
	mock, done := newMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO bookings").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ABCDEFGH' for key 'uq_bookings_pnr'"})

	err := BookingRepository{}.Create(context.Background(), models.Booking{ID: "b1", PNR: "ABCDEFGH"})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestBookingGetByID_ScansCancelledBooking(t *testing.T) {
	mock, done := newMock(t)
	defer done()

	dep := time.Date(2025, 1, 10, 12, 30, 0, 0, time.UTC)
	created := dep.Add(-48 * time.Hour)
	cancelled := dep.Add(-30 * time.Hour)
	mock.ExpectQuery("FROM bookings WHERE id=\\?").WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).AddRow(
			"b1", "ABCDEFGH", "cust-1", 5, "2025-01-10", dep, "1a, 1B",
			50000000, "IDR", "cancelled", "h1",
			"a1", "a1",
			created.Add(10*time.Minute), created, created.Add(time.Minute), cancelled, nil,
			"jadwal berubah", 5000000, 45000000, "original_payment", cancelled,
			4,
		))

	b, err := BookingRepository{}.GetByID(context.Background(), "b1")
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if b.Status != models.BookingCancelled || b.Version != 4 {
		t.Fatalf("unexpected status/version: %s/%d", b.Status, b.Version)
	}
	if len(b.SeatIDs) != 2 || b.SeatIDs[0] != "1A" || b.SeatIDs[1] != "1B" {
		t.Fatalf("unexpected seats %v", b.SeatIDs)
	}
	if b.ExpiredAt != nil || b.CancelledAt == nil || !b.CancelledAt.Equal(cancelled) {
		t.Fatalf("unexpected timestamps: expired=%v cancelled=%v", b.ExpiredAt, b.CancelledAt)
	}
	if b.Cancellation == nil || b.Cancellation.RefundAmount != 45000000 || b.Cancellation.PenaltyAmount != 5000000 {
		t.Fatalf("unexpected cancellation %+v", b.Cancellation)
	}
}

func TestBookingGetByHoldID_NotFound(t *testing.T) {
	mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("FROM bookings WHERE hold_id=\\?").WithArgs("h-missing").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))

	_, err := BookingRepository{}.GetByHoldID(context.Background(), "h-missing")
	if !errors.Is(err, domain.ErrBookingNotFound) {
		t.Fatalf("expected booking not found, got %v", err)
	}
}

func TestBookingPNRExists(t *testing.T) {
	mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("SELECT 1 FROM bookings WHERE pnr=\\?").WithArgs("TAKEN234").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM bookings WHERE pnr=\\?").WithArgs("FREE2345").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	repo := BookingRepository{}
	if ok, err := repo.PNRExists(context.Background(), "TAKEN234"); err != nil || !ok {
		t.Fatalf("expected taken pnr, got %v %v", ok, err)
	}
	if ok, err := repo.PNRExists(context.Background(), "FREE2345"); err != nil || ok {
		t.Fatalf("expected free pnr, got %v %v", ok, err)
	}
}

func TestBookingUpdate_CompareAndSwapOnVersion(t *testing.T) {
	mock, done := newMock(t)
	defer done()

	confirmedAt := time.Date(2025, 1, 8, 3, 5, 0, 0, time.UTC)
	b := models.Booking{
		ID:                 "b1",
		Status:             models.BookingConfirmed,
		PendingAttemptID:   "a1",
		ConfirmedAttemptID: "a1",
		ConfirmedAt:        &confirmedAt,
		Version:            2,
	}

	mock.ExpectExec("UPDATE bookings SET").
		WithArgs("confirmed", "a1", "a1", confirmedAt, nil, nil, nil, nil, nil, nil, nil, "b1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE bookings SET").
		WithArgs("confirmed", "a1", "a1", confirmedAt, nil, nil, nil, nil, nil, nil, nil, "b1", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := BookingRepository{}
	if err := repo.Update(context.Background(), b); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := repo.Update(context.Background(), b); !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("expected stale write, got %v", err)
	}
}

func TestBookingListExpirable(t *testing.T) {
	mock, done := newMock(t)
	defer done()

	now := time.Date(2025, 1, 8, 3, 30, 0, 0, time.UTC)
	dep := time.Date(2025, 1, 10, 12, 30, 0, 0, time.UTC)
	mock.ExpectQuery("FROM bookings WHERE status IN \\(\\?,\\?\\) AND expires_at<=\\?").
		WithArgs("held", "pending_payment", now, 50).
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).AddRow(
			"b2", "QWERTYUP", "cust-2", 5, "2025-01-10", dep, "3A",
			25000000, "IDR", "held", "h2",
			"", "",
			now.Add(-time.Minute), now.Add(-11*time.Minute), nil, nil, nil,
			"", nil, nil, "", nil,
			1,
		))

	out, err := BookingRepository{}.ListExpirable(context.Background(), now, 50)
	if err != nil {
		t.Fatalf("list expirable: %v", err)
	}
	if len(out) != 1 || out[0].ID != "b2" || out[0].Cancellation != nil {
		t.Fatalf("unexpected result %+v", out)
	}
}
