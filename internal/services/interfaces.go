package services

import (
	"context"
	"iter"
	"time"

	"busbooking/internal/domain/models"
	"busbooking/internal/gateway"
)

// SeatLedger tracks per-(schedule, travel date) seat occupancy and temporary holds.
// All mutations for one ScheduleKey are serialized by the implementation.
type SeatLedger interface {
	// PlaceHold marks every seat Held or none of them; conflicts come back as domain.SeatUnavailable.
	PlaceHold(ctx context.Context, key models.ScheduleKey, seatIDs []string, holderID string, ttl time.Duration, now time.Time) (models.HoldToken, error)
	// ConfirmHold turns Held seats into Booked; repeating it for a confirmed hold is a no-op.
	ConfirmHold(ctx context.Context, token models.HoldToken, now time.Time) error
	// ReleaseHold frees every seat owned by the hold, Held or Booked. Idempotent.
	ReleaseHold(ctx context.Context, token models.HoldToken) error
	// ReleaseActiveHold frees the hold only while it is still Active. A Confirmed hold is left
	// untouched and reported as domain.ErrHoldConfirmed; unknown or released holds are a no-op.
	ReleaseActiveHold(ctx context.Context, token models.HoldToken) error
	// SweepExpired lazily yields expired active holds, releasing each one as it is yielded.
	SweepExpired(ctx context.Context, now time.Time) iter.Seq2[models.HoldToken, error]
	Lookup(ctx context.Context, holdID string) (models.HoldToken, models.HoldState, error)
	SeatMap(ctx context.Context, key models.ScheduleKey) (map[string]models.SeatState, error)
}

// BookingStore persists bookings with optimistic concurrency on Version.
type BookingStore interface {
	// Create fails with domain.ErrDuplicate when the PNR is already taken.
	Create(ctx context.Context, b models.Booking) error
	GetByID(ctx context.Context, id string) (models.Booking, error)
	GetByHoldID(ctx context.Context, holdID string) (models.Booking, error)
	PNRExists(ctx context.Context, pnr string) (bool, error)
	// Update writes b only if the stored version still equals b.Version, else domain.ErrStaleWrite.
	Update(ctx context.Context, b models.Booking) error
	// ListExpirable returns Held/PendingPayment bookings whose ExpiresAt is at or before now.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
}

// PaymentStore persists payment attempts with compare-and-swap on status.
type PaymentStore interface {
	Create(ctx context.Context, a models.PaymentAttempt) error
	GetByOrderID(ctx context.Context, providerOrderID string) (models.PaymentAttempt, error)
	FindVerified(ctx context.Context, bookingID string) (models.PaymentAttempt, bool, error)
	// Update writes a only if the stored status equals from, else domain.ErrStaleWrite.
	// A second Verified attempt for the same booking fails with domain.ErrDuplicate.
	Update(ctx context.Context, a models.PaymentAttempt, from models.PaymentStatus) error
}

// ScheduleDirectory is the read-only view of the schedule/fleet collaborator.
type ScheduleDirectory interface {
	GetSchedule(ctx context.Context, id int64) (models.Schedule, error)
}

// CustomerDirectory resolves checkout prefill data for an authenticated customer.
type CustomerDirectory interface {
	Lookup(ctx context.Context, customerID string) (models.Customer, error)
}

// PaymentProvider is the external payment gateway.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, req gateway.OrderRequest) (gateway.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// Notifier receives lifecycle events; delivery is never awaited by the state machine.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b models.Booking) error
	BookingCancelled(ctx context.Context, b models.Booking, res models.CancellationResult) error
}

func nowOr(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
