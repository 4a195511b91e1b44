package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/utils"
)

const (
	defaultSweepInterval = 30 * time.Second
	recoveryBatch        = 200
)

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	HoldsReleased     int
	BookingsExpired   int
	BookingsConfirmed int
	Errors            int
}

// ExpirySweeper is the only caller that moves Held/PendingPayment bookings to Expired.
// Payments lets the recovery pass finish bookings whose payment was verified but never applied.
type ExpirySweeper struct {
	Ledger   SeatLedger
	Bookings BookingService
	Payments PaymentStore
	Interval time.Duration
	Now      func() time.Time
}

// Run sweeps on every tick until ctx is cancelled.
func (s ExpirySweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.LogEvent("", "sweeper", "start", "interval="+interval.String())
	for {
		select {
		case <-ctx.Done():
			utils.LogEvent("", "sweeper", "stop", "context done")
			return nil
		case <-ticker.C:
			stats := s.SweepOnce(ctx)
			if stats.HoldsReleased+stats.BookingsExpired+stats.BookingsConfirmed+stats.Errors > 0 {
				utils.LogEvent("", "sweeper", "sweep", fmt.Sprintf("holds_released=%d bookings_expired=%d bookings_confirmed=%d errors=%d",
					stats.HoldsReleased, stats.BookingsExpired, stats.BookingsConfirmed, stats.Errors))
			}
		}
	}
}

// SweepOnce releases every expired active hold and expires its booking, then expires
// bookings left behind by an earlier pass that released the seats but stopped short.
func (s ExpirySweeper) SweepOnce(ctx context.Context) SweepStats {
	var stats SweepStats
	now := nowOr(s.Now)

	for token, err := range s.Ledger.SweepExpired(ctx, now) {
		if err != nil {
			stats.Errors++
			utils.LogError("", "sweeper", "sweep_expired", err)
			break
		}
		stats.HoldsReleased++
		b, err := s.Bookings.Bookings.GetByHoldID(ctx, token.ID)
		if err != nil {
			if !errors.Is(err, domain.ErrBookingNotFound) {
				stats.Errors++
				utils.LogError("", "sweeper", "lookup_booking", err)
			}
			continue
		}
		s.expire(ctx, b.ID, now, &stats)
	}
	if ctx.Err() != nil {
		return stats
	}

	pending, err := s.Bookings.Bookings.ListExpirable(ctx, now, recoveryBatch)
	if err != nil {
		stats.Errors++
		utils.LogError("", "sweeper", "list_expirable", err)
		return stats
	}
	for _, b := range pending {
		if ctx.Err() != nil {
			break
		}
		s.expire(ctx, b.ID, now, &stats)
	}
	return stats
}

func (s ExpirySweeper) expire(ctx context.Context, bookingID string, now time.Time, stats *SweepStats) {
	_, err := s.Bookings.Expire(ctx, bookingID, now)
	switch {
	case err == nil:
		stats.BookingsExpired++
	case errors.Is(err, domain.ErrHoldConfirmed):
		s.reconcile(ctx, bookingID, stats)
	case errors.Is(err, domain.ErrNotExpirable):
		// Confirmed, cancelled or already expired by a racing pass.
	default:
		stats.Errors++
		utils.LogError("", "sweeper", "expire", fmt.Errorf("booking_id=%s: %w", bookingID, err))
	}
}

// reconcile handles a lapsed booking whose seats a payment already confirmed: the
// Verified attempt is applied, and seats booked without one are reported.
func (s ExpirySweeper) reconcile(ctx context.Context, bookingID string, stats *SweepStats) {
	b, err := s.Bookings.Get(ctx, bookingID)
	if err != nil {
		stats.Errors++
		utils.LogError("", "sweeper", "reconcile", err)
		return
	}
	if b.Status.Terminal() || b.Status == models.BookingConfirmed {
		return
	}
	if s.Payments == nil {
		stats.Errors++
		utils.LogError("", "sweeper", "reconcile", fmt.Errorf("booking_id=%s: hold confirmed but no payment store to reconcile", b.ID))
		return
	}
	attempt, ok, err := s.Payments.FindVerified(ctx, b.ID)
	if err != nil {
		stats.Errors++
		utils.LogError("", "sweeper", "reconcile", fmt.Errorf("booking_id=%s: %w", b.ID, err))
		return
	}
	if !ok {
		stats.Errors++
		utils.LogError("", "sweeper", "hold_confirmed_unpaid", fmt.Errorf("booking_id=%s hold_id=%s: seats booked without a verified payment", b.ID, b.HoldID))
		return
	}
	if _, err := s.Bookings.ConfirmVerified(ctx, b.ID, attempt.ID); err != nil {
		stats.Errors++
		utils.LogError("", "sweeper", "reconcile", fmt.Errorf("booking_id=%s attempt_id=%s: %w", b.ID, attempt.ID, err))
		return
	}
	stats.BookingsConfirmed++
	utils.LogEvent("", "sweeper", "reconcile_confirm", fmt.Sprintf("booking_id=%s attempt_id=%s", b.ID, attempt.ID))
}
