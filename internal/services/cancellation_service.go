package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/utils"
)

const (
	MinReasonLength = 10
	MaxReasonLength = 250
)

// RefundComputation is the pure result of applying the policy to a booking.
type RefundComputation struct {
	PenaltyAmount  int64
	RefundAmount   int64
	PenaltyPercent int
	Allowed        bool
}

// ComputeRefund applies policy to total given the time left until departure.
// The refund is rounded down so any remainder stays with the penalty.
func ComputeRefund(policy models.CancellationPolicy, total int64, untilDeparture time.Duration) RefundComputation {
	tier := policy.TierFor(untilDeparture)
	refund := utils.PercentOf(total, tier.RefundPercent)
	if !tier.Allowed {
		refund = 0
	}
	return RefundComputation{
		PenaltyAmount:  total - refund,
		RefundAmount:   refund,
		PenaltyPercent: tier.PenaltyPercent,
		Allowed:        tier.Allowed,
	}
}

// CancellationService drives bookings to Cancelled under the time-tiered refund policy.
type CancellationService struct {
	Bookings BookingService
	Notifier Notifier
	Policy   *models.CancellationPolicy
	Now      func() time.Time
}

func (s CancellationService) now() time.Time { return nowOr(s.Now) }

// PolicyTable returns the active penalty table.
func (s CancellationService) PolicyTable() models.CancellationPolicy {
	if s.Policy != nil {
		return *s.Policy
	}
	return models.DefaultCancellationPolicy()
}

// ComputeRefund evaluates the policy for b at now. Nothing has been captured for a
// PendingPayment booking, so it cancels free with nothing to refund.
func (s CancellationService) ComputeRefund(b models.Booking, now time.Time) RefundComputation {
	if b.Status == models.BookingPendingPayment {
		return RefundComputation{Allowed: true}
	}
	return ComputeRefund(s.PolicyTable(), b.TotalAmount, b.DepartureAt.Sub(now))
}

// Quote previews what a cancellation would yield right now without changing anything.
func (s CancellationService) Quote(ctx context.Context, bookingID, customerID string) (models.RefundQuote, error) {
	b, err := s.Bookings.GetForCustomer(ctx, bookingID, customerID)
	if err != nil {
		return models.RefundQuote{}, err
	}
	now := s.now()
	q := models.RefundQuote{
		BookingID:   b.ID,
		TotalAmount: b.TotalAmount,
		HoursUntil:  b.DepartureAt.Sub(now).Hours(),
		Currency:    b.Currency,
		Status:      b.Status,
	}
	switch b.Status {
	case models.BookingConfirmed, models.BookingPendingPayment:
		rc := s.ComputeRefund(b, now)
		q.PenaltyAmount, q.RefundAmount = rc.PenaltyAmount, rc.RefundAmount
		q.PenaltyPercent, q.Allowed = rc.PenaltyPercent, rc.Allowed
		q.RefundMethod = refundMethod(b.Status, rc)
	case models.BookingCancelled:
		if c := b.Cancellation; c != nil {
			q.PenaltyAmount, q.RefundAmount, q.RefundMethod = c.PenaltyAmount, c.RefundAmount, c.RefundMethod
		}
	}
	return q, nil
}

// Cancel validates the reason, applies the policy and records the cancellation.
// Cancelling an already Cancelled booking returns the recorded outcome.
func (s CancellationService) Cancel(ctx context.Context, bookingID, customerID, reason string) (models.CancellationResult, error) {
	reqID := utils.RequestIDFromContext(ctx)
	reason, err := validateReason(reason)
	if err != nil {
		return models.CancellationResult{}, err
	}

	b, err := s.Bookings.GetForCustomer(ctx, bookingID, customerID)
	if err != nil {
		return models.CancellationResult{}, err
	}

	if b.Status == models.BookingCancelled {
		s.Bookings.ReleaseSeats(ctx, b)
		return resultOf(b), nil
	}
	if b.Status != models.BookingConfirmed && b.Status != models.BookingPendingPayment {
		return models.CancellationResult{}, domain.NewError(domain.KindNotCancellable, fmt.Sprintf("booking berstatus %s tidak bisa dibatalkan", b.Status))
	}

	now := s.now()
	rc := s.ComputeRefund(b, now)
	if !rc.Allowed {
		utils.LogEvent(reqID, "cancellation", "not_allowed", fmt.Sprintf("booking_id=%s hours_left=%.2f", b.ID, b.DepartureAt.Sub(now).Hours()))
		return models.CancellationResult{}, &domain.Error{
			Kind:    domain.KindNotAllowed,
			Msg:     "pembatalan tidak diizinkan kurang dari 2 jam sebelum keberangkatan",
			Details: s.PolicyTable(),
		}
	}

	cancelled, err := s.Bookings.Cancel(ctx, b.ID, b.Status, models.Cancellation{
		Reason:        reason,
		PenaltyAmount: rc.PenaltyAmount,
		RefundAmount:  rc.RefundAmount,
		RefundMethod:  refundMethod(b.Status, rc),
		ProcessedAt:   now,
	})
	if err != nil {
		return models.CancellationResult{}, err
	}

	res := resultOf(cancelled)
	utils.LogEvent(reqID, "cancellation", "cancel", fmt.Sprintf("booking_id=%s penalty=%d refund=%d", cancelled.ID, res.PenaltyAmount, res.RefundAmount))
	notifyAsync(ctx, s.Notifier, "booking_cancelled", func(ctx context.Context, n Notifier) error {
		return n.BookingCancelled(ctx, cancelled, res)
	})
	return res, nil
}

func validateReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	n := utils.RuneLen(reason)
	switch {
	case n < MinReasonLength:
		return "", domain.NewError(domain.KindReasonTooShort, fmt.Sprintf("alasan minimal %d karakter", MinReasonLength))
	case n > MaxReasonLength:
		return "", domain.NewError(domain.KindReasonTooLong, fmt.Sprintf("alasan maksimal %d karakter", MaxReasonLength))
	}
	return reason, nil
}

func refundMethod(status models.BookingStatus, rc RefundComputation) string {
	if status == models.BookingPendingPayment || rc.RefundAmount == 0 {
		return models.RefundMethodNone
	}
	return models.RefundMethodOriginal
}

func resultOf(b models.Booking) models.CancellationResult {
	res := models.CancellationResult{BookingID: b.ID}
	if c := b.Cancellation; c != nil {
		res.PenaltyAmount = c.PenaltyAmount
		res.RefundAmount = c.RefundAmount
		res.RefundMethod = c.RefundMethod
		res.ProcessedAt = c.ProcessedAt
	}
	return res
}
