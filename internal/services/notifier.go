package services

import (
	"context"
	"fmt"
	"time"

	"busbooking/internal/domain/models"
	"busbooking/internal/utils"
)

const notifyTimeout = 15 * time.Second

// LogNotifier records lifecycle events in the application log. Email/OTP delivery lives elsewhere.
type LogNotifier struct{}

func (LogNotifier) BookingConfirmed(ctx context.Context, b models.Booking) error {
	utils.LogEvent(utils.RequestIDFromContext(ctx), "notify", "booking_confirmed",
		fmt.Sprintf("booking_id=%s pnr=%s customer_id=%s amount=%s", b.ID, b.PNR, b.CustomerID, utils.FormatAmount(b.Currency, b.TotalAmount)))
	return nil
}

func (LogNotifier) BookingCancelled(ctx context.Context, b models.Booking, res models.CancellationResult) error {
	utils.LogEvent(utils.RequestIDFromContext(ctx), "notify", "booking_cancelled",
		fmt.Sprintf("booking_id=%s pnr=%s refund=%s method=%s", b.ID, b.PNR, utils.FormatAmount(b.Currency, res.RefundAmount), res.RefundMethod))
	return nil
}

// notifyAsync runs send in the background; the caller's result never depends on it.
func notifyAsync(ctx context.Context, n Notifier, action string, send func(context.Context, Notifier) error) {
	if n == nil {
		return
	}
	reqID := utils.RequestIDFromContext(ctx)
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				utils.LogError(reqID, "notify", action, fmt.Errorf("panic: %v", r))
			}
		}()
		if err := send(bg, n); err != nil {
			utils.LogError(reqID, "notify", action, err)
		}
	}()
}
