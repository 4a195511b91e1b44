package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/gateway"
	"busbooking/internal/utils"

	"github.com/google/uuid"
)

const paymentModule = "payment"

// PaymentService issues provider orders for held bookings and applies verified payments.
type PaymentService struct {
	Bookings  BookingService
	Payments  PaymentStore
	Provider  PaymentProvider
	Customers CustomerDirectory
	Notifier  Notifier
	Timeout   time.Duration
	Now       func() time.Time
}

func (s PaymentService) now() time.Time { return nowOr(s.Now) }

// InitiatePayment opens a provider order for a Held or PendingPayment booking and
// points the booking at the new attempt. Provider failures are not retried here.
func (s PaymentService) InitiatePayment(ctx context.Context, bookingID, customerID string) (models.ProviderOrder, error) {
	reqID := utils.RequestIDFromContext(ctx)
	b, err := s.Bookings.GetForCustomer(ctx, bookingID, customerID)
	if err != nil {
		return models.ProviderOrder{}, err
	}
	if b.Status == models.BookingPendingPayment {
		// A verified payment whose booking write was lost must be finished, not paid twice.
		verified, ok, err := s.Payments.FindVerified(ctx, b.ID)
		if err != nil {
			return models.ProviderOrder{}, domain.InternalError{Msg: "gagal membaca status pembayaran", Err: err}
		}
		if ok {
			confirmed, err := s.completeVerified(ctx, b, verified)
			if err != nil {
				return models.ProviderOrder{}, err
			}
			return models.ProviderOrder{}, &domain.Error{
				Kind:    domain.KindAlreadyConfirmed,
				Msg:     "booking sudah dibayar",
				Details: confirmed,
			}
		}
	}
	switch b.Status {
	case models.BookingHeld, models.BookingPendingPayment:
	case models.BookingExpired:
		return models.ProviderOrder{}, domain.NewError(domain.KindBookingExpired, "booking sudah kedaluwarsa, silakan pilih kursi lagi")
	default:
		return models.ProviderOrder{}, domain.NewError(domain.KindBookingNotHeld, fmt.Sprintf("booking berstatus %s tidak bisa dibayar", b.Status))
	}
	if !s.now().Before(b.ExpiresAt) {
		return models.ProviderOrder{}, domain.NewError(domain.KindBookingExpired, "waktu pembayaran habis")
	}

	expected, err := s.Bookings.QuoteAmount(ctx, b.ScheduleID, b.SeatIDs)
	if err != nil {
		return models.ProviderOrder{}, err
	}
	if expected <= 0 || expected != b.TotalAmount {
		utils.LogEvent(reqID, paymentModule, "amount_mismatch", fmt.Sprintf("booking_id=%s stored=%d quoted=%d", b.ID, b.TotalAmount, expected))
		return models.ProviderOrder{}, domain.NewError(domain.KindAmountMismatch, "nominal booking tidak sesuai tarif")
	}

	prefill := s.prefill(ctx, b.CustomerID)
	attemptID := uuid.NewString()

	order, err := s.createOrder(ctx, gateway.OrderRequest{
		Amount:   b.TotalAmount,
		Currency: b.Currency,
		Receipt:  b.PNR,
		Notes:    map[string]string{"booking_id": b.ID, "payment_attempt_id": attemptID},
	})
	if err != nil {
		return models.ProviderOrder{}, err
	}
	if order.Amount != 0 && order.Amount != b.TotalAmount {
		return models.ProviderOrder{}, domain.NewError(domain.KindAmountMismatch, "nominal order provider tidak sesuai booking")
	}

	attempt := models.PaymentAttempt{
		ID:              attemptID,
		BookingID:       b.ID,
		ProviderOrderID: order.ID,
		Status:          models.PaymentCreated,
		Amount:          b.TotalAmount,
		Currency:        b.Currency,
		CreatedAt:       s.now(),
	}
	if err := s.Payments.Create(ctx, attempt); err != nil {
		return models.ProviderOrder{}, domain.InternalError{Msg: "gagal menyimpan percobaan pembayaran", Err: err}
	}
	if _, err := s.Bookings.MarkPendingPayment(ctx, b.ID, attemptID); err != nil {
		s.failAttempt(ctx, attempt, "booking_not_payable")
		return models.ProviderOrder{}, err
	}

	utils.LogEvent(reqID, paymentModule, "initiate", fmt.Sprintf("booking_id=%s attempt_id=%s order_id=%s amount=%d", b.ID, attemptID, order.ID, b.TotalAmount))
	return models.ProviderOrder{
		BookingID:        b.ID,
		PaymentAttemptID: attemptID,
		ProviderOrderID:  order.ID,
		Amount:           b.TotalAmount,
		Currency:         b.Currency,
		KeyID:            s.Provider.KeyID(),
		Prefill:          prefill,
	}, nil
}

func (s PaymentService) createOrder(ctx context.Context, req gateway.OrderRequest) (gateway.Order, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	order, err := s.Provider.CreateOrder(ctx, req)
	if err == nil {
		return order, nil
	}
	utils.LogError(utils.RequestIDFromContext(ctx), paymentModule, "create_order", err)
	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return gateway.Order{}, domain.Wrap(domain.KindProviderUnavailable, "layanan pembayaran sedang tidak tersedia, coba lagi", err)
	case errors.As(err, &apiErr):
		return gateway.Order{}, domain.InternalError{Msg: "order pembayaran ditolak provider", Err: err}
	default:
		return gateway.Order{}, domain.Wrap(domain.KindProviderUnavailable, "layanan pembayaran sedang tidak tersedia, coba lagi", err)
	}
}

func (s PaymentService) prefill(ctx context.Context, customerID string) models.Prefill {
	if s.Customers == nil {
		return models.Prefill{}
	}
	c, err := s.Customers.Lookup(ctx, customerID)
	if err != nil {
		utils.LogEvent(utils.RequestIDFromContext(ctx), paymentModule, "prefill", "customer lookup failed: "+err.Error())
		return models.Prefill{}
	}
	return models.Prefill{Name: c.Name, Email: c.Email, Contact: c.Phone}
}

// VerifyPayment checks the signed checkout payload and confirms the booking exactly once.
// Replaying an identical payload returns the confirmed booking without side effects.
func (s PaymentService) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (models.Booking, error) {
	reqID := utils.RequestIDFromContext(ctx)
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return models.Booking{}, domain.ValidationError{Field: "payment", Msg: "providerOrderId, providerPaymentId dan providerSignature wajib diisi"}
	}

	attempt, err := s.Payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return models.Booking{}, err
	}

	if attempt.Status == models.PaymentVerified {
		return s.replayVerified(ctx, attempt, paymentID, signature)
	}

	if !s.Provider.VerifySignature(orderID, paymentID, signature) {
		utils.LogEvent(reqID, paymentModule, "verify", "signature mismatch order_id="+orderID)
		s.failAttempt(ctx, attempt, "signature_invalid")
		return models.Booking{}, domain.NewError(domain.KindSignatureInvalid, "tanda tangan pembayaran tidak valid")
	}
	if attempt.Status == models.PaymentFailed {
		return models.Booking{}, domain.NewError(domain.KindSignatureInvalid, "percobaan pembayaran ini sudah gagal, silakan ulangi pembayaran")
	}

	b, err := s.Bookings.Get(ctx, attempt.BookingID)
	if err != nil {
		return models.Booking{}, err
	}
	now := s.now()
	if err := s.checkPayable(b, attempt, now); err != nil {
		if errors.Is(err, domain.ErrBookingExpired) {
			s.failAttempt(ctx, attempt, "booking_expired")
		}
		return models.Booking{}, err
	}

	if err := s.Bookings.Ledger.ConfirmHold(ctx, b.HoldToken(), now); err != nil {
		if errors.Is(err, domain.ErrHoldExpired) || errors.Is(err, domain.ErrHoldNotFound) {
			s.failAttempt(ctx, attempt, "hold_lost")
			return models.Booking{}, domain.Wrap(domain.KindBookingExpired, "booking sudah kedaluwarsa", err)
		}
		return models.Booking{}, err
	}

	verifiedAt := now
	next := attempt
	next.Status = models.PaymentVerified
	next.ProviderPaymentID = paymentID
	next.ProviderSignature = signature
	next.VerifiedAt = &verifiedAt
	won := true
	if err := s.Payments.Update(ctx, next, models.PaymentCreated); err != nil {
		switch {
		case errors.Is(err, domain.ErrStaleWrite):
			won = false
			latest, gerr := s.Payments.GetByOrderID(ctx, orderID)
			if gerr != nil {
				return models.Booking{}, gerr
			}
			if latest.Status != models.PaymentVerified || latest.ProviderPaymentID != paymentID {
				return models.Booking{}, domain.NewError(domain.KindAlreadyVerifiedDifferently, "order sudah diproses dengan pembayaran lain")
			}
		case errors.Is(err, domain.ErrDuplicate):
			utils.LogEvent(reqID, paymentModule, "verify", "second verified attempt rejected booking_id="+b.ID)
			return models.Booking{}, domain.NewError(domain.KindAlreadyVerifiedDifferently, "booking sudah dibayar dengan pembayaran lain")
		default:
			return models.Booking{}, domain.InternalError{Msg: "gagal menyimpan status pembayaran", Err: err}
		}
	}

	confirmed, err := s.Bookings.Confirm(ctx, b.ID, attempt.ID)
	if errors.Is(err, domain.ErrWrongAttempt) {
		// A concurrent initiate re-pointed the booking after this attempt was verified.
		confirmed, err = s.Bookings.ConfirmVerified(ctx, b.ID, attempt.ID)
	}
	if err != nil {
		utils.LogError(reqID, paymentModule, "confirm_booking", fmt.Errorf("booking_id=%s attempt_id=%s: %w", b.ID, attempt.ID, err))
		return models.Booking{}, err
	}

	if won {
		utils.LogEvent(reqID, paymentModule, "verify", fmt.Sprintf("booking_id=%s attempt_id=%s payment_id=%s confirmed", b.ID, attempt.ID, paymentID))
		notifyAsync(ctx, s.Notifier, "booking_confirmed", func(ctx context.Context, n Notifier) error {
			return n.BookingConfirmed(ctx, confirmed)
		})
	}
	return confirmed, nil
}

// checkPayable rejects bookings a verified payment must not touch, before any seat is confirmed.
func (s PaymentService) checkPayable(b models.Booking, attempt models.PaymentAttempt, now time.Time) error {
	switch b.Status {
	case models.BookingExpired:
		return domain.NewError(domain.KindBookingExpired, "booking sudah kedaluwarsa")
	case models.BookingConfirmed:
		if b.ConfirmedAttemptID == attempt.ID {
			return nil
		}
		return domain.NewError(domain.KindAlreadyVerifiedDifferently, "booking sudah dibayar dengan pembayaran lain")
	case models.BookingPendingPayment:
		if b.PendingAttemptID != attempt.ID {
			return domain.NewError(domain.KindWrongAttempt, "pembayaran bukan untuk percobaan aktif booking ini")
		}
	default:
		return domain.NewError(domain.KindNotPending, fmt.Sprintf("booking berstatus %s", b.Status))
	}
	if attempt.Amount != b.TotalAmount {
		return domain.NewError(domain.KindAmountMismatch, "nominal pembayaran tidak sesuai booking")
	}
	if !now.Before(b.ExpiresAt) {
		return domain.NewError(domain.KindBookingExpired, "waktu pembayaran habis")
	}
	return nil
}

// replayVerified answers a repeated verification of an attempt that is already Verified.
func (s PaymentService) replayVerified(ctx context.Context, attempt models.PaymentAttempt, paymentID, signature string) (models.Booking, error) {
	if attempt.ProviderPaymentID != paymentID || attempt.ProviderSignature != signature {
		return models.Booking{}, domain.NewError(domain.KindAlreadyVerifiedDifferently, "order sudah diverifikasi dengan data pembayaran berbeda")
	}
	b, err := s.Bookings.Get(ctx, attempt.BookingID)
	if err != nil {
		return models.Booking{}, err
	}
	return s.completeVerified(ctx, b, attempt)
}

// completeVerified finishes a booking whose attempt is already Verified but whose
// Confirmed write never landed. Both steps are idempotent for that attempt.
func (s PaymentService) completeVerified(ctx context.Context, b models.Booking, attempt models.PaymentAttempt) (models.Booking, error) {
	if b.Status == models.BookingConfirmed && b.ConfirmedAttemptID == attempt.ID {
		return b, nil
	}
	if err := s.Bookings.ConfirmSeats(ctx, b); err != nil {
		return models.Booking{}, err
	}
	confirmed, err := s.Bookings.ConfirmVerified(ctx, b.ID, attempt.ID)
	if err != nil {
		return models.Booking{}, err
	}
	utils.LogEvent(utils.RequestIDFromContext(ctx), paymentModule, "complete_verified", fmt.Sprintf("booking_id=%s attempt_id=%s", b.ID, attempt.ID))
	notifyAsync(ctx, s.Notifier, "booking_confirmed", func(ctx context.Context, n Notifier) error {
		return n.BookingConfirmed(ctx, confirmed)
	})
	return confirmed, nil
}

func (s PaymentService) failAttempt(ctx context.Context, attempt models.PaymentAttempt, reason string) {
	if attempt.Status != models.PaymentCreated {
		return
	}
	next := attempt
	next.Status = models.PaymentFailed
	next.FailureReason = reason
	if err := s.Payments.Update(ctx, next, models.PaymentCreated); err != nil && !errors.Is(err, domain.ErrStaleWrite) {
		utils.LogError(utils.RequestIDFromContext(ctx), paymentModule, "fail_attempt", err)
	}
}
