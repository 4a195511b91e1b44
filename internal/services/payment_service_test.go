package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPayment_ConfirmsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "cust-1", cheapSchedule, "1A", "1B")
	require.Equal(t, int64(500), b.TotalAmount)

	order, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), order.Amount)
	assert.Equal(t, "IDR", order.Currency)
	assert.Equal(t, "sandbox", order.KeyID)
	assert.Equal(t, "Rina", order.Prefill.Name)

	pending, err := f.booking.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPendingPayment, pending.Status)

	paymentID, sig := f.provider.Pay(order.ProviderOrderID)
	first, err := f.payment.VerifyPayment(ctx, order.ProviderOrderID, paymentID, sig)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, first.Status)

	second, err := f.payment.VerifyPayment(ctx, order.ProviderOrderID, paymentID, sig)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.ConfirmedAt, second.ConfirmedAt)

	attempt, err := f.payments.GetByOrderID(ctx, order.ProviderOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentVerified, attempt.Status)
	assert.Equal(t, paymentID, attempt.ProviderPaymentID)

	_, state, err := f.ledger.Lookup(ctx, b.HoldID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldConfirmed, state)

	require.Eventually(t, func() bool { return f.notifier.confirmedCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.notifier.confirmedCount())
}

func TestVerifyPayment_ReplayWithDifferentPaymentIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "cust-1", cheapSchedule, "2A")

	order, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	paymentID, sig := f.provider.Pay(order.ProviderOrderID)
	_, err = f.payment.VerifyPayment(ctx, order.ProviderOrderID, paymentID, sig)
	require.NoError(t, err)

	otherID, otherSig := f.provider.Pay(order.ProviderOrderID)
	_, err = f.payment.VerifyPayment(ctx, order.ProviderOrderID, otherID, otherSig)
	assert.ErrorIs(t, err, domain.ErrAlreadyVerifiedDifferently)
}

func TestVerifyPayment_BadSignatureFailsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "cust-1", cheapSchedule, "1A")

	order, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	paymentID, sig := f.provider.Pay(order.ProviderOrderID)

	_, err = f.payment.VerifyPayment(ctx, order.ProviderOrderID, paymentID, "deadbeef")
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)

	attempt, err := f.payments.GetByOrderID(ctx, order.ProviderOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, attempt.Status)
	assert.Equal(t, "signature_invalid", attempt.FailureReason)

	// A failed attempt stays failed even with the right signature.
	_, err = f.payment.VerifyPayment(ctx, order.ProviderOrderID, paymentID, sig)
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)

	got, err := f.booking.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPendingPayment, got.Status)

	// A fresh attempt still goes through.
	confirmed := f.pay(t, got)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
}

func TestVerifyPayment_UnknownOrderAndMissingFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payment.VerifyPayment(ctx, "order_missing", "pay_1", "sig")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = f.payment.VerifyPayment(ctx, " ", "pay_1", "sig")
	assert.True(t, domain.IsValidation(err))
}

func TestVerifyPayment_OlderAttemptIsWrongAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "cust-1", cheapSchedule, "1A")

	first, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	second, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	require.NotEqual(t, first.PaymentAttemptID, second.PaymentAttemptID)

	paymentID, sig := f.provider.Pay(first.ProviderOrderID)
	_, err = f.payment.VerifyPayment(ctx, first.ProviderOrderID, paymentID, sig)
	require.ErrorIs(t, err, domain.ErrWrongAttempt)

	paymentID, sig = f.provider.Pay(second.ProviderOrderID)
	confirmed, err := f.payment.VerifyPayment(ctx, second.ProviderOrderID, paymentID, sig)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
}

func TestVerifyPayment_NeverConfirmsExpiredBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "cust-1", cheapSchedule, "1A", "1B")

	order, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	paymentID, sig := f.provider.Pay(order.ProviderOrderID)

	f.clock.Advance(11 * time.Minute)
	stats := f.sweeper.SweepOnce(ctx)
	require.Equal(t, 1, stats.BookingsExpired)

	_, err = f.payment.VerifyPayment(ctx, order.ProviderOrderID, paymentID, sig)
	require.ErrorIs(t, err, domain.ErrBookingExpired)

	got, err := f.booking.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingExpired, got.Status)

	attempt, err := f.payments.GetByOrderID(ctx, order.ProviderOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, attempt.Status)

	_, found, err := f.payments.FindVerified(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, f.notifier.confirmedCount())
}

func TestVerifyPayment_AfterTTLBeforeSweepIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "cust-1", cheapSchedule, "2B")

	order, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
	paymentID, sig := f.provider.Pay(order.ProviderOrderID)

	f.clock.Set(b.ExpiresAt)
	_, err = f.payment.VerifyPayment(ctx, order.ProviderOrderID, paymentID, sig)
	require.ErrorIs(t, err, domain.ErrBookingExpired)

	_, state, err := f.ledger.Lookup(ctx, b.HoldID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldActive, state)

	stats := f.sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, stats.BookingsExpired)
}

func TestInitiatePayment_ProviderUnavailableLeavesBookingHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.hold(t, "cust-1", cheapSchedule, "1A")

	f.provider.Fail = fmt.Errorf("%w: connection reset", gateway.ErrUnavailable)
	_, err := f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.True(t, derr.Retryable())

	got, err := f.booking.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingHeld, got.Status)

	f.provider.Fail = nil
	_, err = f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.NoError(t, err)
}

func TestInitiatePayment_ProviderRejectionIsNotRetryable(t *testing.T) {
	f := newFixture(t)
	b := f.hold(t, "cust-1", cheapSchedule, "1A")

	f.provider.Fail = &gateway.APIError{Status: 400, Body: `{"error":"bad amount"}`}
	_, err := f.payment.InitiatePayment(context.Background(), b.ID, "cust-1")
	require.Error(t, err)
	assert.True(t, domain.IsInternal(err))
	assert.Equal(t, domain.Kind(""), domain.KindOf(err))
}

func TestInitiatePayment_RejectsNonPayableBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.payment.InitiatePayment(ctx, "missing", "cust-1")
	require.ErrorIs(t, err, domain.ErrBookingNotFound)

	b := f.hold(t, "cust-1", cheapSchedule, "1A")
	_, err = f.payment.InitiatePayment(ctx, b.ID, "cust-2")
	require.ErrorIs(t, err, domain.ErrBookingNotFound)

	f.clock.Set(b.ExpiresAt)
	_, err = f.payment.InitiatePayment(ctx, b.ID, "cust-1")
	require.ErrorIs(t, err, domain.ErrBookingExpired)

	f.clock.Set(b.CreatedAt)
	confirmed := f.pay(t, b)
	_, err = f.payment.InitiatePayment(ctx, confirmed.ID, "cust-1")
	require.ErrorIs(t, err, domain.ErrBookingNotHeld)
}

func TestInitiatePayment_FareChangeIsAmountMismatch(t *testing.T) {
	f := newFixture(t)
	b := f.hold(t, "cust-1", cheapSchedule, "1A")

	sched, err := f.dir.GetSchedule(context.Background(), cheapSchedule)
	require.NoError(t, err)
	sched.BaseFare = 300
	f.dir.AddSchedule(sched)

	_, err = f.payment.InitiatePayment(context.Background(), b.ID, "cust-1")
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
}
