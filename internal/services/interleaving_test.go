package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookLedger runs each hook once, synchronously, around the wrapped ledger call,
// which pins down one exact interleaving of two operations.
type hookLedger struct {
	SeatLedger
	afterConfirm  func()
	beforeRelease func()
	afterRelease  func()
}

func (l *hookLedger) ConfirmHold(ctx context.Context, token models.HoldToken, now time.Time) error {
	err := l.SeatLedger.ConfirmHold(ctx, token, now)
	if hook := l.afterConfirm; err == nil && hook != nil {
		l.afterConfirm = nil
		hook()
	}
	return err
}

func (l *hookLedger) ReleaseActiveHold(ctx context.Context, token models.HoldToken) error {
	if hook := l.beforeRelease; hook != nil {
		l.beforeRelease = nil
		hook()
	}
	err := l.SeatLedger.ReleaseActiveHold(ctx, token)
	if hook := l.afterRelease; hook != nil {
		l.afterRelease = nil
		hook()
	}
	return err
}

// lostWriteStore drops the next failConfirms writes that would confirm a booking.
type lostWriteStore struct {
	*memory.BookingStore
	failConfirms int
}

func (s *lostWriteStore) Update(ctx context.Context, b models.Booking) error {
	if b.Status == models.BookingConfirmed && s.failConfirms > 0 {
		s.failConfirms--
		return errors.New("connection reset by peer")
	}
	return s.BookingStore.Update(ctx, b)
}

type openOrder struct {
	booking   models.Booking
	order     models.ProviderOrder
	paymentID string
	signature string
}

func (f *fixture) openOrder(t *testing.T, ps PaymentService, seat string) openOrder {
	t.Helper()
	b := f.hold(t, "cust-1", cheapSchedule, seat)
	order, err := ps.InitiatePayment(context.Background(), b.ID, "cust-1")
	require.NoError(t, err)
	paymentID, sig := f.provider.Pay(order.ProviderOrderID)
	return openOrder{booking: b, order: order, paymentID: paymentID, signature: sig}
}

func TestCancel_DuringVerifyAfterSeatsConfirmedIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t, f.payment, "1A")

	hl := &hookLedger{SeatLedger: f.ledger}
	var cancelErr error
	hl.afterConfirm = func() {
		_, cancelErr = f.cancel.Cancel(ctx, o.booking.ID, "cust-1", "rencana perjalanan berubah")
	}
	ps := f.payment
	ps.Bookings.Ledger = hl

	confirmed, err := ps.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	require.ErrorIs(t, cancelErr, domain.ErrNotCancellable)
	require.ErrorIs(t, cancelErr, domain.ErrHoldConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)

	_, state, err := f.ledger.Lookup(ctx, o.booking.HoldID)
	require.NoError(t, err)
	assert.Equal(t, models.HoldConfirmed, state)

	// Retrying the cancel now goes through the paid policy.
	res, err := f.cancel.Cancel(ctx, o.booking.ID, "cust-1", "rencana perjalanan berubah")
	require.NoError(t, err)
	assert.Equal(t, models.RefundMethodOriginal, res.RefundMethod)
	assert.Equal(t, int64(250), res.PenaltyAmount+res.RefundAmount)
}

func TestVerifyPayment_AfterPendingCancelIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t, f.payment, "1B")

	_, err := f.cancel.Cancel(ctx, o.booking.ID, "cust-1", "salah pilih tanggal")
	require.NoError(t, err)

	_, err = f.payment.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	require.ErrorIs(t, err, domain.ErrNotPending)

	_, found, err := f.payments.FindVerified(ctx, o.booking.ID)
	require.NoError(t, err)
	assert.False(t, found)

	got, err := f.booking.Get(ctx, o.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
}

func TestExpire_LosesToVerifyThatConfirmedSeatsFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t, f.payment, "2A")

	hl := &hookLedger{SeatLedger: f.ledger}
	var verifyErr error
	hl.beforeRelease = func() {
		_, verifyErr = f.payment.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	}
	bs := f.booking
	bs.Ledger = hl

	// The payment clock is a second short of expiry; the sweeper's is already past it.
	f.clock.Set(o.booking.ExpiresAt.Add(-time.Second))
	_, err := bs.Expire(ctx, o.booking.ID, o.booking.ExpiresAt)
	require.NoError(t, verifyErr)
	require.ErrorIs(t, err, domain.ErrNotExpirable)

	got, err := f.booking.Get(ctx, o.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)

	seats, err := f.booking.SeatMap(ctx, cheapSchedule, travelDate)
	require.NoError(t, err)
	assert.Equal(t, models.SeatBooked, seats[2].Status)
}

func TestExpire_WinsOverVerifyThatArrivesAfterRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.openOrder(t, f.payment, "2B")

	hl := &hookLedger{SeatLedger: f.ledger}
	var verifyErr error
	hl.afterRelease = func() {
		_, verifyErr = f.payment.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	}
	bs := f.booking
	bs.Ledger = hl

	f.clock.Set(o.booking.ExpiresAt.Add(-time.Second))
	expired, err := bs.Expire(ctx, o.booking.ID, o.booking.ExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, models.BookingExpired, expired.Status)
	require.ErrorIs(t, verifyErr, domain.ErrBookingExpired)

	attempt, err := f.payments.GetByOrderID(ctx, o.order.ProviderOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, attempt.Status)

	seats, err := f.booking.SeatMap(ctx, cheapSchedule, travelDate)
	require.NoError(t, err)
	assert.Equal(t, models.SeatFree, seats[3].Status)
	assert.Equal(t, 0, f.notifier.confirmedCount())
}

func TestInitiatePayment_FinishesVerifiedPaymentInsteadOfOpeningOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ps := f.payment
	ps.Bookings.Bookings = &lostWriteStore{BookingStore: f.bookings, failConfirms: 1}
	o := f.openOrder(t, ps, "1A")

	_, err := ps.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	require.Error(t, err)
	require.True(t, domain.IsInternal(err))

	stuck, err := f.booking.Get(ctx, o.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPendingPayment, stuck.Status)

	_, err = ps.InitiatePayment(ctx, o.booking.ID, "cust-1")
	require.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	paid, ok := derr.Details.(models.Booking)
	require.True(t, ok)
	assert.Equal(t, models.BookingConfirmed, paid.Status)

	got, err := f.booking.Get(ctx, o.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, o.order.PaymentAttemptID, got.ConfirmedAttemptID)
	assert.Equal(t, o.order.PaymentAttemptID, got.PendingAttemptID, "no second order was opened")

	again, err := ps.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	require.NoError(t, err)
	assert.Equal(t, got.Version, again.Version)

	require.Eventually(t, func() bool { return f.notifier.confirmedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestVerifyPayment_ReplayAfterLostWriteSurvivesRepointedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ps := f.payment
	ps.Bookings.Bookings = &lostWriteStore{BookingStore: f.bookings, failConfirms: 1}
	o := f.openOrder(t, ps, "1B")

	_, err := ps.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	require.Error(t, err)

	// An initiate that read the booking before the payment was verified re-points it.
	_, err = f.booking.MarkPendingPayment(ctx, o.booking.ID, "attempt-late")
	require.NoError(t, err)

	confirmed, err := ps.VerifyPayment(ctx, o.order.ProviderOrderID, o.paymentID, o.signature)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, confirmed.Status)
	assert.Equal(t, o.order.PaymentAttemptID, confirmed.ConfirmedAttemptID)
}
