package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/utils"

	"github.com/google/uuid"
)

const (
	defaultHoldTTL     = 10 * time.Minute
	defaultMaxSeats    = 6
	maxCASRetries      = 5
	maxPNRCreateTries  = 3
	bookingModule      = "booking"
	errMsgNotFound     = "booking tidak ditemukan"
	errMsgStaleBooking = "booking sedang diubah proses lain, coba lagi"
)

// errUnchanged lets a transition report an idempotent no-op without writing.
var errUnchanged = errors.New("unchanged")

// BookingService owns the booking lifecycle and its interplay with the seat ledger.
type BookingService struct {
	Bookings  BookingStore
	Ledger    SeatLedger
	Schedules ScheduleDirectory
	PNR       *PNRGenerator

	HoldTTL  time.Duration
	MaxSeats int
	Currency string
	Location *time.Location
	Now      func() time.Time
}

// CheckoutRequest is a customer's seat selection.
type CheckoutRequest struct {
	CustomerID string
	ScheduleID int64
	TravelDate string
	SeatIDs    []string
}

func (s BookingService) now() time.Time { return nowOr(s.Now) }

func (s BookingService) holdTTL() time.Duration {
	if s.HoldTTL > 0 {
		return s.HoldTTL
	}
	return defaultHoldTTL
}

func (s BookingService) maxSeats() int {
	if s.MaxSeats > 0 {
		return s.MaxSeats
	}
	return defaultMaxSeats
}

// CreateHeld places a hold on the selected seats and records a Held booking with a fresh PNR.
func (s BookingService) CreateHeld(ctx context.Context, req CheckoutRequest) (models.Booking, error) {
	reqID := utils.RequestIDFromContext(ctx)
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return models.Booking{}, domain.ValidationError{Field: "customer_id", Msg: "customer tidak dikenal"}
	}
	if req.ScheduleID <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "schedule_id", Msg: "id jadwal tidak valid"}
	}
	seats := utils.NormalizeSeats(req.SeatIDs)
	if len(seats) == 0 {
		return models.Booking{}, domain.ValidationError{Field: "seat_ids", Msg: "wajib pilih kursi"}
	}
	if len(seats) > s.maxSeats() {
		return models.Booking{}, domain.ValidationError{Field: "seat_ids", Msg: fmt.Sprintf("maksimal %d kursi per booking", s.maxSeats())}
	}
	if dup := utils.FirstDuplicate(seats); dup != "" {
		return models.Booking{}, domain.ValidationError{Field: "seat_ids", Msg: "kursi tidak boleh duplikat: " + dup}
	}
	if _, err := utils.ParseDate(req.TravelDate, s.Location); err != nil {
		return models.Booking{}, domain.ValidationError{Field: "travel_date", Msg: "format tanggal tidak valid (YYYY-MM-DD)", Err: err}
	}

	schedule, err := s.Schedules.GetSchedule(ctx, req.ScheduleID)
	if err != nil {
		return models.Booking{}, err
	}
	unknown := []string{}
	for _, seat := range seats {
		if !schedule.HasSeat(seat) {
			unknown = append(unknown, seat)
		}
	}
	if len(unknown) > 0 {
		return models.Booking{}, domain.ValidationError{Field: "seat_ids", Msg: "kursi tidak ada di jadwal: " + strings.Join(unknown, ",")}
	}

	now := s.now()
	departureAt, err := schedule.DepartureAt(req.TravelDate, s.Location)
	if err != nil {
		return models.Booking{}, domain.InternalError{Msg: "data jadwal rusak", Err: err}
	}
	if !departureAt.After(now) {
		return models.Booking{}, domain.ValidationError{Field: "travel_date", Msg: "jadwal sudah berangkat"}
	}
	amount := quoteAmount(schedule, seats)
	if amount <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "schedule_id", Msg: "tarif jadwal belum tersedia"}
	}

	key := models.ScheduleKey{ScheduleID: req.ScheduleID, TravelDate: strings.TrimSpace(req.TravelDate)}
	token, err := s.Ledger.PlaceHold(ctx, key, seats, customerID, s.holdTTL(), now)
	if err != nil {
		return models.Booking{}, err
	}

	booking, err := s.persistHeld(ctx, token, departureAt, amount, now)
	if err != nil {
		if rerr := s.Ledger.ReleaseHold(ctx, token); rerr != nil {
			utils.LogError(reqID, bookingModule, "create_held_release", rerr)
		}
		return models.Booking{}, err
	}

	utils.LogEvent(reqID, bookingModule, "create_held", fmt.Sprintf("booking_id=%s pnr=%s key=%s seats=%s", booking.ID, booking.PNR, key, strings.Join(seats, ",")))
	return booking, nil
}

func (s BookingService) persistHeld(ctx context.Context, token models.HoldToken, departureAt time.Time, amount int64, now time.Time) (models.Booking, error) {
	gen := s.PNR
	if gen == nil {
		gen = NewPNRGenerator(s.Bookings)
	}
	for try := 0; try < maxPNRCreateTries; try++ {
		pnr, err := gen.Generate(ctx)
		if err != nil {
			return models.Booking{}, err
		}
		b := models.Booking{
			ID:          uuid.NewString(),
			PNR:         pnr,
			CustomerID:  token.HolderID,
			ScheduleID:  token.Key.ScheduleID,
			TravelDate:  token.Key.TravelDate,
			DepartureAt: departureAt,
			SeatIDs:     append([]string(nil), token.SeatIDs...),
			TotalAmount: amount,
			Currency:    s.Currency,
			Status:      models.BookingHeld,
			HoldID:      token.ID,
			ExpiresAt:   token.ExpiresAt,
			CreatedAt:   now,
			Version:     1,
		}
		err = s.Bookings.Create(ctx, b)
		gen.Release(pnr)
		if errors.Is(err, domain.ErrDuplicate) {
			continue
		}
		if err != nil {
			return models.Booking{}, domain.InternalError{Msg: "gagal menyimpan booking", Err: err}
		}
		return b, nil
	}
	return models.Booking{}, domain.Wrap(domain.KindPNRExhausted, "gagal membuat PNR unik", domain.ErrDuplicate)
}

// Get loads a booking by id.
func (s BookingService) Get(ctx context.Context, id string) (models.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return models.Booking{}, domain.NewError(domain.KindBookingNotFound, errMsgNotFound)
	}
	return s.Bookings.GetByID(ctx, id)
}

// GetForCustomer loads a booking and hides it from anyone but its owner.
func (s BookingService) GetForCustomer(ctx context.Context, id, customerID string) (models.Booking, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if customerID == "" || b.CustomerID != customerID {
		return models.Booking{}, domain.NewError(domain.KindBookingNotFound, errMsgNotFound)
	}
	return b, nil
}

// QuoteAmount recomputes the price of seats on a schedule from reference data.
func (s BookingService) QuoteAmount(ctx context.Context, scheduleID int64, seats []string) (int64, error) {
	schedule, err := s.Schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	return quoteAmount(schedule, seats), nil
}

func quoteAmount(schedule models.Schedule, seats []string) int64 {
	var total int64
	for _, seat := range seats {
		total += schedule.FareFor(seat)
	}
	return total
}

// MarkPendingPayment points the booking at a new payment attempt. Re-pointing a
// PendingPayment booking is allowed so a customer can retry with a fresh order.
func (s BookingService) MarkPendingPayment(ctx context.Context, id, attemptID string) (models.Booking, error) {
	now := s.now()
	return s.transition(ctx, id, func(b *models.Booking) error {
		switch b.Status {
		case models.BookingHeld, models.BookingPendingPayment:
		case models.BookingExpired:
			return domain.NewError(domain.KindBookingExpired, "booking sudah kedaluwarsa")
		default:
			return domain.NewError(domain.KindNotHeld, fmt.Sprintf("booking berstatus %s", b.Status))
		}
		if b.Status == models.BookingPendingPayment && b.PendingAttemptID == attemptID {
			return errUnchanged
		}
		if !now.Before(b.ExpiresAt) {
			return domain.NewError(domain.KindBookingExpired, "waktu pembayaran habis")
		}
		if err := moveTo(b, models.BookingPendingPayment, now); err != nil {
			return err
		}
		b.PendingAttemptID = attemptID
		return nil
	})
}

// Confirm finalizes a PendingPayment booking paid through attemptID.
// Repeating it with the same attempt is a no-op; any other attempt is rejected once Confirmed.
func (s BookingService) Confirm(ctx context.Context, id, attemptID string) (models.Booking, error) {
	return s.confirm(ctx, id, attemptID, false)
}

// ConfirmVerified finalizes the booking with the attempt the payment store holds as its
// single Verified attempt, even when a later initiate re-pointed PendingAttemptID.
func (s BookingService) ConfirmVerified(ctx context.Context, id, attemptID string) (models.Booking, error) {
	return s.confirm(ctx, id, attemptID, true)
}

func (s BookingService) confirm(ctx context.Context, id, attemptID string, verified bool) (models.Booking, error) {
	now := s.now()
	return s.transition(ctx, id, func(b *models.Booking) error {
		switch b.Status {
		case models.BookingConfirmed:
			if b.ConfirmedAttemptID == attemptID {
				return errUnchanged
			}
			return domain.NewError(domain.KindAlreadyConfirmed, "booking sudah dikonfirmasi dengan pembayaran lain")
		case models.BookingPendingPayment:
			if b.PendingAttemptID != attemptID && !verified {
				return domain.NewError(domain.KindWrongAttempt, "pembayaran bukan untuk percobaan aktif booking ini")
			}
		case models.BookingExpired:
			return domain.NewError(domain.KindBookingExpired, "booking sudah kedaluwarsa")
		default:
			return domain.NewError(domain.KindNotPending, fmt.Sprintf("booking berstatus %s", b.Status))
		}
		if err := moveTo(b, models.BookingConfirmed, now); err != nil {
			return err
		}
		b.ConfirmedAttemptID = attemptID
		return nil
	})
}

// ConfirmSeats converts the booking's hold into a permanent allocation.
func (s BookingService) ConfirmSeats(ctx context.Context, b models.Booking) error {
	return s.Ledger.ConfirmHold(ctx, b.HoldToken(), s.now())
}

// Expire moves a Held/PendingPayment booking past its TTL to Expired and frees its seats.
// The hold is released first and only while still Active, so a payment that already
// confirmed the seats wins and the booking is reported as not expirable.
func (s BookingService) Expire(ctx context.Context, id string, now time.Time) (models.Booking, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if err := checkExpirable(current, now); err != nil {
		return models.Booking{}, err
	}
	if current.HoldID != "" {
		if err := s.Ledger.ReleaseActiveHold(ctx, current.HoldToken()); err != nil {
			if errors.Is(err, domain.ErrHoldConfirmed) {
				return models.Booking{}, domain.Wrap(domain.KindNotExpirable, "kursi sudah dikonfirmasi pembayaran", err)
			}
			return models.Booking{}, err
		}
	}

	b, err := s.transition(ctx, id, func(b *models.Booking) error {
		if err := checkExpirable(*b, now); err != nil {
			return err
		}
		return moveTo(b, models.BookingExpired, now)
	})
	if err != nil {
		return models.Booking{}, err
	}
	utils.LogEvent(utils.RequestIDFromContext(ctx), bookingModule, "expire", "booking_id="+b.ID)
	return b, nil
}

func checkExpirable(b models.Booking, now time.Time) error {
	if b.Status != models.BookingHeld && b.Status != models.BookingPendingPayment {
		return domain.NewError(domain.KindNotExpirable, fmt.Sprintf("booking berstatus %s", b.Status))
	}
	if now.Before(b.ExpiresAt) {
		return domain.NewError(domain.KindNotExpirable, "booking belum melewati batas waktu")
	}
	return nil
}

// Cancel records a cancellation on a Confirmed or PendingPayment booking and frees its seats.
// expected guards against the status changing between the refund decision and the write.
func (s BookingService) Cancel(ctx context.Context, id string, expected models.BookingStatus, c models.Cancellation) (models.Booking, error) {
	now := s.now()
	if expected == models.BookingPendingPayment {
		// An unpaid cancel must not race a verification that already confirmed the seats.
		current, err := s.Get(ctx, id)
		if err != nil {
			return models.Booking{}, err
		}
		if current.HoldID != "" {
			if err := s.Ledger.ReleaseActiveHold(ctx, current.HoldToken()); err != nil {
				if errors.Is(err, domain.ErrHoldConfirmed) {
					return models.Booking{}, domain.Wrap(domain.KindNotCancellable, "pembayaran sedang diproses, coba lagi sebentar", err)
				}
				return models.Booking{}, err
			}
		}
	}
	b, err := s.transition(ctx, id, func(b *models.Booking) error {
		if b.Status != models.BookingConfirmed && b.Status != models.BookingPendingPayment {
			return domain.NewError(domain.KindNotCancellable, fmt.Sprintf("booking berstatus %s tidak bisa dibatalkan", b.Status))
		}
		if b.Status != expected {
			return domain.NewError(domain.KindInvalidTransition, errMsgStaleBooking)
		}
		if err := moveTo(b, models.BookingCancelled, now); err != nil {
			return err
		}
		cancellation := c
		b.Cancellation = &cancellation
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}
	s.ReleaseSeats(ctx, b)
	return b, nil
}

// ReleaseSeats returns the booking's seats to Free. Failures are logged; the call is safe to repeat.
func (s BookingService) ReleaseSeats(ctx context.Context, b models.Booking) {
	if b.HoldID == "" {
		return
	}
	if err := s.Ledger.ReleaseHold(ctx, b.HoldToken()); err != nil {
		utils.LogError(utils.RequestIDFromContext(ctx), bookingModule, "release_seats", fmt.Errorf("booking_id=%s: %w", b.ID, err))
	}
}

// SeatMap merges the schedule's seat list with ledger occupancy for one travel date.
func (s BookingService) SeatMap(ctx context.Context, scheduleID int64, travelDate string) ([]models.SeatState, error) {
	if _, err := utils.ParseDate(travelDate, s.Location); err != nil {
		return nil, domain.ValidationError{Field: "date", Msg: "format tanggal tidak valid (YYYY-MM-DD)", Err: err}
	}
	schedule, err := s.Schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	occupied, err := s.Ledger.SeatMap(ctx, models.ScheduleKey{ScheduleID: scheduleID, TravelDate: strings.TrimSpace(travelDate)})
	if err != nil {
		return nil, err
	}
	out := make([]models.SeatState, 0, len(schedule.Seats))
	for _, seat := range schedule.Seats {
		st, ok := occupied[seat]
		if !ok {
			st = models.SeatState{SeatID: seat, Status: models.SeatFree}
		}
		out = append(out, st)
	}
	return out, nil
}

// transition applies fn to the latest booking and writes it with compare-and-swap,
// retrying when a concurrent writer bumped the version first.
func (s BookingService) transition(ctx context.Context, id string, fn func(b *models.Booking) error) (models.Booking, error) {
	for try := 0; try < maxCASRetries; try++ {
		current, err := s.Get(ctx, id)
		if err != nil {
			return models.Booking{}, err
		}
		next := current
		next.SeatIDs = append([]string(nil), current.SeatIDs...)
		if err := fn(&next); err != nil {
			if errors.Is(err, errUnchanged) {
				return current, nil
			}
			return current, err
		}
		if err := s.Bookings.Update(ctx, next); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				continue
			}
			return current, domain.InternalError{Msg: "gagal menyimpan booking", Err: err}
		}
		next.Version++
		return next, nil
	}
	return models.Booking{}, domain.Wrap(domain.KindInvalidTransition, errMsgStaleBooking, domain.ErrStaleWrite)
}

// moveTo is the single place a status changes; it rejects any step outside the lifecycle.
func moveTo(b *models.Booking, to models.BookingStatus, now time.Time) error {
	if !b.Status.CanTransition(to) {
		return domain.NewError(domain.KindInvalidTransition, fmt.Sprintf("transisi %s -> %s tidak diizinkan", b.Status, to))
	}
	b.Status = to
	at := now
	switch to {
	case models.BookingConfirmed:
		b.ConfirmedAt = &at
	case models.BookingCancelled:
		b.CancelledAt = &at
	case models.BookingExpired:
		b.ExpiredAt = &at
	}
	return nil
}
