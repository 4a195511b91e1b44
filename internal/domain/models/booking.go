package models

import "time"

// BookingStatus is the tagged lifecycle state of a booking.
type BookingStatus string

const (
	BookingHeld           BookingStatus = "held"
	BookingPendingPayment BookingStatus = "pending_payment"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingCancelled      BookingStatus = "cancelled"
	BookingExpired        BookingStatus = "expired"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingHeld:           {BookingPendingPayment, BookingExpired},
	BookingPendingPayment: {BookingPendingPayment, BookingConfirmed, BookingExpired, BookingCancelled},
	BookingConfirmed:      {BookingCancelled},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Booking is the aggregate owned by the booking state machine.
type Booking struct {
	ID          string        `json:"bookingId"`
	PNR         string        `json:"pnr"`
	CustomerID  string        `json:"customerId"`
	ScheduleID  int64         `json:"scheduleId"`
	TravelDate  string        `json:"travelDate"`
	DepartureAt time.Time     `json:"departureAt"`
	SeatIDs     []string      `json:"seatIds"`
	TotalAmount int64         `json:"totalAmount"`
	Currency    string        `json:"currency"`
	Status      BookingStatus `json:"status"`

	HoldID             string `json:"-"`
	PendingAttemptID   string `json:"-"`
	ConfirmedAttemptID string `json:"-"`

	ExpiresAt   time.Time  `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	ExpiredAt   *time.Time `json:"expiredAt,omitempty"`

	Cancellation *Cancellation `json:"cancellation,omitempty"`

	// Version is bumped on every successful write; writers compare-and-swap on it.
	Version int64 `json:"-"`
}

// Key returns the seat map this booking's seats live on.
func (b Booking) Key() ScheduleKey {
	return ScheduleKey{ScheduleID: b.ScheduleID, TravelDate: b.TravelDate}
}

// HoldToken rebuilds the hold receipt recorded on the booking.
func (b Booking) HoldToken() HoldToken {
	return HoldToken{
		ID:        b.HoldID,
		Key:       b.Key(),
		SeatIDs:   append([]string(nil), b.SeatIDs...),
		HolderID:  b.CustomerID,
		ExpiresAt: b.ExpiresAt,
	}
}

// Cancellation records the outcome of a processed cancellation.
type Cancellation struct {
	Reason        string    `json:"reason"`
	PenaltyAmount int64     `json:"penaltyAmount"`
	RefundAmount  int64     `json:"refundAmount"`
	RefundMethod  string    `json:"refundMethod"`
	ProcessedAt   time.Time `json:"processedAt"`
}

// CancellationResult is returned to the caller of a cancellation.
type CancellationResult struct {
	BookingID     string    `json:"bookingId"`
	PenaltyAmount int64     `json:"penaltyAmount"`
	RefundAmount  int64     `json:"refundAmount"`
	RefundMethod  string    `json:"refundMethod"`
	ProcessedAt   time.Time `json:"processedAt"`
}

const (
	RefundMethodOriginal = "original_payment"
	RefundMethodNone     = "none"
)
