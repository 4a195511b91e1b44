package models

import (
	"fmt"
	"time"
)

// SeatStatus is the occupancy state of one seat on one (schedule, travel date).
type SeatStatus string

const (
	SeatFree   SeatStatus = "free"
	SeatHeld   SeatStatus = "held"
	SeatBooked SeatStatus = "booked"
)

// HoldState tracks the lifecycle of a hold token.
type HoldState string

const (
	HoldActive    HoldState = "active"
	HoldConfirmed HoldState = "confirmed"
	HoldReleased  HoldState = "released"
)

// ScheduleKey identifies one seat map: a schedule running on a specific travel date.
type ScheduleKey struct {
	ScheduleID int64
	TravelDate string // YYYY-MM-DD
}

func (k ScheduleKey) String() string {
	return fmt.Sprintf("%d@%s", k.ScheduleID, k.TravelDate)
}

// HoldToken is the receipt of a successful PlaceHold.
type HoldToken struct {
	ID        string      `json:"holdId"`
	Key       ScheduleKey `json:"-"`
	SeatIDs   []string    `json:"seatIds"`
	HolderID  string      `json:"holderId"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Expired reports whether the hold is past its TTL at now.
// A hold is confirmable strictly before ExpiresAt and sweepable at or after it.
func (h HoldToken) Expired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// SeatState is one entry of a seat map as shown to the seat picker.
type SeatState struct {
	SeatID    string     `json:"seatId"`
	Status    SeatStatus `json:"status"`
	HoldID    string     `json:"-"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
