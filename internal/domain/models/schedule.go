package models

import (
	"fmt"
	"strings"
	"time"
)

// Schedule is read-only reference data owned by the fleet/schedule service.
type Schedule struct {
	ID            int64
	RouteFrom     string
	RouteTo       string
	DepartureTime string // HH:MM
	Seats         []string
	BaseFare      int64
	SeatFares     map[string]int64
}

// HasSeat reports whether seat is part of the schedule's seat map.
func (s Schedule) HasSeat(seat string) bool {
	for _, code := range s.Seats {
		if code == seat {
			return true
		}
	}
	return false
}

// FareFor returns the fare of one seat, falling back to the base fare.
func (s Schedule) FareFor(seat string) int64 {
	if fare, ok := s.SeatFares[seat]; ok && fare > 0 {
		return fare
	}
	return s.BaseFare
}

// DepartureAt combines a travel date with the schedule's departure time in loc.
func (s Schedule) DepartureAt(travelDate string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	hhmm := strings.TrimSpace(s.DepartureTime)
	if len(hhmm) > 5 {
		hhmm = hhmm[:5]
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(travelDate)+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("jadwal %d: waktu berangkat tidak valid: %w", s.ID, err)
	}
	return t, nil
}

// Customer is the subset of customer profile used for checkout prefill.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}
