package models

import "time"

// PolicyTier is one row of the cancellation penalty table. The tier covers time until
// departure below UpToHours, or at or below it when UpToInclusive. UpToHours 0 is unbounded.
type PolicyTier struct {
	UpToHours      int  `json:"upToHours,omitempty"`
	UpToInclusive  bool `json:"upToInclusive,omitempty"`
	PenaltyPercent int  `json:"penaltyPercent"`
	RefundPercent  int  `json:"refundPercent"`
	Allowed        bool `json:"allowed"`
}

func (t PolicyTier) covers(d time.Duration) bool {
	if t.UpToHours <= 0 {
		return true
	}
	hi := time.Duration(t.UpToHours) * time.Hour
	if t.UpToInclusive {
		return d <= hi
	}
	return d < hi
}

// CancellationPolicy is a penalty table ordered by UpToHours; the first covering tier wins.
type CancellationPolicy struct {
	Tiers []PolicyTier `json:"tiers"`
}

// DefaultCancellationPolicy: no cancellation within 2 hours of departure,
// then 75/50/25/10 percent penalty with steps at the 6, 12 and 24 hour marks.
func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{Tiers: []PolicyTier{
		{UpToHours: 2, UpToInclusive: true, PenaltyPercent: 100, RefundPercent: 0, Allowed: false},
		{UpToHours: 6, PenaltyPercent: 75, RefundPercent: 25, Allowed: true},
		{UpToHours: 12, PenaltyPercent: 50, RefundPercent: 50, Allowed: true},
		{UpToHours: 24, PenaltyPercent: 25, RefundPercent: 75, Allowed: true},
		{PenaltyPercent: 10, RefundPercent: 90, Allowed: true},
	}}
}

// TierFor returns the tier for the time left until departure. Past departures land in the first tier.
func (p CancellationPolicy) TierFor(untilDeparture time.Duration) PolicyTier {
	for _, t := range p.Tiers {
		if t.covers(untilDeparture) {
			return t
		}
	}
	return PolicyTier{PenaltyPercent: 100}
}

// RefundQuote is the outcome of applying the policy to one booking at one instant.
type RefundQuote struct {
	BookingID      string        `json:"bookingId"`
	TotalAmount    int64         `json:"totalAmount"`
	PenaltyAmount  int64         `json:"penaltyAmount"`
	RefundAmount   int64         `json:"refundAmount"`
	PenaltyPercent int           `json:"penaltyPercent"`
	Allowed        bool          `json:"allowed"`
	RefundMethod   string        `json:"refundMethod"`
	HoursUntil     float64       `json:"hoursUntilDeparture"`
	Currency       string        `json:"currency"`
	Status         BookingStatus `json:"status"`
}
