package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
)

// BookingStore mirrors the bookings table: unique PNR and hold, compare-and-swap on Version.
type BookingStore struct {
	mu     sync.RWMutex
	byID   map[string]models.Booking
	byPNR  map[string]string
	byHold map[string]string
}

func NewBookingStore() *BookingStore {
	return &BookingStore{
		byID:   map[string]models.Booking{},
		byPNR:  map[string]string{},
		byHold: map[string]string{},
	}
}

func (s *BookingStore) Create(ctx context.Context, b models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[b.ID]; ok {
		return fmt.Errorf("booking %s: %w", b.ID, domain.ErrDuplicate)
	}
	if _, ok := s.byPNR[b.PNR]; ok {
		return fmt.Errorf("pnr %s: %w", b.PNR, domain.ErrDuplicate)
	}
	if _, ok := s.byHold[b.HoldID]; ok && b.HoldID != "" {
		return fmt.Errorf("hold %s: %w", b.HoldID, domain.ErrDuplicate)
	}
	if b.Version <= 0 {
		b.Version = 1
	}
	s.byID[b.ID] = cloneBooking(b)
	s.byPNR[b.PNR] = b.ID
	if b.HoldID != "" {
		s.byHold[b.HoldID] = b.ID
	}
	return nil
}

func (s *BookingStore) GetByID(ctx context.Context, id string) (models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	if !ok {
		return models.Booking{}, domain.NewError(domain.KindBookingNotFound, "booking tidak ditemukan")
	}
	return cloneBooking(b), nil
}

func (s *BookingStore) GetByHoldID(ctx context.Context, holdID string) (models.Booking, error) {
	s.mu.RLock()
	id, ok := s.byHold[holdID]
	s.mu.RUnlock()
	if !ok {
		return models.Booking{}, domain.NewError(domain.KindBookingNotFound, "booking tidak ditemukan")
	}
	return s.GetByID(ctx, id)
}

func (s *BookingStore) PNRExists(ctx context.Context, pnr string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPNR[pnr]
	return ok, nil
}

func (s *BookingStore) Update(ctx context.Context, b models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[b.ID]
	if !ok {
		return domain.NewError(domain.KindBookingNotFound, "booking tidak ditemukan")
	}
	if cur.Version != b.Version {
		return fmt.Errorf("booking %s version %d: %w", b.ID, b.Version, domain.ErrStaleWrite)
	}
	next := cloneBooking(b)
	next.Version = cur.Version + 1
	// Identity, seats and price are fixed at creation.
	next.PNR, next.HoldID, next.SeatIDs, next.TotalAmount = cur.PNR, cur.HoldID, cur.SeatIDs, cur.TotalAmount
	s.byID[b.ID] = next
	return nil
}

func (s *BookingStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Booking{}
	for _, b := range s.byID {
		if b.Status != models.BookingHeld && b.Status != models.BookingPendingPayment {
			continue
		}
		if now.Before(b.ExpiresAt) {
			continue
		}
		out = append(out, cloneBooking(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneBooking(b models.Booking) models.Booking {
	b.SeatIDs = append([]string(nil), b.SeatIDs...)
	if b.Cancellation != nil {
		c := *b.Cancellation
		b.Cancellation = &c
	}
	return b
}
