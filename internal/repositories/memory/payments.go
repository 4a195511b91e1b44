package memory

import (
	"context"
	"fmt"
	"sync"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
)

// PaymentStore mirrors payment_attempts: unique order id and at most one Verified attempt per booking.
type PaymentStore struct {
	mu       sync.RWMutex
	byID     map[string]models.PaymentAttempt
	byOrder  map[string]string
	verified map[string]string
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		byID:     map[string]models.PaymentAttempt{},
		byOrder:  map[string]string{},
		verified: map[string]string{},
	}
}

func (s *PaymentStore) Create(ctx context.Context, a models.PaymentAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; ok {
		return fmt.Errorf("payment attempt %s: %w", a.ID, domain.ErrDuplicate)
	}
	if _, ok := s.byOrder[a.ProviderOrderID]; ok {
		return fmt.Errorf("order %s: %w", a.ProviderOrderID, domain.ErrDuplicate)
	}
	s.byID[a.ID] = a
	s.byOrder[a.ProviderOrderID] = a.ID
	return nil
}

func (s *PaymentStore) GetByOrderID(ctx context.Context, providerOrderID string) (models.PaymentAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOrder[providerOrderID]
	if !ok {
		return models.PaymentAttempt{}, domain.NewError(domain.KindOrderNotFound, "order pembayaran tidak ditemukan")
	}
	return s.byID[id], nil
}

func (s *PaymentStore) FindVerified(ctx context.Context, bookingID string) (models.PaymentAttempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.verified[bookingID]
	if !ok {
		return models.PaymentAttempt{}, false, nil
	}
	return s.byID[id], true, nil
}

func (s *PaymentStore) Update(ctx context.Context, a models.PaymentAttempt, from models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[a.ID]
	if !ok {
		return domain.NewError(domain.KindOrderNotFound, "order pembayaran tidak ditemukan")
	}
	if cur.Status != from {
		return fmt.Errorf("payment attempt %s status %s: %w", a.ID, from, domain.ErrStaleWrite)
	}
	if a.Status == models.PaymentVerified {
		if other, ok := s.verified[cur.BookingID]; ok && other != a.ID {
			return fmt.Errorf("booking %s: %w", cur.BookingID, domain.ErrDuplicate)
		}
		s.verified[cur.BookingID] = a.ID
	}
	a.BookingID, a.ProviderOrderID = cur.BookingID, cur.ProviderOrderID
	s.byID[a.ID] = a
	return nil
}
