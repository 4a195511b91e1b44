package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"busbooking/internal/domain"
	"busbooking/internal/repositories/memory"
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type takenPNRs map[string]bool

func (t takenPNRs) PNRExists(ctx context.Context, pnr string) (bool, error) {
	return t[pnr], nil
}

type brokenPNRStore struct{}

func (brokenPNRStore) PNRExists(ctx context.Context, pnr string) (bool, error) {
	return false, errors.New("db down")
}

func TestPNRGenerator_ConcurrentCodesAreUnique(t *testing.T) {
	gen := NewPNRGenerator(memory.NewBookingStore())
	const n = 1000

	codes := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, err := gen.Generate(context.Background())
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			codes[i] = code
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, c := range codes {
		if len(c) != PNRLength {
			t.Fatalf("code %q has length %d", c, len(c))
		}
		for _, r := range c {
			if !strings.ContainsRune(PNRAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", c, r)
			}
		}
		if seen[c] {
			t.Fatalf("duplicate code %q", c)
		}
		seen[c] = true
	}
}

func TestPNRGenerator_SkipsPendingCodeUntilReleased(t *testing.T) {
	gen := &PNRGenerator{Rand: zeroReader{}, MaxTries: 3}

	first, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if first != "AAAAAAAA" {
		t.Fatalf("unexpected code %q", first)
	}

	_, err = gen.Generate(context.Background())
	if !errors.Is(err, &domain.Error{Kind: domain.KindPNRExhausted}) {
		t.Fatalf("expected exhausted while pending, got %v", err)
	}

	gen.Release(first)
	if _, err := gen.Generate(context.Background()); err != nil {
		t.Fatalf("generate after release: %v", err)
	}
}

func TestPNRGenerator_StoredCodeIsNeverReissued(t *testing.T) {
	gen := &PNRGenerator{Store: takenPNRs{"AAAAAAAA": true}, Rand: zeroReader{}, MaxTries: 5}
	_, err := gen.Generate(context.Background())
	if domain.KindOf(err) != domain.KindPNRExhausted {
		t.Fatalf("expected pnr exhausted, got %v", err)
	}
}

func TestPNRGenerator_StoreErrorIsInternal(t *testing.T) {
	gen := &PNRGenerator{Store: brokenPNRStore{}}
	_, err := gen.Generate(context.Background())
	if !domain.IsInternal(err) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(gen.issued) != 0 {
		t.Fatalf("failed code should be released, still pending: %v", gen.issued)
	}
}

func TestCreateHeld_PNRsAreUniqueAcrossBookings(t *testing.T) {
	f := newFixture(t)
	seen := map[string]bool{}
	for _, seat := range []string{"1A", "1B", "2A", "2B", "3A", "3B"} {
		b := f.hold(t, "cust-1", 5, seat)
		if seen[b.PNR] {
			t.Fatalf("duplicate pnr %q", b.PNR)
		}
		seen[b.PNR] = true
		exists, err := f.bookings.PNRExists(context.Background(), b.PNR)
		if err != nil || !exists {
			t.Fatalf("pnr %q not stored: %v", b.PNR, err)
		}
	}
	if pending := len(f.booking.PNR.issued); pending != 0 {
		t.Fatalf("persisted codes should leave the pending set, %d left", pending)
	}
}
