package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"busbooking/internal/domain"
)

// PNRAlphabet leaves out I, O, 0 and 1 so codes survive being read aloud or retyped.
const PNRAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	PNRLength          = 8
	defaultPNRMaxTries = 10
)

// PNRLookup is the slice of the booking store the generator needs.
type PNRLookup interface {
	PNRExists(ctx context.Context, pnr string) (bool, error)
}

// PNRGenerator issues short customer-facing booking codes that are unique across all bookings.
// Codes handed out but not yet persisted are tracked in-process until Release.
type PNRGenerator struct {
	Store    PNRLookup
	Rand     io.Reader
	MaxTries int

	mu     sync.Mutex
	issued map[string]struct{}
}

func NewPNRGenerator(store PNRLookup) *PNRGenerator {
	return &PNRGenerator{Store: store, issued: map[string]struct{}{}}
}

// Generate returns a code that is neither stored nor pending in this process.
func (g *PNRGenerator) Generate(ctx context.Context) (string, error) {
	tries := g.MaxTries
	if tries <= 0 {
		tries = defaultPNRMaxTries
	}
	for i := 0; i < tries; i++ {
		code, err := g.randomCode()
		if err != nil {
			return "", domain.InternalError{Msg: "gagal membuat PNR", Err: err}
		}
		if !g.reserve(code) {
			continue
		}
		if g.Store == nil {
			return code, nil
		}
		exists, err := g.Store.PNRExists(ctx, code)
		if err != nil {
			g.Release(code)
			return "", domain.InternalError{Msg: "gagal cek PNR", Err: err}
		}
		if exists {
			g.Release(code)
			continue
		}
		return code, nil
	}
	return "", domain.NewError(domain.KindPNRExhausted, fmt.Sprintf("PNR unik tidak ditemukan setelah %d percobaan", tries))
}

// Release forgets a reserved code once it is persisted or abandoned.
func (g *PNRGenerator) Release(code string) {
	g.mu.Lock()
	delete(g.issued, code)
	g.mu.Unlock()
}

func (g *PNRGenerator) reserve(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.issued == nil {
		g.issued = map[string]struct{}{}
	}
	if _, taken := g.issued[code]; taken {
		return false
	}
	g.issued[code] = struct{}{}
	return true
}

func (g *PNRGenerator) randomCode() (string, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, PNRLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	// 32 symbols: the low five bits index the alphabet without bias.
	for i, b := range buf {
		buf[i] = PNRAlphabet[b&31]
	}
	return string(buf), nil
}
