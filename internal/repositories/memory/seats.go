// Package memory holds in-process stores used for local runs (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"busbooking/internal/domain"
	"busbooking/internal/domain/models"

	"github.com/google/uuid"
)

type seatEntry struct {
	status    models.SeatStatus
	holdID    string
	expiresAt time.Time
}

type hold struct {
	token models.HoldToken
	state models.HoldState
}

// seatMap is one (schedule, travel date); mu serializes every change to it.
type seatMap struct {
	mu    sync.Mutex
	seats map[string]seatEntry
	holds map[string]*hold
}

// SeatLedger keeps seat maps in memory with one mutex per (schedule, travel date).
type SeatLedger struct {
	// Now is the clock SeatMap uses to hide lapsed holds; time.Now when nil.
	Now func() time.Time

	mu        sync.Mutex
	maps      map[models.ScheduleKey]*seatMap
	holdIndex map[string]models.ScheduleKey
}

func NewSeatLedger() *SeatLedger {
	return &SeatLedger{
		maps:      map[models.ScheduleKey]*seatMap{},
		holdIndex: map[string]models.ScheduleKey{},
	}
}

func (l *SeatLedger) seatMap(key models.ScheduleKey) *seatMap {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.maps[key]
	if !ok {
		m = &seatMap{seats: map[string]seatEntry{}, holds: map[string]*hold{}}
		l.maps[key] = m
	}
	return m
}

func (l *SeatLedger) keyOf(holdID string) (models.ScheduleKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.holdIndex[holdID]
	return k, ok
}

func (l *SeatLedger) PlaceHold(ctx context.Context, key models.ScheduleKey, seatIDs []string, holderID string, ttl time.Duration, now time.Time) (models.HoldToken, error) {
	if err := ctx.Err(); err != nil {
		return models.HoldToken{}, err
	}
	if len(seatIDs) == 0 {
		return models.HoldToken{}, domain.ValidationError{Field: "seat_ids", Msg: "wajib pilih kursi"}
	}
	m := l.seatMap(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	conflicts := []string{}
	for _, s := range seatIDs {
		e, ok := m.seats[s]
		if !ok {
			continue
		}
		// A lapsed hold can no longer be confirmed, so its seats are up for grabs.
		if e.status == models.SeatHeld && !now.Before(e.expiresAt) {
			continue
		}
		conflicts = append(conflicts, s)
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return models.HoldToken{}, domain.SeatUnavailable(conflicts)
	}

	token := models.HoldToken{
		ID:        uuid.NewString(),
		Key:       key,
		SeatIDs:   append([]string(nil), seatIDs...),
		HolderID:  holderID,
		ExpiresAt: now.Add(ttl),
	}
	for _, s := range seatIDs {
		m.seats[s] = seatEntry{status: models.SeatHeld, holdID: token.ID, expiresAt: token.ExpiresAt}
	}
	m.holds[token.ID] = &hold{token: token, state: models.HoldActive}

	l.mu.Lock()
	l.holdIndex[token.ID] = key
	l.mu.Unlock()
	return cloneToken(token), nil
}

func (l *SeatLedger) ConfirmHold(ctx context.Context, token models.HoldToken, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := l.keyOf(token.ID)
	if !ok {
		return domain.NewError(domain.KindHoldNotFound, "hold kursi tidak ditemukan")
	}
	m := l.seatMap(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.holds[token.ID]
	switch h.state {
	case models.HoldConfirmed:
		return nil
	case models.HoldReleased:
		return domain.NewError(domain.KindHoldNotFound, "hold kursi sudah dilepas")
	}
	if h.token.Expired(now) {
		return domain.NewError(domain.KindHoldExpired, "hold kursi sudah kedaluwarsa")
	}
	for _, s := range h.token.SeatIDs {
		if e := m.seats[s]; e.holdID != h.token.ID || e.status != models.SeatHeld {
			return domain.NewError(domain.KindHoldExpired, "sebagian kursi hold sudah dilepas")
		}
	}
	for _, s := range h.token.SeatIDs {
		m.seats[s] = seatEntry{status: models.SeatBooked, holdID: h.token.ID}
	}
	h.state = models.HoldConfirmed
	return nil
}

func (l *SeatLedger) ReleaseHold(ctx context.Context, token models.HoldToken) error {
	key, ok := l.keyOf(token.ID)
	if !ok {
		return nil
	}
	m := l.seatMap(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(token.ID)
	return nil
}

func (l *SeatLedger) ReleaseActiveHold(ctx context.Context, token models.HoldToken) error {
	key, ok := l.keyOf(token.ID)
	if !ok {
		return nil
	}
	m := l.seatMap(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.holds[token.ID].state {
	case models.HoldConfirmed:
		return domain.NewError(domain.KindHoldConfirmed, "kursi sudah dikonfirmasi pembayaran")
	case models.HoldActive:
		m.release(token.ID)
	}
	return nil
}

// release frees the seats still owned by holdID. Caller holds m.mu.
func (m *seatMap) release(holdID string) {
	h, ok := m.holds[holdID]
	if !ok {
		return
	}
	for _, s := range h.token.SeatIDs {
		if e, ok := m.seats[s]; ok && e.holdID == holdID {
			delete(m.seats, s)
		}
	}
	h.state = models.HoldReleased
}

func (l *SeatLedger) SweepExpired(ctx context.Context, now time.Time) iter.Seq2[models.HoldToken, error] {
	return func(yield func(models.HoldToken, error) bool) {
		l.mu.Lock()
		keys := make([]models.ScheduleKey, 0, len(l.maps))
		for k := range l.maps {
			keys = append(keys, k)
		}
		l.mu.Unlock()

		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				yield(models.HoldToken{}, err)
				return
			}
			for _, t := range l.sweepKey(k, now) {
				if !yield(t, nil) {
					return
				}
			}
		}
	}
}

func (l *SeatLedger) sweepKey(key models.ScheduleKey, now time.Time) []models.HoldToken {
	m := l.seatMap(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.HoldToken{}
	for id, h := range m.holds {
		if h.state != models.HoldActive || !h.token.Expired(now) {
			continue
		}
		m.release(id)
		out = append(out, cloneToken(h.token))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

func (l *SeatLedger) Lookup(ctx context.Context, holdID string) (models.HoldToken, models.HoldState, error) {
	key, ok := l.keyOf(holdID)
	if !ok {
		return models.HoldToken{}, "", domain.NewError(domain.KindHoldNotFound, "hold kursi tidak ditemukan")
	}
	m := l.seatMap(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.holds[holdID]
	return cloneToken(h.token), h.state, nil
}

func (l *SeatLedger) SeatMap(ctx context.Context, key models.ScheduleKey) (map[string]models.SeatState, error) {
	m := l.seatMap(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	out := make(map[string]models.SeatState, len(m.seats))
	for code, e := range m.seats {
		st := models.SeatState{SeatID: code, Status: e.status, HoldID: e.holdID}
		if e.status == models.SeatHeld {
			if !now.Before(e.expiresAt) {
				continue
			}
			exp := e.expiresAt
			st.ExpiresAt = &exp
		}
		out[code] = st
	}
	return out, nil
}

func cloneToken(t models.HoldToken) models.HoldToken {
	t.SeatIDs = append([]string(nil), t.SeatIDs...)
	return t
}
