package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	intconfig "busbooking/internal/config"
	intdb "busbooking/internal/db"
	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/utils"

	"github.com/google/uuid"
)

const sweepBatch = 100

// SeatRepository is the MySQL seat ledger. Every mutation of one (schedule, travel date)
// runs in a transaction holding that key's seat_map_locks row, so holds on the same
// trip are applied one at a time while different trips proceed in parallel.
type SeatRepository struct {
	DB *sql.DB
}

func (r SeatRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func lockKey(ctx context.Context, tx *sql.Tx, key models.ScheduleKey) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO seat_map_locks (schedule_id, travel_date) VALUES (?,?)`,
		key.ScheduleID, key.TravelDate); err != nil {
		return fmt.Errorf("lock seat map %s: %w", key, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT schedule_id FROM seat_map_locks WHERE schedule_id=? AND travel_date=? FOR UPDATE`,
		key.ScheduleID, key.TravelDate).Scan(&id); err != nil {
		return fmt.Errorf("lock seat map %s: %w", key, err)
	}
	return nil
}

func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// PlaceHold marks every requested seat Held, or nothing when any of them is taken.
// A Held seat whose hold already lapsed counts as free; that hold can no longer be confirmed.
func (r SeatRepository) PlaceHold(ctx context.Context, key models.ScheduleKey, seatIDs []string, holderID string, ttl time.Duration, now time.Time) (models.HoldToken, error) {
	if len(seatIDs) == 0 {
		return models.HoldToken{}, domain.ValidationError{Field: "seat_ids", Msg: "wajib pilih kursi"}
	}
	token := models.HoldToken{
		ID:        uuid.NewString(),
		Key:       key,
		SeatIDs:   append([]string(nil), seatIDs...),
		HolderID:  holderID,
		ExpiresAt: now.Add(ttl).UTC(),
	}

	err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if err := lockKey(ctx, tx, key); err != nil {
			return err
		}

		args := []any{key.ScheduleID, key.TravelDate}
		for _, s := range seatIDs {
			args = append(args, s)
		}
		rows, err := tx.QueryContext(ctx, `
			SELECT seat_code, status, expires_at FROM schedule_seats
			WHERE schedule_id=? AND travel_date=? AND seat_code IN (`+inPlaceholders(len(seatIDs))+`)`, args...)
		if err != nil {
			return err
		}
		conflicts := []string{}
		stale := []string{}
		for rows.Next() {
			var code, status string
			var exp sql.NullTime
			if err := rows.Scan(&code, &status, &exp); err != nil {
				rows.Close()
				return err
			}
			if models.SeatStatus(status) == models.SeatHeld && exp.Valid && !now.Before(exp.Time) {
				stale = append(stale, code)
				continue
			}
			conflicts = append(conflicts, code)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(conflicts) > 0 {
			sort.Strings(conflicts)
			return domain.SeatUnavailable(conflicts)
		}

		if len(stale) > 0 {
			delArgs := []any{key.ScheduleID, key.TravelDate}
			for _, s := range stale {
				delArgs = append(delArgs, s)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_seats
				WHERE schedule_id=? AND travel_date=? AND seat_code IN (`+inPlaceholders(len(stale))+`)`, delArgs...); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO seat_holds (id, schedule_id, travel_date, holder_id, seat_ids, state, expires_at, created_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			token.ID, key.ScheduleID, key.TravelDate, holderID, strings.Join(seatIDs, ","),
			string(models.HoldActive), token.ExpiresAt, now.UTC()); err != nil {
			return err
		}
		for _, s := range seatIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO schedule_seats (schedule_id, travel_date, seat_code, status, hold_id, expires_at)
				VALUES (?,?,?,?,?,?)`,
				key.ScheduleID, key.TravelDate, s, string(models.SeatHeld), token.ID, token.ExpiresAt); err != nil {
				if intdb.IsDuplicateKey(err) {
					return domain.SeatUnavailable([]string{s})
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.HoldToken{}, err
	}
	return token, nil
}

type holdRow struct {
	token models.HoldToken
	state models.HoldState
}

func (r SeatRepository) readHold(ctx context.Context, q intdb.Querier, holdID string, forUpdate bool) (holdRow, error) {
	query := `SELECT id, schedule_id, travel_date, holder_id, seat_ids, state, expires_at FROM seat_holds WHERE id=?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		h            holdRow
		seats, state string
	)
	err := q.QueryRowContext(ctx, query, holdID).Scan(
		&h.token.ID, &h.token.Key.ScheduleID, &h.token.Key.TravelDate, &h.token.HolderID, &seats, &state, &h.token.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return holdRow{}, domain.NewError(domain.KindHoldNotFound, "hold kursi tidak ditemukan")
	}
	if err != nil {
		return holdRow{}, err
	}
	h.token.SeatIDs = utils.SplitSeatList(seats)
	h.state = models.HoldState(state)
	return h, nil
}

// Lookup returns the hold and its current state.
func (r SeatRepository) Lookup(ctx context.Context, holdID string) (models.HoldToken, models.HoldState, error) {
	db := r.db()
	if db == nil {
		return models.HoldToken{}, "", fmt.Errorf("db tidak tersedia")
	}
	h, err := r.readHold(ctx, db, holdID, false)
	if err != nil {
		return models.HoldToken{}, "", err
	}
	return h.token, h.state, nil
}

// ConfirmHold turns the hold's seats into Booked. It only succeeds strictly before expiry.
func (r SeatRepository) ConfirmHold(ctx context.Context, token models.HoldToken, now time.Time) error {
	return intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if err := lockKey(ctx, tx, token.Key); err != nil {
			return err
		}
		h, err := r.readHold(ctx, tx, token.ID, true)
		if err != nil {
			return err
		}
		switch h.state {
		case models.HoldConfirmed:
			return nil
		case models.HoldReleased:
			return domain.NewError(domain.KindHoldNotFound, "hold kursi sudah dilepas")
		}
		if h.token.Expired(now) {
			return domain.NewError(domain.KindHoldExpired, "hold kursi sudah kedaluwarsa")
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE schedule_seats SET status=?, expires_at=NULL WHERE hold_id=? AND status=?`,
			string(models.SeatBooked), h.token.ID, string(models.SeatHeld))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if int(n) != len(h.token.SeatIDs) {
			return domain.NewError(domain.KindHoldExpired, "sebagian kursi hold sudah dilepas")
		}
		_, err = tx.ExecContext(ctx, `UPDATE seat_holds SET state=? WHERE id=?`, string(models.HoldConfirmed), h.token.ID)
		return err
	})
}

// ReleaseHold frees whatever seats the hold still owns. Unknown or released holds are a no-op.
func (r SeatRepository) ReleaseHold(ctx context.Context, token models.HoldToken) error {
	return intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if err := lockKey(ctx, tx, token.Key); err != nil {
			return err
		}
		h, err := r.readHold(ctx, tx, token.ID, true)
		if errors.Is(err, domain.ErrHoldNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return releaseLocked(ctx, tx, h.token.ID)
	})
}

// ReleaseActiveHold frees the hold only while it is Active; a Confirmed hold is refused.
func (r SeatRepository) ReleaseActiveHold(ctx context.Context, token models.HoldToken) error {
	return intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if err := lockKey(ctx, tx, token.Key); err != nil {
			return err
		}
		h, err := r.readHold(ctx, tx, token.ID, true)
		if errors.Is(err, domain.ErrHoldNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		switch h.state {
		case models.HoldConfirmed:
			return domain.NewError(domain.KindHoldConfirmed, "kursi sudah dikonfirmasi pembayaran")
		case models.HoldActive:
			return releaseLocked(ctx, tx, h.token.ID)
		}
		return nil
	})
}

func releaseLocked(ctx context.Context, tx *sql.Tx, holdID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_seats WHERE hold_id=?`, holdID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE seat_holds SET state=? WHERE id=?`, string(models.HoldReleased), holdID)
	return err
}

// SweepExpired yields expired active holds in expiry order, releasing each one before it is yielded.
// Stopping early is safe; the next call picks up where this one left off.
func (r SeatRepository) SweepExpired(ctx context.Context, now time.Time) iter.Seq2[models.HoldToken, error] {
	return func(yield func(models.HoldToken, error) bool) {
		db := r.db()
		if db == nil {
			yield(models.HoldToken{}, fmt.Errorf("db tidak tersedia"))
			return
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(models.HoldToken{}, err)
				return
			}
			batch, err := r.expiredBatch(ctx, db, now)
			if err != nil {
				yield(models.HoldToken{}, err)
				return
			}
			for _, t := range batch {
				released, err := r.releaseIfExpired(ctx, t, now)
				if err != nil {
					yield(models.HoldToken{}, err)
					return
				}
				if released && !yield(t, nil) {
					return
				}
			}
			if len(batch) < sweepBatch {
				return
			}
		}
	}
}

func (r SeatRepository) expiredBatch(ctx context.Context, db *sql.DB, now time.Time) ([]models.HoldToken, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, schedule_id, travel_date, holder_id, seat_ids, expires_at FROM seat_holds
		WHERE state=? AND expires_at<=? ORDER BY expires_at ASC LIMIT ?`,
		string(models.HoldActive), now.UTC(), sweepBatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.HoldToken{}
	for rows.Next() {
		var t models.HoldToken
		var seats string
		if err := rows.Scan(&t.ID, &t.Key.ScheduleID, &t.Key.TravelDate, &t.HolderID, &seats, &t.ExpiresAt); err != nil {
			return nil, err
		}
		t.SeatIDs = utils.SplitSeatList(seats)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r SeatRepository) releaseIfExpired(ctx context.Context, t models.HoldToken, now time.Time) (bool, error) {
	released := false
	err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if err := lockKey(ctx, tx, t.Key); err != nil {
			return err
		}
		h, err := r.readHold(ctx, tx, t.ID, true)
		if err != nil {
			return err
		}
		if h.state != models.HoldActive || !h.token.Expired(now) {
			return nil
		}
		released = true
		return releaseLocked(ctx, tx, t.ID)
	})
	return released, err
}

// SeatMap lists occupied seats of one trip. Seats without a row, and Held seats past expiry, are free.
func (r SeatRepository) SeatMap(ctx context.Context, key models.ScheduleKey) (map[string]models.SeatState, error) {
	db := r.db()
	if db == nil {
		return nil, fmt.Errorf("db tidak tersedia")
	}
	rows, err := db.QueryContext(ctx, `
		SELECT seat_code, status, hold_id, expires_at FROM schedule_seats
		WHERE schedule_id=? AND travel_date=?`, key.ScheduleID, key.TravelDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	out := map[string]models.SeatState{}
	for rows.Next() {
		var (
			st     models.SeatState
			status string
			exp    sql.NullTime
		)
		if err := rows.Scan(&st.SeatID, &status, &st.HoldID, &exp); err != nil {
			return nil, err
		}
		st.Status = models.SeatStatus(status)
		st.ExpiresAt = intdb.TimePtr(exp)
		if st.Status == models.SeatHeld && st.ExpiresAt != nil && !now.Before(*st.ExpiresAt) {
			continue
		}
		out[st.SeatID] = st
	}
	return out, rows.Err()
}
