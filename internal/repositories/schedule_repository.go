package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	intconfig "busbooking/internal/config"
	"busbooking/internal/domain"
	"busbooking/internal/domain/models"
	"busbooking/internal/utils"
)

// ScheduleRepository reads schedule reference data maintained by the fleet service.
type ScheduleRepository struct {
	DB *sql.DB
}

func (r ScheduleRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func (r ScheduleRepository) GetSchedule(ctx context.Context, id int64) (models.Schedule, error) {
	if id <= 0 {
		return models.Schedule{}, domain.ValidationError{Field: "schedule_id", Msg: "id jadwal tidak valid"}
	}
	db := r.db()
	if db == nil {
		return models.Schedule{}, fmt.Errorf("db tidak tersedia")
	}

	var (
		s     models.Schedule
		seats string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, COALESCE(route_from,''), COALESCE(route_to,''), COALESCE(departure_time,''),
		       COALESCE(seat_codes,''), COALESCE(base_fare,0)
		FROM schedules WHERE id=? LIMIT 1`, id).
		Scan(&s.ID, &s.RouteFrom, &s.RouteTo, &s.DepartureTime, &seats, &s.BaseFare)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Schedule{}, domain.NotFoundError{Resource: "schedule", Err: err}
	}
	if err != nil {
		return models.Schedule{}, err
	}
	s.Seats = utils.SplitSeatList(seats)
	s.SeatFares = map[string]int64{}

	rows, err := db.QueryContext(ctx, `SELECT seat_code, fare FROM schedule_seat_fares WHERE schedule_id=?`, id)
	if err != nil {
		return models.Schedule{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		var fare int64
		if err := rows.Scan(&code, &fare); err != nil {
			return models.Schedule{}, err
		}
		s.SeatFares[strings.ToUpper(strings.TrimSpace(code))] = fare
	}
	return s, rows.Err()
}

// CustomerRepository reads checkout prefill data from the auth service's users table.
type CustomerRepository struct {
	DB *sql.DB
}

func (r CustomerRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func (r CustomerRepository) Lookup(ctx context.Context, customerID string) (models.Customer, error) {
	db := r.db()
	if db == nil {
		return models.Customer{}, fmt.Errorf("db tidak tersedia")
	}
	var c models.Customer
	err := db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name,''), COALESCE(email,''), COALESCE(phone,'')
		FROM users WHERE id=? LIMIT 1`, customerID).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Customer{}, domain.NotFoundError{Resource: "customer", Err: err}
	}
	return c, err
}
