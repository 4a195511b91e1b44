package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the tables owned by the booking core. Schedules and users
// belong to the fleet and auth services and are only read here.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		pnr CHAR(8) NOT NULL,
		customer_id VARCHAR(64) NOT NULL,
		schedule_id BIGINT NOT NULL,
		travel_date CHAR(10) NOT NULL,
		departure_at DATETIME(6) NOT NULL,
		seat_ids VARCHAR(255) NOT NULL,
		total_amount BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		status VARCHAR(20) NOT NULL,
		hold_id VARCHAR(36) NOT NULL,
		pending_attempt_id VARCHAR(36) NULL,
		confirmed_attempt_id VARCHAR(36) NULL,
		expires_at DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		confirmed_at DATETIME(6) NULL,
		cancelled_at DATETIME(6) NULL,
		expired_at DATETIME(6) NULL,
		cancel_reason VARCHAR(255) NULL,
		penalty_amount BIGINT NULL,
		refund_amount BIGINT NULL,
		refund_method VARCHAR(32) NULL,
		cancel_processed_at DATETIME(6) NULL,
		version BIGINT NOT NULL DEFAULT 1,
		UNIQUE KEY uq_bookings_pnr (pnr),
		UNIQUE KEY uq_bookings_hold (hold_id),
		KEY idx_bookings_expiry (status, expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS payment_attempts (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		booking_id VARCHAR(36) NOT NULL,
		provider_order_id VARCHAR(64) NOT NULL,
		provider_payment_id VARCHAR(64) NULL,
		provider_signature VARCHAR(128) NULL,
		status VARCHAR(20) NOT NULL,
		amount BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		failure_reason VARCHAR(64) NULL,
		created_at DATETIME(6) NOT NULL,
		verified_at DATETIME(6) NULL,
		verified_booking_id VARCHAR(36) NULL,
		UNIQUE KEY uq_payment_order (provider_order_id),
		UNIQUE KEY uq_payment_verified_booking (verified_booking_id),
		KEY idx_payment_booking (booking_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seat_map_locks (
		schedule_id BIGINT NOT NULL,
		travel_date CHAR(10) NOT NULL,
		PRIMARY KEY (schedule_id, travel_date)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS seat_holds (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		schedule_id BIGINT NOT NULL,
		travel_date CHAR(10) NOT NULL,
		holder_id VARCHAR(64) NOT NULL,
		seat_ids VARCHAR(255) NOT NULL,
		state VARCHAR(16) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		KEY idx_seat_holds_sweep (state, expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS schedule_seats (
		schedule_id BIGINT NOT NULL,
		travel_date CHAR(10) NOT NULL,
		seat_code VARCHAR(8) NOT NULL,
		status VARCHAR(16) NOT NULL,
		hold_id VARCHAR(36) NOT NULL,
		expires_at DATETIME(6) NULL,
		PRIMARY KEY (schedule_id, travel_date, seat_code),
		KEY idx_schedule_seats_hold (hold_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db tidak tersedia")
	}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
