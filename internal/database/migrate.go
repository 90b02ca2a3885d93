package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates every table the service needs.  The unique keys are the
// storage-level guards behind seat allocation: one schedule row per
// (travel_date, time_slot) and one seat row per (schedule_id, seat_number).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name          VARCHAR(100) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          ENUM('user','admin') NOT NULL DEFAULT 'user',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bus_schedules (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		travel_date     DATE NOT NULL,
		time_slot       ENUM('morning','noon','evening') NOT NULL,
		total_seats     INT UNSIGNED NOT NULL,
		available_seats INT UNSIGNED NOT NULL,
		price_cents     BIGINT UNSIGNED NOT NULL,
		status          ENUM('active','cancelled','completed') NOT NULL DEFAULT 'active',
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_schedules_date_slot (travel_date, time_slot)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS schedule_seats (
		schedule_id BIGINT UNSIGNED NOT NULL,
		seat_number INT UNSIGNED NOT NULL,
		booking_id  BIGINT UNSIGNED NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (schedule_id, seat_number),
		UNIQUE KEY uq_schedule_seats_booking (booking_id),
		CONSTRAINT fk_schedule_seats_schedule FOREIGN KEY (schedule_id) REFERENCES bus_schedules (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                  BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		booking_code        VARCHAR(32) NOT NULL,
		travel_date         DATE NOT NULL,
		time_slot           ENUM('morning','noon','evening') NOT NULL,
		passenger_name      VARCHAR(100) NOT NULL,
		passenger_email     VARCHAR(255) NOT NULL,
		passenger_phone     VARCHAR(20) NOT NULL,
		seat_number         INT UNSIGNED NOT NULL,
		amount_cents        BIGINT UNSIGNED NOT NULL,
		payment_status      ENUM('pending','completed','failed','refunded') NOT NULL DEFAULT 'pending',
		provider_payment_id VARCHAR(255) NULL,
		status              ENUM('confirmed','cancelled','completed') NOT NULL DEFAULT 'confirmed',
		email_sent          TINYINT(1) NOT NULL DEFAULT 0,
		admin_notified      TINYINT(1) NOT NULL DEFAULT 0,
		created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_bookings_code (booking_code),
		UNIQUE KEY uq_bookings_provider_payment (provider_payment_id),
		KEY idx_bookings_date_slot (travel_date, time_slot),
		KEY idx_bookings_email (passenger_email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the schema.  Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
