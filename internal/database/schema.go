package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables used by the central API.  Statements are
// idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         VARCHAR(36)  NOT NULL PRIMARY KEY,
		username   VARCHAR(64)  NOT NULL,
		email      VARCHAR(255) NOT NULL,
		created_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_users_username (username),
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS spots (
		id          VARCHAR(36) NOT NULL PRIMARY KEY,
		floor_level INT         NOT NULL,
		spot_number INT         NOT NULL,
		status      ENUM('vacant','occupied','reserved') NOT NULL DEFAULT 'vacant',
		updated_at  DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_spots_floor_number (floor_level, spot_number)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id          VARCHAR(36)   NOT NULL PRIMARY KEY,
		user_id     VARCHAR(36)   NOT NULL,
		spot_id     VARCHAR(36)   NOT NULL,
		start_time  DATETIME(6)   NOT NULL,
		end_time    DATETIME(6)   NOT NULL,
		final_price DECIMAL(10,2) NOT NULL,
		published   TINYINT(1)    NOT NULL DEFAULT 0,
		created_at  DATETIME(6)   NOT NULL,
		KEY idx_reservations_spot_window (spot_id, start_time, end_time),
		KEY idx_reservations_user (user_id),
		KEY idx_reservations_unpublished (published, end_time),
		CONSTRAINT fk_reservations_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		CONSTRAINT fk_reservations_spot FOREIGN KEY (spot_id) REFERENCES spots (id) ON DELETE CASCADE,
		CONSTRAINT chk_reservations_window CHECK (end_time > start_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
