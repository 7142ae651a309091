package database

import (
	"context"
	"database/sql"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
  id                 UUID PRIMARY KEY,
  number             VARCHAR(64)  NOT NULL,
  merchant_reference VARCHAR(128) NOT NULL UNIQUE,
  user_id            UUID         NOT NULL,
  email              VARCHAR(255) NOT NULL DEFAULT '',
  status             VARCHAR(20)  NOT NULL,
  total              BIGINT       NOT NULL,
  currency           CHAR(3)      NOT NULL,
  details            TEXT         NOT NULL DEFAULT '{}',
  created_at         TIMESTAMPTZ  NOT NULL,
  updated_at         TIMESTAMPTZ  NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS transactions (
  id                 UUID PRIMARY KEY,
  order_id           UUID         NOT NULL REFERENCES orders(id),
  merchant_reference VARCHAR(128) NOT NULL,
  remote_id          VARCHAR(128) NOT NULL DEFAULT '',
  payment_method     VARCHAR(64)  NOT NULL DEFAULT '',
  amount             BIGINT       NOT NULL,
  currency           CHAR(3)      NOT NULL,
  status             VARCHAR(20)  NOT NULL,
  message            TEXT         NOT NULL DEFAULT '',
  payload            TEXT         NOT NULL DEFAULT '{}',
  created_at         TIMESTAMPTZ  NOT NULL,
  updated_at         TIMESTAMPTZ  NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS transactions_order_id_idx ON transactions (order_id)`,
	`CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS processed_notifications (
  idempotency_key    VARCHAR(255) PRIMARY KEY,
  merchant_reference VARCHAR(128) NOT NULL,
  event_code         VARCHAR(64)  NOT NULL,
  processed_at       TIMESTAMPTZ  NOT NULL
)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
  id                 CHAR(36)     PRIMARY KEY,
  number             VARCHAR(64)  NOT NULL,
  merchant_reference VARCHAR(128) NOT NULL UNIQUE,
  user_id            CHAR(36)     NOT NULL,
  email              VARCHAR(255) NOT NULL DEFAULT '',
  status             VARCHAR(20)  NOT NULL,
  total              BIGINT       NOT NULL,
  currency           CHAR(3)      NOT NULL,
  details            TEXT         NOT NULL,
  created_at         DATETIME(6)  NOT NULL,
  updated_at         DATETIME(6)  NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS transactions (
  id                 CHAR(36)     PRIMARY KEY,
  order_id           CHAR(36)     NOT NULL,
  merchant_reference VARCHAR(128) NOT NULL,
  remote_id          VARCHAR(128) NOT NULL DEFAULT '',
  payment_method     VARCHAR(64)  NOT NULL DEFAULT '',
  amount             BIGINT       NOT NULL,
  currency           CHAR(3)      NOT NULL,
  status             VARCHAR(20)  NOT NULL,
  message            TEXT         NOT NULL,
  payload            TEXT         NOT NULL,
  created_at         DATETIME(6)  NOT NULL,
  updated_at         DATETIME(6)  NOT NULL,
  INDEX (order_id),
  INDEX (status, updated_at),
  FOREIGN KEY (order_id) REFERENCES orders(id)
)`,
	`CREATE TABLE IF NOT EXISTS processed_notifications (
  idempotency_key    VARCHAR(255) PRIMARY KEY,
  merchant_reference VARCHAR(128) NOT NULL,
  event_code         VARCHAR(64)  NOT NULL,
  processed_at       DATETIME(6)  NOT NULL
)`,
}

// Migrate creates the tables the order store needs. It is safe to run
// repeatedly.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := postgresSchema
	if d.Driver == "mysql" {
		stmts = mysqlSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
