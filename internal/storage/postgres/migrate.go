package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		price      NUMERIC(12,2) NOT NULL,
		stock      INT NOT NULL CHECK (stock >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                TEXT PRIMARY KEY,
		number            TEXT NOT NULL UNIQUE,
		customer_name     TEXT NOT NULL,
		customer_phone    TEXT NOT NULL,
		address           TEXT NOT NULL,
		latitude          DOUBLE PRECISION,
		longitude         DOUBLE PRECISION,
		delivery_schedule TEXT NOT NULL,
		payment_method    TEXT NOT NULL,
		total_amount      NUMERIC(12,2) NOT NULL,
		status            TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id            BIGSERIAL PRIMARY KEY,
		order_id      TEXT NOT NULL REFERENCES orders(id),
		product_id    TEXT NOT NULL REFERENCES products(id),
		quantity      INT NOT NULL CHECK (quantity > 0),
		price_at_time NUMERIC(12,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id              TEXT PRIMARY KEY,
		order_id        TEXT NOT NULL UNIQUE REFERENCES orders(id),
		gateway_tx_id   TEXT NOT NULL UNIQUE,
		transaction_id  TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		gross_amount    NUMERIC(12,2) NOT NULL,
		token           TEXT NOT NULL DEFAULT '',
		redirect_url    TEXT NOT NULL DEFAULT '',
		payment_type    TEXT NOT NULL DEFAULT '',
		fraud_status    TEXT NOT NULL DEFAULT '',
		raw_status_code TEXT NOT NULL DEFAULT '',
		expires_at      TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		type           TEXT NOT NULL,
		payload        JSONB NOT NULL,
		traceparent    TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'pending',
		relay_id       TEXT,
		lease_until    TIMESTAMPTZ,
		retry_count    INT NOT NULL DEFAULT 0,
		last_error     TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_unsent_idx ON outbox (id) WHERE status <> 'sent'`,
}

// Migrate creates the schema idempotently on startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
