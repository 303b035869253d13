package db

import (
	"context"
	"fmt"
)

// Execer runs a statement. clickhouse.Conn satisfies it.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// RunMigrations ensures required tables exist. This keeps the service
// self-contained without an external migration step.
func RunMigrations(ctx context.Context, conn Execer) error {
	err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversion_events
(
	id              String,
	form_id         String,
	event_type      LowCardinality(String),
	session_id      Nullable(String),
	customer_id     Nullable(String),
	value           Float64,
	ts              DateTime64(3, 'UTC'),
	metadata        String DEFAULT '{}',
	ingested_at     DateTime DEFAULT now()
)
ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMMDD(ts)
ORDER BY (form_id, ts, event_type, id)
TTL toDateTime(ts) + INTERVAL 30 DAY
SETTINGS
    index_granularity = 8192;
`)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
