package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"form-analytics-service/internal/model"
)

// EventRepository is the raw conversion event log.
type EventRepository interface {
	// CreateBatch inserts multiple events in one ClickHouse batch.
	CreateBatch(ctx context.Context, events []model.Event) error
}

// BatchConn is the part of clickhouse.Conn the event log uses.
type BatchConn interface {
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
}

type eventRepository struct {
	conn BatchConn
}

// NewEventRepository creates an EventRepository backed by ClickHouse.
func NewEventRepository(conn BatchConn) EventRepository {
	return &eventRepository{conn: conn}
}

const insertEventQuery = `INSERT INTO conversion_events (id, form_id, event_type, session_id, customer_id, value, ts, metadata)`

func (r *eventRepository) CreateBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertEventQuery)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, event := range events {
		metadata, err := marshalMetadata(event.Metadata)
		if err != nil {
			_ = batch.Abort()
			return err
		}

		if err := batch.Append(
			event.ID,
			event.FormID,
			string(event.Type),
			nullIfEmpty(event.SessionID),
			nullIfEmpty(event.CustomerID),
			event.Value,
			event.Timestamp,
			metadata,
		); err != nil {
			return fmt.Errorf("append batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func nullIfEmpty(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}
