package mockclickhouseconnection

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// Connection mocks the Exec and PrepareBatch calls made on a clickhouse.Conn.
type Connection struct {
	mock.Mock
}

func (m *Connection) Exec(ctx context.Context, query string, args ...any) error {
	callArgs := []any{ctx, query}
	callArgs = append(callArgs, args...)
	return m.Called(callArgs...).Error(0)
}

func (m *Connection) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	mockArgs := m.Called(ctx, query)
	if batch, ok := mockArgs.Get(0).(driver.Batch); ok {
		return batch, mockArgs.Error(1)
	}
	return nil, mockArgs.Error(1)
}
