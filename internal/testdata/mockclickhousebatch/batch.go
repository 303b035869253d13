package mockclickhousebatch

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// Batch records row appends. Only Append, Send and Abort are expected by the
// event log; the remaining driver.Batch methods are inert.
type Batch struct {
	mock.Mock
}

var _ driver.Batch = &Batch{}

func (m *Batch) Append(args ...any) error {
	return m.Called(args...).Error(0)
}

func (m *Batch) Send() error {
	return m.Called().Error(0)
}

func (m *Batch) Abort() error {
	return m.Called().Error(0)
}

func (m *Batch) AppendStruct(any) error { return nil }
func (m *Batch) Column(int) driver.BatchColumn { return nil }
func (m *Batch) Flush() error { return nil }
func (m *Batch) IsSent() bool { return false }
