// Package kv is the aggregate store used for forms, counters, running
// averages and bounded lists. Keys are flat ":"-joined strings; their layout
// is shared with existing data and must not change.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// DateLayout is the calendar-day segment used in daily keys.
const DateLayout = "2006-01-02"

// Average is a running {sum,count} accumulator.
type Average struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

// Mean returns Sum/Count, or 0 when no samples were recorded.
func (a Average) Mean() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// MemberCount is one entry of a frequency table.
type MemberCount struct {
	Member string `json:"message"`
	Count  int64  `json:"count"`
}

// Store exposes the primitives the services build on. A ttl of zero means
// the key never expires. Counter, average, frequency and list operations are
// atomic on the server.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent stores value only when key does not exist yet and reports
	// whether it did.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// List returns keys starting with prefix, at most limit (0 = no limit).
	List(ctx context.Context, prefix string, limit int) ([]string, error)

	Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
	IncrFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)
	GetFloat(ctx context.Context, key string) (float64, error)

	AddSample(ctx context.Context, key string, value float64, ttl time.Duration) error
	GetAverage(ctx context.Context, key string) (Average, error)

	IncrMember(ctx context.Context, key, member string, ttl time.Duration) error
	TopMembers(ctx context.Context, key string, n int) ([]MemberCount, error)

	// Append pushes value to the list at key and keeps only the newest max entries.
	Append(ctx context.Context, key string, value []byte, max int, ttl time.Duration) error
	Range(ctx context.Context, key string) ([][]byte, error)
}

// Key joins segments with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// DateKey formats t as a UTC calendar day.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// GetJSON loads key into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON stores v as JSON under key.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw, ttl)
}
