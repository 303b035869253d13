package kvtest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"form-analytics-service/internal/kv"
)

// New starts an in-process Redis and returns a Store backed by it. The server
// is closed when the test ends.
func New(t testing.TB) (kv.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return kv.NewRedisStore(rdb, ""), mr
}
