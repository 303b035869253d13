package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 500

type redisStore struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewRedisClient dials addr and pings it before returning.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisStore builds a Store on rdb. Every key is namespaced by prefix when
// it is non-empty.
func NewRedisStore(rdb goredis.UniversalClient, prefix string) Store {
	return &redisStore{rdb: rdb, prefix: prefix}
}

func (s *redisStore) k(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, s.k(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return raw, nil
}

func (s *redisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.k(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.k(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("put if absent %s: %w", key, err)
	}
	return ok, nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.k(key)
	}
	if err := s.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (s *redisStore) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	match := s.k(prefix) + "*"
	strip := len(s.k(""))

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, key := range batch {
			keys = append(keys, key[strip:])
			if limit > 0 && len(keys) >= limit {
				return keys, nil
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *redisStore) Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var cmd *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		cmd = pipe.IncrBy(ctx, s.k(key), delta)
		if ttl > 0 {
			pipe.Expire(ctx, s.k(key), ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return cmd.Val(), nil
}

func (s *redisStore) GetInt(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, s.k(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get int %s: %w", key, err)
	}
	return n, nil
}

func (s *redisStore) IncrFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	var cmd *goredis.FloatCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		cmd = pipe.IncrByFloat(ctx, s.k(key), delta)
		if ttl > 0 {
			pipe.Expire(ctx, s.k(key), ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr float %s: %w", key, err)
	}
	return cmd.Val(), nil
}

func (s *redisStore) GetFloat(ctx context.Context, key string) (float64, error) {
	f, err := s.rdb.Get(ctx, s.k(key)).Float64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get float %s: %w", key, err)
	}
	return f, nil
}

// AddSample keeps a running average as a hash with "sum" and "count" fields.
func (s *redisStore) AddSample(ctx context.Context, key string, value float64, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HIncrByFloat(ctx, s.k(key), "sum", value)
		pipe.HIncrBy(ctx, s.k(key), "count", 1)
		if ttl > 0 {
			pipe.Expire(ctx, s.k(key), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add sample %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) GetAverage(ctx context.Context, key string) (Average, error) {
	fields, err := s.rdb.HGetAll(ctx, s.k(key)).Result()
	if err != nil {
		return Average{}, fmt.Errorf("get average %s: %w", key, err)
	}
	var avg Average
	if raw, ok := fields["sum"]; ok {
		if avg.Sum, err = strconv.ParseFloat(raw, 64); err != nil {
			return Average{}, fmt.Errorf("parse sum %s: %w", key, err)
		}
	}
	if raw, ok := fields["count"]; ok {
		if avg.Count, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return Average{}, fmt.Errorf("parse count %s: %w", key, err)
		}
	}
	return avg, nil
}

func (s *redisStore) IncrMember(ctx context.Context, key, member string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZIncrBy(ctx, s.k(key), 1, member)
		if ttl > 0 {
			pipe.Expire(ctx, s.k(key), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("incr member %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) TopMembers(ctx context.Context, key string, n int) ([]MemberCount, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.k(key), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("top members %s: %w", key, err)
	}
	out := make([]MemberCount, 0, len(zs))
	for _, z := range zs {
		out = append(out, MemberCount{Member: fmt.Sprint(z.Member), Count: int64(z.Score)})
	}
	return out, nil
}

func (s *redisStore) Append(ctx context.Context, key string, value []byte, max int, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, s.k(key), value)
		if max > 0 {
			pipe.LTrim(ctx, s.k(key), int64(-max), -1)
		}
		if ttl > 0 {
			pipe.Expire(ctx, s.k(key), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Range(ctx context.Context, key string) ([][]byte, error) {
	items, err := s.rdb.LRange(ctx, s.k(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", key, err)
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}
