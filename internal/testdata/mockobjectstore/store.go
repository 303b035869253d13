package mockobjectstore

import (
	"context"

	"form-analytics-service/internal/objectstore"

	"github.com/stretchr/testify/mock"
)

type Store struct {
	mock.Mock
}

var _ objectstore.Store = &Store{}

func (m *Store) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	return m.Called(ctx, key, data, contentType, metadata).Error(0)
}

func (m *Store) Get(ctx context.Context, key string) (*objectstore.Object, error) {
	args := m.Called(ctx, key)
	if v := args.Get(0); v != nil {
		return v.(*objectstore.Object), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *Store) List(ctx context.Context, prefix string, limit int) ([]objectstore.Object, error) {
	args := m.Called(ctx, prefix, limit)
	if v := args.Get(0); v != nil {
		return v.([]objectstore.Object), args.Error(1)
	}
	return nil, args.Error(1)
}
