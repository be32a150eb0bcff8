// Package storage provides the key/value abstraction the profile store
// persists encrypted fields through.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete when the key is absent.
var ErrNotFound = errors.New("not found")

// Repository persists opaque string values under string keys. Values are
// stored exactly as given; encryption happens above this layer.
type Repository interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}
