/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store persists exercise state as JSON values under string keys,
// with a remote primary backend and a local fallback.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned by a size-limited backend when a write
	// would grow it past its quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrUnavailable wraps transport failures of a remote backend.
	ErrUnavailable = errors.New("backend unavailable")
)

// Backend is a flat key-value store. Values are opaque JSON documents and
// the last write to a key wins.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes every key starting with prefix and reports how
	// many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}
