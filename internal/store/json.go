/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// GetJSON decodes the value of key into dst.
func GetJSON(ctx context.Context, l *Layer, key string, dst any) error {
	data, err := l.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, l *Layer, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return l.Set(ctx, key, data)
}

// List returns the records stored under key, or an empty slice when the key
// does not exist.
func List[T any](ctx context.Context, l *Layer, key string) ([]T, error) {
	var out []T
	err := GetJSON(ctx, l, key, &out)
	if errors.Is(err, ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// UpdateList applies fn to the records stored under key and writes back the
// slice it returns.
func UpdateList[T any](ctx context.Context, l *Layer, key string, fn func([]T) ([]T, error)) ([]T, error) {
	var result []T
	err := l.Update(ctx, key, func(current []byte) ([]byte, error) {
		items := []T{}
		if current != nil {
			if err := json.Unmarshal(current, &items); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
		}

		next, err := fn(items)
		if err != nil {
			return nil, err
		}
		result = next

		return json.Marshal(next)
	})
	return result, err
}

// UpdateJSON applies fn to the value stored under key. found is false when
// the key did not exist and v holds its zero value.
func UpdateJSON[T any](ctx context.Context, l *Layer, key string, fn func(v *T, found bool) error) (T, error) {
	var result T
	err := l.Update(ctx, key, func(current []byte) ([]byte, error) {
		var v T
		found := current != nil
		if found {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
		}

		if err := fn(&v, found); err != nil {
			return nil, err
		}
		result = v

		return json.Marshal(v)
	})
	return result, err
}
