/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisNamespace = "warroom:"
	scanBatch             = 256
)

// Redis is a remote Backend storing each key as a Redis string under a
// namespace.
type Redis struct {
	client    *redis.Client
	namespace string
}

// OpenRedis connects to the Redis server at url (redis://host:port/db) and
// verifies it answers PING.
func OpenRedis(ctx context.Context, url, namespace string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return NewRedis(client, namespace), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &Redis{client: client, namespace: namespace}
}

func (r *Redis) Name() string { return "redis" }

// Client exposes the underlying client for pub/sub.
func (r *Redis) Client() *redis.Client { return r.client }

func (r *Redis) Close() error {
	return r.client.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %v", op, ErrUnavailable, err)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.namespace+key, value, 0).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespace+key).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// globEscape escapes the characters SCAN MATCH treats as patterns.
func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Redis) scan(ctx context.Context, prefix string) ([]string, error) {
	var out []string

	iter := r.client.Scan(ctx, 0, globEscape(r.namespace+prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	return out, nil
}

func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	full, err := r.scan(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(full))
	for _, k := range full {
		out = append(out, strings.TrimPrefix(k, r.namespace))
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (r *Redis) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	full, err := r.scan(ctx, prefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for chunk := range slices.Chunk(full, scanBatch) {
		n, err := r.client.Del(ctx, chunk...).Result()
		if err != nil {
			return removed, unavailable("del", err)
		}
		removed += int(n)
	}
	return removed, nil
}
