/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/store"
)

// RelayChannel is the pub/sub channel changes are relayed on.
const RelayChannel = "warroom:changes"

const (
	relayQueueSize = 256
	publishTimeout = 10 * time.Second
)

// Relay carries changes between instances sharing a Redis server, so a
// browser connected to one instance sees writes made through another.
type Relay struct {
	client *redis.Client
	origin string
	logger *zap.Logger
	queue  chan store.Change
}

// NewRelay returns a relay that ignores messages stamped with origin.
func NewRelay(client *redis.Client, origin string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		client: client,
		origin: origin,
		logger: logger,
		queue:  make(chan store.Change, relayQueueSize),
	}
}

// Enqueue hands a change to Forward without waiting on Redis, so it is safe
// to call from a store listener. Changes are dropped while the queue is full.
func (r *Relay) Enqueue(c store.Change) bool {
	select {
	case r.queue <- c:
		return true
	default:
		r.logger.Debug("relay queue full, dropping change", zap.String("key", c.Key))
		return false
	}
}

// Forward publishes queued changes until ctx is cancelled.
func (r *Relay) Forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.queue:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := r.Publish(pubCtx, c); err != nil {
				r.logger.Warn("relaying change failed", zap.String("key", c.Key), zap.Error(err))
			}
			cancel()
		}
	}
}

// Publish sends a change to the other instances.
func (r *Relay) Publish(ctx context.Context, c store.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, RelayChannel, data).Err(); err != nil {
		return fmt.Errorf("publishing change for %s: %w", c.Key, err)
	}
	return nil
}

// Run delivers changes published by other instances until ctx is
// cancelled.
func (r *Relay) Run(ctx context.Context, deliver func(store.Change)) error {
	sub := r.client.Subscribe(ctx, RelayChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", RelayChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var c store.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				r.logger.Debug("discarding malformed relay message", zap.Error(err))
				continue
			}
			if c.Origin == r.origin {
				continue
			}
			deliver(c)
		}
	}
}
