/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/keys"
)

type Op string

const (
	OpSet    Op = "set"
	OpDelete Op = "delete"
	OpReset  Op = "reset"
)

// Change describes one successful write through a Layer.
type Change struct {
	Origin     string          `json:"origin"`
	Session    string          `json:"session,omitempty"`
	Key        string          `json:"key"`
	Name       string          `json:"name,omitempty"`
	Collection keys.Collection `json:"collection,omitempty"`
	Move       int             `json:"move,omitempty"`
	Op         Op              `json:"op"`
	// Fallback is set when the write only reached the local backend.
	Fallback bool      `json:"fallback"`
	At       time.Time `json:"at"`
}

// Status summarizes the health of both storage paths.
type Status struct {
	Remote        string    `json:"remote,omitempty"`
	Local         string    `json:"local"`
	DirtyKeys     int       `json:"dirty_keys"`
	PendingResets int       `json:"pending_resets"`
	LastRemoteErr string    `json:"last_remote_error,omitempty"`
	LastRemoteAt  time.Time `json:"last_remote_error_at,omitzero"`
}

// Layer mirrors keys between an optional remote backend and a local
// fallback. Remote failures are logged and absorbed: writes land locally and
// are pushed back by Resync, reads are served from the local copy.
type Layer struct {
	remote Backend
	local  Backend
	logger *zap.Logger
	origin string
	now    func() time.Time

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
	// dirty holds keys whose local copy is newer than the remote one,
	// including keys deleted while the remote was down.
	dirty         map[string]struct{}
	pendingResets []string
	lastErr       error
	lastErrAt     time.Time

	lmu       sync.RWMutex
	listeners []func(Change)
}

type LayerOption func(*Layer)

// WithClock overrides the time source used to stamp changes.
func WithClock(now func() time.Time) LayerOption {
	return func(l *Layer) { l.now = now }
}

// WithOrigin sets the id stamped on changes written by this process.
func WithOrigin(origin string) LayerOption {
	return func(l *Layer) { l.origin = origin }
}

// NewLayer builds a Layer. remote may be nil, in which case local is the
// only path.
func NewLayer(remote, local Backend, logger *zap.Logger, opts ...LayerOption) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Layer{
		remote:   remote,
		local:    local,
		logger:   logger,
		origin:   uuid.NewString(),
		now:      time.Now,
		keyLocks: make(map[string]*sync.Mutex),
		dirty:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Origin is the id this Layer stamps on its changes.
func (l *Layer) Origin() string { return l.origin }

// Remote returns the remote backend, or nil.
func (l *Layer) Remote() Backend { return l.remote }

// Subscribe registers fn to receive every change written through l.
func (l *Layer) Subscribe(fn func(Change)) {
	l.lmu.Lock()
	l.listeners = append(l.listeners, fn)
	l.lmu.Unlock()
}

func (l *Layer) Close() error {
	var errs []error
	if l.remote != nil {
		errs = append(errs, l.remote.Close())
	}
	errs = append(errs, l.local.Close())
	return errors.Join(errs...)
}

func (l *Layer) keyLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.keyLocks[key]
	if !ok {
		m = &sync.Mutex{}
		l.keyLocks[key] = m
	}
	return m
}

func (l *Layer) remoteFailed(op, key string, err error) {
	l.mu.Lock()
	l.lastErr = err
	l.lastErrAt = l.now()
	l.mu.Unlock()

	l.logger.Warn("remote store failed, using local fallback",
		zap.String("op", op),
		zap.String("key", key),
		zap.String("remote", l.remote.Name()),
		zap.Error(err),
	)
}

// localAuthoritative reports whether the local copy of key must win over the
// remote one until the next Resync.
func (l *Layer) localAuthoritative(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.dirty[key]; ok {
		return true
	}
	return l.resetPendingLocked(key)
}

// resetPending reports whether key lies under a reset the remote missed. The
// remote copy of such a key predates the reset and must not be read.
func (l *Layer) resetPending(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.resetPendingLocked(key)
}

func (l *Layer) resetPendingLocked(key string) bool {
	for _, prefix := range l.pendingResets {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (l *Layer) markDirty(key string, dirty bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dirty {
		l.dirty[key] = struct{}{}
	} else {
		delete(l.dirty, key)
	}
}

// Get reads key, preferring the remote copy. Keys written while the remote
// was down are merged with (or replaced by) their local copy.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	if l.remote == nil || l.resetPending(key) {
		return l.local.Get(ctx, key)
	}

	rv, err := l.remote.Get(ctx, key)
	switch {
	case err == nil:
		if !l.localAuthoritative(key) {
			if err := l.local.Set(ctx, key, rv); err != nil {
				l.logger.Debug("refreshing local mirror failed", zap.String("key", key), zap.Error(err))
			}
			return rv, nil
		}

		lv, lerr := l.local.Get(ctx, key)
		switch {
		case errors.Is(lerr, ErrNotFound):
			return nil, ErrNotFound
		case lerr != nil:
			return rv, nil
		}
		if merged, ok := mergeLists(rv, lv); ok {
			return merged, nil
		}
		return lv, nil

	case errors.Is(err, ErrNotFound):
		if l.localAuthoritative(key) {
			return l.local.Get(ctx, key)
		}
		return nil, ErrNotFound

	default:
		l.remoteFailed("get", key, err)
		return l.local.Get(ctx, key)
	}
}

// Set writes key to the remote backend, mirroring it locally, or to the local
// backend alone when the remote write fails.
func (l *Layer) Set(ctx context.Context, key string, value []byte) error {
	fallback, err := l.set(ctx, key, value)
	if err != nil {
		return err
	}
	l.emit(ctx, key, OpSet, fallback)
	return nil
}

func (l *Layer) set(ctx context.Context, key string, value []byte) (fallback bool, err error) {
	if l.remote != nil {
		rerr := l.replayResets(ctx)
		if rerr == nil {
			rerr = l.remote.Set(ctx, key, value)
		}
		if rerr == nil {
			l.markDirty(key, false)
			if err := l.local.Set(ctx, key, value); err != nil {
				l.logger.Debug("mirroring to local store failed", zap.String("key", key), zap.Error(err))
			}
			return false, nil
		}
		l.remoteFailed("set", key, rerr)
	}

	if err := l.local.Set(ctx, key, value); err != nil {
		return false, fmt.Errorf("writing %s to %s: %w", key, l.local.Name(), err)
	}
	if l.remote != nil {
		l.markDirty(key, true)
		return true, nil
	}
	return false, nil
}

// Update performs a read-modify-write of key. fn receives the current value
// (nil when absent) and returns the value to store. Updates of the same key
// are serialized within this process only; across processes the last write
// wins.
func (l *Layer) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	m := l.keyLock(key)
	m.Lock()
	defer m.Unlock()

	cur, err := l.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}

	return l.Set(ctx, key, next)
}

// Delete removes key from both paths.
func (l *Layer) Delete(ctx context.Context, key string) error {
	m := l.keyLock(key)
	m.Lock()
	defer m.Unlock()

	if err := l.local.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting %s locally: %w", key, err)
	}

	fallback := false
	if l.remote != nil {
		err := l.replayResets(ctx)
		if err == nil {
			err = l.remote.Delete(ctx, key)
		}
		if err != nil {
			l.remoteFailed("delete", key, err)
			fallback = true
		}
	}
	l.markDirty(key, fallback)

	l.emit(ctx, key, OpDelete, fallback)
	return nil
}

// Keys lists keys under prefix from both paths.
func (l *Layer) Keys(ctx context.Context, prefix string) ([]string, error) {
	local, err := l.local.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if l.remote == nil || l.localAuthoritative(prefix) {
		return local, nil
	}

	remote, err := l.remote.Keys(ctx, prefix)
	if err != nil {
		l.remoteFailed("keys", prefix, err)
		return local, nil
	}

	out := append(remote, local...)
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Reset deletes every key under prefix on both paths. A prefix the remote
// could not clear is replayed before the next remote write or by Resync.
func (l *Layer) Reset(ctx context.Context, prefix string) (int, error) {
	removed, err := l.local.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("clearing %s locally: %w", prefix, err)
	}

	l.mu.Lock()
	for k := range l.dirty {
		if strings.HasPrefix(k, prefix) {
			delete(l.dirty, k)
		}
	}
	l.mu.Unlock()

	fallback := false
	if l.remote != nil {
		n, err := l.remote.DeletePrefix(ctx, prefix)
		if err != nil {
			l.remoteFailed("reset", prefix, err)
			l.mu.Lock()
			if !slices.Contains(l.pendingResets, prefix) {
				l.pendingResets = append(l.pendingResets, prefix)
			}
			l.mu.Unlock()
			fallback = true
		}
		removed = max(removed, n)
	}

	l.emit(ctx, prefix, OpReset, fallback)
	return removed, nil
}

// replayResets applies resets the remote missed, oldest first.
func (l *Layer) replayResets(ctx context.Context) error {
	for {
		l.mu.Lock()
		if len(l.pendingResets) == 0 {
			l.mu.Unlock()
			return nil
		}
		prefix := l.pendingResets[0]
		l.mu.Unlock()

		if _, err := l.remote.DeletePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("replaying reset of %s: %w", prefix, err)
		}

		l.mu.Lock()
		l.pendingResets = slices.DeleteFunc(l.pendingResets, func(p string) bool { return p == prefix })
		l.mu.Unlock()
	}
}

// Resync pushes pending resets and locally written keys to the remote
// backend. It stops at the first remote failure and reports how many keys
// were pushed.
func (l *Layer) Resync(ctx context.Context) (int, error) {
	if l.remote == nil {
		return 0, nil
	}

	if err := l.replayResets(ctx); err != nil {
		return 0, err
	}

	l.mu.Lock()
	dirty := make([]string, 0, len(l.dirty))
	for k := range l.dirty {
		dirty = append(dirty, k)
	}
	l.mu.Unlock()
	slices.Sort(dirty)

	pushed := 0
	for _, key := range dirty {
		if err := l.resyncKey(ctx, key); err != nil {
			return pushed, err
		}
		pushed++
	}
	return pushed, nil
}

func (l *Layer) resyncKey(ctx context.Context, key string) error {
	m := l.keyLock(key)
	m.Lock()
	defer m.Unlock()

	lv, err := l.local.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		if err := l.remote.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting %s from %s: %w", key, l.remote.Name(), err)
		}
		l.markDirty(key, false)
		return nil
	}
	if err != nil {
		return err
	}

	value := lv
	rv, err := l.remote.Get(ctx, key)
	switch {
	case err == nil:
		if merged, ok := mergeLists(rv, lv); ok {
			value = merged
		}
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("reading %s from %s: %w", key, l.remote.Name(), err)
	}

	if err := l.remote.Set(ctx, key, value); err != nil {
		return fmt.Errorf("pushing %s to %s: %w", key, l.remote.Name(), err)
	}
	if err := l.local.Set(ctx, key, value); err != nil {
		l.logger.Debug("mirroring resynced key failed", zap.String("key", key), zap.Error(err))
	}
	l.markDirty(key, false)
	return nil
}

func (l *Layer) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Status{
		Local:         l.local.Name(),
		DirtyKeys:     len(l.dirty),
		PendingResets: len(l.pendingResets),
		LastRemoteAt:  l.lastErrAt,
	}
	if l.remote != nil {
		s.Remote = l.remote.Name()
	}
	if l.lastErr != nil {
		s.LastRemoteErr = l.lastErr.Error()
	}
	return s
}

// stamp writes the broadcast marker. It is never tracked for resync: a stale
// marker is worthless once newer changes exist.
func (l *Layer) stamp(ctx context.Context, key string, data []byte) {
	if l.remote != nil {
		if err := l.remote.Set(ctx, key, data); err == nil {
			_ = l.local.Set(ctx, key, data)
			return
		}
	}
	if err := l.local.Set(ctx, key, data); err != nil {
		l.logger.Debug("stamping broadcast key failed", zap.String("key", key), zap.Error(err))
	}
}

// sessionOf extracts the session id from a session-scoped key or prefix.
func sessionOf(key string) string {
	rest, ok := strings.CutPrefix(key, "session_")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "_")
	return id
}

func (l *Layer) emit(ctx context.Context, key string, op Op, fallback bool) {
	c := Change{
		Origin:   l.origin,
		Session:  sessionOf(key),
		Key:      key,
		Op:       op,
		Fallback: fallback,
		At:       l.now().UTC(),
	}

	if op != OpReset {
		if ref, err := keys.Parse(key); err == nil {
			c.Name = ref.Name
			c.Collection = ref.Collection
			c.Move = ref.Move
		}
	}

	if c.Name == keys.Broadcast {
		return
	}

	if c.Session != "" {
		if data, err := json.Marshal(c); err == nil {
			l.stamp(ctx, keys.Session(c.Session, keys.Broadcast), data)
		}
	}

	l.lmu.RLock()
	listeners := slices.Clone(l.listeners)
	l.lmu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}
