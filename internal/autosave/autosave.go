/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package autosave periodically snapshots the state each role edits, either
// into a directory or into the session's autosave keys.
package autosave

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/export"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
)

// Source is the read side of the exercise service plus the session list.
type Source interface {
	export.Reader
	ActiveSessions(ctx context.Context) ([]model.Session, error)
}

type Saver struct {
	source   Source
	layer    *store.Layer
	logger   *zap.Logger
	exporter export.Exporter

	interval time.Duration
	dir      string
	keep     int
}

type Option func(*Saver)

// WithDir writes snapshots as files under dir, keeping the newest keep per
// session and role.
func WithDir(dir string, keep int) Option {
	return func(s *Saver) {
		s.dir = dir
		s.keep = max(keep, 1)
	}
}

// WithInterval sets the time between runs. Zero disables Run.
func WithInterval(d time.Duration) Option {
	return func(s *Saver) { s.interval = d }
}

func New(source Source, layer *store.Layer, logger *zap.Logger, opts ...Option) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Saver{
		source:   source,
		layer:    layer,
		logger:   logger,
		exporter: &export.JSONExporter{},
		interval: 5 * time.Minute,
		keep:     5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run saves on every tick until ctx is cancelled. Failures are logged and
// retried on the next tick.
func (s *Saver) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Warn("AUTOSAVE: run incomplete", zap.Int("saved", saved), zap.Error(err))
				continue
			}
			s.logger.Debug("AUTOSAVE: run complete", zap.Int("saved", saved))
		}
	}
}

// RunOnce snapshots every role of every active session and reports how many
// snapshots were written.
func (s *Saver) RunOnce(ctx context.Context) (int, error) {
	sessions, err := s.source.ActiveSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	saved := 0
	var failures []error
	for _, sess := range sessions {
		for _, role := range model.Roles {
			if ctx.Err() != nil {
				return saved, ctx.Err()
			}
			if err := s.Save(ctx, sess.ID, role); err != nil {
				failures = append(failures, fmt.Errorf("%s/%s: %w", sess.ID, role, err))
				continue
			}
			saved++
		}
	}
	return saved, errors.Join(failures...)
}

// Save writes one snapshot of role in session.
func (s *Saver) Save(ctx context.Context, session string, role model.Role) error {
	snap, err := export.BuildSnapshot(ctx, s.source, session, role)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(snap, &buf); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if s.dir == "" {
		return s.layer.Set(ctx, keys.Autosave(session, string(role)), buf.Bytes())
	}
	return s.writeFile(session, role, snap.ExportedAt, buf.Bytes())
}

func (s *Saver) kind(role model.Role) export.Kind {
	return export.Kind(string(export.KindSnapshot) + "_" + string(role))
}

func (s *Saver) pattern(session string, role model.Role) string {
	return filepath.Join(s.dir, session+"_"+string(s.kind(role))+"_*."+s.exporter.Extension())
}

func (s *Saver) writeFile(session string, role model.Role, at time.Time, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".autosave-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	name := filepath.Join(s.dir, export.FileName(session, s.kind(role), 0, at, s.exporter.Extension()))
	if err := os.Rename(tmp.Name(), name); err != nil {
		return err
	}

	return s.prune(session, role)
}

// prune removes all but the newest keep files of session and role. File
// names sort by their timestamp.
func (s *Saver) prune(session string, role model.Role) error {
	files, err := filepath.Glob(s.pattern(session, role))
	if err != nil {
		return err
	}
	if len(files) <= s.keep {
		return nil
	}

	slices.Sort(files)
	var failures []error
	for _, f := range files[:len(files)-s.keep] {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

// Latest returns the newest snapshot of role in session and the name it
// should be downloaded as.
func (s *Saver) Latest(ctx context.Context, session string, role model.Role) ([]byte, string, error) {
	if !role.Valid() {
		return nil, "", errs.Newf(errs.CodeRoleUnknown, "unknown role %q", role)
	}

	if s.dir == "" {
		data, err := s.layer.Get(ctx, keys.Autosave(session, string(role)))
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", errs.Newf(errs.CodeNotFound, "no autosave for %s in session %s", role, session)
		}
		if err != nil {
			return nil, "", err
		}
		return data, export.FileName(session, s.kind(role), 0, s.source.Now(), s.exporter.Extension()), nil
	}

	files, err := filepath.Glob(s.pattern(session, role))
	if err != nil {
		return nil, "", err
	}
	if len(files) == 0 {
		return nil, "", errs.Newf(errs.CodeNotFound, "no autosave for %s in session %s", role, session)
	}
	slices.Sort(files)
	newest := files[len(files)-1]

	data, err := os.ReadFile(newest)
	if err != nil {
		return nil, "", err
	}
	return data, strings.TrimPrefix(newest, s.dir+string(filepath.Separator)), nil
}
