/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package exercise implements the operations of the four exercise roles on
// top of the storage layer. Records are read and written as whole lists per
// key; status fields are plain strings changed in place.
package exercise

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
)

// DefaultTeam is used when a record names no team.
const DefaultTeam = "blue"

type Service struct {
	layer  *store.Layer
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(layer *store.Layer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		layer:  layer,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layer exposes the storage layer the service writes through.
func (s *Service) Layer() *store.Layer { return s.layer }

// Now is the service clock.
func (s *Service) Now() time.Time { return s.now().UTC() }

// storeErr translates storage sentinels into coded errors.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return errs.Wrap(errs.CodeNotFound, what+" not found", err)
	case errors.Is(err, store.ErrQuotaExceeded):
		return errs.Wrap(errs.CodeQuotaExceeded, "local storage is full; export and reset old sessions", err)
	case errs.CodeOf(err) != errs.CodeUnknown:
		return err
	default:
		return errs.Wrap(errs.CodeUnavailable, "saving "+what, err)
	}
}

func teamOrDefault(team string) string {
	if team == "" {
		return DefaultTeam
	}
	return team
}

// writable loads session id and refuses archived sessions.
func (s *Service) writable(ctx context.Context, id string) (model.Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Status == model.SessionArchived {
		return model.Session{}, errs.Newf(errs.CodeSessionArchived, "session %s is archived", id)
	}
	return sess, nil
}

// moveScope validates a move and returns the current phase of the session.
func (s *Service) moveScope(ctx context.Context, session string, move int) (int, error) {
	if err := model.ValidateMove(move); err != nil {
		return 0, err
	}
	if _, err := s.writable(ctx, session); err != nil {
		return 0, err
	}
	state, err := s.GameState(ctx, session)
	if err != nil {
		return 0, err
	}
	return state.Phase, nil
}

// readScope validates a move for listing and checks the session exists.
func (s *Service) readScope(ctx context.Context, session string, move int) error {
	if err := model.ValidateMove(move); err != nil {
		return err
	}
	_, err := s.GetSession(ctx, session)
	return err
}

func list[T any](ctx context.Context, s *Service, session string, c keys.Collection, move int) ([]T, error) {
	if err := s.readScope(ctx, session, move); err != nil {
		return nil, err
	}
	items, err := store.List[T](ctx, s.layer, keys.Move(session, c, move))
	if err != nil {
		return nil, storeErr(err, string(c))
	}
	return items, nil
}

func appendRecord[T any](ctx context.Context, s *Service, key string, rec T) error {
	_, err := store.UpdateList(ctx, s.layer, key, func(items []T) ([]T, error) {
		return append(items, rec), nil
	})
	return err
}
