/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exercise

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
	"github.com/Seednode/warroom/internal/timer"
)

func (s *Service) CreateSession(ctx context.Context, name string) (model.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Session{}, errs.Invalid("name", "session name is required")
	}

	now := s.Now()
	sess := model.Session{
		ID:     s.newID(),
		Name:   name,
		Status: model.SessionActive,
		Metadata: model.SessionMetadata{
			Participants: map[model.Role]string{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !keys.ValidID(sess.ID) {
		return model.Session{}, errs.Newf(errs.CodeInvalid, "generated session id %q cannot be used in keys", sess.ID)
	}

	if err := appendRecord(ctx, s, keys.Sessions, sess); err != nil {
		return model.Session{}, storeErr(err, "session")
	}
	if err := s.initSession(ctx, sess.ID); err != nil {
		return model.Session{}, err
	}

	s.logger.Info("session created", zap.String("session", sess.ID), zap.String("name", name))
	return sess, nil
}

func (s *Service) initSession(ctx context.Context, id string) error {
	if err := store.SetJSON(ctx, s.layer, keys.Session(id, keys.GameState), model.InitialGameState(s.Now())); err != nil {
		return storeErr(err, "game state")
	}
	if err := store.SetJSON(ctx, s.layer, keys.Session(id, keys.Timer), timer.New(timer.DefaultSeconds)); err != nil {
		return storeErr(err, "timer")
	}
	return nil
}

// ListSessions returns every session, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]model.Session, error) {
	sessions, err := store.List[model.Session](ctx, s.layer, keys.Sessions)
	if err != nil {
		return nil, storeErr(err, "sessions")
	}
	slices.SortStableFunc(sessions, func(a, b model.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sessions, nil
}

// ActiveSessions returns the sessions that are not archived.
func (s *Service) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(sessions, func(sess model.Session) bool {
		return sess.Status != model.SessionActive
	}), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (model.Session, error) {
	sessions, err := store.List[model.Session](ctx, s.layer, keys.Sessions)
	if err != nil {
		return model.Session{}, storeErr(err, "sessions")
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return model.Session{}, errs.Newf(errs.CodeNotFound, "session %s not found", id)
}

func (s *Service) updateSession(ctx context.Context, id string, fn func(*model.Session) error) (model.Session, error) {
	var updated model.Session
	_, err := store.UpdateList(ctx, s.layer, keys.Sessions, func(sessions []model.Session) ([]model.Session, error) {
		i := slices.IndexFunc(sessions, func(sess model.Session) bool { return sess.ID == id })
		if i < 0 {
			return nil, errs.Newf(errs.CodeNotFound, "session %s not found", id)
		}
		if err := fn(&sessions[i]); err != nil {
			return nil, err
		}
		sessions[i].UpdatedAt = s.Now()
		updated = sessions[i]
		return sessions, nil
	})
	if err != nil {
		return model.Session{}, storeErr(err, "session")
	}
	return updated, nil
}

func (s *Service) ArchiveSession(ctx context.Context, id string) (model.Session, error) {
	sess, err := s.updateSession(ctx, id, func(sess *model.Session) error {
		sess.Status = model.SessionArchived
		return nil
	})
	if err == nil {
		s.logger.Info("session archived", zap.String("session", id))
	}
	return sess, err
}

// SetParticipant records who sits in role. An empty name clears the seat.
func (s *Service) SetParticipant(ctx context.Context, id string, role model.Role, name string) (model.Session, error) {
	if !role.Valid() {
		return model.Session{}, errs.Newf(errs.CodeRoleUnknown, "unknown role %q", role)
	}

	name = strings.TrimSpace(name)
	return s.updateSession(ctx, id, func(sess *model.Session) error {
		if sess.Metadata.Participants == nil {
			sess.Metadata.Participants = map[model.Role]string{}
		}
		if name == "" {
			delete(sess.Metadata.Participants, role)
			return nil
		}
		sess.Metadata.Participants[role] = name
		return nil
	})
}

// ResetMove clears every collection of one move.
func (s *Service) ResetMove(ctx context.Context, id string, move int) error {
	if err := model.ValidateMove(move); err != nil {
		return err
	}
	if _, err := s.writable(ctx, id); err != nil {
		return err
	}

	for _, key := range keys.MoveKeys(id, move) {
		if err := s.layer.Delete(ctx, key); err != nil {
			return storeErr(err, key)
		}
	}

	s.logger.Info("move reset", zap.String("session", id), zap.Int("move", move))
	return nil
}

// ResetSession clears every key of the session and restores the initial
// game state and timer. The session record itself is kept.
func (s *Service) ResetSession(ctx context.Context, id string) error {
	if _, err := s.writable(ctx, id); err != nil {
		return err
	}

	removed, err := s.layer.Reset(ctx, keys.SessionPrefix(id))
	if err != nil {
		return storeErr(err, "session")
	}
	if err := s.initSession(ctx, id); err != nil {
		return err
	}

	s.logger.Info("session reset", zap.String("session", id), zap.Int("keys", removed))
	return nil
}
