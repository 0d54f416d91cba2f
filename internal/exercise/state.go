/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exercise

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
	"github.com/Seednode/warroom/internal/timer"
)

// GameState returns the current move and phase. Sessions that never stored
// one report the initial state.
func (s *Service) GameState(ctx context.Context, session string) (model.GameState, error) {
	var state model.GameState
	err := store.GetJSON(ctx, s.layer, keys.Session(session, keys.GameState), &state)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return model.InitialGameState(s.Now()), nil
	case err != nil:
		return model.GameState{}, storeErr(err, "game state")
	}
	if state.Validate() != nil {
		s.logger.Warn("stored game state out of range, using initial state",
			zap.String("session", session),
			zap.Int("move", state.Move),
			zap.Int("phase", state.Phase))
		return model.InitialGameState(s.Now()), nil
	}
	return state, nil
}

// SetGameState jumps directly to move and phase.
func (s *Service) SetGameState(ctx context.Context, session string, move, phase int) (model.GameState, error) {
	next := model.GameState{Move: move, Phase: phase, UpdatedAt: s.Now()}
	if err := next.Validate(); err != nil {
		return model.GameState{}, err
	}
	if _, err := s.writable(ctx, session); err != nil {
		return model.GameState{}, err
	}

	if err := store.SetJSON(ctx, s.layer, keys.Session(session, keys.GameState), next); err != nil {
		return model.GameState{}, storeErr(err, "game state")
	}

	s.logger.Info("game state set", zap.String("session", session), zap.Int("move", move), zap.Int("phase", phase))
	return next, nil
}

// AdvancePhase moves to the next phase, rolling over into the first phase of
// the next move after the last phase.
func (s *Service) AdvancePhase(ctx context.Context, session string) (model.GameState, error) {
	if _, err := s.writable(ctx, session); err != nil {
		return model.GameState{}, err
	}

	state, err := store.UpdateJSON(ctx, s.layer, keys.Session(session, keys.GameState), func(g *model.GameState, found bool) error {
		if !found || g.Validate() != nil {
			*g = model.InitialGameState(s.Now())
		}

		switch {
		case g.Phase < model.MaxPhase:
			g.Phase++
		case g.Move < model.MaxMove:
			g.Move++
			g.Phase = model.MinPhase
		default:
			return errs.New(errs.CodeExerciseComplete, "the final phase of the final move is already underway")
		}
		g.UpdatedAt = s.Now()
		return nil
	})
	if err != nil {
		return model.GameState{}, storeErr(err, "game state")
	}

	s.logger.Info("phase advanced", zap.String("session", session), zap.Int("move", state.Move), zap.Int("phase", state.Phase))
	return state, nil
}

// Timer returns the shared countdown evaluated at the current time.
func (s *Service) Timer(ctx context.Context, session string) (timer.Timer, error) {
	var t timer.Timer
	err := store.GetJSON(ctx, s.layer, keys.Session(session, keys.Timer), &t)
	switch {
	case errors.Is(err, store.ErrNotFound):
		t = timer.New(timer.DefaultSeconds)
	case err != nil:
		return timer.Timer{}, storeErr(err, "timer")
	}
	return t.Snapshot(s.Now()), nil
}

func (s *Service) updateTimer(ctx context.Context, session string, fn func(timer.Timer) timer.Timer) (timer.Timer, error) {
	if _, err := s.writable(ctx, session); err != nil {
		return timer.Timer{}, err
	}

	t, err := store.UpdateJSON(ctx, s.layer, keys.Session(session, keys.Timer), func(t *timer.Timer, found bool) error {
		if !found {
			*t = timer.New(timer.DefaultSeconds)
		}
		*t = fn(*t)
		return nil
	})
	if err != nil {
		return timer.Timer{}, storeErr(err, "timer")
	}
	return t.Snapshot(s.Now()), nil
}

// StartTimer runs the countdown. A positive seconds value restarts it with
// that length.
func (s *Service) StartTimer(ctx context.Context, session string, seconds int) (timer.Timer, error) {
	if seconds < 0 {
		return timer.Timer{}, errs.Invalid("seconds", "seconds must not be negative")
	}
	return s.updateTimer(ctx, session, func(t timer.Timer) timer.Timer {
		return t.Start(s.Now(), seconds)
	})
}

func (s *Service) PauseTimer(ctx context.Context, session string) (timer.Timer, error) {
	return s.updateTimer(ctx, session, func(t timer.Timer) timer.Timer {
		return t.Pause(s.Now())
	})
}

func (s *Service) ResetTimer(ctx context.Context, session string) (timer.Timer, error) {
	return s.updateTimer(ctx, session, func(t timer.Timer) timer.Timer {
		return t.Reset()
	})
}
