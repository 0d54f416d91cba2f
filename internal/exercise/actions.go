/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exercise

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
)

// ActionInput holds the facilitator-editable fields of an action.
type ActionInput struct {
	Team             string   `json:"team"`
	Mechanism        string   `json:"mechanism"`
	Sector           string   `json:"sector"`
	Exposure         string   `json:"exposure"`
	Targets          []string `json:"targets"`
	Goal             string   `json:"goal"`
	ExpectedOutcomes string   `json:"expected_outcomes"`
	Contingencies    string   `json:"contingencies"`
}

func (in ActionInput) apply(a *model.Action) {
	a.Team = teamOrDefault(strings.TrimSpace(in.Team))
	a.Mechanism = strings.TrimSpace(in.Mechanism)
	a.Sector = strings.TrimSpace(in.Sector)
	a.Exposure = strings.TrimSpace(in.Exposure)
	a.Goal = strings.TrimSpace(in.Goal)
	a.ExpectedOutcomes = in.ExpectedOutcomes
	a.Contingencies = in.Contingencies

	targets := []string{}
	for _, t := range in.Targets {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	a.Targets = targets
}

// CreateAction records a draft action in the current phase.
func (s *Service) CreateAction(ctx context.Context, session string, move int, in ActionInput) (model.Action, error) {
	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.Action{}, err
	}

	now := s.Now()
	a := model.Action{
		ID:        s.newID(),
		SessionID: session,
		Move:      move,
		Phase:     phase,
		Status:    model.ActionDraft,
		Targets:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(&a)

	if err := appendRecord(ctx, s, keys.Move(session, keys.Actions, move), a); err != nil {
		return model.Action{}, storeErr(err, "action")
	}

	s.logger.Debug("action created", zap.String("session", session), zap.String("action", a.ID), zap.Int("move", move))
	return a, nil
}

// updateAction applies fn to one action of a move and returns the result.
func (s *Service) updateAction(ctx context.Context, session string, move int, id string, fn func(*model.Action) error) (model.Action, error) {
	var updated model.Action
	_, err := store.UpdateList(ctx, s.layer, keys.Move(session, keys.Actions, move), func(actions []model.Action) ([]model.Action, error) {
		i := slices.IndexFunc(actions, func(a model.Action) bool { return a.ID == id })
		if i < 0 {
			return nil, errs.Newf(errs.CodeNotFound, "action %s not found in move %d", id, move)
		}
		if err := fn(&actions[i]); err != nil {
			return nil, err
		}
		actions[i].UpdatedAt = s.Now()
		updated = actions[i]
		return actions, nil
	})
	if err != nil {
		return model.Action{}, storeErr(err, "action")
	}
	return updated, nil
}

// UpdateAction edits a draft action.
func (s *Service) UpdateAction(ctx context.Context, session string, move int, id string, in ActionInput) (model.Action, error) {
	if _, err := s.moveScope(ctx, session, move); err != nil {
		return model.Action{}, err
	}

	return s.updateAction(ctx, session, move, id, func(a *model.Action) error {
		if a.Status != model.ActionDraft {
			return errs.Newf(errs.CodeInvalidTransition, "action %s is %s and can no longer be edited", id, a.Status)
		}
		in.apply(a)
		return nil
	})
}

// SubmitAction sends a complete draft to White Cell and notes it on the
// timeline.
func (s *Service) SubmitAction(ctx context.Context, session string, move int, id string) (model.Action, error) {
	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.Action{}, err
	}

	a, err := s.updateAction(ctx, session, move, id, func(a *model.Action) error {
		if a.Status != model.ActionDraft {
			return errs.Newf(errs.CodeInvalidTransition, "action %s is already %s", id, a.Status)
		}
		if err := a.ValidateSubmission(); err != nil {
			return err
		}
		now := s.Now()
		a.Status = model.ActionSubmitted
		a.SubmittedAt = &now
		return nil
	})
	if err != nil {
		return model.Action{}, err
	}

	content := fmt.Sprintf("Action submitted: %s targeting %s", a.Mechanism, strings.Join(a.Targets, ", "))
	if err := s.appendTimeline(ctx, session, move, phase, model.TimelineSubmission, a.Team, content, model.Facilitator, a.ID); err != nil {
		return a, err
	}

	s.logger.Info("action submitted", zap.String("session", session), zap.String("action", a.ID), zap.Int("move", move))
	return a, nil
}

func (s *Service) ListActions(ctx context.Context, session string, move int) ([]model.Action, error) {
	return list[model.Action](ctx, s, session, keys.Actions, move)
}

// FilterActions keeps the actions matching status and team. Empty values
// match everything.
func FilterActions(actions []model.Action, status model.ActionStatus, team string) []model.Action {
	out := make([]model.Action, 0, len(actions))
	for _, a := range actions {
		if status != "" && a.Status != status {
			continue
		}
		if team != "" && a.Team != team {
			continue
		}
		out = append(out, a)
	}
	return out
}

// AdjudicateAction records the White Cell outcome of a submitted action,
// along with a feedback record and a timeline entry.
func (s *Service) AdjudicateAction(ctx context.Context, session string, move int, id string, adj model.Adjudication) (model.Action, error) {
	if err := adj.Validate(); err != nil {
		return model.Action{}, err
	}
	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.Action{}, err
	}

	now := s.Now()
	adj.Narrative = strings.TrimSpace(adj.Narrative)
	adj.AdjudicatedAt = now
	if adj.Vulnerabilities == nil {
		adj.Vulnerabilities = []string{}
	}

	a, err := s.updateAction(ctx, session, move, id, func(a *model.Action) error {
		switch a.Status {
		case model.ActionSubmitted:
		case model.ActionAdjudicated:
			return errs.Newf(errs.CodeAdjudicationLocked, "action %s has already been adjudicated", id)
		default:
			return errs.Newf(errs.CodeInvalidTransition, "action %s must be submitted before adjudication", id)
		}
		a.Status = model.ActionAdjudicated
		a.Adjudication = &adj
		return nil
	})
	if err != nil {
		return model.Action{}, err
	}

	fb := model.Feedback{
		ID:        s.newID(),
		SessionID: session,
		Move:      move,
		ActionID:  a.ID,
		Team:      a.Team,
		Outcome:   adj.Outcome,
		Narrative: adj.Narrative,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := appendRecord(ctx, s, keys.Move(session, keys.WhiteCell, move), fb); err != nil {
		return a, storeErr(err, "feedback")
	}

	content := fmt.Sprintf("Adjudicated %s: %s", a.Mechanism, adj.Outcome)
	if err := s.appendTimeline(ctx, session, move, phase, model.TimelineRuling, a.Team, content, model.WhiteCell, a.ID); err != nil {
		return a, err
	}

	s.logger.Info("action adjudicated",
		zap.String("session", session),
		zap.String("action", a.ID),
		zap.String("outcome", string(adj.Outcome)))
	return a, nil
}

// ListFeedback returns the White Cell feedback records of a move.
func (s *Service) ListFeedback(ctx context.Context, session string, move int) ([]model.Feedback, error) {
	return list[model.Feedback](ctx, s, session, keys.WhiteCell, move)
}
