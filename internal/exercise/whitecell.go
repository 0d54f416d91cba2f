/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exercise

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
)

type RulingInput struct {
	Subject   string                       `json:"subject"`
	Ruling    string                       `json:"ruling"`
	Rationale string                       `json:"rationale"`
	Impact    map[string]model.ImpactLevel `json:"impact"`
	ActionID  string                       `json:"action_id"`
}

// AddRuling records a White Cell ruling, optionally tied to an action of the
// same move.
func (s *Service) AddRuling(ctx context.Context, session string, move int, in RulingInput) (model.Ruling, error) {
	now := s.Now()
	r := model.Ruling{
		ID:        s.newID(),
		SessionID: session,
		Move:      move,
		Subject:   strings.TrimSpace(in.Subject),
		Ruling:    strings.TrimSpace(in.Ruling),
		Rationale: strings.TrimSpace(in.Rationale),
		Impact:    map[string]model.ImpactLevel{},
		ActionID:  strings.TrimSpace(in.ActionID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	maps.Copy(r.Impact, in.Impact)
	if err := r.Validate(); err != nil {
		return model.Ruling{}, err
	}

	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.Ruling{}, err
	}
	r.Phase = phase

	team := DefaultTeam
	if r.ActionID != "" {
		actions, err := store.List[model.Action](ctx, s.layer, keys.Move(session, keys.Actions, move))
		if err != nil {
			return model.Ruling{}, storeErr(err, "actions")
		}
		i := slices.IndexFunc(actions, func(a model.Action) bool { return a.ID == r.ActionID })
		if i < 0 {
			return model.Ruling{}, errs.Newf(errs.CodeNotFound, "action %s not found in move %d", r.ActionID, move)
		}
		team = actions[i].Team
	}

	if err := appendRecord(ctx, s, keys.Move(session, keys.WhiteCellRulings, move), r); err != nil {
		return model.Ruling{}, storeErr(err, "ruling")
	}

	content := fmt.Sprintf("Ruling on %s: %s", r.Subject, r.Ruling)
	if err := s.appendTimeline(ctx, session, move, phase, model.TimelineRuling, team, content, model.WhiteCell, r.ID); err != nil {
		return r, err
	}

	s.logger.Info("ruling added", zap.String("session", session), zap.String("ruling", r.ID), zap.Int("move", move))
	return r, nil
}

func (s *Service) ListRulings(ctx context.Context, session string, move int) ([]model.Ruling, error) {
	return list[model.Ruling](ctx, s, session, keys.WhiteCellRulings, move)
}

type CommunicationInput struct {
	To      string                  `json:"to"`
	Kind    model.CommunicationKind `json:"kind"`
	Content string                  `json:"content"`
}

// SendCommunication delivers a White Cell message to a team.
func (s *Service) SendCommunication(ctx context.Context, session string, move int, in CommunicationInput) (model.Communication, error) {
	now := s.Now()
	c := model.Communication{
		ID:        s.newID(),
		SessionID: session,
		Move:      move,
		From:      model.WhiteCell,
		To:        strings.TrimSpace(in.To),
		Kind:      in.Kind,
		Content:   strings.TrimSpace(in.Content),
		Timestamp: now,
		UpdatedAt: now,
	}
	if c.Kind == "" {
		c.Kind = model.CommGuidance
	}
	if err := c.Validate(); err != nil {
		return model.Communication{}, err
	}

	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.Communication{}, err
	}
	c.Phase = phase

	if err := appendRecord(ctx, s, keys.Move(session, keys.Communications, move), c); err != nil {
		return model.Communication{}, storeErr(err, "communication")
	}

	content := fmt.Sprintf("%s to %s: %s", c.Kind, c.To, c.Content)
	if err := s.appendTimeline(ctx, session, move, phase, model.TimelineWhiteFeedback, c.To, content, model.WhiteCell, c.ID); err != nil {
		return c, err
	}

	s.logger.Info("communication sent", zap.String("session", session), zap.String("to", c.To), zap.String("kind", string(c.Kind)))
	return c, nil
}

// ListCommunications returns the messages of a move, optionally only those
// addressed to recipient.
func (s *Service) ListCommunications(ctx context.Context, session string, move int, recipient string) ([]model.Communication, error) {
	comms, err := list[model.Communication](ctx, s, session, keys.Communications, move)
	if err != nil || recipient == "" {
		return comms, err
	}
	return slices.DeleteFunc(comms, func(c model.Communication) bool {
		return c.To != recipient && c.To != "all"
	}), nil
}
