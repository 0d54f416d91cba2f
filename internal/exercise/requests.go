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

type RequestInput struct {
	Team       string         `json:"team"`
	Categories []string       `json:"categories"`
	Priority   model.Priority `json:"priority"`
	Details    string         `json:"details"`
}

// CreateRFI files a pending request for information with White Cell.
func (s *Service) CreateRFI(ctx context.Context, session string, move int, in RequestInput) (model.Request, error) {
	now := s.Now()
	r := model.Request{
		ID:         s.newID(),
		SessionID:  session,
		Move:       move,
		Team:       teamOrDefault(strings.TrimSpace(in.Team)),
		Categories: []string{},
		Priority:   in.Priority,
		Details:    strings.TrimSpace(in.Details),
		Status:     model.RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, c := range in.Categories {
		if c = strings.TrimSpace(c); c != "" {
			r.Categories = append(r.Categories, c)
		}
	}
	if r.Priority == "" {
		r.Priority = model.PriorityMedium
	}
	if err := r.Validate(); err != nil {
		return model.Request{}, err
	}

	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.Request{}, err
	}
	r.Phase = phase

	if err := appendRecord(ctx, s, keys.Move(session, keys.Requests, move), r); err != nil {
		return model.Request{}, storeErr(err, "request")
	}

	content := fmt.Sprintf("RFI (%s): %s", r.Priority, r.Details)
	if err := s.appendTimeline(ctx, session, move, phase, model.TimelineRequestInfo, r.Team, content, model.Facilitator, r.ID); err != nil {
		return r, err
	}

	s.logger.Info("rfi created", zap.String("session", session), zap.String("rfi", r.ID), zap.String("priority", string(r.Priority)))
	return r, nil
}

// AnswerRFI records the White Cell response to a pending request.
func (s *Service) AnswerRFI(ctx context.Context, session string, move int, id, response string) (model.Request, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return model.Request{}, errs.Invalid("response", "response is required")
	}
	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.Request{}, err
	}

	var answered model.Request
	_, err = store.UpdateList(ctx, s.layer, keys.Move(session, keys.Requests, move), func(reqs []model.Request) ([]model.Request, error) {
		i := slices.IndexFunc(reqs, func(r model.Request) bool { return r.ID == id })
		if i < 0 {
			return nil, errs.Newf(errs.CodeNotFound, "request %s not found in move %d", id, move)
		}
		if reqs[i].Status != model.RequestPending {
			return nil, errs.Newf(errs.CodeInvalidTransition, "request %s has already been answered", id)
		}

		now := s.Now()
		reqs[i].Status = model.RequestAnswered
		reqs[i].Response = response
		reqs[i].AnsweredAt = &now
		reqs[i].UpdatedAt = now
		answered = reqs[i]
		return reqs, nil
	})
	if err != nil {
		return model.Request{}, storeErr(err, "request")
	}

	content := fmt.Sprintf("RFI answered: %s", response)
	if err := s.appendTimeline(ctx, session, move, phase, model.TimelineWhiteFeedback, answered.Team, content, model.WhiteCell, answered.ID); err != nil {
		return answered, err
	}

	s.logger.Info("rfi answered", zap.String("session", session), zap.String("rfi", id))
	return answered, nil
}

// ListRFIs returns the requests of a move, optionally only those with status.
func (s *Service) ListRFIs(ctx context.Context, session string, move int, status model.RequestStatus) ([]model.Request, error) {
	reqs, err := list[model.Request](ctx, s, session, keys.Requests, move)
	if err != nil || status == "" {
		return reqs, err
	}
	return slices.DeleteFunc(reqs, func(r model.Request) bool { return r.Status != status }), nil
}
