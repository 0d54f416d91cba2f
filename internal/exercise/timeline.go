/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exercise

import (
	"context"
	"slices"
	"strings"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
)

type TimelineInput struct {
	Type    model.TimelineType `json:"type"`
	Team    string             `json:"team"`
	Content string             `json:"content"`
}

// AddTimelineItem records a note, moment or quote from the notetaker.
func (s *Service) AddTimelineItem(ctx context.Context, session string, move int, in TimelineInput) (model.TimelineItem, error) {
	if !in.Type.Manual() {
		return model.TimelineItem{}, errs.Invalid("type", "type must be one of note, moment, quote")
	}
	phase, err := s.moveScope(ctx, session, move)
	if err != nil {
		return model.TimelineItem{}, err
	}

	item := s.timelineItem(session, move, phase, in.Type, in.Team, in.Content, model.Notetaker, "")
	if err := item.Validate(); err != nil {
		return model.TimelineItem{}, err
	}
	if err := appendRecord(ctx, s, keys.Move(session, keys.Timeline, move), item); err != nil {
		return model.TimelineItem{}, storeErr(err, "timeline")
	}
	return item, nil
}

func (s *Service) timelineItem(session string, move, phase int, typ model.TimelineType, team, content string, author model.Role, ref string) model.TimelineItem {
	now := s.Now()
	return model.TimelineItem{
		ID:         s.newID(),
		SessionID:  session,
		Move:       move,
		Phase:      phase,
		Type:       typ,
		Team:       teamOrDefault(strings.TrimSpace(team)),
		Content:    strings.TrimSpace(content),
		AuthorRole: author,
		RefID:      ref,
		Timestamp:  now,
		UpdatedAt:  now,
	}
}

func (s *Service) appendTimeline(ctx context.Context, session string, move, phase int, typ model.TimelineType, team, content string, author model.Role, ref string) error {
	item := s.timelineItem(session, move, phase, typ, team, content, author, ref)
	if err := appendRecord(ctx, s, keys.Move(session, keys.Timeline, move), item); err != nil {
		return storeErr(err, "timeline")
	}
	return nil
}

// Timeline returns the timeline of a move ordered by timestamp.
func (s *Service) Timeline(ctx context.Context, session string, move int) ([]model.TimelineItem, error) {
	items, err := list[model.TimelineItem](ctx, s, session, keys.Timeline, move)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, func(a, b model.TimelineItem) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return items, nil
}
