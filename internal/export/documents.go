/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package export assembles session data into downloadable documents.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/timer"
)

type Kind string

const (
	KindArchive    Kind = "archive"
	KindSubmission Kind = "submission"
	KindSnapshot   Kind = "autosave"
)

// Reader is the read side of the exercise service.
type Reader interface {
	Now() time.Time
	GetSession(ctx context.Context, id string) (model.Session, error)
	GameState(ctx context.Context, session string) (model.GameState, error)
	Timer(ctx context.Context, session string) (timer.Timer, error)
	ListActions(ctx context.Context, session string, move int) ([]model.Action, error)
	ListRFIs(ctx context.Context, session string, move int, status model.RequestStatus) ([]model.Request, error)
	Timeline(ctx context.Context, session string, move int) ([]model.TimelineItem, error)
	ListFeedback(ctx context.Context, session string, move int) ([]model.Feedback, error)
	ListRulings(ctx context.Context, session string, move int) ([]model.Ruling, error)
	ListCommunications(ctx context.Context, session string, move int, recipient string) ([]model.Communication, error)
}

// MoveData holds every collection of one move. Collections a document does
// not carry are left nil and omitted.
type MoveData struct {
	Move           int                   `json:"move" yaml:"move"`
	Actions        []model.Action        `json:"actions,omitempty" yaml:"actions,omitempty"`
	Requests       []model.Request       `json:"requests,omitempty" yaml:"requests,omitempty"`
	Timeline       []model.TimelineItem  `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	Feedback       []model.Feedback      `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	Rulings        []model.Ruling        `json:"rulings,omitempty" yaml:"rulings,omitempty"`
	Communications []model.Communication `json:"communications,omitempty" yaml:"communications,omitempty"`
}

// Archive is the full record of a session.
type Archive struct {
	Kind       Kind            `json:"kind" yaml:"kind"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Session    model.Session   `json:"session" yaml:"session"`
	GameState  model.GameState `json:"game_state" yaml:"game_state"`
	Timer      timer.Timer     `json:"timer" yaml:"timer"`
	Moves      []MoveData      `json:"moves" yaml:"moves"`
}

// Submission is what a facilitator hands in at the end of a move.
type Submission struct {
	Kind       Kind            `json:"kind" yaml:"kind"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	SessionID  string          `json:"session_id" yaml:"session_id"`
	Session    string          `json:"session_name" yaml:"session_name"`
	Move       int             `json:"move" yaml:"move"`
	Actions    []model.Action  `json:"actions" yaml:"actions"`
	Requests   []model.Request `json:"requests" yaml:"requests"`
}

// Snapshot is the state one role edits, saved periodically so work survives
// a lost browser.
type Snapshot struct {
	Kind       Kind            `json:"kind" yaml:"kind"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	SessionID  string          `json:"session_id" yaml:"session_id"`
	Role       model.Role      `json:"role" yaml:"role"`
	GameState  model.GameState `json:"game_state" yaml:"game_state"`
	Timer      *timer.Timer    `json:"timer,omitempty" yaml:"timer,omitempty"`
	Data       MoveData        `json:"data" yaml:"data"`
}

func BuildArchive(ctx context.Context, r Reader, session string) (Archive, error) {
	sess, err := r.GetSession(ctx, session)
	if err != nil {
		return Archive{}, err
	}
	state, err := r.GameState(ctx, session)
	if err != nil {
		return Archive{}, err
	}
	t, err := r.Timer(ctx, session)
	if err != nil {
		return Archive{}, err
	}

	a := Archive{
		Kind:       KindArchive,
		ExportedAt: r.Now(),
		Session:    sess,
		GameState:  state,
		Timer:      t,
		Moves:      make([]MoveData, 0, model.MaxMove),
	}

	for move := model.MinMove; move <= model.MaxMove; move++ {
		md, err := loadMove(ctx, r, session, move, allCollections)
		if err != nil {
			return Archive{}, err
		}
		a.Moves = append(a.Moves, md)
	}

	return a, nil
}

// BuildSubmission collects the submitted and adjudicated actions and the
// requests of one move.
func BuildSubmission(ctx context.Context, r Reader, session string, move int) (Submission, error) {
	sess, err := r.GetSession(ctx, session)
	if err != nil {
		return Submission{}, err
	}

	actions, err := r.ListActions(ctx, session, move)
	if err != nil {
		return Submission{}, err
	}
	requests, err := r.ListRFIs(ctx, session, move, "")
	if err != nil {
		return Submission{}, err
	}

	submitted := make([]model.Action, 0, len(actions))
	for _, a := range actions {
		if a.Status != model.ActionDraft {
			submitted = append(submitted, a)
		}
	}

	return Submission{
		Kind:       KindSubmission,
		ExportedAt: r.Now(),
		SessionID:  sess.ID,
		Session:    sess.Name,
		Move:       move,
		Actions:    submitted,
		Requests:   requests,
	}, nil
}

type collections uint8

const (
	withActions collections = 1 << iota
	withRequests
	withTimeline
	withFeedback
	withRulings
	withCommunications

	allCollections = withActions | withRequests | withTimeline | withFeedback | withRulings | withCommunications
)

// roleCollections lists what each role edits.
var roleCollections = map[model.Role]collections{
	model.Facilitator: withActions | withRequests,
	model.Notetaker:   withTimeline,
	model.WhiteCell:   withActions | withRequests | withFeedback | withRulings | withCommunications,
	model.GameMaster:  0,
}

// BuildSnapshot collects the current move's records edited by role.
func BuildSnapshot(ctx context.Context, r Reader, session string, role model.Role) (Snapshot, error) {
	set, ok := roleCollections[role]
	if !ok {
		return Snapshot{}, fmt.Errorf("no snapshot for role %q", role)
	}

	state, err := r.GameState(ctx, session)
	if err != nil {
		return Snapshot{}, err
	}

	s := Snapshot{
		Kind:       KindSnapshot,
		ExportedAt: r.Now(),
		SessionID:  session,
		Role:       role,
		GameState:  state,
	}

	if role == model.GameMaster {
		t, err := r.Timer(ctx, session)
		if err != nil {
			return Snapshot{}, err
		}
		s.Timer = &t
	}

	s.Data, err = loadMove(ctx, r, session, state.Move, set)
	if err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func loadMove(ctx context.Context, r Reader, session string, move int, set collections) (MoveData, error) {
	md := MoveData{Move: move}
	var err error

	if set&withActions != 0 {
		if md.Actions, err = r.ListActions(ctx, session, move); err != nil {
			return MoveData{}, err
		}
	}
	if set&withRequests != 0 {
		if md.Requests, err = r.ListRFIs(ctx, session, move, ""); err != nil {
			return MoveData{}, err
		}
	}
	if set&withTimeline != 0 {
		if md.Timeline, err = r.Timeline(ctx, session, move); err != nil {
			return MoveData{}, err
		}
	}
	if set&withFeedback != 0 {
		if md.Feedback, err = r.ListFeedback(ctx, session, move); err != nil {
			return MoveData{}, err
		}
	}
	if set&withRulings != 0 {
		if md.Rulings, err = r.ListRulings(ctx, session, move); err != nil {
			return MoveData{}, err
		}
	}
	if set&withCommunications != 0 {
		if md.Communications, err = r.ListCommunications(ctx, session, move, ""); err != nil {
			return MoveData{}, err
		}
	}

	return md, nil
}
