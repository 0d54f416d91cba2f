/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package model defines the exercise records and their field-level checks.
package model

import (
	"time"
)

const (
	MinMove  = 1
	MaxMove  = 3
	MinPhase = 1
	MaxPhase = 5

	// MinNarrative is the shortest adjudication narrative accepted.
	MinNarrative = 20
)

// Role is one of the seats at the exercise.
type Role string

const (
	Facilitator Role = "facilitator"
	Notetaker   Role = "notetaker"
	WhiteCell   Role = "whitecell"
	GameMaster  Role = "gamemaster"
)

// Roles lists every role in display order.
var Roles = []Role{Facilitator, Notetaker, WhiteCell, GameMaster}

func (r Role) Valid() bool {
	switch r {
	case Facilitator, Notetaker, WhiteCell, GameMaster:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
)

type SessionMetadata struct {
	Participants map[Role]string `json:"participants" yaml:"participants"`
}

type Session struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Status    SessionStatus   `json:"status" yaml:"status"`
	Metadata  SessionMetadata `json:"metadata" yaml:"metadata"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`
}

type ActionStatus string

const (
	ActionDraft       ActionStatus = "draft"
	ActionSubmitted   ActionStatus = "submitted"
	ActionAdjudicated ActionStatus = "adjudicated"
)

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeFailure        Outcome = "failure"
	OutcomeBackfire       Outcome = "backfire"
)

type Adjudication struct {
	Outcome         Outcome   `json:"outcome" yaml:"outcome"`
	Narrative       string    `json:"narrative" yaml:"narrative"`
	Vulnerabilities []string  `json:"vulnerabilities" yaml:"vulnerabilities"`
	AdjudicatedAt   time.Time `json:"adjudicated_at" yaml:"adjudicated_at"`
}

type Action struct {
	ID               string        `json:"id" yaml:"id"`
	SessionID        string        `json:"session_id" yaml:"session_id"`
	Move             int           `json:"move" yaml:"move"`
	Phase            int           `json:"phase" yaml:"phase"`
	Team             string        `json:"team" yaml:"team"`
	Mechanism        string        `json:"mechanism" yaml:"mechanism"`
	Sector           string        `json:"sector" yaml:"sector"`
	Exposure         string        `json:"exposure" yaml:"exposure"`
	Targets          []string      `json:"targets" yaml:"targets"`
	Goal             string        `json:"goal" yaml:"goal"`
	ExpectedOutcomes string        `json:"expected_outcomes" yaml:"expected_outcomes"`
	Contingencies    string        `json:"contingencies" yaml:"contingencies"`
	Status           ActionStatus  `json:"status" yaml:"status"`
	Adjudication     *Adjudication `json:"adjudication,omitempty" yaml:"adjudication,omitempty"`
	CreatedAt        time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" yaml:"updated_at"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty" yaml:"submitted_at,omitempty"`
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAnswered RequestStatus = "answered"
)

// Request is an information request sent by a team to White Cell.
type Request struct {
	ID         string        `json:"id" yaml:"id"`
	SessionID  string        `json:"session_id" yaml:"session_id"`
	Move       int           `json:"move" yaml:"move"`
	Phase      int           `json:"phase" yaml:"phase"`
	Team       string        `json:"team" yaml:"team"`
	Categories []string      `json:"categories" yaml:"categories"`
	Priority   Priority      `json:"priority" yaml:"priority"`
	Details    string        `json:"details" yaml:"details"`
	Status     RequestStatus `json:"status" yaml:"status"`
	Response   string        `json:"response,omitempty" yaml:"response,omitempty"`
	CreatedAt  time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" yaml:"updated_at"`
	AnsweredAt *time.Time    `json:"answered_at,omitempty" yaml:"answered_at,omitempty"`
}

type TimelineType string

const (
	TimelineNote          TimelineType = "note"
	TimelineMoment        TimelineType = "moment"
	TimelineQuote         TimelineType = "quote"
	TimelineRequestInfo   TimelineType = "requestinfo"
	TimelineWhiteFeedback TimelineType = "white_feedback"
	TimelineRuling        TimelineType = "ruling"
	TimelineAction        TimelineType = "action"
	TimelineSubmission    TimelineType = "submission"
)

func (t TimelineType) Valid() bool {
	switch t {
	case TimelineNote, TimelineMoment, TimelineQuote, TimelineRequestInfo,
		TimelineWhiteFeedback, TimelineRuling, TimelineAction, TimelineSubmission:
		return true
	}
	return false
}

// Manual reports whether a notetaker may record items of this type directly.
func (t TimelineType) Manual() bool {
	return t == TimelineNote || t == TimelineMoment || t == TimelineQuote
}

type TimelineItem struct {
	ID         string       `json:"id" yaml:"id"`
	SessionID  string       `json:"session_id" yaml:"session_id"`
	Move       int          `json:"move" yaml:"move"`
	Phase      int          `json:"phase" yaml:"phase"`
	Type       TimelineType `json:"type" yaml:"type"`
	Team       string       `json:"team" yaml:"team"`
	Content    string       `json:"content" yaml:"content"`
	AuthorRole Role         `json:"author_role" yaml:"author_role"`
	RefID      string       `json:"ref_id,omitempty" yaml:"ref_id,omitempty"`
	Timestamp  time.Time    `json:"timestamp" yaml:"timestamp"`
	UpdatedAt  time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Feedback is the White Cell record written alongside an adjudication.
type Feedback struct {
	ID        string    `json:"id" yaml:"id"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	Move      int       `json:"move" yaml:"move"`
	ActionID  string    `json:"action_id" yaml:"action_id"`
	Team      string    `json:"team" yaml:"team"`
	Outcome   Outcome   `json:"outcome" yaml:"outcome"`
	Narrative string    `json:"narrative" yaml:"narrative"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

type ImpactLevel string

const (
	ImpactNone   ImpactLevel = "none"
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

type Ruling struct {
	ID        string                 `json:"id" yaml:"id"`
	SessionID string                 `json:"session_id" yaml:"session_id"`
	Move      int                    `json:"move" yaml:"move"`
	Phase     int                    `json:"phase" yaml:"phase"`
	Subject   string                 `json:"subject" yaml:"subject"`
	Ruling    string                 `json:"ruling" yaml:"ruling"`
	Rationale string                 `json:"rationale" yaml:"rationale"`
	Impact    map[string]ImpactLevel `json:"impact" yaml:"impact"`
	ActionID  string                 `json:"action_id,omitempty" yaml:"action_id,omitempty"`
	CreatedAt time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" yaml:"updated_at"`
}

type CommunicationKind string

const (
	CommInject   CommunicationKind = "inject"
	CommGuidance CommunicationKind = "guidance"
	CommResponse CommunicationKind = "response"
)

type Communication struct {
	ID        string            `json:"id" yaml:"id"`
	SessionID string            `json:"session_id" yaml:"session_id"`
	Move      int               `json:"move" yaml:"move"`
	Phase     int               `json:"phase" yaml:"phase"`
	From      Role              `json:"from" yaml:"from"`
	To        string            `json:"to" yaml:"to"`
	Kind      CommunicationKind `json:"kind" yaml:"kind"`
	Content   string            `json:"content" yaml:"content"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"updated_at"`
}

type GameState struct {
	Move      int       `json:"move" yaml:"move"`
	Phase     int       `json:"phase" yaml:"phase"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// InitialGameState is the state of a freshly created session.
func InitialGameState(now time.Time) GameState {
	return GameState{Move: MinMove, Phase: MinPhase, UpdatedAt: now}
}
