/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package model

import (
	"strings"
	"unicode/utf8"

	"github.com/Seednode/warroom/internal/errs"
)

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func ValidateMove(move int) error {
	if move < MinMove || move > MaxMove {
		return errs.Invalid("move", "move must be between 1 and 3")
	}
	return nil
}

func ValidatePhase(phase int) error {
	if phase < MinPhase || phase > MaxPhase {
		return errs.Invalid("phase", "phase must be between 1 and 5")
	}
	return nil
}

func (g GameState) Validate() error {
	if err := ValidateMove(g.Move); err != nil {
		return err
	}
	return ValidatePhase(g.Phase)
}

// ValidateSubmission checks the fields a facilitator must fill before an
// action leaves draft.
func (a *Action) ValidateSubmission() error {
	switch {
	case blank(a.Mechanism):
		return errs.Invalid("mechanism", "mechanism is required")
	case blank(a.Sector):
		return errs.Invalid("sector", "sector is required")
	case blank(a.Goal):
		return errs.Invalid("goal", "goal is required")
	}

	for _, t := range a.Targets {
		if !blank(t) {
			return nil
		}
	}
	return errs.Invalid("targets", "at least one target is required")
}

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomePartialSuccess, OutcomeFailure, OutcomeBackfire:
		return true
	}
	return false
}

func (a Adjudication) Validate() error {
	if !a.Outcome.Valid() {
		return errs.Invalid("outcome", "outcome must be one of success, partial_success, failure, backfire")
	}
	if utf8.RuneCountInString(strings.TrimSpace(a.Narrative)) < MinNarrative {
		return errs.Invalid("narrative", "narrative must be at least 20 characters")
	}
	return nil
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func (r *Request) Validate() error {
	categories := 0
	for _, c := range r.Categories {
		if !blank(c) {
			categories++
		}
	}
	switch {
	case categories == 0:
		return errs.Invalid("categories", "select at least one category")
	case !r.Priority.Valid():
		return errs.Invalid("priority", "priority must be one of low, medium, high, urgent")
	case blank(r.Details):
		return errs.Invalid("details", "details are required")
	}
	return nil
}

func (t *TimelineItem) Validate() error {
	if !t.Type.Valid() {
		return errs.Invalid("type", "unknown timeline type")
	}
	if blank(t.Content) {
		return errs.Invalid("content", "content is required")
	}
	return nil
}

func (l ImpactLevel) Valid() bool {
	switch l {
	case ImpactNone, ImpactLow, ImpactMedium, ImpactHigh:
		return true
	}
	return false
}

func (r *Ruling) Validate() error {
	switch {
	case blank(r.Subject):
		return errs.Invalid("subject", "subject is required")
	case blank(r.Ruling):
		return errs.Invalid("ruling", "ruling text is required")
	}

	for dimension, level := range r.Impact {
		if blank(dimension) {
			return errs.Invalid("impact", "impact dimension must be named")
		}
		if !level.Valid() {
			return errs.Invalid("impact", "impact level for "+dimension+" must be one of none, low, medium, high")
		}
	}
	return nil
}

func (k CommunicationKind) Valid() bool {
	switch k {
	case CommInject, CommGuidance, CommResponse:
		return true
	}
	return false
}

func (c *Communication) Validate() error {
	switch {
	case blank(c.To):
		return errs.Invalid("to", "recipient is required")
	case blank(c.Content):
		return errs.Invalid("content", "content is required")
	case !c.Kind.Valid():
		return errs.Invalid("kind", "kind must be one of inject, guidance, response")
	}
	return nil
}
