/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hub

import (
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
	"github.com/Seednode/warroom/internal/timer"
)

// Messages coming from clients
type ClientMessage struct {
	Type string     `json:"type"`           // "claim_role", "takeover", "release_role"
	Role model.Role `json:"role,omitempty"` // all
	Name string     `json:"name,omitempty"` // claim_role / takeover
}

// Messages sent to clients

type SessionInfoMessage struct {
	Type      string                `json:"type"` // "session_info"
	Session   string                `json:"session"`
	Roles     []model.Role          `json:"roles"` // held by this client
	Holders   map[model.Role]string `json:"holders"`
	GameState model.GameState       `json:"game_state"`
	Timer     timer.Timer           `json:"timer"`
}

type RolesMessage struct {
	Type    string                `json:"type"` // "roles"
	Holders map[model.Role]string `json:"holders"`
}

type RoleMessage struct {
	Type   string     `json:"type"` // "role_granted", "role_taken", "role_revoked"
	Role   model.Role `json:"role"`
	Holder string     `json:"holder,omitempty"`
}

type ChangeMessage struct {
	Type   string       `json:"type"` // "change"
	Change store.Change `json:"change"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
