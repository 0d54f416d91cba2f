/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package keys builds and parses the composite storage keys that namespace
// exercise records by session, move and role.
package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// Sessions is the global key holding every session record.
const Sessions = "sessions"

const (
	GameState = "sharedGameState"
	Timer     = "sharedTimer"
	Broadcast = "sharedBroadcast"
)

// Collection names a per-move list of records.
type Collection string

const (
	Actions          Collection = "actions"
	Requests         Collection = "requests"
	Timeline         Collection = "timeline"
	WhiteCell        Collection = "whiteCell"
	WhiteCellRulings Collection = "whiteCellRulings"
	Communications   Collection = "communications"
)

// Collections lists every per-move collection in export order.
var Collections = []Collection{
	Actions,
	Requests,
	Timeline,
	WhiteCell,
	WhiteCellRulings,
	Communications,
}

const (
	sessionPrefix = "session_"
	moveInfix     = "_move_"
	autosaveName  = "autosave_"
)

// Ref is the parsed form of a session-scoped key.
type Ref struct {
	Session    string
	Name       string
	Collection Collection
	Move       int
	Role       string
}

// ValidID reports whether id can be embedded in a key.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "_/ \t\n")
}

// SessionPrefix is the prefix shared by every key of a session.
func SessionPrefix(session string) string {
	return sessionPrefix + session + "_"
}

// Session builds a session-scoped key such as session_{id}_sharedGameState.
func Session(session, name string) string {
	return SessionPrefix(session) + name
}

// Move builds a per-move collection key such as session_{id}_actions_move_2.
func Move(session string, c Collection, move int) string {
	return SessionPrefix(session) + string(c) + moveInfix + strconv.Itoa(move)
}

// MoveKeys lists the key of every collection of one move. The move number is
// a suffix, so no single prefix selects a move.
func MoveKeys(session string, move int) []string {
	out := make([]string, 0, len(Collections))
	for _, c := range Collections {
		out = append(out, Move(session, c, move))
	}
	return out
}

// Autosave builds the key that stores the latest auto-save snapshot of role.
func Autosave(session, role string) string {
	return Session(session, autosaveName+role)
}

// Parse splits a session-scoped key into its parts.
func Parse(key string) (Ref, error) {
	rest, ok := strings.CutPrefix(key, sessionPrefix)
	if !ok {
		return Ref{}, fmt.Errorf("key %q is not session scoped", key)
	}

	session, name, ok := strings.Cut(rest, "_")
	if !ok || session == "" || name == "" {
		return Ref{}, fmt.Errorf("key %q has no name", key)
	}

	ref := Ref{Session: session, Name: name}

	if i := strings.LastIndex(name, moveInfix); i > 0 {
		move, err := strconv.Atoi(name[i+len(moveInfix):])
		if err != nil {
			return Ref{}, fmt.Errorf("key %q has invalid move: %w", key, err)
		}
		ref.Collection = Collection(name[:i])
		ref.Move = move
		return ref, nil
	}

	if role, ok := strings.CutPrefix(name, autosaveName); ok {
		ref.Role = role
	}

	return ref, nil
}
