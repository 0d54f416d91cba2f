/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveKeys(t *testing.T) {
	assert.Equal(t, "session_abc_actions_move_1", Move("abc", Actions, 1))
	assert.Equal(t, "session_abc_whiteCell_move_2", Move("abc", WhiteCell, 2))
	assert.Equal(t, "session_abc_whiteCellRulings_move_3", Move("abc", WhiteCellRulings, 3))
	assert.Equal(t, "session_abc_communications_move_1", Move("abc", Communications, 1))
	assert.Equal(t, "session_abc_sharedGameState", Session("abc", GameState))
}

func TestMoveKeysCoverEveryCollection(t *testing.T) {
	got := MoveKeys("abc", 2)
	require.Len(t, got, len(Collections))
	assert.Equal(t, "session_abc_actions_move_2", got[0])
	for i, key := range got {
		ref, err := Parse(key)
		require.NoError(t, err)
		assert.Equal(t, Collections[i], ref.Collection)
		assert.Equal(t, 2, ref.Move)
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, c := range Collections {
		for move := 1; move <= 3; move++ {
			ref, err := Parse(Move("7f3c-11aa", c, move))
			require.NoError(t, err)
			assert.Equal(t, "7f3c-11aa", ref.Session)
			assert.Equal(t, c, ref.Collection)
			assert.Equal(t, move, ref.Move)
		}
	}
}

func TestParseSharedAndAutosave(t *testing.T) {
	ref, err := Parse(Session("s1", Timer))
	require.NoError(t, err)
	assert.Equal(t, Timer, ref.Name)
	assert.Empty(t, ref.Collection)
	assert.Zero(t, ref.Move)

	ref, err = Parse(Autosave("s1", "whitecell"))
	require.NoError(t, err)
	assert.Equal(t, "whitecell", ref.Role)
}

func TestParseRejects(t *testing.T) {
	for _, key := range []string{Sessions, "session_", "session_abc", "session_abc_actions_move_x"} {
		_, err := Parse(key)
		assert.Error(t, err, key)
	}
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("2b7e1516-28ae-4d2a-a6d2-aa3c9f1e7c01"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("a_b"))
	assert.False(t, ValidID("a/b"))
}
