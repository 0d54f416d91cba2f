/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/exercise"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*exercise.Service, string) {
	t.Helper()
	ctx := context.Background()

	now := func() time.Time { return t0 }
	layer := store.NewLayer(nil, store.NewMemory("memory"), nil, store.WithClock(now))
	svc := exercise.New(layer, nil, exercise.WithClock(now))

	sess, err := svc.CreateSession(ctx, "Exercise Bravo")
	require.NoError(t, err)

	in := exercise.ActionInput{Mechanism: "sanctions", Sector: "finance", Targets: []string{"bank"}, Goal: "freeze assets"}
	_, err = svc.CreateAction(ctx, sess.ID, 1, in)
	require.NoError(t, err)

	sub, err := svc.CreateAction(ctx, sess.ID, 1, in)
	require.NoError(t, err)
	_, err = svc.SubmitAction(ctx, sess.ID, 1, sub.ID)
	require.NoError(t, err)

	_, err = svc.CreateRFI(ctx, sess.ID, 1, exercise.RequestInput{Categories: []string{"economic"}, Details: "GDP impact?"})
	require.NoError(t, err)
	_, err = svc.AddTimelineItem(ctx, sess.ID, 1, exercise.TimelineInput{Type: model.TimelineNote, Content: "Team debated tariffs"})
	require.NoError(t, err)

	return svc, sess.ID
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{format: "", wantExt: "json"},
		{format: "json", wantExt: "json"},
		{format: "YAML", wantExt: "yaml"},
		{format: "yml", wantExt: "yaml"},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			e, err := NewExporter(tt.format)
			if tt.wantErr {
				assert.Equal(t, errs.CodeUnsupportedFormat, errs.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, e.Extension())
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "abc_submission_move2_20260301-120000.json", FileName("abc", KindSubmission, 2, t0, "json"))
	assert.Equal(t, "abc_archive_20260301-120000.yaml", FileName("abc", KindArchive, 0, t0, "yaml"))
}

func TestArchive(t *testing.T) {
	svc, id := seeded(t)

	a, err := BuildArchive(context.Background(), svc, id)
	require.NoError(t, err)

	assert.Equal(t, KindArchive, a.Kind)
	assert.Equal(t, "Exercise Bravo", a.Session.Name)
	require.Len(t, a.Moves, 3)
	assert.Len(t, a.Moves[0].Actions, 2)
	assert.Len(t, a.Moves[0].Requests, 1)
	assert.Len(t, a.Moves[0].Timeline, 3)
	assert.Empty(t, a.Moves[1].Actions)

	var buf bytes.Buffer
	e, _ := NewExporter("json")
	require.NoError(t, e.Export(a, &buf))

	var decoded Archive
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, a.Session.ID, decoded.Session.ID)
	assert.Contains(t, buf.String(), "\n  \"kind\": \"archive\"")

	_, err = BuildArchive(context.Background(), svc, "missing")
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestSubmissionSkipsDrafts(t *testing.T) {
	svc, id := seeded(t)

	s, err := BuildSubmission(context.Background(), svc, id, 1)
	require.NoError(t, err)
	require.Len(t, s.Actions, 1)
	assert.Equal(t, model.ActionSubmitted, s.Actions[0].Status)
	assert.Len(t, s.Requests, 1)
	assert.Equal(t, "Exercise Bravo", s.Session)

	_, err = BuildSubmission(context.Background(), svc, id, 9)
	assert.Equal(t, "move", errs.FieldOf(err))
}

func TestSnapshotPerRole(t *testing.T) {
	svc, id := seeded(t)
	ctx := context.Background()

	fac, err := BuildSnapshot(ctx, svc, id, model.Facilitator)
	require.NoError(t, err)
	assert.Len(t, fac.Data.Actions, 2)
	assert.Nil(t, fac.Data.Timeline)
	assert.Nil(t, fac.Timer)

	notes, err := BuildSnapshot(ctx, svc, id, model.Notetaker)
	require.NoError(t, err)
	assert.Nil(t, notes.Data.Actions)
	assert.Len(t, notes.Data.Timeline, 3)

	gm, err := BuildSnapshot(ctx, svc, id, model.GameMaster)
	require.NoError(t, err)
	require.NotNil(t, gm.Timer)
	assert.Equal(t, 1, gm.GameState.Move)

	_, err = BuildSnapshot(ctx, svc, id, "observer")
	assert.Error(t, err)

	var buf bytes.Buffer
	e, _ := NewExporter("yaml")
	require.NoError(t, e.Export(notes, &buf))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "notetaker", decoded["role"])
	assert.Equal(t, "autosave", decoded["kind"])
}
