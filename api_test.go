/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Seednode/warroom/internal/autosave"
	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/exercise"
	"github.com/Seednode/warroom/internal/export"
	"github.com/Seednode/warroom/internal/hub"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
	"github.com/Seednode/warroom/internal/timer"
)

type testServer struct {
	*httptest.Server
	api *api
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cfg := &Config{port: 8080, remote: remoteNone}
	layer := store.NewLayer(nil, store.NewMemory("memory"), nil, store.WithClock(clock))
	svc := exercise.New(layer, nil, exercise.WithClock(clock))
	hubs := hub.NewManager(svc, nil)

	a := &api{
		cfg:   cfg,
		svc:   svc,
		hubs:  hubs,
		saver: autosave.New(svc, layer, nil),
		layer: layer,
	}

	srv := httptest.NewServer(newRouter(cfg, a, make(chan error, 64)))
	t.Cleanup(func() {
		srv.Close()
		hubs.Close()
	})

	return &testServer{Server: srv, api: a}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

// call performs a request, checks the status and decodes the JSON reply.
func call[T any](t *testing.T, s *testServer, method, path string, body any, status int) T {
	t.Helper()

	resp, data := s.do(t, method, path, body)
	require.Equal(t, status, resp.StatusCode, string(data))

	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func callError(t *testing.T, s *testServer, method, path string, body any, status int) errorBody {
	t.Helper()

	return call[map[string]errorBody](t, s, method, path, body, status)["error"]
}

func (s *testServer) session(t *testing.T, name string) model.Session {
	t.Helper()

	return call[model.Session](t, s, http.MethodPost, "/api/sessions", map[string]string{"name": name}, http.StatusCreated)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code errs.Code
		want int
	}{
		{errs.CodeInvalid, http.StatusBadRequest},
		{errs.CodeRoleUnknown, http.StatusBadRequest},
		{errs.CodeUnsupportedFormat, http.StatusBadRequest},
		{errs.CodeNotFound, http.StatusNotFound},
		{errs.CodeInvalidTransition, http.StatusConflict},
		{errs.CodeExerciseComplete, http.StatusConflict},
		{errs.CodeSessionArchived, http.StatusConflict},
		{errs.CodeAdjudicationLocked, http.StatusConflict},
		{errs.CodeQuotaExceeded, http.StatusInsufficientStorage},
		{errs.CodeUnavailable, http.StatusServiceUnavailable},
		{errs.CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatus(tt.code))
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "  Exercise Alpha ")
	assert.Equal(t, "Exercise Alpha", sess.Name)
	assert.Equal(t, model.SessionActive, sess.Status)

	sessions := call[[]model.Session](t, s, http.MethodGet, "/api/sessions", nil, http.StatusOK)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)

	base := "/api/sessions/" + sess.ID

	state := call[model.GameState](t, s, http.MethodGet, base+"/state", nil, http.StatusOK)
	assert.Equal(t, 1, state.Move)
	assert.Equal(t, 1, state.Phase)

	state = call[model.GameState](t, s, http.MethodPost, base+"/state/advance", nil, http.StatusOK)
	assert.Equal(t, 2, state.Phase)

	state = call[model.GameState](t, s, http.MethodPut, base+"/state", map[string]int{"move": 3, "phase": 5}, http.StatusOK)
	assert.Equal(t, 3, state.Move)

	e := callError(t, s, http.MethodPost, base+"/state/advance", nil, http.StatusConflict)
	assert.Equal(t, errs.CodeExerciseComplete, e.Code)

	sess = call[model.Session](t, s, http.MethodPut, base+"/participants/notetaker", map[string]string{"name": "Dana"}, http.StatusOK)
	assert.Equal(t, "Dana", sess.Metadata.Participants[model.Notetaker])

	e = callError(t, s, http.MethodPut, base+"/participants/observer", map[string]string{"name": "Sam"}, http.StatusBadRequest)
	assert.Equal(t, errs.CodeRoleUnknown, e.Code)

	sess = call[model.Session](t, s, http.MethodPost, base+"/archive", nil, http.StatusOK)
	assert.Equal(t, model.SessionArchived, sess.Status)

	e = callError(t, s, http.MethodPost, base+"/moves/1/actions", map[string]string{"mechanism": "tariff"}, http.StatusConflict)
	assert.Equal(t, errs.CodeSessionArchived, e.Code)

	active := call[[]model.Session](t, s, http.MethodGet, "/api/sessions?status=active", nil, http.StatusOK)
	assert.Empty(t, active)
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t)

	e := callError(t, s, http.MethodPost, "/api/sessions", map[string]string{"name": " "}, http.StatusBadRequest)
	assert.Equal(t, errs.CodeInvalid, e.Code)
	assert.Equal(t, "name", e.Field)

	e = callError(t, s, http.MethodPost, "/api/sessions", `{"name":`, http.StatusBadRequest)
	assert.Equal(t, errs.CodeInvalid, e.Code)

	e = callError(t, s, http.MethodGet, "/api/sessions/missing", nil, http.StatusNotFound)
	assert.Equal(t, errs.CodeNotFound, e.Code)

	sess := s.session(t, "Bounds")
	base := "/api/sessions/" + sess.ID

	e = callError(t, s, http.MethodGet, base+"/moves/4/actions", nil, http.StatusBadRequest)
	assert.Equal(t, "move", e.Field)

	e = callError(t, s, http.MethodGet, base+"/moves/one/actions", nil, http.StatusBadRequest)
	assert.Equal(t, "move", e.Field)

	e = callError(t, s, http.MethodPost, base+"/timer/rewind", nil, http.StatusNotFound)
	assert.Equal(t, errs.CodeNotFound, e.Code)
}

func TestActionFlow(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "Actions")
	moves := "/api/sessions/" + sess.ID + "/moves/1"

	action := call[model.Action](t, s, http.MethodPost, moves+"/actions", exercise.ActionInput{
		Mechanism: "export controls",
		Sector:    "semiconductors",
		Targets:   []string{"PRC", " "},
		Goal:      "slow fabrication capacity",
	}, http.StatusCreated)
	assert.Equal(t, model.ActionDraft, action.Status)
	assert.Equal(t, []string{"PRC"}, action.Targets)
	assert.Equal(t, exercise.DefaultTeam, action.Team)

	e := callError(t, s, http.MethodPost, moves+"/actions/"+action.ID+"/adjudicate", model.Adjudication{
		Outcome:   model.OutcomeSuccess,
		Narrative: "Controls bite within the quarter as planned.",
	}, http.StatusConflict)
	assert.Equal(t, errs.CodeInvalidTransition, e.Code)

	action = call[model.Action](t, s, http.MethodPost, moves+"/actions/"+action.ID+"/submit", nil, http.StatusOK)
	assert.Equal(t, model.ActionSubmitted, action.Status)

	e = callError(t, s, http.MethodPut, moves+"/actions/"+action.ID, exercise.ActionInput{Mechanism: "tariffs"}, http.StatusConflict)
	assert.Equal(t, errs.CodeInvalidTransition, e.Code)

	e = callError(t, s, http.MethodPost, moves+"/actions/"+action.ID+"/adjudicate", model.Adjudication{
		Outcome:   model.OutcomeSuccess,
		Narrative: "Too short",
	}, http.StatusBadRequest)
	assert.Equal(t, "narrative", e.Field)

	action = call[model.Action](t, s, http.MethodPost, moves+"/actions/"+action.ID+"/adjudicate", model.Adjudication{
		Outcome:         model.OutcomePartialSuccess,
		Narrative:       "Controls slow progress but allies hesitate.",
		Vulnerabilities: []string{"allied compliance"},
	}, http.StatusOK)
	assert.Equal(t, model.ActionAdjudicated, action.Status)
	require.NotNil(t, action.Adjudication)

	e = callError(t, s, http.MethodPost, moves+"/actions/"+action.ID+"/adjudicate", model.Adjudication{
		Outcome:   model.OutcomeFailure,
		Narrative: "Second thoughts about the first ruling.",
	}, http.StatusConflict)
	assert.Equal(t, errs.CodeAdjudicationLocked, e.Code)

	adjudicated := call[[]model.Action](t, s, http.MethodGet, moves+"/actions?status=adjudicated", nil, http.StatusOK)
	assert.Len(t, adjudicated, 1)

	red := call[[]model.Action](t, s, http.MethodGet, moves+"/actions?team=red", nil, http.StatusOK)
	assert.Empty(t, red)

	feedback := call[[]model.Feedback](t, s, http.MethodGet, moves+"/feedback", nil, http.StatusOK)
	assert.Len(t, feedback, 1)

	timeline := call[[]model.TimelineItem](t, s, http.MethodGet, moves+"/timeline", nil, http.StatusOK)
	require.Len(t, timeline, 2)
	assert.Equal(t, model.TimelineSubmission, timeline[0].Type)
}

func TestRequestsAndWhiteCell(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "White Cell")
	moves := "/api/sessions/" + sess.ID + "/moves/2"

	rfi := call[model.Request](t, s, http.MethodPost, moves+"/rfis", exercise.RequestInput{
		Categories: []string{"intelligence"},
		Details:    "What is the current stockpile?",
	}, http.StatusCreated)
	assert.Equal(t, model.PriorityMedium, rfi.Priority)
	assert.Equal(t, model.RequestPending, rfi.Status)

	pending := call[[]model.Request](t, s, http.MethodGet, moves+"/rfis?status=pending", nil, http.StatusOK)
	assert.Len(t, pending, 1)

	rfi = call[model.Request](t, s, http.MethodPost, moves+"/rfis/"+rfi.ID+"/answer", map[string]string{"response": "Roughly six months."}, http.StatusOK)
	assert.Equal(t, model.RequestAnswered, rfi.Status)

	e := callError(t, s, http.MethodPost, moves+"/rfis/"+rfi.ID+"/answer", map[string]string{"response": "Again."}, http.StatusConflict)
	assert.Equal(t, errs.CodeInvalidTransition, e.Code)

	e = callError(t, s, http.MethodPost, moves+"/rulings", exercise.RulingInput{
		Subject:   "Blockade",
		Ruling:    "Upheld",
		Rationale: "Consistent with prior moves.",
		Impact:    map[string]model.ImpactLevel{"economic": model.ImpactHigh},
		ActionID:  "missing",
	}, http.StatusNotFound)
	assert.Equal(t, errs.CodeNotFound, e.Code)

	call[model.Ruling](t, s, http.MethodPost, moves+"/rulings", exercise.RulingInput{
		Subject:   "Blockade",
		Ruling:    "Upheld",
		Rationale: "Consistent with prior moves.",
		Impact:    map[string]model.ImpactLevel{"economic": model.ImpactHigh},
	}, http.StatusCreated)

	rulings := call[[]model.Ruling](t, s, http.MethodGet, moves+"/rulings", nil, http.StatusOK)
	assert.Len(t, rulings, 1)

	call[model.Communication](t, s, http.MethodPost, moves+"/communications", exercise.CommunicationInput{
		To:      "all",
		Content: "Phase ends in five minutes.",
	}, http.StatusCreated)
	call[model.Communication](t, s, http.MethodPost, moves+"/communications", exercise.CommunicationInput{
		To:      "red",
		Content: "Your request is under review.",
	}, http.StatusCreated)

	blue := call[[]model.Communication](t, s, http.MethodGet, moves+"/communications?to=blue", nil, http.StatusOK)
	assert.Len(t, blue, 1)

	item := call[model.TimelineItem](t, s, http.MethodPost, moves+"/timeline", exercise.TimelineInput{
		Type:    model.TimelineQuote,
		Content: "We will not blink first.",
	}, http.StatusCreated)
	assert.Equal(t, model.Notetaker, item.AuthorRole)

	e = callError(t, s, http.MethodPost, moves+"/timeline", exercise.TimelineInput{
		Type:    model.TimelineRuling,
		Content: "Not a notetaker entry.",
	}, http.StatusBadRequest)
	assert.Equal(t, errs.CodeInvalid, e.Code)

	resp, _ := s.do(t, http.MethodPost, moves+"/reset", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	timeline := call[[]model.TimelineItem](t, s, http.MethodGet, moves+"/timeline", nil, http.StatusOK)
	assert.Empty(t, timeline)
}

func TestTimerControl(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "Timer")
	base := "/api/sessions/" + sess.ID + "/timer"

	tm := call[timer.Timer](t, s, http.MethodGet, base, nil, http.StatusOK)
	assert.False(t, tm.Running)
	assert.Equal(t, timer.DefaultSeconds, tm.RemainingSeconds)

	tm = call[timer.Timer](t, s, http.MethodPost, base+"/start", map[string]int{"seconds": 120}, http.StatusOK)
	assert.True(t, tm.Running)
	assert.Equal(t, 120, tm.RemainingSeconds)

	tm = call[timer.Timer](t, s, http.MethodPost, base+"/pause", nil, http.StatusOK)
	assert.False(t, tm.Running)

	tm = call[timer.Timer](t, s, http.MethodPost, base+"/reset", nil, http.StatusOK)
	assert.Equal(t, tm.DurationSeconds, tm.RemainingSeconds)

	e := callError(t, s, http.MethodPost, base+"/start", map[string]int{"seconds": -1}, http.StatusBadRequest)
	assert.Equal(t, "seconds", e.Field)
}

func TestExports(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "Exports")
	base := "/api/sessions/" + sess.ID

	call[model.Action](t, s, http.MethodPost, base+"/moves/1/actions", exercise.ActionInput{Mechanism: "sanctions"}, http.StatusCreated)

	resp, data := s.do(t, http.MethodGet, base+"/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "application/yaml; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t,
		`attachment; filename="`+sess.ID+`_archive_20260301-093000.yaml"`,
		resp.Header.Get("Content-Disposition"))

	var archive export.Archive
	require.NoError(t, yaml.Unmarshal(data, &archive))
	assert.Equal(t, sess.ID, archive.Session.ID)

	resp, data = s.do(t, http.MethodGet, base+"/moves/1/submission", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "_submission_move1_")

	var sub export.Submission
	require.NoError(t, json.Unmarshal(data, &sub))
	assert.Empty(t, sub.Actions)

	e := callError(t, s, http.MethodGet, base+"/export?format=xml", nil, http.StatusBadRequest)
	assert.Equal(t, errs.CodeUnsupportedFormat, e.Code)
}

func TestAutosaveDownload(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "Autosave")
	base := "/api/sessions/" + sess.ID

	e := callError(t, s, http.MethodGet, base+"/autosave/notetaker", nil, http.StatusNotFound)
	assert.Equal(t, errs.CodeNotFound, e.Code)

	_, err := s.api.saver.RunOnce(context.Background())
	require.NoError(t, err)

	resp, data := s.do(t, http.MethodGet, base+"/autosave/notetaker", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "_autosave_notetaker_")

	var snap export.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, model.Notetaker, snap.Role)

	e = callError(t, s, http.MethodGet, base+"/autosave/observer", nil, http.StatusBadRequest)
	assert.Equal(t, errs.CodeRoleUnknown, e.Code)
}

func TestLastChange(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "Changes")
	base := "/api/sessions/" + sess.ID

	c := call[store.Change](t, s, http.MethodGet, base+"/changes", nil, http.StatusOK)
	assert.Equal(t, sess.ID, c.Session)
	assert.Equal(t, keys.Timer, c.Name)

	require.NoError(t, s.api.layer.Delete(context.Background(), keys.Session(sess.ID, keys.Broadcast)))

	resp, _ := s.do(t, http.MethodGet, base+"/changes", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestQRCode(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "Join")
	base := "/api/sessions/" + sess.ID

	resp, data := s.do(t, http.MethodGet, base+"/qr?role=whitecell", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	e := callError(t, s, http.MethodGet, base+"/qr?role=observer", nil, http.StatusBadRequest)
	assert.Equal(t, errs.CodeRoleUnknown, e.Code)

	callError(t, s, http.MethodGet, "/api/sessions/missing/qr", nil, http.StatusNotFound)
}

func TestJoinURL(t *testing.T) {
	a := &api{cfg: &Config{prefix: "/game"}}

	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	assert.Equal(t, "http://example.com/game/?role=facilitator&session=abc", a.joinURL(r, "abc", model.Facilitator))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://example.com/game/?session=abc", a.joinURL(r, "abc", ""))
}

func TestStatusAndPages(t *testing.T) {
	s := newTestServer(t)

	status := call[map[string]any](t, s, http.MethodGet, "/api/status", nil, http.StatusOK)
	assert.Equal(t, "memory", status["local"])
	assert.EqualValues(t, 0, status["hubs"])
	assert.Equal(t, releaseVersion, status["version"])

	s.session(t, "Front <Page>")

	resp, data := s.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "Front &lt;Page&gt;")
	assert.Contains(t, string(data), "White Cell")

	resp, data = s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok\n", string(data))

	_, data = s.do(t, http.MethodGet, "/version", nil)
	assert.Equal(t, "warroom v"+releaseVersion+"\n", string(data))
}

func TestResetSession(t *testing.T) {
	s := newTestServer(t)

	sess := s.session(t, "Reset")
	base := "/api/sessions/" + sess.ID

	call[model.GameState](t, s, http.MethodPost, base+"/state/advance", nil, http.StatusOK)
	call[model.Action](t, s, http.MethodPost, base+"/moves/1/actions", exercise.ActionInput{Mechanism: "aid"}, http.StatusCreated)

	resp, _ := s.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	state := call[model.GameState](t, s, http.MethodGet, base+"/state", nil, http.StatusOK)
	assert.Equal(t, 1, state.Phase)

	actions := call[[]model.Action](t, s, http.MethodGet, base+"/moves/1/actions", nil, http.StatusOK)
	assert.Empty(t, actions)

	got := call[model.Session](t, s, http.MethodGet, base, nil, http.StatusOK)
	assert.Equal(t, "Reset", got.Name)
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.5 kB", humanReadableSize(1500))
	assert.Equal(t, "2.0 MB", humanReadableSize(2_000_000))
}

func TestProfileHandlers(t *testing.T) {
	cfg := &Config{prefix: "/ops", profile: true}
	mux := newRouter(cfg, &api{cfg: cfg, svc: exercise.New(store.NewLayer(nil, store.NewMemory("memory"), nil), nil), hubs: hub.NewManager(nil, nil)}, make(chan error, 1))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/pprof/heap?debug=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
