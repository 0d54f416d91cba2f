/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/warroom/internal/autosave"
	"github.com/Seednode/warroom/internal/errs"
	"github.com/Seednode/warroom/internal/exercise"
	"github.com/Seednode/warroom/internal/export"
	"github.com/Seednode/warroom/internal/hub"
	"github.com/Seednode/warroom/internal/keys"
	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
)

const maxBodySize = 1 << 20

type api struct {
	cfg   *Config
	svc   *exercise.Service
	hubs  *hub.Manager
	saver *autosave.Saver
	layer *store.Layer
}

type apiHandler func(w http.ResponseWriter, r *http.Request, p httprouter.Params) error

// countingWriter records how much of a response was written.
type countingWriter struct {
	http.ResponseWriter
	written int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.ResponseWriter.Write(b)
	c.written += int64(n)
	return n, err
}

// handle turns an apiHandler into a route, answering errors as JSON.
func (a *api) handle(name string, fn apiHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		cw := &countingWriter{ResponseWriter: w}
		if err := fn(cw, r, p); err != nil {
			writeError(a.cfg, cw, err)
		}

		logf(a.cfg, "SERVE: %s (%s) to %s in %s",
			name,
			humanReadableSize(cw.written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.CodeInvalid, "request body is not valid JSON", err)
	}
	return nil
}

func moveParam(p httprouter.Params) (int, error) {
	move, err := strconv.Atoi(p.ByName("move"))
	if err != nil {
		return 0, errs.Invalid("move", "move must be a number")
	}
	return move, model.ValidateMove(move)
}

func (a *api) ok(w http.ResponseWriter, v any) error {
	writeJSON(a.cfg, w, http.StatusOK, v)
	return nil
}

func (a *api) created(w http.ResponseWriter, v any) error {
	writeJSON(a.cfg, w, http.StatusCreated, v)
	return nil
}

// Sessions

func (a *api) listSessions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var (
		sessions []model.Session
		err      error
	)
	if r.URL.Query().Get("status") == string(model.SessionActive) {
		sessions, err = a.svc.ActiveSessions(r.Context())
	} else {
		sessions, err = a.svc.ListSessions(r.Context())
	}
	if err != nil {
		return err
	}
	return a.ok(w, sessions)
}

func (a *api) createSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		return err
	}

	sess, err := a.svc.CreateSession(r.Context(), body.Name)
	if err != nil {
		return err
	}
	return a.created(w, sess)
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	sess, err := a.svc.GetSession(r.Context(), p.ByName("session"))
	if err != nil {
		return err
	}
	return a.ok(w, sess)
}

func (a *api) archiveSession(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	sess, err := a.svc.ArchiveSession(r.Context(), p.ByName("session"))
	if err != nil {
		return err
	}
	return a.ok(w, sess)
}

func (a *api) setParticipant(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		return err
	}

	sess, err := a.svc.SetParticipant(r.Context(), p.ByName("session"), model.Role(p.ByName("role")), body.Name)
	if err != nil {
		return err
	}
	return a.ok(w, sess)
}

func (a *api) resetSession(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	if err := a.svc.ResetSession(r.Context(), p.ByName("session")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Game state and timer

func (a *api) getState(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	session := p.ByName("session")
	if _, err := a.svc.GetSession(r.Context(), session); err != nil {
		return err
	}

	state, err := a.svc.GameState(r.Context(), session)
	if err != nil {
		return err
	}
	return a.ok(w, state)
}

func (a *api) setState(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	var body struct {
		Move  int `json:"move"`
		Phase int `json:"phase"`
	}
	if err := decode(r, &body); err != nil {
		return err
	}

	state, err := a.svc.SetGameState(r.Context(), p.ByName("session"), body.Move, body.Phase)
	if err != nil {
		return err
	}
	return a.ok(w, state)
}

func (a *api) advanceState(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	state, err := a.svc.AdvancePhase(r.Context(), p.ByName("session"))
	if err != nil {
		return err
	}
	return a.ok(w, state)
}

func (a *api) getTimer(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	session := p.ByName("session")
	if _, err := a.svc.GetSession(r.Context(), session); err != nil {
		return err
	}

	t, err := a.svc.Timer(r.Context(), session)
	if err != nil {
		return err
	}
	return a.ok(w, t)
}

func (a *api) timerControl(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	session := p.ByName("session")

	var (
		result any
		err    error
	)
	switch p.ByName("op") {
	case "start":
		var body struct {
			Seconds int `json:"seconds"`
		}
		if err := decode(r, &body); err != nil {
			return err
		}
		result, err = a.svc.StartTimer(r.Context(), session, body.Seconds)
	case "pause":
		result, err = a.svc.PauseTimer(r.Context(), session)
	case "reset":
		result, err = a.svc.ResetTimer(r.Context(), session)
	default:
		return errs.Newf(errs.CodeNotFound, "unknown timer operation %q", p.ByName("op"))
	}
	if err != nil {
		return err
	}
	return a.ok(w, result)
}

// Actions

func (a *api) listActions(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	actions, err := a.svc.ListActions(r.Context(), p.ByName("session"), move)
	if err != nil {
		return err
	}

	q := r.URL.Query()
	return a.ok(w, exercise.FilterActions(actions, model.ActionStatus(q.Get("status")), q.Get("team")))
}

func (a *api) createAction(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var in exercise.ActionInput
	if err := decode(r, &in); err != nil {
		return err
	}

	action, err := a.svc.CreateAction(r.Context(), p.ByName("session"), move, in)
	if err != nil {
		return err
	}
	return a.created(w, action)
}

func (a *api) updateAction(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var in exercise.ActionInput
	if err := decode(r, &in); err != nil {
		return err
	}

	action, err := a.svc.UpdateAction(r.Context(), p.ByName("session"), move, p.ByName("id"), in)
	if err != nil {
		return err
	}
	return a.ok(w, action)
}

func (a *api) submitAction(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	action, err := a.svc.SubmitAction(r.Context(), p.ByName("session"), move, p.ByName("id"))
	if err != nil {
		return err
	}
	return a.ok(w, action)
}

func (a *api) adjudicateAction(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var adj model.Adjudication
	if err := decode(r, &adj); err != nil {
		return err
	}

	action, err := a.svc.AdjudicateAction(r.Context(), p.ByName("session"), move, p.ByName("id"), adj)
	if err != nil {
		return err
	}
	return a.ok(w, action)
}

// Requests for information

func (a *api) listRFIs(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	reqs, err := a.svc.ListRFIs(r.Context(), p.ByName("session"), move, model.RequestStatus(r.URL.Query().Get("status")))
	if err != nil {
		return err
	}
	return a.ok(w, reqs)
}

func (a *api) createRFI(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var in exercise.RequestInput
	if err := decode(r, &in); err != nil {
		return err
	}

	req, err := a.svc.CreateRFI(r.Context(), p.ByName("session"), move, in)
	if err != nil {
		return err
	}
	return a.created(w, req)
}

func (a *api) answerRFI(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var body struct {
		Response string `json:"response"`
	}
	if err := decode(r, &body); err != nil {
		return err
	}

	req, err := a.svc.AnswerRFI(r.Context(), p.ByName("session"), move, p.ByName("id"), body.Response)
	if err != nil {
		return err
	}
	return a.ok(w, req)
}

// Timeline

func (a *api) listTimeline(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	items, err := a.svc.Timeline(r.Context(), p.ByName("session"), move)
	if err != nil {
		return err
	}
	return a.ok(w, items)
}

func (a *api) addTimeline(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var in exercise.TimelineInput
	if err := decode(r, &in); err != nil {
		return err
	}

	item, err := a.svc.AddTimelineItem(r.Context(), p.ByName("session"), move, in)
	if err != nil {
		return err
	}
	return a.created(w, item)
}

// White Cell

func (a *api) listRulings(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	rulings, err := a.svc.ListRulings(r.Context(), p.ByName("session"), move)
	if err != nil {
		return err
	}
	return a.ok(w, rulings)
}

func (a *api) addRuling(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var in exercise.RulingInput
	if err := decode(r, &in); err != nil {
		return err
	}

	ruling, err := a.svc.AddRuling(r.Context(), p.ByName("session"), move, in)
	if err != nil {
		return err
	}
	return a.created(w, ruling)
}

func (a *api) listCommunications(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	comms, err := a.svc.ListCommunications(r.Context(), p.ByName("session"), move, r.URL.Query().Get("to"))
	if err != nil {
		return err
	}
	return a.ok(w, comms)
}

func (a *api) sendCommunication(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	var in exercise.CommunicationInput
	if err := decode(r, &in); err != nil {
		return err
	}

	comm, err := a.svc.SendCommunication(r.Context(), p.ByName("session"), move, in)
	if err != nil {
		return err
	}
	return a.created(w, comm)
}

func (a *api) listFeedback(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	feedback, err := a.svc.ListFeedback(r.Context(), p.ByName("session"), move)
	if err != nil {
		return err
	}
	return a.ok(w, feedback)
}

func (a *api) resetMove(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}

	if err := a.svc.ResetMove(r.Context(), p.ByName("session"), move); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Exports

// attachment writes doc as a file download.
func (a *api) attachment(w http.ResponseWriter, r *http.Request, kind export.Kind, session string, move int, doc any) error {
	e, err := export.NewExporter(r.URL.Query().Get("format"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := e.Export(doc, &buf); err != nil {
		return err
	}

	name := export.FileName(session, kind, move, a.svc.Now(), e.Extension())
	w.Header().Set("Content-Type", e.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	securityHeaders(a.cfg, w)
	w.WriteHeader(http.StatusOK)

	_, err = buf.WriteTo(w)
	return err
}

func (a *api) exportArchive(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	session := p.ByName("session")

	archive, err := export.BuildArchive(r.Context(), a.svc, session)
	if err != nil {
		return err
	}
	return a.attachment(w, r, export.KindArchive, session, 0, archive)
}

func (a *api) exportSubmission(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	move, err := moveParam(p)
	if err != nil {
		return err
	}
	session := p.ByName("session")

	sub, err := export.BuildSubmission(r.Context(), a.svc, session, move)
	if err != nil {
		return err
	}
	return a.attachment(w, r, export.KindSubmission, session, move, sub)
}

func (a *api) latestAutosave(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	session := p.ByName("session")
	if _, err := a.svc.GetSession(r.Context(), session); err != nil {
		return err
	}

	data, name, err := a.saver.Latest(r.Context(), session, model.Role(p.ByName("role")))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	securityHeaders(a.cfg, w)
	w.WriteHeader(http.StatusOK)

	_, err = w.Write(data)
	return err
}

// Propagation

// lastChange returns the most recent change of a session, for clients that
// poll instead of holding a websocket.
func (a *api) lastChange(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	session := p.ByName("session")
	if _, err := a.svc.GetSession(r.Context(), session); err != nil {
		return err
	}

	data, err := a.layer.Get(r.Context(), keys.Session(session, keys.Broadcast))
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.CodeUnavailable, "reading last change", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(a.cfg, w)
	w.WriteHeader(http.StatusOK)

	_, err = w.Write(data)
	return err
}

// serveWS bypasses handle: the upgrade needs the connection's own
// ResponseWriter to hijack it.
func (a *api) serveWS(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := a.hubs.ServeWS(w, r, p.ByName("session")); err != nil {
		writeError(a.cfg, w, err)
		return
	}

	logf(a.cfg, "SERVE: Websocket for %s from %s closed", p.ByName("session"), realIP(r))
}

func (a *api) status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	return a.ok(w, struct {
		store.Status
		Hubs    int    `json:"hubs"`
		Version string `json:"version"`
	}{
		Status:  a.layer.Status(),
		Hubs:    a.hubs.Len(),
		Version: releaseVersion,
	})
}

// joinURL is the link a participant opens to take a role in session.
func (a *api) joinURL(r *http.Request, session string, role model.Role) string {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := a.cfg.scheme()
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	q := url.Values{}
	q.Set("session", session)
	if role != "" {
		q.Set("role", string(role))
	}

	return scheme + "://" + r.Host + a.cfg.prefix + "/?" + q.Encode()
}

// qrCode generates a PNG QR code for a session join link using go-qrcode.
func (a *api) qrCode(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	session := p.ByName("session")
	if _, err := a.svc.GetSession(r.Context(), session); err != nil {
		return err
	}

	role := model.Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		return errs.Newf(errs.CodeRoleUnknown, "unknown role %q", role)
	}

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(a.joinURL(r, session, role), qrcode.Medium, qrSize)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "image/png")
	securityHeaders(a.cfg, w)
	_, err = w.Write(png)
	return err
}

func registerAPI(a *api, mux *httprouter.Router) {
	prefix := a.cfg.prefix + "/api"
	sessions := prefix + "/sessions"
	session := sessions + "/:session"
	moves := session + "/moves/:move"

	mux.GET(prefix+"/status", a.handle("Status", a.status))

	mux.GET(sessions, a.handle("Sessions", a.listSessions))
	mux.POST(sessions, a.handle("Create session", a.createSession))
	mux.GET(session, a.handle("Session", a.getSession))
	mux.POST(session+"/archive", a.handle("Archive session", a.archiveSession))
	mux.PUT(session+"/participants/:role", a.handle("Participant", a.setParticipant))
	mux.POST(session+"/reset", a.handle("Reset session", a.resetSession))

	mux.GET(session+"/state", a.handle("Game state", a.getState))
	mux.PUT(session+"/state", a.handle("Set game state", a.setState))
	mux.POST(session+"/state/advance", a.handle("Advance phase", a.advanceState))

	mux.GET(session+"/timer", a.handle("Timer", a.getTimer))
	mux.POST(session+"/timer/:op", a.handle("Timer control", a.timerControl))

	mux.GET(moves+"/actions", a.handle("Actions", a.listActions))
	mux.POST(moves+"/actions", a.handle("Create action", a.createAction))
	mux.PUT(moves+"/actions/:id", a.handle("Update action", a.updateAction))
	mux.POST(moves+"/actions/:id/submit", a.handle("Submit action", a.submitAction))
	mux.POST(moves+"/actions/:id/adjudicate", a.handle("Adjudicate action", a.adjudicateAction))

	mux.GET(moves+"/rfis", a.handle("RFIs", a.listRFIs))
	mux.POST(moves+"/rfis", a.handle("Create RFI", a.createRFI))
	mux.POST(moves+"/rfis/:id/answer", a.handle("Answer RFI", a.answerRFI))

	mux.GET(moves+"/timeline", a.handle("Timeline", a.listTimeline))
	mux.POST(moves+"/timeline", a.handle("Add timeline item", a.addTimeline))

	mux.GET(moves+"/rulings", a.handle("Rulings", a.listRulings))
	mux.POST(moves+"/rulings", a.handle("Add ruling", a.addRuling))
	mux.GET(moves+"/communications", a.handle("Communications", a.listCommunications))
	mux.POST(moves+"/communications", a.handle("Send communication", a.sendCommunication))
	mux.GET(moves+"/feedback", a.handle("Feedback", a.listFeedback))
	mux.POST(moves+"/reset", a.handle("Reset move", a.resetMove))

	mux.GET(session+"/export", a.handle("Archive export", a.exportArchive))
	mux.GET(moves+"/submission", a.handle("Submission export", a.exportSubmission))
	mux.GET(session+"/autosave/:role", a.handle("Autosave", a.latestAutosave))

	mux.GET(session+"/changes", a.handle("Last change", a.lastChange))
	mux.GET(session+"/ws", a.serveWS)
	mux.GET(session+"/qr", a.handle("QR code", a.qrCode))
}
