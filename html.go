/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/warroom/internal/exercise"
	"github.com/Seednode/warroom/internal/model"
)

// cspPage relaxes the policy for pages rendered by newPage, which inline
// their stylesheet.
func cspPage(w http.ResponseWriter) {
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
}

func roleLabel(role model.Role) string {
	switch role {
	case model.Facilitator:
		return "Facilitator"
	case model.Notetaker:
		return "Notetaker"
	case model.WhiteCell:
		return "White Cell"
	case model.GameMaster:
		return "Game Master"
	default:
		return string(role)
	}
}

func homeBody(cfg *Config, sessions []model.Session) string {
	var b strings.Builder

	b.WriteString("<h1>warroom</h1>")

	if len(sessions) == 0 {
		b.WriteString("<p>No active sessions. Create one with <code>POST ")
		b.WriteString(html.EscapeString(cfg.prefix))
		b.WriteString("/api/sessions</code>.</p>")
		return b.String()
	}

	b.WriteString("<h2>Active sessions</h2><ul>")
	for _, s := range sessions {
		id := url.PathEscape(s.ID)
		fmt.Fprintf(&b, "<li><strong>%s</strong> <code>%s</code><ul>",
			html.EscapeString(s.Name), html.EscapeString(s.ID))
		for _, role := range model.Roles {
			holder := s.Metadata.Participants[role]
			if holder != "" {
				holder = " (" + html.EscapeString(holder) + ")"
			}
			fmt.Fprintf(&b, `<li><a href="%s/api/sessions/%s/qr?role=%s">%s</a>%s</li>`,
				html.EscapeString(cfg.prefix), id, url.QueryEscape(string(role)), roleLabel(role), holder)
		}
		b.WriteString("</ul></li>")
	}
	b.WriteString("</ul>")

	return b.String()
}

func serveHomePage(cfg *Config, svc *exercise.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		sessions, err := svc.ActiveSessions(r.Context())
		if err != nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			cspPage(w)
			w.WriteHeader(http.StatusServiceUnavailable)

			_, _ = w.Write([]byte(newPage("Unavailable", "Sessions could not be loaded. Please try again.")))

			errs <- err

			return
		}

		body := newPage("warroom", homeBody(cfg, sessions))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		securityHeaders(cfg, w)
		cspPage(w)

		written, err := w.Write([]byte(body))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
