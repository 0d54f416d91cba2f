/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Seednode/warroom/internal/errs"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose || cfg.logger == nil {
		return
	}

	cfg.logger.Sugar().Debugf(format, args...)
}

func httpStatus(code errs.Code) int {
	switch code {
	case errs.CodeInvalid, errs.CodeRoleUnknown, errs.CodeUnsupportedFormat:
		return http.StatusBadRequest
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeInvalidTransition, errs.CodeExerciseComplete, errs.CodeSessionArchived, errs.CodeAdjudicationLocked:
		return http.StatusConflict
	case errs.CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	case errs.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// writeError answers with the JSON form of err. Uncoded errors are logged
// and reported without detail.
func writeError(cfg *Config, w http.ResponseWriter, err error) {
	body := errorBody{Code: errs.CodeOf(err), Field: errs.FieldOf(err)}

	var e *errs.Error
	if errors.As(err, &e) {
		body.Message = e.Message
	} else {
		body.Message = "An error has occurred. Please try again."
		if cfg.logger != nil {
			cfg.logger.Sugar().Errorf("SERVE: %v", err)
		}
	}

	writeJSON(cfg, w, httpStatus(body.Code), map[string]errorBody{"error": body})
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body{font-family:sans-serif;margin:2em;}code{background:#eee;padding:0 .2em;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body>%s</body></html>", body))

	return htmlBody.String()
}
