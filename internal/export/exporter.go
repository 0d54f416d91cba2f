/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Seednode/warroom/internal/errs"
)

// Exporter writes an export document in one format.
type Exporter interface {
	Export(doc any, w io.Writer) error
	Extension() string
	ContentType() string
}

// NewExporter returns the exporter for format. An empty format means json.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, errs.Newf(errs.CodeUnsupportedFormat, "unsupported format: %s (supported: json, yaml)", format)
	}
}

// JSONExporter writes pretty-printed JSON.
type JSONExporter struct{}

func (e *JSONExporter) Export(doc any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(doc)
}

func (e *JSONExporter) Extension() string { return "json" }

func (e *JSONExporter) ContentType() string { return "application/json; charset=utf-8" }

type YAMLExporter struct{}

func (e *YAMLExporter) Export(doc any, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(doc)
}

func (e *YAMLExporter) Extension() string { return "yaml" }

func (e *YAMLExporter) ContentType() string { return "application/yaml; charset=utf-8" }

// FileName names an export file, e.g. 3f2a_submission_move2_20260301-120000.json.
// move is omitted when zero.
func FileName(session string, kind Kind, move int, at time.Time, ext string) string {
	var b strings.Builder
	b.WriteString(session)
	b.WriteString("_")
	b.WriteString(string(kind))
	if move > 0 {
		fmt.Fprintf(&b, "_move%d", move)
	}
	b.WriteString("_")
	b.WriteString(at.UTC().Format("20060102-150405"))
	b.WriteString(".")
	b.WriteString(ext)
	return b.String()
}
