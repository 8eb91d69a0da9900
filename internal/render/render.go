// Package render turns session state into HTML. Full page loads get the
// layout; htmx requests get only the app container.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// ErrTemplate marks a failure to execute a template. Nothing has been
// written to the response when it is returned.
var ErrTemplate = errors.New("execute template")

//go:embed templates/*.html
var templateFS embed.FS

// Raw HTML in markdown input is escaped because WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Markdown converts operator-authored markdown to safe HTML.
func Markdown(md string) template.HTML {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// Renderer executes the embedded templates.
type Renderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// New parses the embedded templates.
func New(logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"percent": func(f float64) string { return fmt.Sprintf("%.0f", f) },
		"fieldError": func(errs map[string]string, field string) string {
			return errs[field]
		},
		"pathEscape": url.PathEscape,
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{templates: tmpl, logger: logger}, nil
}

// Page writes the full document.
func (r *Renderer) Page(w io.Writer, p Page) error {
	return r.execute(w, "layout", p)
}

// App writes only the #app container for htmx swaps.
func (r *Renderer) App(w io.Writer, p Page) error {
	return r.execute(w, "app", p)
}

func (r *Renderer) execute(w io.Writer, name string, p Page) error {
	// Nothing is written when execution fails.
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, p); err != nil {
		r.logger.Error("template error", "template", name, "error", err)
		return fmt.Errorf("%w %s: %w", ErrTemplate, name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
