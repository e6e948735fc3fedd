package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/logging"
	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/review"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "assignments"
}

// AssignmentsPageData is the template data for the assignment index.
type AssignmentsPageData struct {
	PageData
	Assignments []ops.AssignmentSummary
}

// FilterOption is one entry of the filter bar.
type FilterOption struct {
	Name   string
	Label  string
	Count  int
	Active bool
}

// ListPageData is the template data for the student list of one assignment.
type ListPageData struct {
	PageData
	AssignmentID string
	Assignment   string
	Students     []ops.Student
	Stats        review.Stats
	Filters      []FilterOption
	Filter       string
	Status       *ops.AutoCheckStatusOutput
}

// DetailPageData is the template data for the student detail page.
type DetailPageData struct {
	PageData
	AssignmentID string
	Detail       *ops.DetailOutput
	Feedback     string // editor seed
	FeedbackHTML template.HTML
	AutoHTML     template.HTML
	Cursor       review.Cursor
	PrevID       string
	NextID       string
	Filter       string
	Saved        bool
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
	log       *slog.Logger
}

var filterLabels = map[review.Predicate]string{
	review.All:             "すべて",
	review.OnlyReviewed:    "レビュー済み",
	review.OnlyNeedsReview: "要確認",
	review.OnlyPending:     "未着手",
	review.HasFeedback:     "コメントあり",
}

var statusLabels = map[review.Status]string{
	review.Reviewed:    "レビュー済み",
	review.NeedsReview: "要確認",
	review.Pending:     "未着手",
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string, logger *slog.Logger) *Renderer {
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"formatTime": formatTime,
		"deref":      deref,
		"hasValue":   hasValue,
		"statusLabel": func(s ops.Student) string {
			return statusLabels[s.Record().Status()]
		},
		"statusClass": func(s ops.Student) string {
			return s.Record().Status().String()
		},
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"assignments": "assignments.html",
		"list":        "list.html",
		"detail":      "detail.html",
		"error":       "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
		log:       logging.OrDiscard(logger),
	}
}

func (r *Renderer) page(title string) PageData {
	return PageData{Title: title, Version: r.version, Nav: "assignments"}
}

// renderPage renders a named page template with HTTP 200.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template. htmx requests get only the
// "content" block.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.log.Error("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		r.log.Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
// Internal error details are logged, never sent to the client.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	sErr := errors.From(err)
	status := sErr.Status
	message := sErr.Message
	if sErr.Code == errors.ErrInternal {
		r.log.Error("request failed", "path", req.URL.Path, "error", err)
		message = "internal error"
	}

	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	if wantsJSON(req) {
		writeError(w, sErr.Code, status, message)
		return
	}

	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData:   r.page(fmt.Sprintf("Error %d", status)),
		StatusCode: status,
		Message:    message,
	})
}

func wantsJSON(req *http.Request) bool {
	return strings.HasPrefix(req.URL.Path, "/api/") ||
		strings.Contains(req.Header.Get("Accept"), "application/json")
}

// writeError writes the JSON error envelope {"error":{code,message,status}}.
func writeError(w http.ResponseWriter, code errors.ErrorCode, status int, message string) {
	renderJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    string(code),
			"message": message,
			"status":  status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// markdown renders comments. Raw HTML in comments is omitted.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" local time.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).Format("2006-01-02 15:04")
}

// deref dereferences a pointer, returning the zero value if nil.
func deref(v any) any {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Zero(rv.Type().Elem()).Interface()
		}
		return rv.Elem().Interface()
	}
	return v
}

// hasValue checks if a pointer value is non-nil.
func hasValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		return !rv.IsNil()
	}
	return true
}
