package web

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/review"
)

// Handlers contains HTTP route handlers for the review UI and API.
type Handlers struct {
	backend  *ops.Backend
	renderer *Renderer
	log      *slog.Logger
}

// HandleAssignments handles GET /assignments: the assignment index with the upload form.
func (h *Handlers) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListAssignments(r.Context(), h.backend)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, r, "assignments", AssignmentsPageData{
		PageData:    h.renderer.page("課題一覧"),
		Assignments: result.Assignments,
	})
}

// HandleUploadForm handles POST /assignments from the upload form.
func (h *Handlers) HandleUploadForm(w http.ResponseWriter, r *http.Request) {
	out, err := h.upload(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/assignments/"+url.PathEscape(out.AssignmentID), http.StatusSeeOther)
}

// HandleList handles GET /assignments/{aid}: the students of one assignment.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	aid := r.PathValue("aid")
	filter := r.URL.Query().Get("filter")

	a, err := db.GetAssignment(r.Context(), h.backend.DB, aid)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	result, err := ops.List(r.Context(), h.backend, ops.ListInput{AssignmentID: aid, Filter: filter})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	status, err := ops.AutoCheckStatus(r.Context(), h.backend, ops.AutoCheckStatusInput{AssignmentID: aid})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	filters := make([]FilterOption, 0, len(review.Predicates))
	for _, p := range review.Predicates {
		filters = append(filters, FilterOption{
			Name:   p.String(),
			Label:  filterLabels[p],
			Count:  result.Stats.Count(p),
			Active: p.String() == result.Filter,
		})
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData:     h.renderer.page(a.Name),
		AssignmentID: aid,
		Assignment:   a.Name,
		Students:     result.Students,
		Stats:        result.Stats,
		Filters:      filters,
		Filter:       result.Filter,
		Status:       status,
	})
}

// HandleDetail handles GET /assignments/{aid}/students/{sid}.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	aid, sid := r.PathValue("aid"), r.PathValue("sid")
	filter := r.URL.Query().Get("filter")

	detail, err := ops.Detail(r.Context(), h.backend, ops.DetailInput{AssignmentID: aid, StudentID: sid})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	list, err := ops.List(r.Context(), h.backend, ops.ListInput{AssignmentID: aid, Filter: filter})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	view := make([]string, len(list.Students))
	for i, s := range list.Students {
		view[i] = s.ID
	}
	cursor := review.Locate(view, sid)

	rec := detail.Student.Record()
	data := DetailPageData{
		PageData:     h.renderer.page(detail.Student.FullName),
		AssignmentID: aid,
		Detail:       detail,
		Feedback:     rec.Seed(),
		FeedbackHTML: renderMarkdown(rec.SavedFeedback),
		AutoHTML:     renderMarkdown(rec.AutoFeedback),
		Cursor:       cursor,
		Filter:       list.Filter,
		Saved:        r.URL.Query().Get("saved") == "1",
	}
	if cursor.HasPrev {
		data.PrevID = view[cursor.Index-1]
	}
	if cursor.HasNext {
		data.NextID = view[cursor.Index+1]
	}
	h.renderer.renderPage(w, r, "detail", data)
}

// HandleFeedbackForm handles POST /assignments/{aid}/students/{sid}/feedback.
// action=next saves and moves to the successor in the filtered view, or back
// to the list after the last one.
func (h *Handlers) HandleFeedbackForm(w http.ResponseWriter, r *http.Request) {
	aid, sid := r.PathValue("aid"), r.PathValue("sid")
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	filter := r.FormValue("filter")
	feedback := r.FormValue("feedback")

	before, err := h.viewIDs(r, aid, filter)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if _, err := ops.SaveFeedback(r.Context(), h.backend, ops.SaveFeedbackInput{
		AssignmentID: aid,
		StudentID:    sid,
		Feedback:     &feedback,
	}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	listURL := "/assignments/" + url.PathEscape(aid) + "?filter=" + url.QueryEscape(filter)
	if r.FormValue("action") != "next" {
		http.Redirect(w, r, studentURL(aid, sid, filter)+"&saved=1", http.StatusSeeOther)
		return
	}

	after, err := h.viewIDs(r, aid, filter)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	next := review.Successor(before, after, sid)
	if next == "" {
		http.Redirect(w, r, listURL, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, studentURL(aid, next, filter), http.StatusSeeOther)
}

// HandleAutoCheckForm handles POST /assignments/{aid}/students/{sid}/auto-check.
func (h *Handlers) HandleAutoCheckForm(w http.ResponseWriter, r *http.Request) {
	aid, sid := r.PathValue("aid"), r.PathValue("sid")
	if _, err := ops.AutoCheck(r.Context(), h.backend, ops.AutoCheckInput{AssignmentID: aid, StudentID: sid}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, studentURL(aid, sid, r.FormValue("filter")), http.StatusSeeOther)
}

// HandleAutoCheckAllForm handles POST /assignments/{aid}/auto-check-all.
func (h *Handlers) HandleAutoCheckAllForm(w http.ResponseWriter, r *http.Request) {
	aid := r.PathValue("aid")
	force := r.FormValue("force") == "true"
	if _, err := ops.AutoCheckAll(r.Context(), h.backend, ops.AutoCheckAllInput{AssignmentID: aid, Force: force}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/assignments/"+url.PathEscape(aid), http.StatusSeeOther)
}

func (h *Handlers) viewIDs(r *http.Request, aid, filter string) ([]string, error) {
	list, err := ops.List(r.Context(), h.backend, ops.ListInput{AssignmentID: aid, Filter: filter})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list.Students))
	for i, s := range list.Students {
		ids[i] = s.ID
	}
	return ids, nil
}

func studentURL(aid, sid, filter string) string {
	return "/assignments/" + url.PathEscape(aid) + "/students/" + url.PathEscape(sid) + "?filter=" + url.QueryEscape(filter)
}
