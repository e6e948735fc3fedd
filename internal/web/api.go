package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/ops"
)

// maxFeedbackBody caps the JSON body of a feedback save.
const maxFeedbackBody = 1 << 20

// multipartMemory is the part of an upload kept in memory; the rest spills to disk.
const multipartMemory = 8 << 20

// APIAssignments handles GET /api/assignments.
func (h *Handlers) APIAssignments(w http.ResponseWriter, r *http.Request) {
	out, err := ops.ListAssignments(r.Context(), h.backend)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out.Assignments)
}

// APIUpload handles POST /api/assignments/upload (multipart: assignment_name,
// source_file_name, csv_file, zip_file).
func (h *Handlers) APIUpload(w http.ResponseWriter, r *http.Request) {
	out, err := h.upload(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"assignment_id": out.AssignmentID,
		"message":       out.Message,
	})
}

// APIDelete handles DELETE /api/assignments/{aid}.
func (h *Handlers) APIDelete(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Delete(r.Context(), h.backend, ops.DeleteInput{AssignmentID: r.PathValue("aid")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APIStudents handles GET /api/assignments/{aid}/students[?filter=].
func (h *Handlers) APIStudents(w http.ResponseWriter, r *http.Request) {
	out, err := ops.List(r.Context(), h.backend, ops.ListInput{
		AssignmentID: r.PathValue("aid"),
		Filter:       r.URL.Query().Get("filter"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out.Students)
}

// APIStudent handles GET /api/assignments/{aid}/students/{sid}.
func (h *Handlers) APIStudent(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Detail(r.Context(), h.backend, ops.DetailInput{
		AssignmentID: r.PathValue("aid"),
		StudentID:    r.PathValue("sid"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APIFeedback handles POST /api/assignments/{aid}/students/{sid}/feedback
// with body {"feedback": "..."}. An empty string is a valid comment.
func (h *Handlers) APIFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback *string `json:"feedback"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFeedbackBody))
	if err := dec.Decode(&body); err != nil {
		h.renderer.renderError(w, r, bodyError(err))
		return
	}

	out, err := ops.SaveFeedback(r.Context(), h.backend, ops.SaveFeedbackInput{
		AssignmentID: r.PathValue("aid"),
		StudentID:    r.PathValue("sid"),
		Feedback:     body.Feedback,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APIAutoCheck handles POST /api/assignments/{aid}/students/{sid}/auto-check.
func (h *Handlers) APIAutoCheck(w http.ResponseWriter, r *http.Request) {
	out, err := ops.AutoCheck(r.Context(), h.backend, ops.AutoCheckInput{
		AssignmentID: r.PathValue("aid"),
		StudentID:    r.PathValue("sid"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APIAutoCheckAll handles POST /api/assignments/{aid}/auto-check-all[?force=true].
func (h *Handlers) APIAutoCheckAll(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force")
	stats, err := ops.AutoCheckAll(r.Context(), h.backend, ops.AutoCheckAllInput{
		AssignmentID: r.PathValue("aid"),
		Force:        force == "true" || force == "1",
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, stats)
}

// APIAutoCheckStatus handles GET /api/assignments/{aid}/auto-check-status.
func (h *Handlers) APIAutoCheckStatus(w http.ResponseWriter, r *http.Request) {
	out, err := ops.AutoCheckStatus(r.Context(), h.backend, ops.AutoCheckStatusInput{AssignmentID: r.PathValue("aid")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// APIExportCSV handles GET /api/assignments/{aid}/export/csv. The CSV is
// buffered so a failure can still produce a JSON error.
func (h *Handlers) APIExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	a, _, err := ops.WriteCSV(r.Context(), h.backend, r.PathValue("aid"), &buf)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	name := ops.ExportFilename(a.Name)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="feedback.csv"; filename*=UTF-8''%s`, url.PathEscape(name)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// upload parses the multipart upload form and imports the assignment.
func (h *Handlers) upload(w http.ResponseWriter, r *http.Request) (*ops.ImportOutput, error) {
	limit := h.backend.Config.MaxUploadBytes()
	if r.ContentLength > limit {
		return nil, errors.NewPayloadTooLarge(limit, r.ContentLength)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	csvFile, _, err := formFile(r, "csv_file")
	if err != nil {
		return nil, err
	}
	defer csvFile.Close()

	zipFile, zipHeader, err := formFile(r, "zip_file")
	if err != nil {
		return nil, err
	}
	defer zipFile.Close()

	return ops.Import(r.Context(), h.backend, ops.ImportInput{
		Name:        r.FormValue("assignment_name"),
		SourceBase:  r.FormValue("source_file_name"),
		Roster:      csvFile,
		Archive:     zipFile,
		ArchiveSize: zipHeader.Size,
	})
}

func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		if stderrors.Is(err, http.ErrMissingFile) {
			return nil, nil, errors.NewInvalidRequest(field + " is required")
		}
		return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", field, err))
	}
	return f, hdr, nil
}

// bodyError maps request body read failures to structured errors.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.NewPayloadTooLarge(tooLarge.Limit, tooLarge.Limit+1)
	}
	if stderrors.Is(err, io.EOF) {
		return errors.NewInvalidRequest("request body is required")
	}
	return errors.NewInvalidRequest(fmt.Sprintf("invalid request body: %v", err))
}
