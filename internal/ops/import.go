package ops

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/submission"
)

// archiveExpansion bounds the extracted size of a ZIP relative to the upload cap.
const archiveExpansion = 8

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Name        string // required, display name of the assignment
	SourceBase  string // required, e.g. "kadai01" (a trailing ".c" is dropped)
	Roster      io.Reader
	Archive     io.ReaderAt
	ArchiveSize int64
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	AssignmentID string `json:"assignment_id"`
	Message      string `json:"message"`
	Students     int    `json:"students"`
	Submitted    int    `json:"submitted"`
}

// Import creates an assignment from a roster CSV and a ZIP of submissions.
// The archive is extracted under <data dir>/submissions/<assignment id>;
// nothing is kept when any step fails.
func Import(ctx context.Context, b *Backend, input ImportInput) (*ImportOutput, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.NewInvalidRequest("assignment_name is required")
	}
	base, err := normalizeSourceBase(input.SourceBase)
	if err != nil {
		return nil, err
	}
	if input.Roster == nil || input.Archive == nil {
		return nil, errors.NewInvalidRequest("csv_file and zip_file are required")
	}

	roster, err := submission.ParseRoster(input.Roster)
	if err != nil {
		return nil, err
	}

	id := generateID()
	dest := filepath.Join(b.SubmissionsDir(), id)
	if err := os.MkdirAll(dest, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create submission directory: %w", err))
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(dest)
		}
	}()

	if err := submission.Extract(input.Archive, input.ArchiveSize, dest, b.Config.MaxUploadBytes()*archiveExpansion); err != nil {
		return nil, err
	}
	root, err := submission.SubmissionRoot(dest)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	a := &db.Assignment{
		ID:            id,
		Name:          name,
		SourceBase:    base,
		SubmissionDir: root,
		Columns:       roster.Columns,
		CreatedAt:     b.now().Unix(),
	}
	students, submitted := rosterStudents(roster, b.Config.SubmittedMarker)
	if err := db.InsertAssignment(ctx, b.DB, a, students); err != nil {
		return nil, err
	}
	success = true

	b.log.Info("assignment imported",
		"assignment_id", id,
		"name", name,
		"students", len(students),
		"submitted", submitted)
	return &ImportOutput{
		AssignmentID: id,
		Message:      fmt.Sprintf("課題「%s」をアップロードしました（提出済み %d / %d 名）", name, submitted, len(students)),
		Students:     len(students),
		Submitted:    submitted,
	}, nil
}

// ImportFilesInput contains parameters for the ImportFiles operation.
type ImportFilesInput struct {
	Name       string
	SourceBase string
	RosterPath string // .csv, subject to ValidatePath
	ZipPath    string // .zip, subject to ValidatePath
}

// ImportFiles is Import over local files, used by the CLI.
func ImportFiles(ctx context.Context, b *Backend, input ImportFilesInput) (*ImportOutput, error) {
	if err := ValidatePath(input.RosterPath, PathCheckRead, b.Config, ".csv"); err != nil {
		return nil, err
	}
	if err := ValidatePath(input.ZipPath, PathCheckRead, b.Config, ".zip"); err != nil {
		return nil, err
	}

	roster, err := openFileNoFollowRead(input.RosterPath)
	if err != nil {
		return nil, err
	}
	defer roster.Close()

	archive, err := openFileNoFollowRead(input.ZipPath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if limit := b.Config.MaxUploadBytes(); limit > 0 && info.Size() > limit {
		return nil, errors.NewPayloadTooLarge(limit, info.Size())
	}

	return Import(ctx, b, ImportInput{
		Name:        input.Name,
		SourceBase:  input.SourceBase,
		Roster:      roster,
		Archive:     archive,
		ArchiveSize: info.Size(),
	})
}

func rosterStudents(r *submission.Roster, marker string) ([]db.Student, int) {
	students := make([]db.Student, 0, len(r.Rows))
	submitted := 0
	for i, row := range r.Rows {
		s := db.Student{
			StudentID:  row.ID,
			FullName:   row.FullName,
			StatusText: row.Status,
			Submitted:  row.Submitted(marker),
			Feedback:   row.Feedback,
			Position:   i,
			Row:        row.Values,
		}
		if s.Submitted {
			submitted++
		}
		students = append(students, s)
	}
	return students, submitted
}

// normalizeSourceBase accepts "kadai01" or "kadai01.c".
func normalizeSourceBase(s string) (string, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".c")
	if s == "" {
		return "", errors.NewInvalidRequest("source_file_name is required")
	}
	if strings.ContainsAny(s, `/\`) || containsTraversal(s) {
		return "", errors.NewInvalidRequest("source_file_name must be a bare file name")
	}
	return s, nil
}

// generateID creates a new ULID.
func generateID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
