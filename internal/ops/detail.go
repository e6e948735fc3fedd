package ops

import (
	"context"

	"github.com/hpungsan/saiten/internal/autocheck"
	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
)

// Marks shown next to expected files.
const (
	MarkPresent = "○"
	MarkMissing = "×"
)

// DetailInput contains parameters for the Detail operation.
type DetailInput struct {
	AssignmentID string
	StudentID    string
}

// ExpectedFile reports whether one required file was submitted.
type ExpectedFile struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Mark    string `json:"mark"`
}

// DetailOutput contains the result of the Detail operation.
type DetailOutput struct {
	Student         Student        `json:"student"`
	Files           []string       `json:"files"`
	AssignmentName  string         `json:"assignment_name"`
	SourceCode      string         `json:"source_code"`
	TestHistory     string         `json:"test_history"`
	AutoCheckResult string         `json:"auto_check_result,omitempty"`
	ExpectedFiles   []ExpectedFile `json:"expected_files"`
}

// Detail returns one student's record together with the submitted files.
func Detail(ctx context.Context, b *Backend, input DetailInput) (*DetailOutput, error) {
	if err := requireIDs(input.AssignmentID, &input.StudentID); err != nil {
		return nil, err
	}
	a, err := db.GetAssignment(ctx, b.DB, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	s, err := db.GetStudent(ctx, b.DB, input.AssignmentID, input.StudentID)
	if err != nil {
		return nil, err
	}

	files, err := b.studentFiles(a, s.StudentID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	out := &DetailOutput{
		Student:         StudentFromDB(s),
		Files:           []string{},
		AssignmentName:  a.Name,
		SourceCode:      files.SourceCode,
		TestHistory:     files.TestHistory,
		AutoCheckResult: s.AutoCheckResult,
	}
	if files.Folder != nil {
		out.Files = append(out.Files, files.Folder.Files...)
	}
	for _, name := range []string{autocheck.SourceFile(a.SourceBase), autocheck.HistoryFile(a.SourceBase)} {
		present := files.Folder.Has(name)
		mark := MarkMissing
		if present {
			mark = MarkPresent
		}
		out.ExpectedFiles = append(out.ExpectedFiles, ExpectedFile{Name: name, Present: present, Mark: mark})
	}
	return out, nil
}
