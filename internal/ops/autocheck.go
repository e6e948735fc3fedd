package ops

import (
	"context"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
)

// AutoCheckInput contains parameters for the AutoCheck operation.
type AutoCheckInput struct {
	AssignmentID string
	StudentID    string
}

// AutoCheckOutput contains the result of the AutoCheck operation.
type AutoCheckOutput struct {
	AutoFeedback    string `json:"auto_feedback"`
	AutoCheckResult string `json:"auto_check_result"`
}

// AutoCheck runs the static check for one student and stores the suggested
// feedback. Reviewed students are never modified (ALREADY_REVIEWED).
func AutoCheck(ctx context.Context, b *Backend, input AutoCheckInput) (*AutoCheckOutput, error) {
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
	if s.Reviewed {
		return nil, errors.NewAlreadyReviewed(s.StudentID)
	}

	files, err := b.studentFiles(a, s.StudentID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	report, err := b.checker.Check(files.Folder, a.SourceBase)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	// The conditional update loses to a save that landed since GetStudent.
	if err := db.ApplyAutoCheck(ctx, b.DB, a.ID, s.StudentID, report.Suggestion, report.Result); err != nil {
		return nil, err
	}
	return &AutoCheckOutput{AutoFeedback: report.Suggestion, AutoCheckResult: report.Result}, nil
}
