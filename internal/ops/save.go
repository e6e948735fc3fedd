package ops

import (
	"context"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
)

// SaveFeedbackInput contains parameters for the SaveFeedback operation.
type SaveFeedbackInput struct {
	AssignmentID string
	StudentID    string
	Feedback     *string // required; an empty comment is valid
}

// SaveFeedbackOutput contains the result of the SaveFeedback operation.
type SaveFeedbackOutput struct {
	Status string `json:"status"`
}

// SaveFeedback stores a comment and marks the student reviewed.
func SaveFeedback(ctx context.Context, b *Backend, input SaveFeedbackInput) (*SaveFeedbackOutput, error) {
	if err := requireIDs(input.AssignmentID, &input.StudentID); err != nil {
		return nil, err
	}
	if input.Feedback == nil {
		return nil, errors.NewInvalidRequest("feedback is required")
	}
	if err := db.SaveFeedback(ctx, b.DB, input.AssignmentID, input.StudentID, *input.Feedback); err != nil {
		return nil, err
	}
	b.log.Debug("feedback saved",
		"assignment_id", input.AssignmentID,
		"student_id", input.StudentID,
		"length", len(*input.Feedback))
	return &SaveFeedbackOutput{Status: "success"}, nil
}
