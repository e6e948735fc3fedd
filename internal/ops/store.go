package ops

import (
	"context"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/review"
)

// AssignmentStore binds a Backend to one assignment and implements
// review.Store for in-process review sessions.
type AssignmentStore struct {
	b  *Backend
	id string
}

var _ review.Store = (*AssignmentStore)(nil)

// Assignment returns the review store of one assignment. The assignment is
// not looked up until the first call.
func (b *Backend) Assignment(assignmentID string) *AssignmentStore {
	return &AssignmentStore{b: b, id: assignmentID}
}

// Records lists the submitted students in roster order.
func (s *AssignmentStore) Records(ctx context.Context) ([]review.Record, error) {
	if _, err := db.GetAssignment(ctx, s.b.DB, s.id); err != nil {
		return nil, err
	}
	students, err := db.ListStudents(ctx, s.b.DB, s.id, true)
	if err != nil {
		return nil, err
	}
	records := make([]review.Record, len(students))
	for i := range students {
		records[i] = recordFromDB(&students[i])
	}
	return records, nil
}

// SaveFeedback commits a comment and marks the student reviewed.
func (s *AssignmentStore) SaveFeedback(ctx context.Context, id, text string) error {
	_, err := SaveFeedback(ctx, s.b, SaveFeedbackInput{
		AssignmentID: s.id,
		StudentID:    id,
		Feedback:     &text,
	})
	return err
}

// AutoCheck runs the static check for one student and stores the outcome.
func (s *AssignmentStore) AutoCheck(ctx context.Context, id string) (review.Outcome, error) {
	out, err := AutoCheck(ctx, s.b, AutoCheckInput{AssignmentID: s.id, StudentID: id})
	if err != nil {
		return review.Outcome{}, err
	}
	return review.Outcome{Suggestion: out.AutoFeedback, Result: out.AutoCheckResult}, nil
}

// Detail returns one student's record together with the submitted files.
func (s *AssignmentStore) Detail(ctx context.Context, id string) (*DetailOutput, error) {
	return Detail(ctx, s.b, DetailInput{AssignmentID: s.id, StudentID: id})
}
