package client

import (
	"context"

	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/review"
)

// AssignmentStore binds a Client to one assignment and implements
// review.Store for review sessions against a remote server.
type AssignmentStore struct {
	c  *Client
	id string
}

var _ review.Store = (*AssignmentStore)(nil)

// Assignment returns the review store of one assignment on the server.
func (c *Client) Assignment(assignmentID string) *AssignmentStore {
	return &AssignmentStore{c: c, id: assignmentID}
}

// Records lists the submitted students in roster order.
func (s *AssignmentStore) Records(ctx context.Context) ([]review.Record, error) {
	students, err := s.c.Students(ctx, s.id, "")
	if err != nil {
		return nil, err
	}
	records := make([]review.Record, len(students))
	for i := range students {
		records[i] = students[i].Record()
	}
	return records, nil
}

// SaveFeedback commits a comment on the server.
func (s *AssignmentStore) SaveFeedback(ctx context.Context, id, text string) error {
	return s.c.SaveFeedback(ctx, s.id, id, text)
}

// AutoCheck runs the server-side check for one student.
func (s *AssignmentStore) AutoCheck(ctx context.Context, id string) (review.Outcome, error) {
	out, err := s.c.AutoCheck(ctx, s.id, id)
	if err != nil {
		return review.Outcome{}, err
	}
	return review.Outcome{Suggestion: out.AutoFeedback, Result: out.AutoCheckResult}, nil
}

// Detail fetches one student's submitted files.
func (s *AssignmentStore) Detail(ctx context.Context, id string) (*ops.DetailOutput, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("student id is required")
	}
	return s.c.Student(ctx, s.id, id)
}
