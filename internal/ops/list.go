package ops

import (
	"context"

	"github.com/hpungsan/saiten/internal/review"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	AssignmentID string
	Filter       string // optional: all, reviewed, needs-review, pending, has-feedback
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Students []Student    `json:"students"`
	Filter   string       `json:"filter"`
	Stats    review.Stats `json:"stats"`
}

// List returns the submitted students of an assignment in roster order,
// narrowed by an optional filter. Stats always cover the whole list.
func List(ctx context.Context, b *Backend, input ListInput) (*ListOutput, error) {
	if err := requireIDs(input.AssignmentID, nil); err != nil {
		return nil, err
	}
	pred, err := review.ParsePredicate(input.Filter)
	if err != nil {
		return nil, err
	}

	records, err := b.Assignment(input.AssignmentID).Records(ctx)
	if err != nil {
		return nil, err
	}
	coll := review.NewCollection(records)

	view := coll.Filter(pred)
	out := &ListOutput{
		Students: make([]Student, 0, len(view)),
		Filter:   pred.String(),
		Stats:    coll.Stats(),
	}
	for _, r := range view {
		out.Students = append(out.Students, StudentFromRecord(r))
	}
	return out, nil
}
