package ops

import (
	"context"

	"github.com/hpungsan/saiten/internal/db"
)

// AssignmentSummary is one entry of ListAssignments.
type AssignmentSummary struct {
	AssignmentID string `json:"assignment_id"`
	Name         string `json:"name"`
	SourceBase   string `json:"source_base"`
	Checked      bool   `json:"checked"`
	CreatedAt    int64  `json:"created_at"`
	Total        int    `json:"total"`
}

// ListAssignmentsOutput contains the result of the ListAssignments operation.
type ListAssignmentsOutput struct {
	Assignments []AssignmentSummary `json:"assignments"`
}

// ListAssignments lists uploaded assignments, newest first.
func ListAssignments(ctx context.Context, b *Backend) (*ListAssignmentsOutput, error) {
	list, err := db.ListAssignments(ctx, b.DB)
	if err != nil {
		return nil, err
	}
	out := &ListAssignmentsOutput{Assignments: make([]AssignmentSummary, 0, len(list))}
	for i := range list {
		out.Assignments = append(out.Assignments, summarize(&list[i]))
	}
	return out, nil
}

func summarize(a *db.Assignment) AssignmentSummary {
	return AssignmentSummary{
		AssignmentID: a.ID,
		Name:         a.Name,
		SourceBase:   a.SourceBase,
		Checked:      a.CheckedAt != nil,
		CreatedAt:    a.CreatedAt,
		Total:        a.Total,
	}
}
