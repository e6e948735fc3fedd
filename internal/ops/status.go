package ops

import (
	"context"
	"time"

	"github.com/hpungsan/saiten/internal/db"
)

// AutoCheckStatusInput contains parameters for the AutoCheckStatus operation.
type AutoCheckStatusInput struct {
	AssignmentID string
}

// AutoCheckStatusOutput contains the result of the AutoCheckStatus operation.
type AutoCheckStatusOutput struct {
	Checked    bool   `json:"checked"`
	CheckedAt  string `json:"checked_at,omitempty"` // RFC 3339
	Assignment string `json:"assignment,omitempty"`
	Running    bool   `json:"running"`
}

// AutoCheckStatus reports whether a batch auto-check has completed.
func AutoCheckStatus(ctx context.Context, b *Backend, input AutoCheckStatusInput) (*AutoCheckStatusOutput, error) {
	if err := requireIDs(input.AssignmentID, nil); err != nil {
		return nil, err
	}
	a, err := db.GetAssignment(ctx, b.DB, input.AssignmentID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	out := &AutoCheckStatusOutput{Running: b.running[a.ID]}
	b.mu.Unlock()

	if a.CheckedAt != nil {
		out.Checked = true
		out.CheckedAt = time.Unix(*a.CheckedAt, 0).Format(time.RFC3339)
		out.Assignment = a.Name
	}
	return out, nil
}
