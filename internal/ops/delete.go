package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/saiten/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	AssignmentID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted      bool   `json:"deleted"`
	AssignmentID string `json:"assignment_id"`
}

// Delete removes an assignment, its students and its extracted submissions.
func Delete(ctx context.Context, b *Backend, input DeleteInput) (*DeleteOutput, error) {
	if err := requireIDs(input.AssignmentID, nil); err != nil {
		return nil, err
	}
	if err := db.DeleteAssignment(ctx, b.DB, input.AssignmentID); err != nil {
		return nil, err
	}
	b.forgetFiles(input.AssignmentID)

	// Extracted files are only removed from our own submissions directory.
	dir := filepath.Join(b.SubmissionsDir(), input.AssignmentID)
	if !containsTraversal(input.AssignmentID) && !strings.ContainsAny(input.AssignmentID, `/\`) {
		if err := os.RemoveAll(dir); err != nil {
			b.log.Warn("failed to remove submissions", "assignment_id", input.AssignmentID, "error", err)
		}
	}

	return &DeleteOutput{Deleted: true, AssignmentID: input.AssignmentID}, nil
}
