package ops

import (
	"context"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/review"
)

// AutoCheckAllInput contains parameters for the AutoCheckAll operation.
type AutoCheckAllInput struct {
	AssignmentID string
	Force        bool // re-run even when the assignment was already checked
}

// AutoCheckAll checks every submitted, unreviewed student of an assignment.
// At most one batch runs per assignment at a time (CONFLICT otherwise).
// The assignment is marked checked only when the batch ran to completion.
func AutoCheckAll(ctx context.Context, b *Backend, input AutoCheckAllInput) (*review.BatchStats, error) {
	if err := requireIDs(input.AssignmentID, nil); err != nil {
		return nil, err
	}
	if !b.startBatch(input.AssignmentID) {
		return nil, errors.NewConflict("auto-check is already running for this assignment")
	}
	defer b.finishBatch(input.AssignmentID)

	a, err := db.GetAssignment(ctx, b.DB, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	if a.CheckedAt != nil && !input.Force {
		return nil, errors.NewAlreadyChecked(a.ID)
	}

	store := b.Assignment(a.ID)
	session := review.New(review.Options{
		AssignmentID:     a.ID,
		Source:           store,
		Checker:          store,
		CheckConcurrency: b.Config.CheckConcurrency,
		Logger:           b.log,
	})
	defer session.Close()

	if err := session.Load(ctx); err != nil {
		return nil, err
	}

	stats, err := session.CheckAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			b.log.Warn("auto-check cancelled", "assignment_id", a.ID, "checked", stats.Checked)
			return &stats, errors.NewCancelled("auto-check-all")
		}
		return nil, err
	}

	if err := db.MarkChecked(ctx, b.DB, a.ID, b.now().Unix()); err != nil {
		return nil, err
	}
	b.log.Info("auto-check completed",
		"assignment_id", a.ID,
		"total", stats.Total,
		"checked", stats.Checked,
		"issues_found", stats.IssuesFound,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return &stats, nil
}

func (b *Backend) startBatch(assignmentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running[assignmentID] {
		return false
	}
	b.running[assignmentID] = true
	return true
}

func (b *Backend) finishBatch(assignmentID string) {
	b.mu.Lock()
	delete(b.running, assignmentID)
	b.mu.Unlock()
}
