package ops

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/saiten/internal/errors"
)

// TestFullWorkflow exercises the grading lifecycle:
// import → list → auto-check all → detail → save → export → delete
func TestFullWorkflow(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	// 1. Import
	aid := importFixture(t, b)

	// 2. List: both submissions pending
	listOut, err := List(ctx, b, ListInput{AssignmentID: aid, Filter: "pending"})
	require.NoError(t, err)
	require.Len(t, listOut.Students, 2)

	// 3. Auto-check all
	stats, err := AutoCheckAll(ctx, b, AutoCheckAllInput{AssignmentID: aid})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Checked)
	require.Equal(t, 1, stats.IssuesFound)

	listOut, err = List(ctx, b, ListInput{AssignmentID: aid, Filter: "needs_review"})
	require.NoError(t, err)
	require.Len(t, listOut.Students, 1)
	require.Equal(t, "B003", listOut.Students[0].ID)

	// 4. Detail shows the suggestion
	detail, err := Detail(ctx, b, DetailInput{AssignmentID: aid, StudentID: "B003"})
	require.NoError(t, err)
	require.Contains(t, detail.Student.AutoFeedback, "kadai01.cに")

	// 5. Save the suggestion as the comment
	_, err = SaveFeedback(ctx, b, SaveFeedbackInput{AssignmentID: aid, StudentID: "B003", Feedback: &detail.Student.AutoFeedback})
	require.NoError(t, err)

	listOut, err = List(ctx, b, ListInput{AssignmentID: aid})
	require.NoError(t, err)
	require.Equal(t, 1, listOut.Stats.Reviewed)
	require.Equal(t, 1, listOut.Stats.Pending)

	// 6. Export carries the saved comment
	var buf bytes.Buffer
	_, count, err := WriteCSV(ctx, b, aid, &buf)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Contains(t, buf.String(), "kadai01.cに")

	// 7. Delete
	_, err = Delete(ctx, b, DeleteInput{AssignmentID: aid})
	require.NoError(t, err)

	_, err = Detail(ctx, b, DetailInput{AssignmentID: aid, StudentID: "B003"})
	require.Error(t, err)
	var sErr *errors.Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, errors.ErrNotFound, sErr.Code)
}
