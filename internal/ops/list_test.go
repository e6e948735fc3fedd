package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/saiten/internal/errors"
)

func TestList_HappyPath(t *testing.T) {
	b := newTestBackend(t)
	aid := importFixture(t, b)

	out, err := List(context.Background(), b, ListInput{AssignmentID: aid})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	// Only submitted rows, in roster order.
	if len(out.Students) != 2 {
		t.Fatalf("len(Students) = %d, want 2", len(out.Students))
	}
	if out.Students[0].ID != "B001" || out.Students[1].ID != "B003" {
		t.Errorf("order = %s, %s; want B001, B003", out.Students[0].ID, out.Students[1].ID)
	}
	if out.Students[0].Feedback != nil {
		t.Errorf("B001 Feedback = %q, want nil", *out.Students[0].Feedback)
	}
	if fb := out.Students[1].Feedback; fb == nil || *fb != "前回のコメント" {
		t.Errorf("B003 Feedback = %v, want 前回のコメント", fb)
	}
	if out.Filter != "all" {
		t.Errorf("Filter = %q, want all", out.Filter)
	}
	if out.Stats.Total != 2 || out.Stats.Pending != 2 || out.Stats.HasFeedback != 1 {
		t.Errorf("Stats = %+v", out.Stats)
	}
}

func TestList_Filter(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	aid := importFixture(t, b)

	if _, err := SaveFeedback(ctx, b, SaveFeedbackInput{AssignmentID: aid, StudentID: "B001", Feedback: stringPtr("良い")}); err != nil {
		t.Fatalf("SaveFeedback failed: %v", err)
	}
	if _, err := AutoCheck(ctx, b, AutoCheckInput{AssignmentID: aid, StudentID: "B003"}); err != nil {
		t.Fatalf("AutoCheck failed: %v", err)
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{"", []string{"B001", "B003"}},
		{"reviewed", []string{"B001"}},
		{"completed", []string{"B001"}},
		{"needs_review", []string{"B003"}},
		{"pending", nil},
	}
	for _, tc := range tests {
		t.Run(tc.filter, func(t *testing.T) {
			out, err := List(ctx, b, ListInput{AssignmentID: aid, Filter: tc.filter})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(out.Students) != len(tc.want) {
				t.Fatalf("len(Students) = %d, want %d", len(out.Students), len(tc.want))
			}
			for i, id := range tc.want {
				if out.Students[i].ID != id {
					t.Errorf("Students[%d] = %s, want %s", i, out.Students[i].ID, id)
				}
			}
			// Stats ignore the filter.
			if out.Stats.Total != 2 || out.Stats.Reviewed != 1 || out.Stats.NeedsReview != 1 {
				t.Errorf("Stats = %+v", out.Stats)
			}
		})
	}
}

func TestList_Errors(t *testing.T) {
	b := newTestBackend(t)
	aid := importFixture(t, b)

	if _, err := List(context.Background(), b, ListInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
	if _, err := List(context.Background(), b, ListInput{AssignmentID: aid, Filter: "bogus"}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
	if _, err := List(context.Background(), b, ListInput{AssignmentID: "nope"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
