package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/saiten/internal/errors"
)

func TestDelete_RemovesEverything(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	aid := importFixture(t, b)

	// Warm the detail cache.
	if _, err := Detail(ctx, b, DetailInput{AssignmentID: aid, StudentID: "B001"}); err != nil {
		t.Fatalf("Detail failed: %v", err)
	}

	out, err := Delete(ctx, b, DeleteInput{AssignmentID: aid})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !out.Deleted || out.AssignmentID != aid {
		t.Errorf("output = %+v", out)
	}

	if _, err := List(ctx, b, ListInput{AssignmentID: aid}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("List after delete: err = %v, want NOT_FOUND", err)
	}
	if _, err := os.Stat(filepath.Join(b.SubmissionsDir(), aid)); !os.IsNotExist(err) {
		t.Errorf("submission dir still exists: %v", err)
	}
	if b.files.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", b.files.Len())
	}
}

func TestDelete_NotFound(t *testing.T) {
	b := newTestBackend(t)

	if _, err := Delete(context.Background(), b, DeleteInput{AssignmentID: "nope"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
	if _, err := Delete(context.Background(), b, DeleteInput{}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}
