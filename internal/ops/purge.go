package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
)

// minPurgeAge protects directories of imports that are still in flight.
const minPurgeAge = time.Hour

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays *int // optional, only purge directories created more than N days ago
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge removes extracted submission directories that no assignment refers
// to, left behind by interrupted imports. Directory names are assignment
// ULIDs; anything else is left alone.
func Purge(ctx context.Context, b *Backend, input PurgeInput) (*PurgeOutput, error) {
	cutoff := b.now().Add(-minPurgeAge)
	if input.OlderThanDays != nil {
		if *input.OlderThanDays < 0 {
			return nil, errors.NewInvalidRequest("older_than_days must not be negative")
		}
		if c := b.now().AddDate(0, 0, -*input.OlderThanDays); c.Before(cutoff) {
			cutoff = c
		}
	}

	entries, err := os.ReadDir(b.SubmissionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return &PurgeOutput{Message: formatPurgeMessage(0, input.OlderThanDays)}, nil
		}
		return nil, errors.NewInternal(err)
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := ulid.ParseStrict(e.Name())
		if err != nil || ulid.Time(id.Time()).After(cutoff) {
			continue
		}
		_, err = db.GetAssignment(ctx, b.DB, e.Name())
		if err == nil {
			continue
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if err := os.RemoveAll(filepath.Join(b.SubmissionsDir(), e.Name())); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("remove %s: %w", e.Name(), err))
		}
		count++
	}

	if count > 0 {
		b.log.Info("orphaned submissions purged", "count", count)
	}
	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, olderThanDays *int) string {
	if count == 0 {
		return "No orphaned submission directories to purge"
	}

	dirWord := "directory"
	if count > 1 {
		dirWord = "directories"
	}

	msg := fmt.Sprintf("Removed %d orphaned submission %s", count, dirWord)
	if olderThanDays != nil {
		msg += fmt.Sprintf(" (created more than %d days ago)", *olderThanDays)
	}
	return msg
}
