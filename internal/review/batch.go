package review

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/saiten/internal/errors"
)

// BatchStats summarises a CheckAll run. Only processed records are counted.
type BatchStats struct {
	Total       int               `json:"total"`
	Checked     int               `json:"checked"`
	IssuesFound int               `json:"issues_found"`
	Skipped     int               `json:"skipped"`
	Failed      int               `json:"failed"`
	Failures    map[string]string `json:"failures,omitempty"`
}

// CheckAll auto-checks every record that is not reviewed. Reviewed records
// are skipped and never modified, including records reviewed while their
// check was running. A failing record is counted and the batch continues.
// Cancelling ctx stops dispatch; the stats then cover processed records and
// the context error is returned with them.
func (s *Session) CheckAll(ctx context.Context) (BatchStats, error) {
	if s.opts.Checker == nil {
		return BatchStats{}, errors.NewInvalidRequest("session has no auto-checker")
	}
	if !s.batchMu.TryLock() {
		return BatchStats{}, errors.NewConflict("auto-check is already running")
	}
	defer s.batchMu.Unlock()

	s.mu.Lock()
	records := s.coll.All()
	s.mu.Unlock()

	var (
		mu    sync.Mutex
		stats = BatchStats{Total: len(records)}
		g     errgroup.Group
	)
	g.SetLimit(s.opts.CheckConcurrency)

	for _, r := range records {
		if r.Reviewed {
			mu.Lock()
			stats.Skipped++
			mu.Unlock()
			continue
		}
		if ctx.Err() != nil {
			break
		}
		id := r.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, err := s.opts.Checker.AutoCheck(ctx, id)
			if err != nil {
				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, errors.ErrAlreadyReviewed):
					stats.Skipped++
				case ctx.Err() != nil:
					// Interrupted, not processed.
				default:
					stats.Failed++
					if stats.Failures == nil {
						stats.Failures = make(map[string]string)
					}
					stats.Failures[id] = err.Error()
					s.log.Warn("auto-check failed", slog.String("student_id", id), slog.String("error", err.Error()))
				}
				return nil
			}

			applied := s.applyOutcome(id, out)
			mu.Lock()
			if applied {
				stats.Checked++
				if out.Suggestion != "" {
					stats.IssuesFound++
				}
			} else {
				stats.Skipped++
			}
			mu.Unlock()
			if applied {
				s.notify(Change{Kind: ChangeChecked, ID: id})
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("auto-check batch finished",
		slog.Int("total", stats.Total),
		slog.Int("checked", stats.Checked),
		slog.Int("issues_found", stats.IssuesFound),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed))

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// ApplyOutcome stores an auto-check outcome for id if it is still not
// reviewed. It reports whether the outcome was applied.
func (s *Session) ApplyOutcome(id string, out Outcome) bool {
	applied := s.applyOutcome(id, out)
	if applied {
		s.notify(Change{Kind: ChangeChecked, ID: id})
	}
	return applied
}

func (s *Session) applyOutcome(id string, out Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.coll.Get(id)
	if !ok || rec.Reviewed {
		return false
	}
	s.coll.update(id, func(r *Record) {
		r.AutoFeedback = out.Suggestion
		r.AutoCheckResult = out.Result
	})
	s.rebaselineLocked(id)
	return true
}
