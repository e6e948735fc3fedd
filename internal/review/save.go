package review

import (
	"context"
	"log/slog"

	"github.com/hpungsan/saiten/internal/errors"
)

// Save commits text as id's feedback. Saves for the same id run one at a
// time in call order. Nothing changes unless the Persister succeeds; on
// success the record becomes reviewed and its unsaved draft is dropped.
func (s *Session) Save(ctx context.Context, id, text string) error {
	if s.opts.Persister == nil {
		return errors.NewInvalidRequest("session is read-only")
	}
	release, err := s.acquireSave(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if _, ok := s.Record(id); !ok {
		return errors.NewNotFound("student", id)
	}
	if err := s.opts.Persister.SaveFeedback(ctx, id, text); err != nil {
		s.log.Warn("save feedback failed", slog.String("student_id", id), slog.String("error", err.Error()))
		return err
	}

	s.mu.Lock()
	s.coll.update(id, func(r *Record) {
		r.SavedFeedback = text
		r.Reviewed = true
	})
	s.drafts.remove(id)
	if e := s.current; e != nil && e.id == id {
		if rec, ok := s.coll.Get(id); ok && rec.IsDirty(e.draft) {
			// Typed after this save was issued; keep it unsaved.
			s.drafts.set(id, e.draft)
		}
	}
	s.mu.Unlock()

	s.log.Info("feedback saved", slog.String("student_id", id), slog.Int("chars", len([]rune(text))))
	s.notify(Change{Kind: ChangeSaved, ID: id})
	return nil
}

// acquireSave waits for earlier saves of id to finish. The returned release
// func must be called once the save completes.
func (s *Session) acquireSave(ctx context.Context, id string) (func(), error) {
	done := make(chan struct{})

	s.saveMu.Lock()
	prev := s.tail[id]
	s.tail[id] = done
	s.saveMu.Unlock()

	release := func() {
		s.saveMu.Lock()
		if s.tail[id] == done {
			delete(s.tail, id)
		}
		s.saveMu.Unlock()
		close(done)
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep the chain intact for saves queued behind this one.
			go func() {
				<-prev
				release()
			}()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

// Advance tells the caller where SaveAndAdvance landed.
type Advance struct {
	// NextID is the successor in the active view, empty when there is none.
	NextID string
	// Opened is true when NextID was opened. It is false if the grader had
	// already moved to another record while the save was in flight.
	Opened bool
	// ReturnToList is true when the saved record was the last of the view.
	ReturnToList bool
}

// SaveAndAdvance saves, then opens the successor of id in the active view.
// The successor is the first record after id in the view as it was before the
// save that is still in the view afterwards.
func (s *Session) SaveAndAdvance(ctx context.Context, id, text string) (Advance, error) {
	s.mu.Lock()
	before := s.coll.IDs(s.filter)
	s.mu.Unlock()

	if err := s.Save(ctx, id, text); err != nil {
		return Advance{}, err
	}

	s.mu.Lock()
	next := Successor(before, s.coll.IDs(s.filter), id)
	if next == "" {
		s.mu.Unlock()
		return Advance{ReturnToList: true}, nil
	}
	if s.current == nil || s.current.id != id {
		s.mu.Unlock()
		return Advance{NextID: next}, nil
	}
	_, err := s.openLocked(next)
	s.mu.Unlock()
	if err != nil {
		return Advance{NextID: next}, err
	}
	s.notify(Change{Kind: ChangeOpened, ID: next})
	return Advance{NextID: next, Opened: true}, nil
}

// Successor returns the first id following id in the before view that is
// still present in the after view, or "" when there is none.
func Successor(before, after []string, id string) string {
	still := make(map[string]bool, len(after))
	for _, v := range after {
		still[v] = true
	}
	for i, v := range before {
		if v != id {
			continue
		}
		for _, n := range before[i+1:] {
			if still[n] {
				return n
			}
		}
		return ""
	}
	return ""
}
