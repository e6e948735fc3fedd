package review

import (
	"log/slog"

	"github.com/hpungsan/saiten/internal/errors"
)

// edit is the editing context of the open record. At most one exists per
// Session; it owns the debounce timer.
type edit struct {
	id      string
	draft   string
	touched bool // SetDraft was called since Open

	timer Timer
	seq   uint64 // bumped on every change; stale callbacks compare against it
}

func (e *edit) stop() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.seq++
}

// Open makes id the current record and returns its starting draft: the
// unsaved draft if one exists, otherwise the record's seed text.
// Opening a record closes the previous edit.
func (s *Session) Open(id string) (string, error) {
	s.mu.Lock()
	draft, err := s.openLocked(id)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.notify(Change{Kind: ChangeOpened, ID: id})
	return draft, nil
}

func (s *Session) openLocked(id string) (string, error) {
	if s.closed {
		return "", errors.NewConflict("review session is closed")
	}
	rec, ok := s.coll.Get(id)
	if !ok {
		return "", errors.NewNotFound("student", id)
	}
	s.closeEditLocked()

	draft, ok := s.drafts.Get(id)
	if !ok {
		draft = rec.Seed()
	}
	s.current = &edit{id: id, draft: draft}
	return draft, nil
}

// Current returns the open record.
func (s *Session) Current() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Record{}, false
	}
	return s.coll.Get(s.current.id)
}

// Draft returns the open record's id and its current draft text.
func (s *Session) Draft() (id, text string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", "", false
	}
	return s.current.id, s.current.draft, true
}

// SetDraft replaces the open record's draft and restarts the debounce timer.
// The draft registry is updated once the timer fires.
func (s *Session) SetDraft(text string) error {
	s.mu.Lock()
	e := s.current
	if e == nil {
		s.mu.Unlock()
		return errors.NewInvalidRequest("no record is open")
	}
	e.draft = text
	e.touched = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.seq++
	seq := e.seq

	if s.opts.Debounce < 0 {
		s.reconcileLocked(e)
		s.mu.Unlock()
		s.notify(Change{Kind: ChangeDraft, ID: e.id})
		return nil
	}
	e.timer = s.clock.AfterFunc(s.opts.Debounce, func() { s.fire(e, seq) })
	s.mu.Unlock()
	return nil
}

// fire runs when a debounce timer expires.
func (s *Session) fire(e *edit, seq uint64) {
	s.mu.Lock()
	if s.current != e || e.seq != seq || e.timer == nil {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	s.reconcileLocked(e)
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeDraft, ID: e.id})
}

// CloseEdit closes the open record, reconciling any draft still waiting on
// the debounce timer.
func (s *Session) CloseEdit() {
	s.mu.Lock()
	id := ""
	if s.current != nil {
		id = s.current.id
	}
	s.closeEditLocked()
	s.mu.Unlock()
	if id != "" {
		s.notify(Change{Kind: ChangeDraft, ID: id})
	}
}

func (s *Session) closeEditLocked() {
	e := s.current
	if e == nil {
		return
	}
	pending := e.timer != nil
	e.stop()
	if pending {
		s.reconcileLocked(e)
	}
	s.current = nil
}

// reconcileLocked applies the dirty rule to e's draft against the live record.
func (s *Session) reconcileLocked(e *edit) {
	rec, ok := s.coll.Get(e.id)
	if !ok {
		return
	}
	if rec.IsDirty(e.draft) {
		s.drafts.set(e.id, e.draft)
	} else {
		s.drafts.remove(e.id)
	}
	s.log.Debug("draft reconciled", slog.String("student_id", e.id), slog.Bool("dirty", rec.IsDirty(e.draft)))
}
