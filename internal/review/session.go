package review

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/logging"
)

// DefaultDebounce is the quiet period before a draft is reconciled.
const DefaultDebounce = 500 * time.Millisecond

// DefaultCheckConcurrency bounds parallel auto-checks in CheckAll.
const DefaultCheckConcurrency = 4

// ChangeKind says what a Change notification is about.
type ChangeKind int

const (
	ChangeLoaded ChangeKind = iota
	ChangeOpened
	ChangeDraft
	ChangeSaved
	ChangeChecked
	ChangeFilter
)

// Change is passed to Options.OnChange after the session state changed.
type Change struct {
	Kind ChangeKind
	ID   string // record id, empty for collection-wide changes
}

// Options configures a Session.
type Options struct {
	AssignmentID string

	Source    Source
	Persister Persister
	Checker   Checker

	// Drafts is the unsaved-draft registry. A fresh one is created when nil.
	Drafts *Drafts
	// Clock schedules debounce timers. Defaults to SystemClock.
	Clock Clock
	// Debounce is the quiet period before a draft is reconciled.
	// Zero means DefaultDebounce; negative reconciles on every change.
	Debounce time.Duration
	// CheckConcurrency bounds CheckAll fan-out. Zero means DefaultCheckConcurrency.
	CheckConcurrency int

	Logger *slog.Logger

	// OnChange is called outside the session lock after every state change.
	OnChange func(Change)
}

// Session is one grader's review of one assignment. All state is guarded by a
// single mutex; collaborator calls run outside it.
type Session struct {
	opts   Options
	log    *slog.Logger
	clock  Clock
	drafts *Drafts

	mu      sync.Mutex
	coll    *Collection
	filter  Predicate
	current *edit
	closed  bool

	saveMu sync.Mutex
	tail   map[string]chan struct{}

	batchMu sync.Mutex
}

// New creates a session. Call Load to populate it.
func New(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.CheckConcurrency <= 0 {
		opts.CheckConcurrency = DefaultCheckConcurrency
	}
	drafts := opts.Drafts
	if drafts == nil {
		drafts = NewDrafts()
	}
	log := logging.OrDiscard(opts.Logger)
	if opts.AssignmentID != "" {
		log = log.With(slog.String("assignment_id", opts.AssignmentID))
	}
	return &Session{
		opts:   opts,
		log:    log,
		clock:  opts.Clock,
		drafts: drafts,
		coll:   NewCollection(nil),
		tail:   make(map[string]chan struct{}),
	}
}

// AssignmentID returns the assignment the session is bound to.
func (s *Session) AssignmentID() string { return s.opts.AssignmentID }

// Load replaces the collection with the Source's records. On failure the
// collection becomes empty and the error is returned.
func (s *Session) Load(ctx context.Context) error {
	if s.opts.Source == nil {
		return errors.NewInvalidRequest("session has no record source")
	}
	records, err := s.opts.Source.Records(ctx)

	s.mu.Lock()
	if err != nil {
		s.coll.Load(nil)
	} else {
		s.coll.Load(records)
	}
	if s.current != nil {
		if _, ok := s.coll.Get(s.current.id); !ok {
			s.current.stop()
			s.current = nil
		}
	}
	for id := range s.drafts.Snapshot() {
		s.rebaselineLocked(id)
	}
	if s.current != nil {
		s.rebaselineLocked(s.current.id)
	}
	n := s.coll.Len()
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("load records failed", slog.String("error", err.Error()))
		s.notify(Change{Kind: ChangeLoaded})
		return err
	}
	s.log.Debug("records loaded", slog.Int("count", n))
	s.notify(Change{Kind: ChangeLoaded})
	return nil
}

// Records returns every record in ingestion order.
func (s *Session) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.All()
}

// Record returns one record by id.
func (s *Session) Record(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Get(id)
}

// SetFilter changes the active predicate.
func (s *Session) SetFilter(p Predicate) {
	s.mu.Lock()
	s.filter = p
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeFilter})
}

// Filter returns the active predicate.
func (s *Session) Filter() Predicate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// View returns the records matching the active predicate, recomputed on every call.
func (s *Session) View() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Filter(s.filter)
}

// Stats counts the collection by status.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Stats()
}

// Dirty reports whether id has an unsaved draft.
func (s *Session) Dirty(id string) bool {
	return s.drafts.Has(id)
}

// Drafts returns a snapshot of all unsaved drafts.
func (s *Session) Drafts() map[string]string {
	return s.drafts.Snapshot()
}

// Close ends the session: the open edit is closed (its last text reconciled)
// and the draft registry is cleared.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closeEditLocked()
	s.closed = true
	s.drafts.Clear()
	s.mu.Unlock()
}

// rebaselineLocked re-evaluates id's registered draft (or the open edit's
// draft) after the record's baselines changed.
func (s *Session) rebaselineLocked(id string) {
	rec, ok := s.coll.Get(id)
	if !ok {
		return
	}
	if e := s.current; e != nil && e.id == id {
		if !e.touched {
			// Nothing typed yet: follow the new baseline.
			e.draft = rec.Seed()
			if d, ok := s.drafts.Get(id); ok {
				e.draft = d
			}
		}
		s.reconcileLocked(e)
		return
	}
	if text, ok := s.drafts.Get(id); ok && !rec.IsDirty(text) {
		s.drafts.remove(id)
	}
}

func (s *Session) notify(c Change) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(c)
	}
}
