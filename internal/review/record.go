// Package review holds the review-session state: the ordered record
// collection, filtered views, unsaved drafts, navigation, saving and the
// batch auto-check.
package review

import (
	"strings"

	"github.com/hpungsan/saiten/internal/errors"
)

// Status is the review state of a record. It is derived, never stored.
type Status int

const (
	Pending Status = iota
	NeedsReview
	Reviewed
)

func (s Status) String() string {
	switch s {
	case Reviewed:
		return "reviewed"
	case NeedsReview:
		return "needs-review"
	default:
		return "pending"
	}
}

// Record is one student submission under review.
type Record struct {
	ID   string
	Name string
	// Reviewed is true once feedback has been committed at least once.
	Reviewed        bool
	SavedFeedback   string
	AutoFeedback    string // empty means no suggestion
	AutoCheckResult string
}

// Status derives the record's review state.
func (r Record) Status() Status {
	switch {
	case r.Reviewed:
		return Reviewed
	case r.AutoFeedback != "":
		return NeedsReview
	default:
		return Pending
	}
}

// HasFeedback reports whether a non-blank comment has been saved.
func (r Record) HasFeedback() bool {
	return strings.TrimSpace(r.SavedFeedback) != ""
}

// Seed returns the text an editor starts from when no unsaved draft exists.
func (r Record) Seed() string {
	if r.Reviewed || r.SavedFeedback != "" {
		return r.SavedFeedback
	}
	return r.AutoFeedback
}

// IsDirty reports whether draft differs from the record's baseline(s).
// A reviewed record compares against its saved feedback only; an unreviewed
// record is clean when the draft equals either the saved or the suggested text.
func (r Record) IsDirty(draft string) bool {
	if r.Reviewed {
		return draft != r.SavedFeedback
	}
	return draft != r.SavedFeedback && draft != r.AutoFeedback
}

// Predicate selects records for a view.
type Predicate int

const (
	All Predicate = iota
	OnlyReviewed
	OnlyNeedsReview
	OnlyPending
	HasFeedback
)

// Predicates lists every predicate in display order.
var Predicates = []Predicate{All, OnlyReviewed, OnlyNeedsReview, OnlyPending, HasFeedback}

func (p Predicate) String() string {
	switch p {
	case OnlyReviewed:
		return "reviewed"
	case OnlyNeedsReview:
		return "needs-review"
	case OnlyPending:
		return "pending"
	case HasFeedback:
		return "has-feedback"
	default:
		return "all"
	}
}

// Match reports whether r belongs to the view selected by p.
func (p Predicate) Match(r Record) bool {
	switch p {
	case OnlyReviewed:
		return r.Status() == Reviewed
	case OnlyNeedsReview:
		return r.Status() == NeedsReview
	case OnlyPending:
		return r.Status() == Pending
	case HasFeedback:
		return r.HasFeedback()
	default:
		return true
	}
}

// ParsePredicate parses a filter name. The empty string means All.
func ParsePredicate(s string) (Predicate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return All, nil
	case "reviewed", "completed":
		return OnlyReviewed, nil
	case "needs-review", "needs_review":
		return OnlyNeedsReview, nil
	case "pending":
		return OnlyPending, nil
	case "has-feedback", "has_feedback":
		return HasFeedback, nil
	}
	return All, errors.NewInvalidRequest("unknown filter: " + s)
}
