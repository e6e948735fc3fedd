package ops

import (
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hpungsan/saiten/internal/autocheck"
	"github.com/hpungsan/saiten/internal/config"
	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/logging"
	"github.com/hpungsan/saiten/internal/review"
)

// ReviewedMark is the wire value of レビュー済み for reviewed students.
const ReviewedMark = "1"

// Backend bundles what every operation needs: the database, configuration,
// the auto-checker and a cache of submission file reads.
type Backend struct {
	DB     *sql.DB
	Config *config.Config

	log     *slog.Logger
	checker *autocheck.Checker
	files   *lru.Cache[string, *submissionFiles]
	now     func() time.Time

	mu      sync.Mutex
	running map[string]bool // assignments with a batch auto-check in progress
}

// NewBackend creates a Backend over an initialized database.
func NewBackend(database *sql.DB, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	size := cfg.DetailCacheSize
	if size <= 0 {
		size = config.DefaultConfig().DetailCacheSize
	}
	cache, err := lru.New[string, *submissionFiles](size)
	if err != nil {
		return nil, fmt.Errorf("create detail cache: %w", err)
	}
	return &Backend{
		DB:      database,
		Config:  cfg,
		log:     logging.OrDiscard(logger),
		checker: autocheck.New(cfg.HeaderFields),
		files:   cache,
		now:     time.Now,
		running: make(map[string]bool),
	}, nil
}

// SubmissionsDir returns where uploaded ZIPs are extracted.
func (b *Backend) SubmissionsDir() string {
	return filepath.Join(b.Config.DataDir, db.SubmissionsDir)
}

// ExportsDir returns the default export directory.
func (b *Backend) ExportsDir() string {
	return filepath.Join(b.Config.DataDir, db.ExportsDir)
}

// Student is the wire form of a roster row. Field names are part of the
// HTTP contract.
type Student struct {
	ID           string  `json:"広大ID"`
	FullName     string  `json:"フルネーム"`
	Reviewed     string  `json:"レビュー済み"`
	Feedback     *string `json:"フィードバックコメント,omitempty"`
	AutoFeedback string  `json:"auto_feedback,omitempty"`
}

// StudentFromDB converts a stored student to its wire form.
func StudentFromDB(s *db.Student) Student {
	out := Student{
		ID:           s.StudentID,
		FullName:     s.FullName,
		Feedback:     s.Feedback,
		AutoFeedback: s.AutoFeedback,
	}
	if s.Reviewed {
		out.Reviewed = ReviewedMark
	}
	return out
}

// Record converts the wire form to a review record.
func (s Student) Record() review.Record {
	r := review.Record{
		ID:           s.ID,
		Name:         s.FullName,
		Reviewed:     s.Reviewed == ReviewedMark,
		AutoFeedback: s.AutoFeedback,
	}
	if s.Feedback != nil {
		r.SavedFeedback = *s.Feedback
	}
	return r
}

// StudentFromRecord converts a review record to its wire form.
func StudentFromRecord(r review.Record) Student {
	out := Student{
		ID:           r.ID,
		FullName:     r.Name,
		AutoFeedback: r.AutoFeedback,
	}
	if r.Reviewed {
		out.Reviewed = ReviewedMark
	}
	if r.Reviewed || r.SavedFeedback != "" {
		fb := r.SavedFeedback
		out.Feedback = &fb
	}
	return out
}

func recordFromDB(s *db.Student) review.Record {
	r := StudentFromDB(s).Record()
	r.AutoCheckResult = s.AutoCheckResult
	return r
}

// requireIDs validates the assignment and (optional) student identifiers.
func requireIDs(assignmentID string, studentID *string) error {
	if assignmentID == "" {
		return errors.NewInvalidRequest("assignment_id is required")
	}
	if studentID != nil && *studentID == "" {
		return errors.NewInvalidRequest("student_id is required")
	}
	return nil
}
