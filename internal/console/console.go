// Package console is the terminal review console: a student list and a
// detail editor driven by a review.Session.
package console

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/review"
)

// Store is a review backend that can also fetch submitted files.
// Both ops.AssignmentStore and client.AssignmentStore satisfy it.
type Store interface {
	review.Store
	Detail(ctx context.Context, id string) (*ops.DetailOutput, error)
}

// Options configures a console run.
type Options struct {
	AssignmentID string
	Title        string // assignment name shown in the title bar
	Store        Store

	Debounce         time.Duration
	CheckConcurrency int
	Logger           *slog.Logger
}

// Run starts the console and blocks until the grader quits or ctx ends.
// Unsaved drafts are discarded on exit.
func Run(ctx context.Context, opts Options) error {
	var program atomic.Pointer[tea.Program]

	sess := review.New(review.Options{
		AssignmentID:     opts.AssignmentID,
		Source:           opts.Store,
		Persister:        opts.Store,
		Checker:          opts.Store,
		Debounce:         opts.Debounce,
		CheckConcurrency: opts.CheckConcurrency,
		Logger:           opts.Logger,
		OnChange: func(c review.Change) {
			if p := program.Load(); p != nil {
				p.Send(changeMsg(c))
			}
		},
	})
	defer sess.Close()

	p := tea.NewProgram(newModel(ctx, sess, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	program.Store(p)
	_, err := p.Run()
	return err
}
