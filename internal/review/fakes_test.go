package review

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/saiten/internal/errors"
)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// Pending returns the number of timers neither fired nor stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeStore implements Store in memory.
type fakeStore struct {
	mu       sync.Mutex
	records  []Record
	loadErr  error
	saveErr  error
	saves    []string
	gates    map[string]chan struct{} // save text -> released when closed
	entered  chan string
	outcomes map[string]Outcome
	checkErr map[string]error
	onCheck  func(id string)
	checked  []string
}

func newFakeStore(records ...Record) *fakeStore {
	return &fakeStore{
		records:  records,
		gates:    make(map[string]chan struct{}),
		entered:  make(chan string, 16),
		outcomes: make(map[string]Outcome),
		checkErr: make(map[string]error),
	}
}

func (f *fakeStore) Records(context.Context) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]Record(nil), f.records...), nil
}

// block makes SaveFeedback with the given text wait until the returned func is called.
func (f *fakeStore) block(text string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[text] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeStore) SaveFeedback(ctx context.Context, id, text string) error {
	f.mu.Lock()
	f.saves = append(f.saves, text)
	gate := f.gates[text]
	err := f.saveErr
	f.mu.Unlock()

	f.entered <- text
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeStore) savedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.saves...)
}

func (f *fakeStore) AutoCheck(ctx context.Context, id string) (Outcome, error) {
	f.mu.Lock()
	f.checked = append(f.checked, id)
	hook := f.onCheck
	err := f.checkErr[id]
	out := f.outcomes[id]
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

var errBoom = errors.NewUnavailable(nil)
