package review

import "sync"

// Drafts maps record ids to unsaved draft text for a whole review session,
// independent of which record is displayed. Safe for concurrent use.
type Drafts struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewDrafts returns an empty registry.
func NewDrafts() *Drafts {
	return &Drafts{m: make(map[string]string)}
}

// Get returns the draft for id, if any.
func (d *Drafts) Get(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	text, ok := d.m[id]
	return text, ok
}

// Has reports whether id has an unsaved draft.
func (d *Drafts) Has(id string) bool {
	_, ok := d.Get(id)
	return ok
}

// Len returns the number of unsaved drafts.
func (d *Drafts) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.m)
}

// Snapshot returns a copy of the registry.
func (d *Drafts) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.m))
	for k, v := range d.m {
		out[k] = v
	}
	return out
}

func (d *Drafts) set(id, text string) {
	d.mu.Lock()
	d.m[id] = text
	d.mu.Unlock()
}

func (d *Drafts) remove(id string) {
	d.mu.Lock()
	delete(d.m, id)
	d.mu.Unlock()
}

// Clear drops every draft.
func (d *Drafts) Clear() {
	d.mu.Lock()
	d.m = make(map[string]string)
	d.mu.Unlock()
}
