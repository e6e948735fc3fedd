package review

// Collection is the ordered set of records for one assignment.
// Order is ingestion order and is stable until the next Load.
// Collection is not safe for concurrent use; Session guards it.
type Collection struct {
	order []string
	byID  map[string]*Record
}

// NewCollection returns a collection holding records in the given order.
func NewCollection(records []Record) *Collection {
	c := &Collection{}
	c.Load(records)
	return c
}

// Load replaces the collection wholesale. Duplicate ids keep the first occurrence.
func (c *Collection) Load(records []Record) {
	c.order = make([]string, 0, len(records))
	c.byID = make(map[string]*Record, len(records))
	for _, r := range records {
		if _, dup := c.byID[r.ID]; dup {
			continue
		}
		rec := r
		c.byID[r.ID] = &rec
		c.order = append(c.order, r.ID)
	}
}

// Len returns the number of records.
func (c *Collection) Len() int { return len(c.order) }

// Get returns a copy of the record with the given id.
func (c *Collection) Get(id string) (Record, bool) {
	r, ok := c.byID[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// All returns copies of every record in order.
func (c *Collection) All() []Record {
	return c.Filter(All)
}

// Filter returns the records matching p, in collection order.
func (c *Collection) Filter(p Predicate) []Record {
	out := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		if r := c.byID[id]; p.Match(*r) {
			out = append(out, *r)
		}
	}
	return out
}

// IDs returns the ids of the records matching p, in collection order.
func (c *Collection) IDs(p Predicate) []string {
	out := make([]string, 0, len(c.order))
	for _, id := range c.order {
		if p.Match(*c.byID[id]) {
			out = append(out, id)
		}
	}
	return out
}

func (c *Collection) update(id string, fn func(*Record)) bool {
	r, ok := c.byID[id]
	if !ok {
		return false
	}
	fn(r)
	return true
}

// Stats counts records per status.
type Stats struct {
	Total       int `json:"total"`
	Reviewed    int `json:"reviewed"`
	NeedsReview int `json:"needs_review"`
	Pending     int `json:"pending"`
	HasFeedback int `json:"has_feedback"`
}

// Count returns the number of records a predicate would select.
func (s Stats) Count(p Predicate) int {
	switch p {
	case OnlyReviewed:
		return s.Reviewed
	case OnlyNeedsReview:
		return s.NeedsReview
	case OnlyPending:
		return s.Pending
	case HasFeedback:
		return s.HasFeedback
	default:
		return s.Total
	}
}

// Stats counts the collection's records by status.
func (c *Collection) Stats() Stats {
	var s Stats
	for _, id := range c.order {
		r := c.byID[id]
		s.Total++
		switch r.Status() {
		case Reviewed:
			s.Reviewed++
		case NeedsReview:
			s.NeedsReview++
		default:
			s.Pending++
		}
		if r.HasFeedback() {
			s.HasFeedback++
		}
	}
	return s
}
