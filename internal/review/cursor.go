package review

// Cursor is the open record's position in the active view.
// Index is -1 when the record is not in the view; both flags are then false.
type Cursor struct {
	ID      string
	Index   int
	Len     int
	HasPrev bool
	HasNext bool
}

// Locate derives the cursor for id within view.
func Locate(view []string, id string) Cursor {
	c := Cursor{ID: id, Index: -1, Len: len(view)}
	if id == "" {
		return c
	}
	for i, v := range view {
		if v == id {
			c.Index = i
			break
		}
	}
	c.HasPrev = c.Index > 0
	c.HasNext = c.Index >= 0 && c.Index < len(view)-1
	return c
}

// Cursor returns the open record's position in the active view.
func (s *Session) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorLocked()
}

func (s *Session) cursorLocked() Cursor {
	id := ""
	if s.current != nil {
		id = s.current.id
	}
	return Locate(s.coll.IDs(s.filter), id)
}

// Next opens the following record of the active view. It returns false and
// does nothing when there is no successor. The current draft stays in the
// registry; it is not saved.
func (s *Session) Next() (string, bool, error) {
	return s.step(+1)
}

// Prev opens the preceding record of the active view.
func (s *Session) Prev() (string, bool, error) {
	return s.step(-1)
}

func (s *Session) step(delta int) (string, bool, error) {
	s.mu.Lock()
	c := s.cursorLocked()
	if (delta > 0 && !c.HasNext) || (delta < 0 && !c.HasPrev) {
		s.mu.Unlock()
		return "", false, nil
	}
	id := s.coll.IDs(s.filter)[c.Index+delta]
	_, err := s.openLocked(id)
	s.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	s.notify(Change{Kind: ChangeOpened, ID: id})
	return id, true, nil
}
