package console

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/ops"
	"github.com/hpungsan/saiten/internal/review"
)

type mode int

const (
	modeList mode = iota
	modeDetail
)

// Messages produced by commands and session notifications.
type (
	changeMsg review.Change

	loadedMsg struct{ err error }

	detailMsg struct {
		id     string
		detail *ops.DetailOutput
		err    error
	}

	savedMsg struct {
		id   string
		next bool
		adv  review.Advance
		err  error
	}

	checkedMsg struct {
		stats review.BatchStats
		err   error
	}
)

type model struct {
	ctx   context.Context
	sess  *review.Session
	store Store
	title string

	mode     mode
	cursor   int // selected row in the list
	offset   int // list scroll offset
	width    int
	height   int
	quitting bool

	editor    textarea.Model
	edited    bool // the grader typed since the record was opened
	detailID  string
	detail    *ops.DetailOutput
	detailErr error
	loading   bool

	checking bool
	saving   bool
	status   string
	err      error
}

func newModel(ctx context.Context, sess *review.Session, opts Options) model {
	ed := textarea.New()
	ed.Placeholder = "フィードバックを入力..."
	ed.CharLimit = 0
	ed.ShowLineNumbers = false
	ed.Cursor.SetMode(cursor.CursorStatic)

	title := opts.Title
	if title == "" {
		title = opts.AssignmentID
	}
	m := model{
		ctx:    ctx,
		sess:   sess,
		store:  opts.Store,
		title:  title,
		editor: ed,
		width:  100,
		height: 30,
	}
	m.resize()
	return m
}

func (m model) Init() tea.Cmd {
	return m.load()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.clampOffset()
		return m, nil

	case changeMsg:
		m.syncEditor()
		m.clampCursor()
		return m, nil

	case loadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("%d 件を読み込みました", m.sess.Stats().Total)
		}
		m.clampCursor()
		return m, nil

	case detailMsg:
		// Drop results for a record the grader already left.
		if msg.id != m.detailID {
			return m, nil
		}
		m.loading = false
		m.detail = msg.detail
		m.detailErr = msg.err
		return m, nil

	case savedMsg:
		return m.saved(msg)

	case checkedMsg:
		m.checking = false
		s := msg.stats
		m.status = fmt.Sprintf("自動チェック: 対象 %d / チェック %d / 指摘 %d / スキップ %d / 失敗 %d",
			s.Total, s.Checked, s.IssuesFound, s.Skipped, s.Failed)
		m.err = msg.err
		m.syncEditor()
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.mode {
		case modeList:
			return m.updateList(msg)
		case modeDetail:
			return m.updateDetail(msg)
		}
	}
	return m, nil
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	view := m.sess.View()

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.clampOffset()
		}

	case "down", "j":
		if m.cursor < len(view)-1 {
			m.cursor++
			m.clampOffset()
		}

	case "home", "g":
		m.cursor = 0
		m.clampOffset()

	case "end", "G":
		m.cursor = max(0, len(view)-1)
		m.clampOffset()

	case "enter":
		if len(view) > 0 {
			return m.open(view[m.cursor].ID)
		}

	case "tab":
		m.sess.SetFilter(nextPredicate(m.sess.Filter()))
		m.cursor = 0
		m.offset = 0

	case "a":
		return m.checkAll()

	case "r":
		m.status = "再読み込み中..."
		return m, m.load()
	}

	return m, nil
}

func (m model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.sess.CloseEdit()
		m.mode = modeList
		m.selectInList(m.detailID)
		m.editor.Blur()
		return m, nil

	case "ctrl+s":
		return m.save(false)

	case "ctrl+n":
		return m.save(true)

	case "ctrl+right":
		return m.step(m.sess.Next)

	case "ctrl+left":
		return m.step(m.sess.Prev)
	}

	before := m.editor.Value()
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if after := m.editor.Value(); after != before {
		m.edited = true
		if err := m.sess.SetDraft(after); err != nil {
			m.err = err
		}
	}
	return m, cmd
}

// open starts editing id and fetches its files.
func (m model) open(id string) (tea.Model, tea.Cmd) {
	seed, err := m.sess.Open(id)
	if err != nil {
		m.err = err
		return m, nil
	}
	return m.show(id, seed)
}

// step moves to a neighbour with Next or Prev. The current draft is kept.
func (m model) step(move func() (string, bool, error)) (tea.Model, tea.Cmd) {
	id, moved, err := move()
	if err != nil {
		m.err = err
		return m, nil
	}
	if !moved {
		return m, nil
	}
	_, text, _ := m.sess.Draft()
	return m.show(id, text)
}

func (m model) show(id, text string) (tea.Model, tea.Cmd) {
	m.mode = modeDetail
	m.detailID = id
	m.detail = nil
	m.detailErr = nil
	m.loading = true
	m.edited = false
	m.err = nil
	m.status = ""
	m.editor.SetValue(text)
	m.editor.Focus()
	return m, m.fetchDetail(id)
}

func (m model) save(advance bool) (tea.Model, tea.Cmd) {
	if m.saving {
		return m, nil
	}
	id, text := m.detailID, m.editor.Value()
	m.saving = true
	m.status = "保存中..."
	sess, ctx := m.sess, m.ctx
	return m, func() tea.Msg {
		if advance {
			adv, err := sess.SaveAndAdvance(ctx, id, text)
			return savedMsg{id: id, next: true, adv: adv, err: err}
		}
		return savedMsg{id: id, err: sess.Save(ctx, id, text)}
	}
}

func (m model) saved(msg savedMsg) (tea.Model, tea.Cmd) {
	m.saving = false
	if msg.err != nil {
		m.status = ""
		m.err = msg.err
		return m, nil
	}
	m.err = nil
	m.status = "保存しました"

	if !msg.next || m.mode != modeDetail || m.detailID != msg.id {
		m.syncEditor()
		return m, nil
	}
	if msg.adv.ReturnToList {
		m.sess.CloseEdit()
		m.mode = modeList
		m.selectInList(msg.id)
		m.editor.Blur()
		m.status = "最後の学生でした"
		return m, nil
	}
	if msg.adv.Opened {
		_, text, _ := m.sess.Draft()
		next, cmd := m.show(msg.adv.NextID, text)
		nm := next.(model)
		nm.status = "保存しました"
		return nm, cmd
	}
	return m, nil
}

func (m model) checkAll() (tea.Model, tea.Cmd) {
	if m.checking {
		return m, nil
	}
	m.checking = true
	m.status = "自動チェック実行中..."
	sess, ctx := m.sess, m.ctx
	return m, func() tea.Msg {
		stats, err := sess.CheckAll(ctx)
		return checkedMsg{stats: stats, err: err}
	}
}

func (m model) load() tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		return loadedMsg{err: sess.Load(ctx)}
	}
}

func (m model) fetchDetail(id string) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		d, err := store.Detail(ctx, id)
		return detailMsg{id: id, detail: d, err: err}
	}
}

// syncEditor follows the session's draft while the grader has not typed, so
// a save or batch check that changes the baseline shows up in the editor.
func (m *model) syncEditor() {
	if m.mode != modeDetail || m.edited {
		return
	}
	id, text, ok := m.sess.Draft()
	if ok && id == m.detailID && text != m.editor.Value() {
		m.editor.SetValue(text)
	}
}

func (m *model) selectInList(id string) {
	for i, r := range m.sess.View() {
		if r.ID == id {
			m.cursor = i
			m.clampOffset()
			return
		}
	}
	m.clampCursor()
}

func (m *model) clampCursor() {
	n := len(m.sess.View())
	if m.cursor >= n {
		m.cursor = max(0, n-1)
	}
	m.clampOffset()
}

func (m *model) clampOffset() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m model) visibleRows() int {
	// title, stats, header, status and help lines
	return max(1, m.height-5)
}

func (m *model) resize() {
	m.editor.SetWidth(max(20, m.width-2))
	m.editor.SetHeight(max(3, m.height/4))
}

func nextPredicate(p review.Predicate) review.Predicate {
	for i, q := range review.Predicates {
		if q == p {
			return review.Predicates[(i+1)%len(review.Predicates)]
		}
	}
	return review.All
}

// errorText renders err for the status bar.
func errorText(err error) string {
	e := errors.From(err)
	if e.Code == errors.ErrNotFound {
		return "見つかりません: " + e.Message
	}
	return e.Error()
}
