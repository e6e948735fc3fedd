package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hpungsan/saiten/internal/review"
)

var statusLabels = map[review.Status]string{
	review.Reviewed:    "済",
	review.NeedsReview: "要確認",
	review.Pending:     "未着手",
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if m.mode == modeDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m model) viewList() string {
	var b strings.Builder
	view := m.sess.View()
	stats := m.sess.Stats()

	title := titleStyle.Render("saiten  " + m.title)
	filterInfo := dimStyle.Render(fmt.Sprintf("  [%s]  %d 件", m.sess.Filter(), len(view)))
	b.WriteString(title + filterInfo + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("  全 %d / 済 %d / 要確認 %d / 未着手 %d / 未保存 %d",
		stats.Total, stats.Reviewed, stats.NeedsReview, stats.Pending, len(m.sess.Drafts()))) + "\n")

	b.WriteString(headerStyle.Render(strings.Join([]string{
		pad("#", 4), pad("広大ID", 12), pad("氏名", 16), pad("状態", 8), "",
	}, " ")) + "\n")

	visible := m.visibleRows()
	end := min(m.offset+visible, len(view))
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(i, view[i], i == m.cursor) + "\n")
	}
	for i := end - m.offset; i < visible; i++ {
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatus() + "\n")
	b.WriteString(helpStyle.Render("  Enter: 開く  Tab: フィルタ  a: 一括自動チェック  r: 再読込  q: 終了"))
	return b.String()
}

func (m model) renderRow(i int, r review.Record, selected bool) string {
	status := pad(statusLabels[r.Status()], 8)
	cols := []string{
		pad(fmt.Sprint(i+1), 4),
		pad(r.ID, 12),
		pad(r.Name, 16),
	}
	badge := ""
	if m.sess.Dirty(r.ID) {
		badge = "未保存"
	}

	if selected {
		row := selectedStyle.Render(strings.Join(append(cols, status, badge), " "))
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, row)
	}
	if badge != "" {
		badge = unsavedTag.Render(badge)
	}
	return normalStyle.Render(strings.Join(append(cols, statusStyle(r.Status()).Render(status), badge), " "))
}

func (m model) viewDetail() string {
	var b strings.Builder

	rec, _ := m.sess.Record(m.detailID)
	c := m.sess.Cursor()
	pos := "-"
	if c.Index >= 0 {
		pos = fmt.Sprintf("%d/%d", c.Index+1, c.Len)
	}
	title := titleStyle.Render(fmt.Sprintf("%s  %s", rec.Name, rec.ID))
	b.WriteString(title + " " + statusStyle(rec.Status()).Render(statusLabels[rec.Status()]))
	if m.sess.Dirty(m.detailID) {
		b.WriteString(" " + unsavedTag.Render("未保存"))
	}
	b.WriteString(dimStyle.Render("  " + pos + "  [" + m.sess.Filter().String() + "]"))
	b.WriteString("\n")

	switch {
	case m.loading:
		b.WriteString(dimStyle.Render("  読み込み中...") + "\n")
	case m.detailErr != nil:
		b.WriteString(errorStyle.Render("  "+errorText(m.detailErr)) + "\n")
	case m.detail != nil:
		var files []string
		for _, f := range m.detail.ExpectedFiles {
			files = append(files, f.Mark+" "+f.Name)
		}
		b.WriteString("  " + strings.Join(files, "   ") + "\n")
	}

	if rec.AutoCheckResult != "" {
		b.WriteString(sectionStyle.Render("自動チェック") + "\n")
		b.WriteString(indent(rec.AutoCheckResult) + "\n")
	}
	if rec.AutoFeedback != "" {
		b.WriteString(sectionStyle.Render("自動フィードバック") + "\n")
		b.WriteString(indent(rec.AutoFeedback) + "\n")
	}

	b.WriteString(sectionStyle.Render("フィードバック") + "\n")
	b.WriteString(m.editor.View() + "\n")

	if m.detail != nil && m.detailErr == nil {
		used := strings.Count(b.String(), "\n") + 3
		b.WriteString(sectionStyle.Render("ソースコード") + "\n")
		b.WriteString(codeStyle.Render(head(m.detail.SourceCode, m.height-used)) + "\n")
	}

	b.WriteString(m.renderStatus() + "\n")
	b.WriteString(helpStyle.Render("  Ctrl+S: 保存  Ctrl+N: 保存して次へ  Ctrl+←/→: 前/次  Esc: 一覧へ"))
	return b.String()
}

func (m model) renderStatus() string {
	if m.err != nil {
		return errorStyle.Render("  " + errorText(m.err))
	}
	if m.status != "" {
		return statusBarStyle.Render(m.status)
	}
	return ""
}

func statusStyle(s review.Status) lipgloss.Style {
	switch s {
	case review.Reviewed:
		return reviewedTag
	case review.NeedsReview:
		return needsReviewTag
	default:
		return pendingTag
	}
}

// pad pads or truncates s to width display cells.
func pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		runes := []rune(s)
		for lipgloss.Width(string(runes)) > width && len(runes) > 0 {
			runes = runes[:len(runes)-1]
		}
		return string(runes) + strings.Repeat(" ", width-lipgloss.Width(string(runes)))
	}
	return s + strings.Repeat(" ", width-w)
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

// head returns at most n lines of s.
func head(s string, n int) string {
	if n < 1 {
		return ""
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = append(lines[:n-1], "...")
	}
	return strings.Join(lines, "\n")
}
