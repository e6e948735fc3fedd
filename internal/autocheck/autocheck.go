// Package autocheck runs the static submission checks: required files present
// and the header comment filled in.
package autocheck

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/hpungsan/saiten/internal/submission"
)

const historyHint = " make testを実行するとtxtファイルが作成されます(演習1の「演習課題のやり方」を参照してください)。"

var headerBlock = regexp.MustCompile(`(?s)/\*.*?\*/`)

// Checker checks one student's submission folder.
type Checker struct {
	fields  []string
	pattern *regexp.Regexp
}

// New returns a Checker requiring the given header fields.
func New(fields []string) *Checker {
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			quoted = append(quoted, regexp.QuoteMeta(f))
		}
	}
	c := &Checker{fields: fields}
	if len(quoted) > 0 {
		c.pattern = regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)\s*[:：]`)
	}
	return c
}

// Report is the outcome of checking one submission.
type Report struct {
	SourceFile    string
	HistoryFile   string
	FolderFound   bool
	SourceFound   bool
	HistoryFound  bool
	MissingFields []string

	// Suggestion is the feedback proposed to the grader; empty when nothing is wrong.
	Suggestion string
	// Result is a short diagnostic summary, independent of Suggestion.
	Result string
}

// SourceFile and HistoryFile name the files each submission must contain.
func SourceFile(base string) string  { return base + ".c" }
func HistoryFile(base string) string { return base + "-test-history.txt" }

// Check inspects folder (nil when the student has no folder) for the
// assignment whose source base name is base.
func (c *Checker) Check(folder *submission.Folder, base string) (Report, error) {
	r := Report{
		SourceFile:   SourceFile(base),
		HistoryFile:  HistoryFile(base),
		FolderFound:  folder != nil,
		SourceFound:  folder.Has(SourceFile(base)),
		HistoryFound: folder.Has(HistoryFile(base)),
	}

	var b strings.Builder
	if !r.SourceFound || !r.HistoryFound {
		fmt.Fprintf(&b, "この課題では \"%s\" と \"%s\" を提出してください。", r.SourceFile, r.HistoryFile)
		if r.FolderFound && !r.HistoryFound {
			b.WriteString(historyHint)
		}
	}

	if r.SourceFound {
		src, _, err := folder.ReadText(r.SourceFile)
		if err != nil {
			return Report{}, fmt.Errorf("read %s: %w", r.SourceFile, err)
		}
		r.MissingFields = c.MissingFields(src)
		if len(r.MissingFields) > 0 {
			fmt.Fprintf(&b, "%sに %sを記入してください。", r.SourceFile, strings.Join(r.MissingFields, ", "))
		}
	}

	r.Suggestion = strings.TrimSpace(b.String())
	r.Result = r.summary()
	return r, nil
}

// MissingFields returns the required header fields that are absent or empty
// in the first /* ... */ block of src (or in all of src when it has none).
func (c *Checker) MissingFields(src string) []string {
	if c.pattern == nil {
		return nil
	}
	text := src
	if m := headerBlock.FindString(src); m != "" {
		text = m
	}

	found := make(map[string]string)
	matches := c.pattern.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		name := text[m[2]:m[3]]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.ReplaceAll(text[m[1]:end], "*/", "")
		found[name] = strings.TrimFunc(content, func(r rune) bool {
			return unicode.IsSpace(r) || r == '*'
		})
	}

	var missing []string
	for _, f := range c.fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if found[f] == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func (r Report) summary() string {
	mark := func(ok bool) string {
		if ok {
			return "○"
		}
		return "×"
	}
	lines := []string{
		fmt.Sprintf("%s %s", mark(r.SourceFound), r.SourceFile),
		fmt.Sprintf("%s %s", mark(r.HistoryFound), r.HistoryFile),
	}
	switch {
	case !r.FolderFound:
		lines = append(lines, "提出フォルダが見つかりません")
	case !r.SourceFound:
		lines = append(lines, "ヘッダ: 未確認")
	case len(r.MissingFields) > 0:
		lines = append(lines, "ヘッダ: "+strings.Join(r.MissingFields, ", ")+" が未記入")
	default:
		lines = append(lines, "ヘッダ: OK")
	}
	return strings.Join(lines, "\n")
}
