// Package submission ingests a roster CSV and the ZIP of student submissions.
package submission

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/hpungsan/saiten/internal/errors"
)

// Roster column names.
const (
	ColumnID       = "広大ID"
	ColumnName     = "フルネーム"
	ColumnStatus   = "ステータス"
	ColumnFeedback = "フィードバックコメント"
)

var requiredColumns = []string{ColumnID, ColumnName, ColumnStatus}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Roster is a parsed roster CSV.
type Roster struct {
	Columns []string
	Rows    []Row
}

// Row is one student line of the roster.
type Row struct {
	ID       string
	FullName string
	Status   string
	// Feedback is nil when the roster has no feedback column or the cell is empty.
	Feedback *string
	Values   map[string]string
}

// Submitted reports whether the row's status contains marker.
func (r Row) Submitted(marker string) bool {
	return strings.Contains(r.Status, marker)
}

// ParseRoster reads a roster CSV encoded as UTF-8 (with or without BOM) or Shift_JIS.
func ParseRoster(r io.Reader) (*Roster, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, errors.NewInvalidSubmission("roster is neither UTF-8 nor Shift_JIS")
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.NewInvalidSubmission(fmt.Sprintf("malformed roster CSV: %v", err))
	}
	if len(records) == 0 {
		return nil, errors.NewInvalidSubmission("roster CSV is empty")
	}

	header := make([]string, len(records[0]))
	index := make(map[string]int, len(header))
	for i, h := range records[0] {
		h = strings.TrimSpace(h)
		header[i] = h
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, errors.NewInvalidSubmission(fmt.Sprintf("roster is missing required column %q", col))
		}
	}

	roster := &Roster{Columns: header}
	seen := make(map[string]bool)
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		values := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				values[col] = rec[i]
			} else {
				values[col] = ""
			}
		}

		row := Row{
			ID:       strings.TrimSpace(values[ColumnID]),
			FullName: strings.TrimSpace(values[ColumnName]),
			Status:   values[ColumnStatus],
			Values:   values,
		}
		if row.ID == "" {
			continue
		}
		// Duplicate ids keep the first occurrence
		if seen[row.ID] {
			continue
		}
		seen[row.ID] = true

		if fb, ok := values[ColumnFeedback]; ok && fb != "" {
			row.Feedback = &fb
		}
		roster.Rows = append(roster.Rows, row)
	}

	return roster, nil
}

// decodeText returns raw as a UTF-8 string, stripping a BOM and falling
// back to Shift_JIS when raw is not valid UTF-8.
func decodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeName converts a file name that may be Shift_JIS encoded to UTF-8.
// Names that are already valid UTF-8 are returned unchanged.
func DecodeName(name string) string {
	if utf8.ValidString(name) {
		return name
	}
	out, _, err := transform.String(japanese.ShiftJIS.NewDecoder(), name)
	if err != nil {
		return strings.ToValidUTF8(name, "_")
	}
	return out
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
