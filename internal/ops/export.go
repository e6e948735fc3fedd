package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/errors"
	"github.com/hpungsan/saiten/internal/submission"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	AssignmentID string
	Path         string // optional, default: <data dir>/exports/feedback_<name>.csv
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportFilename is the download name of an assignment's feedback CSV.
func ExportFilename(name string) string {
	return "feedback_" + SanitizeForFilename(name) + ".csv"
}

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", "..", "-",
	":", "-", "*", "-", "?", "-", `"`, "-", "<", "-", ">", "-", "|", "-",
	" ", "_", "　", "_",
)

// SanitizeForFilename makes an assignment name safe to embed in a file name.
// Japanese text is kept; separators and reserved characters become "-".
func SanitizeForFilename(name string) string {
	s := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, name)
	s = filenameReplacer.Replace(s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if s = strings.Trim(s, "-"); s == "" {
		return "unnamed"
	}
	return s
}

// WriteCSV writes the roster of an assignment with the saved comments as a
// UTF-8 CSV with BOM. Every roster row is written, submitted or not, with the
// original columns in their original order plus フィードバックコメント when the
// roster had none. It returns the assignment and the number of rows written.
func WriteCSV(ctx context.Context, b *Backend, assignmentID string, w io.Writer) (*db.Assignment, int, error) {
	if err := requireIDs(assignmentID, nil); err != nil {
		return nil, 0, err
	}
	a, err := db.GetAssignment(ctx, b.DB, assignmentID)
	if err != nil {
		return nil, 0, err
	}
	students, err := db.ListStudents(ctx, b.DB, assignmentID, false)
	if err != nil {
		return nil, 0, err
	}

	columns := slices.Clone(a.Columns)
	if !slices.Contains(columns, submission.ColumnFeedback) {
		columns = append(columns, submission.ColumnFeedback)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(utf8BOM); err != nil {
		return nil, 0, err
	}
	cw := csv.NewWriter(bw)
	if err := cw.Write(columns); err != nil {
		return nil, 0, err
	}

	record := make([]string, len(columns))
	for i := range students {
		if ctx.Err() != nil {
			return nil, 0, errors.NewCancelled("export")
		}
		s := &students[i]
		for j, col := range columns {
			record[j] = s.Row[col]
			if col == submission.ColumnFeedback && s.Feedback != nil {
				record[j] = *s.Feedback
			}
		}
		if err := cw.Write(record); err != nil {
			return nil, 0, err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, 0, err
	}
	if err := bw.Flush(); err != nil {
		return nil, 0, err
	}
	return a, len(students), nil
}

// Export writes the feedback CSV of an assignment to a local file.
func Export(ctx context.Context, b *Backend, input ExportInput) (*ExportOutput, error) {
	if err := requireIDs(input.AssignmentID, nil); err != nil {
		return nil, err
	}
	now := b.now()

	exportPath := input.Path
	if exportPath == "" {
		a, err := db.GetAssignment(ctx, b.DB, input.AssignmentID)
		if err != nil {
			return nil, err
		}
		dir, err := DefaultExportsDir(b.Config)
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, ExportFilename(a.Name))
	}

	// Default paths are validated too: assignment names are user input.
	if err := ValidatePath(exportPath, PathCheckWrite, b.Config, ".csv"); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to a temp file, then rename so an existing export survives failure.
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	_, count, err := WriteCSV(ctx, b, input.AssignmentID, file)
	if err != nil {
		return nil, errors.From(err)
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows, os.Rename fails when the destination exists; the existing
	// file is kept rather than risking a non-atomic delete and rename.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	b.log.Info("feedback exported", "assignment_id", input.AssignmentID, "path", exportPath, "count", count)
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}
