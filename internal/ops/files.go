package ops

import (
	"fmt"
	"strings"

	"github.com/hpungsan/saiten/internal/autocheck"
	"github.com/hpungsan/saiten/internal/db"
	"github.com/hpungsan/saiten/internal/submission"
)

// submissionFiles is the cached view of one student's extracted folder.
type submissionFiles struct {
	Folder      *submission.Folder // nil when the student has no folder
	SourceCode  string
	TestHistory string
}

func filesKey(assignmentID, studentID string) string {
	return assignmentID + "/" + studentID
}

// studentFiles returns the student's folder and the contents of the expected
// files, reading from disk at most once per student while cached.
func (b *Backend) studentFiles(a *db.Assignment, studentID string) (*submissionFiles, error) {
	key := filesKey(a.ID, studentID)
	if f, ok := b.files.Get(key); ok {
		return f, nil
	}

	folder, err := submission.FindStudentFolder(a.SubmissionDir, studentID)
	if err != nil {
		return nil, fmt.Errorf("find folder for %s: %w", studentID, err)
	}
	f := &submissionFiles{Folder: folder}
	if f.SourceCode, _, err = folder.ReadText(autocheck.SourceFile(a.SourceBase)); err != nil {
		return nil, fmt.Errorf("read source for %s: %w", studentID, err)
	}
	if f.TestHistory, _, err = folder.ReadText(autocheck.HistoryFile(a.SourceBase)); err != nil {
		return nil, fmt.Errorf("read test history for %s: %w", studentID, err)
	}

	b.files.Add(key, f)
	return f, nil
}

// forgetFiles drops every cached entry of an assignment.
func (b *Backend) forgetFiles(assignmentID string) {
	prefix := assignmentID + "/"
	for _, k := range b.files.Keys() {
		if strings.HasPrefix(k, prefix) {
			b.files.Remove(k)
		}
	}
}
