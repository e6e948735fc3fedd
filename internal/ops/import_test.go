package ops

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/saiten/internal/errors"
)

func TestImport_HappyPath(t *testing.T) {
	b := newTestBackend(t)
	archive := testArchive(t)

	out, err := Import(context.Background(), b, ImportInput{
		Name:        "演習1",
		SourceBase:  "kadai01.c",
		Roster:      bytes.NewReader([]byte(testRoster)),
		Archive:     bytes.NewReader(archive),
		ArchiveSize: int64(len(archive)),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.AssignmentID == "" {
		t.Fatal("AssignmentID is empty")
	}
	if out.Students != 3 || out.Submitted != 2 {
		t.Errorf("Students/Submitted = %d/%d, want 3/2", out.Students, out.Submitted)
	}
	if out.Message == "" {
		t.Error("Message is empty")
	}

	list, err := ListAssignments(context.Background(), b)
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(list.Assignments) != 1 {
		t.Fatalf("len(Assignments) = %d, want 1", len(list.Assignments))
	}
	got := list.Assignments[0]
	if got.AssignmentID != out.AssignmentID || got.Name != "演習1" || got.SourceBase != "kadai01" {
		t.Errorf("summary = %+v", got)
	}
	if got.Total != 2 || got.Checked {
		t.Errorf("Total/Checked = %d/%v, want 2/false", got.Total, got.Checked)
	}

	// Wrapper folder is skipped: student folders sit at the submission root.
	if _, err := os.Stat(filepath.Join(b.SubmissionsDir(), out.AssignmentID, "kadai01", "B001_山田太郎")); err != nil {
		t.Errorf("extracted folder missing: %v", err)
	}
}

func TestImport_Validation(t *testing.T) {
	b := newTestBackend(t)
	archive := testArchive(t)

	tests := []struct {
		name  string
		input ImportInput
	}{
		{"missing name", ImportInput{SourceBase: "kadai01"}},
		{"missing source", ImportInput{Name: "x"}},
		{"source with path", ImportInput{Name: "x", SourceBase: "../kadai01"}},
		{"missing files", ImportInput{Name: "x", SourceBase: "kadai01"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Import(context.Background(), b, tc.input)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("err = %v, want INVALID_REQUEST", err)
			}
		})
	}

	_, err := Import(context.Background(), b, ImportInput{
		Name:        "x",
		SourceBase:  "kadai01",
		Roster:      bytes.NewReader([]byte("名前,点数\na,1\n")),
		Archive:     bytes.NewReader(archive),
		ArchiveSize: int64(len(archive)),
	})
	if !errors.Is(err, errors.ErrInvalidSubmission) {
		t.Errorf("err = %v, want INVALID_SUBMISSION for roster without required columns", err)
	}
}

func TestImport_BadArchiveLeavesNothing(t *testing.T) {
	b := newTestBackend(t)
	junk := []byte("this is not a zip file")

	_, err := Import(context.Background(), b, ImportInput{
		Name:        "演習1",
		SourceBase:  "kadai01",
		Roster:      bytes.NewReader([]byte(testRoster)),
		Archive:     bytes.NewReader(junk),
		ArchiveSize: int64(len(junk)),
	})
	if !errors.Is(err, errors.ErrInvalidSubmission) {
		t.Fatalf("err = %v, want INVALID_SUBMISSION", err)
	}

	entries, err := os.ReadDir(b.SubmissionsDir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("submissions dir has %d entries, want 0", len(entries))
	}
	list, _ := ListAssignments(context.Background(), b)
	if len(list.Assignments) != 0 {
		t.Errorf("assignments = %d, want 0", len(list.Assignments))
	}
}

func TestImport_ArchiveTooLarge(t *testing.T) {
	b := newTestBackend(t)
	b.Config.MaxUploadMB = 1
	big := makeZip(t, map[string]string{
		"B001/kadai01.c": string(bytes.Repeat([]byte("a"), archiveExpansion<<20+1)),
	})

	_, err := Import(context.Background(), b, ImportInput{
		Name:        "演習1",
		SourceBase:  "kadai01",
		Roster:      bytes.NewReader([]byte(testRoster)),
		Archive:     bytes.NewReader(big),
		ArchiveSize: int64(len(big)),
	})
	if !errors.Is(err, errors.ErrPayloadTooLarge) {
		t.Errorf("err = %v, want PAYLOAD_TOO_LARGE", err)
	}
}

func TestImportFiles(t *testing.T) {
	b := newTestBackend(t)
	dir := t.TempDir()
	b.Config.AllowedPaths = []string{dir}

	rosterPath := filepath.Join(dir, "roster.csv")
	zipPath := filepath.Join(dir, "submissions.zip")
	if err := os.WriteFile(rosterPath, []byte(testRoster), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(zipPath, testArchive(t), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := ImportFiles(context.Background(), b, ImportFilesInput{
		Name:       "演習1",
		SourceBase: "kadai01",
		RosterPath: rosterPath,
		ZipPath:    zipPath,
	})
	if err != nil {
		t.Fatalf("ImportFiles failed: %v", err)
	}
	if out.Submitted != 2 {
		t.Errorf("Submitted = %d, want 2", out.Submitted)
	}

	_, err = ImportFiles(context.Background(), b, ImportFilesInput{
		Name:       "演習1",
		SourceBase: "kadai01",
		RosterPath: filepath.Join(dir, "missing.csv"),
		ZipPath:    zipPath,
	})
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("err = %v, want FILE_NOT_FOUND", err)
	}

	_, err = ImportFiles(context.Background(), b, ImportFilesInput{
		Name:       "演習1",
		SourceBase: "kadai01",
		RosterPath: rosterPath,
		ZipPath:    rosterPath,
	})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST for wrong extension", err)
	}
}

func TestNormalizeSourceBase(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"kadai01", "kadai01", false},
		{" kadai01.c ", "kadai01", false},
		{"", "", true},
		{".c", "", true},
		{"a/b", "", true},
		{`a\b`, "", true},
	}
	for _, tc := range tests {
		got, err := normalizeSourceBase(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("normalizeSourceBase(%q) = %q, %v", tc.in, got, err)
		}
	}
}
