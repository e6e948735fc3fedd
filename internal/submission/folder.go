package submission

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Folder is a student's extracted submission directory.
type Folder struct {
	Path  string
	Files []string // regular files directly inside Path, sorted
}

// FindStudentFolder returns the first directory under baseDir whose name starts
// with studentID, or nil when none exists.
func FindStudentFolder(baseDir, studentID string) (*Folder, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	// os.ReadDir returns entries sorted by name, so the match is deterministic.
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), studentID) {
			continue
		}
		dir := filepath.Join(baseDir, e.Name())
		files, err := listFiles(dir)
		if err != nil {
			return nil, err
		}
		return &Folder{Path: dir, Files: files}, nil
	}
	return nil, nil
}

// Has reports whether the folder directly contains a file named name.
func (f *Folder) Has(name string) bool {
	if f == nil {
		return false
	}
	for _, n := range f.Files {
		if n == name {
			return true
		}
	}
	return false
}

// ReadText reads a file inside the folder, dropping invalid UTF-8 sequences.
func (f *Folder) ReadText(name string) (string, bool, error) {
	if !f.Has(name) {
		return "", false, nil
	}
	data, err := os.ReadFile(filepath.Join(f.Path, name))
	if err != nil {
		return "", false, err
	}
	return strings.ToValidUTF8(string(data), ""), true, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
