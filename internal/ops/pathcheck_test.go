package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/saiten/internal/config"
	"github.com/hpungsan/saiten/internal/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestValidatePath_TraversalRejected(t *testing.T) {
	cfg := testConfig(t)

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../feedback.csv"},
		{"deep traversal", "../../etc/feedback.csv"},
		{"mid-path traversal", "/tmp/../etc/feedback.csv"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.csv"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, cfg, ".csv")
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowUnsafePaths = true

	tests := []struct {
		name string
		path string
		exts []string
	}{
		{"no extension", "/tmp/feedback", []string{".csv"}},
		{"wrong extension", "/tmp/feedback.json", []string{".csv"}},
		{"csv where zip wanted", "/tmp/submissions.csv", []string{".zip"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, PathCheckWrite, cfg, tc.exts...)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionCaseInsensitive(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.DataDir, "exports", "Feedback.CSV")

	if err := ValidatePath(path, PathCheckWrite, cfg, ".csv"); err != nil {
		t.Errorf("expected upper-case extension to pass, got: %v", err)
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	cfg := testConfig(t)

	err := ValidatePath(filepath.Join(t.TempDir(), "feedback.csv"), PathCheckWrite, cfg, ".csv")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}

	inExports := filepath.Join(cfg.DataDir, "exports", "feedback.csv")
	if err := ValidatePath(inExports, PathCheckWrite, cfg, ".csv"); err != nil {
		t.Errorf("expected path in exports dir to pass, got: %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := testConfig(t)
	cfg.AllowUnsafePaths = true

	if err := ValidatePath(filepath.Join(tmpDir, "feedback.csv"), PathCheckWrite, cfg, ".csv"); err != nil {
		t.Errorf("expected no error with AllowUnsafePaths, got: %v", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	allowed := t.TempDir()
	cfg := testConfig(t)
	cfg.AllowedPaths = []string{allowed, "relative/ignored"}

	if err := ValidatePath(filepath.Join(allowed, "roster.csv"), PathCheckWrite, cfg, ".csv"); err != nil {
		t.Errorf("expected path in allowed_paths to pass, got: %v", err)
	}
	if err := ValidatePath(filepath.Join(allowed, "sub", "roster.csv"), PathCheckWrite, cfg, ".csv"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected nested path to be rejected, got: %v", err)
	}
}

func TestValidatePath_FileNotFound_ReadMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.AllowedPaths = []string{t.TempDir()}

	err := ValidatePath(filepath.Join(cfg.AllowedPaths[0], "missing.zip"), PathCheckRead, cfg, ".zip")
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}
}

func TestValidatePath_SymlinkRejected(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "real.csv")
	if err := os.WriteFile(target, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.csv")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	cfg := testConfig(t)
	cfg.AllowedPaths = []string{dir}
	if err := ValidatePath(link, PathCheckRead, cfg, ".csv"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected symlink rejection, got: %v", err)
	}

	cfg.AllowUnsafePaths = true
	if err := ValidatePath(link, PathCheckRead, cfg, ".csv"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected symlink rejection even with AllowUnsafePaths, got: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/tmp/a.csv", false},
		{"a..b.csv", false},
		{"../a.csv", true},
		{"/tmp/x/../a.csv", true},
	}
	for _, tc := range tests {
		if got := containsTraversal(tc.path); got != tc.want {
			t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"演習1", "演習1"},
		{"第3回 課題", "第3回_課題"},
		{"../../etc", "etc"},
		{"a/b\\c", "a-b-c"},
		{"x:y?z", "x-y-z"},
		{"", "unnamed"},
		{"\x00\x01", "unnamed"},
	}
	for _, tc := range tests {
		if got := SanitizeForFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
