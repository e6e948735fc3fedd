package submission

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/hpungsan/saiten/internal/errors"
)

// maxEntries caps the number of files a submission archive may hold.
const maxEntries = 20000

// Extract unpacks the ZIP in r into dest. The total uncompressed size is
// limited to maxBytes (0 means unlimited). Entries escaping dest, absolute
// paths, symlinks and macOS resource forks are rejected or skipped.
func Extract(r io.ReaderAt, size int64, dest string, maxBytes int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return errors.NewInvalidSubmission(fmt.Sprintf("invalid ZIP archive: %v", err))
	}
	if len(zr.File) > maxEntries {
		return errors.NewInvalidSubmission(fmt.Sprintf("ZIP archive has too many entries (%d)", len(zr.File)))
	}

	if err := os.MkdirAll(dest, 0700); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	var written int64
	for _, f := range zr.File {
		name := f.Name
		if f.NonUTF8 {
			name = DecodeName(name)
		}
		name = strings.ReplaceAll(name, `\`, "/")

		if skipEntry(name) {
			continue
		}
		target, err := entryTarget(root, name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		if mode&os.ModeSymlink != 0 {
			return errors.NewInvalidSubmission(fmt.Sprintf("ZIP entry is a symlink: %s", name))
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0700); err != nil {
				return err
			}
			continue
		}

		if maxBytes > 0 && written+int64(f.UncompressedSize64) > maxBytes {
			return errors.NewPayloadTooLarge(maxBytes, written+int64(f.UncompressedSize64))
		}
		n, err := extractFile(f, target, remaining(maxBytes, written))
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

func remaining(maxBytes, written int64) int64 {
	if maxBytes <= 0 {
		return -1
	}
	return maxBytes - written
}

func extractFile(f *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, errors.NewInvalidSubmission(fmt.Sprintf("open ZIP entry %s: %v", f.Name, err))
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, err
	}

	var src io.Reader = rc
	if limit >= 0 {
		// Header sizes can lie; enforce the cap on the actual stream.
		src = io.LimitReader(rc, limit+1)
	}
	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		return n, errors.NewInvalidSubmission(fmt.Sprintf("extract %s: %v", f.Name, copyErr))
	}
	if closeErr != nil {
		return n, closeErr
	}
	if limit >= 0 && n > limit {
		return n, errors.NewPayloadTooLarge(limit, n)
	}
	return n, nil
}

func skipEntry(name string) bool {
	if name == "" {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == "__MACOSX" || part == ".DS_Store" {
			return true
		}
	}
	return false
}

// entryTarget resolves a ZIP entry name under root, rejecting traversal.
func entryTarget(root, name string) (string, error) {
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", errors.NewInvalidSubmission(fmt.Sprintf("ZIP entry has absolute path: %s", name))
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.NewInvalidSubmission(fmt.Sprintf("ZIP entry escapes destination: %s", name))
	}
	target := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.NewInvalidSubmission(fmt.Sprintf("ZIP entry escapes destination: %s", name))
	}
	return target, nil
}

// SubmissionRoot descends through single-directory wrappers (an archive that
// holds one top-level folder containing the student folders) and returns the
// directory whose children are the student folders.
func SubmissionRoot(dir string) (string, error) {
	for {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", err
		}
		var dirs []os.DirEntry
		files := 0
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if e.IsDir() {
				dirs = append(dirs, e)
			} else {
				files++
			}
		}
		if len(dirs) != 1 || files != 0 {
			return dir, nil
		}
		// A lone folder that itself holds only files is a student folder.
		inner := filepath.Join(dir, dirs[0].Name())
		if !hasSubdir(inner) {
			return dir, nil
		}
		dir = inner
	}
}

func hasSubdir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			return true
		}
	}
	return false
}
