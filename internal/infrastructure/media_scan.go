package infrastructure

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// FindPlayableFile walks root and returns the first non-empty file whose
// extension matches one of extensions, case-insensitively. It returns ""
// with no error when root does not exist yet or holds no such file.
func FindPlayableFile(root string, extensions []string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !hasExtension(path, extensions) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.Size() == 0 {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("%w: scanning %s: %v", domain.ErrFileSystemTransient, root, err)
	}
	return found, nil
}

func hasExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
