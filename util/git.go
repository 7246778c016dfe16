package util

import (
	"os"
	"path/filepath"
)

// FindGitRoot walks upward from dir looking for a .git entry and returns
// the containing directory. An empty dir means the current working
// directory. When no repository encloses dir, the starting directory is
// returned unchanged.
func FindGitRoot(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for cur := abs; ; {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		cur = parent
	}
}
