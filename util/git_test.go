package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindGitRootWalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	nested := filepath.Join(root, "pkg", "sub")
	require.NoError(t, os.MkdirAll(nested, 0755))

	got, err := FindGitRoot(nested)
	require.NoError(t, err)
	require.Equal(t, root, got)
}

func TestFindGitRootFallsBackToStart(t *testing.T) {
	dir := t.TempDir()
	got, err := FindGitRoot(dir)
	require.NoError(t, err)
	require.Equal(t, dir, got)
}
