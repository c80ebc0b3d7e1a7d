package scan

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/dirpack/dirpack/internal/ignore"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeTree creates the given files (with parent directories) under a
// fresh temp dir and returns the root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func entryNames(entries []FileEntry) []string {
	return lo.Map(entries, func(e FileEntry, _ int) string { return e.Name })
}

func TestScanCompleteness(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":          "a",
		"sub/b.txt":      "b",
		"sub/deep/c.txt": "c",
		".hidden":        "h",
	})

	scanner := NewScanner(zap.NewNop(), Options{})
	entries, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	// Without ignore rules every regular file is selected, hidden files
	// included, in deterministic sorted order.
	assert.Equal(t, []string{".hidden", "a.txt", "sub/b.txt", "sub/deep/c.txt"}, entryNames(entries))

	for _, e := range entries {
		assert.True(t, filepath.IsAbs(e.Path), "source path %s should be absolute", e.Path)
		assert.NotContains(t, e.Name, "..")
	}
}

func TestScanDeterministicOrder(t *testing.T) {
	root := writeTree(t, map[string]string{
		"z.txt":     "z",
		"a.txt":     "a",
		"m/one.txt": "1",
		"b/two.txt": "2",
	})

	scanner := NewScanner(zap.NewNop(), Options{})
	first, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)
	second, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a.txt", "b/two.txt", "m/one.txt", "z.txt"}, entryNames(first))
}

func TestScanAppliesIgnoreRules(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/main.go":    "package main",
		"build/a.txt":    "a",
		"build/keep.txt": "keep",
		"debug.log":      "log",
	})

	rules := ignore.ParseRules([]byte("build/\n!build/keep.txt\n*.log"))
	scanner := NewScanner(zap.NewNop(), Options{Rules: rules})
	entries, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"build/keep.txt", "src/main.go"}, entryNames(entries))
}

func TestScanPrunesExcludedDirsWithoutNegations(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.txt":                  "k",
		"node_modules/pkg/index.js": "x",
	})

	rules := ignore.ParseRules([]byte("node_modules/"))
	scanner := NewScanner(zap.NewNop(), Options{Rules: rules})
	entries, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.txt"}, entryNames(entries))
}

func TestScanExcludesOutputFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":       "a",
		"archive.zip": "in-progress output",
	})

	scanner := NewScanner(zap.NewNop(), Options{
		ExcludeOutput: filepath.Join(root, "archive.zip"),
	})
	entries, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, entryNames(entries))
}

func TestScanMissingRoot(t *testing.T) {
	scanner := NewScanner(zap.NewNop(), Options{})
	_, err := scanner.Scan(t.Context(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read root directory")
}

func TestScanRootIsFile(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a"})

	scanner := NewScanner(zap.NewNop(), Options{})
	_, err := scanner.Scan(t.Context(), filepath.Join(root, "a.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestScanSkipsUnreadableEntries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on windows")
	}

	root := writeTree(t, map[string]string{"a.txt": "a"})

	// A dangling link cannot be stat'ed; the entry is skipped, not fatal.
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "dangling")))

	scanner := NewScanner(zap.NewNop(), Options{})
	entries, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, entryNames(entries))
}

func TestScanSkipsUnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not supported on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := writeTree(t, map[string]string{
		"ok/a.txt":     "a",
		"sealed/b.txt": "b",
	})
	sealed := filepath.Join(root, "sealed")
	require.NoError(t, os.Chmod(sealed, 0o000))
	t.Cleanup(func() { _ = os.Chmod(sealed, 0o755) })

	scanner := NewScanner(zap.NewNop(), Options{})
	entries, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"ok/a.txt"}, entryNames(entries))
}

func TestScanCancellation(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	scanner := NewScanner(zap.NewNop(), Options{})
	_, err := scanner.Scan(ctx, root)
	require.ErrorIs(t, err, context.Canceled)
}

func TestScanStatusObserver(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})

	var messages []string
	scanner := NewScanner(zap.NewNop(), Options{
		Status: func(msg string) { messages = append(messages, msg) },
	})
	_, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "scanning")
	assert.Contains(t, messages[1], "2 files")
}

func TestScanFollowsSymlinksWithoutCycling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not supported on windows")
	}

	root := writeTree(t, map[string]string{
		"real/data.txt": "d",
	})

	// linked -> real pulls the same files in under a second name; the
	// loop link inside real points back up and must be skipped.
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "linked")))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "real", "loop")))

	scanner := NewScanner(zap.NewNop(), Options{})
	entries, err := scanner.Scan(t.Context(), root)
	require.NoError(t, err)

	names := entryNames(entries)
	assert.Contains(t, names, "real/data.txt")
	assert.Contains(t, names, "linked/data.txt")
	for _, name := range names {
		assert.NotContains(t, name, "loop/real/loop", "cycle should have been cut")
	}
}
