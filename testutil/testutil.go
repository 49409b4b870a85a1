package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteTree creates the given files (path → content) under dir,
// creating parent directories as needed.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// SourceTree creates a representative app source tree in a temp
// directory: screens, a test file, a dotfile, and a dependency dir.
func SourceTree(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "app")
	require.NoError(t, os.MkdirAll(dir, 0755))
	WriteTree(t, dir, map[string]string{
		"foo.ts":              "export const foo = 1\n",
		"screens/Home.tsx":    "export default function Home() {}\n",
		"screens/Detail.tsx":  "export default function Detail() {}\n",
		"foo.test.ts":         "test('foo', () => {})\n",
		".DS_Store":           "junk",
		"deps/x.js":           "module.exports = {}\n",
		"node_modules/y/y.js": "module.exports = {}\n",
	})
	return dir
}

// FileExists reports whether a path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
