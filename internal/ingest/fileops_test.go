package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writeFile(t, path, "hello")

	got, err := HashFile(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", got)
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestSafeMove(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "processed")

	a := filepath.Join(src, "doc.pdf")
	writeFile(t, a, "first")

	moved, err := SafeMove(a, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "doc.pdf"), moved)
	assert.NoFileExists(t, a)

	data, err := os.ReadFile(moved)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestSafeMoveSuffixesOnCollision(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "processed")

	for i, content := range []string{"first", "second", "third"} {
		p := filepath.Join(src, "doc.pdf")
		writeFile(t, p, content)
		moved, err := SafeMove(p, dest)
		require.NoError(t, err)
		switch i {
		case 0:
			assert.Equal(t, filepath.Join(dest, "doc.pdf"), moved)
		case 1:
			assert.Equal(t, filepath.Join(dest, "doc_1.pdf"), moved)
		case 2:
			assert.Equal(t, filepath.Join(dest, "doc_2.pdf"), moved)
		}
	}
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/inbox/.doc.pdf.swp"))
	assert.True(t, IsHidden(".hidden"))
	assert.False(t, IsHidden("/inbox/doc.pdf"))
}

func TestScanSplitsSupportedAndUnsupported(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "x")
	writeFile(t, filepath.Join(root, "b.jpg"), "x")
	writeFile(t, filepath.Join(root, "notes.txt"), "x")
	writeFile(t, filepath.Join(root, ".hidden.pdf"), "x")

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, filepath.Join(sub, "c.png"), "x")

	supported, unsupported, err := Scan(root)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.pdf"),
		filepath.Join(root, "b.jpg"),
		filepath.Join(sub, "c.png"),
	}, supported)
	assert.ElementsMatch(t, []string{filepath.Join(root, "notes.txt")}, unsupported)
}
