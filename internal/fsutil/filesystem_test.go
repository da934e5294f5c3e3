package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFileSystem_CreateAndRead(t *testing.T) {
	m := NewMemoryFileSystem()

	w, err := m.Create("models/glucose_30min.json")
	require.NoError(t, err)
	_, err = io.WriteString(w, `{"name":"glucose_30min"}`)
	require.NoError(t, err)

	// Nothing is visible until Close.
	data, err := m.ReadFile("models/glucose_30min.json")
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, w.Close())
	data, err = m.ReadFile("models/./glucose_30min.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"glucose_30min"}`, string(data))

	f, err := m.Open("models/glucose_30min.json")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, "glucose_30min.json", info.Name())
	assert.EqualValues(t, len(data), info.Size())
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	m := NewMemoryFileSystem()

	_, err := m.Open("nope.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = m.ReadFile("nope.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = m.Stat("nope.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem_WriteFileCopies(t *testing.T) {
	m := NewMemoryFileSystem()
	buf := []byte("abc")
	require.NoError(t, m.WriteFile("a.txt", buf, 0o644))
	buf[0] = 'z'

	data, err := m.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	data[1] = 'z'
	again, _ := m.ReadFile("a.txt")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryFileSystem_Dirs(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.MkdirAll("data/out/png", 0o755))

	for _, dir := range []string{"data", "data/out", "data/out/png"} {
		info, err := m.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
		assert.True(t, info.Mode().IsDir(), dir)
	}

	require.NoError(t, m.WriteFile("data/out/b.csv", nil, 0o644))
	require.NoError(t, m.WriteFile("data/out/a.csv", nil, 0o644))
	require.NoError(t, m.WriteFile("other/c.csv", nil, 0o644))
	assert.Equal(t,
		[]string{filepath.Join("data", "out", "a.csv"), filepath.Join("data", "out", "b.csv")},
		m.Files("data/out"))
	assert.Len(t, m.Files(""), 3)
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	require.NoError(t, fsys.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "rows.csv")
	require.NoError(t, fsys.WriteFile(path, []byte("a,b\n"), 0o644))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "c\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.Size())

	f, err := fsys.Open(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
