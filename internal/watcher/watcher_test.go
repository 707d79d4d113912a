package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/neonconvert/internal/intake"
)

func start(t *testing.T, dir string) (<-chan intake.Candidate, context.CancelFunc) {
	t.Helper()
	w, err := New(zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	files, err := w.Watch(ctx, dir)
	require.NoError(t, err)
	t.Cleanup(cancel)
	return files, cancel
}

func next(t *testing.T, files <-chan intake.Candidate) intake.Candidate {
	t.Helper()
	select {
	case c, ok := <-files:
		require.True(t, ok)
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("файл не обнаружен")
		return intake.Candidate{}
	}
}

func TestWatchDetectsNewFiles(t *testing.T) {
	dir := t.TempDir()
	files, _ := start(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("jpeg"), 0644))

	c := next(t, files)
	assert.Equal(t, "photo.jpg", c.Name)
	assert.Equal(t, intake.MediaTypeJPEG, c.MediaType)
	assert.EqualValues(t, 4, c.Size)
}

func TestWatchDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	files, _ := start(t, dir)

	path := filepath.Join(dir, "doc.pdf")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("chunk")
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	c := next(t, files)
	assert.Equal(t, "doc.pdf", c.Name)
	assert.EqualValues(t, 25, c.Size)

	select {
	case extra := <-files:
		t.Fatalf("лишнее событие: %s", extra.Name)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchNestedDirectoryAndHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	files, _ := start(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp.jpg"), []byte("x"), 0644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	// даём watcher добавить новую директорию
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "scan.pdf"), []byte("x"), 0644))

	c := next(t, files)
	assert.Equal(t, "scan.pdf", c.Name)
}

func TestWatchClosesOnCancel(t *testing.T) {
	files, cancel := start(t, t.TempDir())
	cancel()

	select {
	case _, ok := <-files:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("канал не закрылся")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	w, err := New(zerolog.Nop())
	require.NoError(t, err)

	_, err = w.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
