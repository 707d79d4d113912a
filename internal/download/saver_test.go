package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/neonconvert/internal/artifact"
)

func TestDownloadWritesFile(t *testing.T) {
	store, err := artifact.New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	defer store.Close()

	h, err := store.Mint([]byte("jpeg bytes"), "report.jpg", "image/jpeg")
	require.NoError(t, err)

	outDir := filepath.Join(t.TempDir(), "out")
	s := NewSaver(store, outDir, zerolog.Nop())

	path, err := s.Download(context.Background(), h, "report.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "report.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	// повторная загрузка перезаписывает тот же файл
	path2, err := s.Download(context.Background(), h, "report.jpg")
	require.NoError(t, err)
	assert.Equal(t, path, path2)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadReleasedHandle(t *testing.T) {
	store, err := artifact.New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	defer store.Close()

	h, err := store.Mint([]byte("x"), "a.pdf", "application/pdf")
	require.NoError(t, err)
	require.NoError(t, store.Release(h))

	s := NewSaver(store, t.TempDir(), zerolog.Nop())
	_, err = s.Download(context.Background(), h, "a.pdf")
	assert.ErrorIs(t, err, artifact.ErrReleased)
}

func TestDownloadCancelled(t *testing.T) {
	s := NewSaver(nil, t.TempDir(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Download(ctx, artifact.Handle("artifact:x"), "a.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownloadKeepsResultsWithSameName(t *testing.T) {
	store, err := artifact.New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	defer store.Close()

	first, err := store.Mint([]byte("from a"), "photo.pdf", "application/pdf")
	require.NoError(t, err)
	second, err := store.Mint([]byte("from b"), "photo.pdf", "application/pdf")
	require.NoError(t, err)

	outDir := t.TempDir()
	s := NewSaver(store, outDir, zerolog.Nop())

	p1, err := s.Download(context.Background(), first, "photo.pdf")
	require.NoError(t, err)
	p2, err := s.Download(context.Background(), second, "photo.pdf")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "photo.pdf"), p1)
	assert.Equal(t, filepath.Join(outDir, "photo (1).pdf"), p2)

	// повторная загрузка первого артефакта не трогает второй
	again, err := s.Download(context.Background(), first, "photo.pdf")
	require.NoError(t, err)
	assert.Equal(t, p1, again)

	data1, err := os.ReadFile(p1)
	require.NoError(t, err)
	data2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, "from a", string(data1))
	assert.Equal(t, "from b", string(data2))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDownloadDoesNotOverwriteExistingFile(t *testing.T) {
	store, err := artifact.New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	defer store.Close()

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "scan.jpg"), []byte("old"), 0644))

	h, err := store.Mint([]byte("new"), "scan.jpg", "image/jpeg")
	require.NoError(t, err)

	path, err := NewSaver(store, outDir, zerolog.Nop()).Download(context.Background(), h, "scan.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "scan (1).jpg"), path)

	old, err := os.ReadFile(filepath.Join(outDir, "scan.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestDownloadConcurrentSameName(t *testing.T) {
	store, err := artifact.New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	defer store.Close()

	outDir := t.TempDir()
	s := NewSaver(store, outDir, zerolog.Nop())

	const n = 8
	handles := make([]artifact.Handle, n)
	for i := range handles {
		handles[i], err = store.Mint([]byte{byte('a' + i)}, "x.pdf", "application/pdf")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	paths := make([]string, n)
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h artifact.Handle) {
			defer wg.Done()
			p, err := s.Download(context.Background(), h, "x.pdf")
			assert.NoError(t, err)
			paths[i] = p
		}(i, h)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, p := range paths {
		assert.False(t, seen[p], "путь %s выдан дважды", p)
		seen[p] = true

		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte('a' + i)}, data)
	}

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, n)
}
