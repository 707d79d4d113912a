package queue

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artemshloyda/neonconvert/internal/artifact"
	"github.com/artemshloyda/neonconvert/internal/intake"
	"github.com/artemshloyda/neonconvert/internal/notify"
	"github.com/artemshloyda/neonconvert/internal/storage"
	"github.com/artemshloyda/neonconvert/internal/transcoder"
)

// fakeTranscoder возвращает "out:" + содержимое источника.
type fakeTranscoder struct {
	// gate блокирует конвертацию до закрытия (nil = без ожидания).
	gate chan struct{}
	// ignoreCtx - не реагировать на отмену контекста.
	ignoreCtx bool
	// failFirst - сколько первых вызовов завершить ошибкой.
	failFirst int32
	// failNames - файлы, которые всегда завершаются ошибкой.
	failNames map[string]bool

	calls atomic.Int32
}

func (f *fakeTranscoder) ImageToDocument(ctx context.Context, r io.Reader, fileName, _ string) (transcoder.Result, error) {
	return f.do(ctx, r, fileName, transcoder.DocumentName(fileName), "application/pdf")
}

func (f *fakeTranscoder) DocumentToImage(ctx context.Context, r io.Reader, fileName string) (transcoder.Result, error) {
	return f.do(ctx, r, fileName, transcoder.ImageName(fileName), "image/jpeg")
}

func (f *fakeTranscoder) do(ctx context.Context, r io.Reader, src, dst, mediaType string) (transcoder.Result, error) {
	n := f.calls.Add(1)
	data, err := io.ReadAll(r)
	if err != nil {
		return transcoder.Result{}, err
	}

	if f.gate != nil {
		if f.ignoreCtx {
			<-f.gate
		} else {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return transcoder.Result{}, ctx.Err()
			}
		}
	}

	if n <= f.failFirst || f.failNames[src] {
		return transcoder.Result{}, fmt.Errorf("%w %s: broken", transcoder.ErrDecode, src)
	}
	return transcoder.Result{
		Blob:      append([]byte("out:"), data...),
		FileName:  dst,
		MediaType: mediaType,
		Pages:     1,
	}, nil
}

// countingStore считает освобождения каждого дескриптора.
type countingStore struct {
	*artifact.Store

	mu       sync.Mutex
	minted   []artifact.Handle
	releases map[artifact.Handle]int
}

func (s *countingStore) Mint(blob []byte, fileName, mediaType string) (artifact.Handle, error) {
	h, err := s.Store.Mint(blob, fileName, mediaType)
	if err == nil {
		s.mu.Lock()
		s.minted = append(s.minted, h)
		s.mu.Unlock()
	}
	return h, err
}

func (s *countingStore) Release(h artifact.Handle) error {
	s.mu.Lock()
	s.releases[h]++
	s.mu.Unlock()
	return s.Store.Release(h)
}

func (s *countingStore) releaseCount(h artifact.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases[h]
}

func (s *countingStore) mintedHandles() []artifact.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]artifact.Handle(nil), s.minted...)
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDownloader) Download(_ context.Context, h artifact.Handle, fileName string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fileName)
	return filepath.Join("/out", fileName), nil
}

func (d *fakeDownloader) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) Notify(title, _ string, severity notify.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, string(severity)+":"+title)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

type harness struct {
	m     *Manager
	tc    *fakeTranscoder
	store *countingStore
	dl    *fakeDownloader
	notes *recorder
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.TickInterval = 5 * time.Millisecond
	opts.AutoDownload = false
	opts.AutoDownloadDelay = 10 * time.Millisecond
	opts.Logger = zerolog.Nop()
	return opts
}

func newHarness(t *testing.T, tc *fakeTranscoder, opts Options) *harness {
	t.Helper()
	st, err := artifact.New(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		tc:    tc,
		store: &countingStore{Store: st, releases: make(map[artifact.Handle]int)},
		dl:    &fakeDownloader{},
		notes: &recorder{},
	}
	h.m = NewManager(tc, h.store, h.dl, h.notes, opts)
	return h
}

func jpg(name string) intake.Candidate {
	return intake.FromBytes(name, intake.MediaTypeJPEG, []byte(name))
}

func pdf(name string) intake.Candidate {
	return intake.FromBytes(name, intake.MediaTypePDF, []byte(name))
}

func wait(t *testing.T, ch <-chan Item) Item {
	t.Helper()
	select {
	case it, ok := <-ch:
		require.True(t, ok, "канал закрыт без результата")
		return it
	case <-time.After(5 * time.Second):
		t.Fatal("конвертация не завершилась")
		return Item{}
	}
}

// watchProgress собирает значения прогресса элемента, пока stop не закрыт.
func watchProgress(m *Manager, id string, stop <-chan struct{}) <-chan []int {
	out := make(chan []int, 1)
	go func() {
		var seen []int
		for {
			if it, ok := m.Get(id); ok && it.Status == StatusConverting {
				seen = append(seen, it.Progress)
			}
			select {
			case <-stop:
				out <- seen
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()
	return out
}

func TestEnqueueCreatesPendingItemsInOrder(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{}, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg"), pdf("b.pdf"), jpg("c.jpeg")})
	require.NoError(t, err)
	require.Len(t, added, 3)

	items := h.m.Items()
	require.Len(t, items, 3)

	ids := make(map[string]bool)
	for i, name := range []string{"a.jpg", "b.pdf", "c.jpeg"} {
		assert.Equal(t, name, items[i].Source.Name)
		assert.Equal(t, StatusPending, items[i].Status)
		assert.Zero(t, items[i].Progress)
		assert.Nil(t, items[i].Output)
		assert.NotEmpty(t, items[i].ID)
		ids[items[i].ID] = true
	}
	assert.Len(t, ids, 3)

	more, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)
	assert.False(t, ids[more[0].ID])
}

func TestRejectedCandidatesNeverReachQueue(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{}, fastOptions())
	filter := intake.NewFilter(h.notes, 0)

	admitted := filter.Admit([]intake.Candidate{
		intake.FromBytes("notes.txt", "text/plain", []byte("x")),
		jpg("a.jpg"),
		intake.FromBytes("pic.png", "image/png", []byte("x")),
	})
	_, err := h.m.Enqueue(admitted)
	require.NoError(t, err)

	items := h.m.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "a.jpg", items[0].Source.Name)
	assert.Equal(t, []string{"error:Неверный тип файла", "error:Неверный тип файла"}, h.notes.all())
}

func TestEnqueueRespectsMaxItems(t *testing.T) {
	opts := fastOptions()
	opts.MaxItems = 2
	h := newHarness(t, &fakeTranscoder{}, opts)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg"), jpg("b.jpg"), jpg("c.jpg")})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, added, 2)
	assert.Len(t, h.m.Items(), 2)
	assert.Equal(t, []string{"error:Очередь заполнена"}, h.notes.all())

	added, err = h.m.Enqueue([]intake.Candidate{jpg("d.jpg")})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Empty(t, added)
}

func TestConvertCompletesWithCappedProgress(t *testing.T) {
	tc := &fakeTranscoder{gate: make(chan struct{})}
	h := newHarness(t, tc, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("photo.JPG")})
	require.NoError(t, err)
	id := added[0].ID

	stop := make(chan struct{})
	seen := watchProgress(h.m, id, stop)

	done, err := h.m.Convert(context.Background(), id)
	require.NoError(t, err)

	// даём тикам упереться в потолок
	require.Eventually(t, func() bool {
		it, _ := h.m.Get(id)
		return it.Progress == DefaultProgressCap
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	close(tc.gate)
	final := wait(t, done)
	close(stop)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Output)
	assert.Equal(t, "photo.pdf", final.Output.FileName)
	assert.Equal(t, "application/pdf", final.Output.MediaType)
	assert.Equal(t, []byte("out:photo.JPG"), final.Output.Blob)
	assert.Equal(t, 1, final.Attempt)

	got, ok := h.m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Same(t, final.Output, got.Output)

	progress := <-seen
	require.NotEmpty(t, progress)
	for i, p := range progress {
		assert.LessOrEqual(t, p, DefaultProgressCap)
		if i > 0 {
			assert.GreaterOrEqual(t, p, progress[i-1])
		}
	}

	assert.Equal(t, 1, h.store.Live())
	assert.Contains(t, h.notes.all(), "success:Конвертация завершена!")
}

func TestConvertRoutesDocumentsToImages(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{}, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{pdf("report.pdf")})
	require.NoError(t, err)

	done, err := h.m.Convert(context.Background(), added[0].ID)
	require.NoError(t, err)
	final := wait(t, done)

	require.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "report.jpg", final.Output.FileName)
	assert.Equal(t, "image/jpeg", final.Output.MediaType)
}

func TestConvertFailureLeavesNoOutput(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{failNames: map[string]bool{"bad.jpg": true}}, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("bad.jpg")})
	require.NoError(t, err)

	done, err := h.m.Convert(context.Background(), added[0].ID)
	require.NoError(t, err)
	final := wait(t, done)

	assert.Equal(t, StatusError, final.Status)
	assert.Nil(t, final.Output)
	assert.LessOrEqual(t, final.Progress, DefaultProgressCap)
	assert.Contains(t, final.Err, "broken")
	assert.Equal(t, 0, h.store.Live())
	assert.Contains(t, h.notes.all(), "error:Ошибка конвертации")
}

func TestConvertRejectsInvalidStates(t *testing.T) {
	tc := &fakeTranscoder{gate: make(chan struct{})}
	h := newHarness(t, tc, fastOptions())

	_, err := h.m.Convert(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)
	id := added[0].ID

	done, err := h.m.Convert(context.Background(), id)
	require.NoError(t, err)

	_, err = h.m.Convert(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidState)

	close(tc.gate)
	require.Equal(t, StatusCompleted, wait(t, done).Status)

	_, err = h.m.Convert(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualValues(t, 1, tc.calls.Load())
}

func TestRemoveReleasesHandleOnce(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{}, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg"), jpg("b.jpg")})
	require.NoError(t, err)
	id := added[0].ID

	done, err := h.m.Convert(context.Background(), id)
	require.NoError(t, err)
	final := wait(t, done)
	require.Equal(t, StatusCompleted, final.Status)
	handle := final.Output.Handle

	require.NoError(t, h.m.Remove(id))
	assert.Equal(t, 1, h.store.releaseCount(handle))
	assert.Equal(t, 0, h.store.Live())

	_, ok := h.m.Get(id)
	assert.False(t, ok)
	require.Len(t, h.m.Items(), 1)
	assert.Equal(t, "b.jpg", h.m.Items()[0].Source.Name)

	assert.ErrorIs(t, h.m.Remove(id), ErrNotFound)
	assert.Equal(t, 1, h.store.releaseCount(handle))

	_, err = h.m.Download(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemovePendingAndFailedItems(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{failNames: map[string]bool{"bad.jpg": true}}, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg"), jpg("bad.jpg")})
	require.NoError(t, err)

	done, err := h.m.Convert(context.Background(), added[1].ID)
	require.NoError(t, err)
	require.Equal(t, StatusError, wait(t, done).Status)

	require.NoError(t, h.m.Remove(added[0].ID))
	require.NoError(t, h.m.Remove(added[1].ID))
	assert.Empty(t, h.m.Items())
	assert.Empty(t, h.store.mintedHandles())
}

func TestRemoveDuringConversionDiscardsResult(t *testing.T) {
	tc := &fakeTranscoder{gate: make(chan struct{})}
	h := newHarness(t, tc, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)
	id := added[0].ID

	done, err := h.m.Convert(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, h.m.Remove(id))
	close(tc.gate)
	final := wait(t, done)

	assert.Equal(t, StatusError, final.Status)
	assert.Nil(t, final.Output)
	_, ok := h.m.Get(id)
	assert.False(t, ok)

	minted := h.store.mintedHandles()
	require.Len(t, minted, 1)
	assert.Equal(t, 1, h.store.releaseCount(minted[0]))
	assert.Equal(t, 0, h.store.Live())
	assert.NotContains(t, h.notes.all(), "success:Конвертация завершена!")
}

func TestDownloadRequiresCompletedItem(t *testing.T) {
	tc := &fakeTranscoder{gate: make(chan struct{})}
	h := newHarness(t, tc, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)
	id := added[0].ID

	_, err = h.m.Download(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotCompleted)

	done, err := h.m.Convert(context.Background(), id)
	require.NoError(t, err)

	_, err = h.m.Download(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotCompleted)
	assert.Zero(t, h.dl.count())

	close(tc.gate)
	require.Equal(t, StatusCompleted, wait(t, done).Status)

	for i := 0; i < 3; i++ {
		path, err := h.m.Download(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/out", "a.pdf"), path)
	}
	assert.Equal(t, 3, h.dl.count())

	starts := 0
	for _, n := range h.notes.all() {
		if n == "info:Загрузка начата" {
			starts++
		}
	}
	assert.Equal(t, 3, starts)
}

func TestRetryAfterError(t *testing.T) {
	opts := fastOptions()
	opts.TickInterval = 50 * time.Millisecond
	tc := &fakeTranscoder{failFirst: 1}
	h := newHarness(t, tc, opts)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)
	id := added[0].ID

	done, err := h.m.Convert(context.Background(), id)
	require.NoError(t, err)
	first := wait(t, done)
	require.Equal(t, StatusError, first.Status)
	require.Nil(t, first.Output)

	tc.gate = make(chan struct{})
	done, err = h.m.Convert(context.Background(), id)
	require.NoError(t, err)

	retrying, ok := h.m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusConverting, retrying.Status)
	assert.Zero(t, retrying.Progress)
	assert.Empty(t, retrying.Err)
	assert.Equal(t, 2, retrying.Attempt)

	close(tc.gate)
	second := wait(t, done)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.Equal(t, 100, second.Progress)
	assert.Equal(t, 2, second.Attempt)
	require.NotNil(t, second.Output)
	assert.Len(t, h.store.mintedHandles(), 1)
}

func TestConcurrentConversionsAreIsolated(t *testing.T) {
	tc := &fakeTranscoder{
		gate:      make(chan struct{}),
		failNames: map[string]bool{"bad.jpg": true},
	}
	h := newHarness(t, tc, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{jpg("good.jpg"), jpg("bad.jpg"), pdf("doc.pdf")})
	require.NoError(t, err)

	var chans []<-chan Item
	for _, it := range added {
		ch, err := h.m.Convert(context.Background(), it.ID)
		require.NoError(t, err)
		chans = append(chans, ch)
	}

	time.Sleep(20 * time.Millisecond)
	close(tc.gate)

	good, bad, doc := wait(t, chans[0]), wait(t, chans[1]), wait(t, chans[2])

	assert.Equal(t, StatusCompleted, good.Status)
	assert.Equal(t, "good.pdf", good.Output.FileName)
	assert.Equal(t, []byte("out:good.jpg"), good.Output.Blob)

	assert.Equal(t, StatusError, bad.Status)
	assert.Nil(t, bad.Output)

	assert.Equal(t, StatusCompleted, doc.Status)
	assert.Equal(t, "doc.jpg", doc.Output.FileName)

	items := h.m.Items()
	require.Len(t, items, 3)
	for i, want := range []Item{good, bad, doc} {
		assert.Equal(t, want.ID, items[i].ID)
		assert.Equal(t, want.Status, items[i].Status)
		assert.Same(t, want.Output, items[i].Output)
	}
	assert.NotEqual(t, good.Output.Handle, doc.Output.Handle)
}

func TestConcurrentUpdatesDoNotLoseItems(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{}, fastOptions())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			added, err := h.m.Enqueue([]intake.Candidate{jpg(fmt.Sprintf("%d.jpg", i))})
			if !assert.NoError(t, err) {
				return
			}
			done, err := h.m.Convert(context.Background(), added[0].ID)
			if assert.NoError(t, err) {
				wait(t, done)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, h.m.Counts()[StatusCompleted])
	assert.Equal(t, 20, h.store.Live())
}

func TestAutoDownloadFiresOnce(t *testing.T) {
	opts := fastOptions()
	opts.AutoDownload = true
	var hooked atomic.Int32
	opts.OnDownloaded = func(item Item, path string) {
		hooked.Add(1)
	}
	h := newHarness(t, &fakeTranscoder{}, opts)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)

	done, err := h.m.Convert(context.Background(), added[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, wait(t, done).Status)
	assert.Zero(t, h.dl.count())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.m.Drain(ctx))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, h.dl.count())
	assert.EqualValues(t, 1, hooked.Load())
}

func TestAutoDownloadCancelledByRemove(t *testing.T) {
	opts := fastOptions()
	opts.AutoDownload = true
	opts.AutoDownloadDelay = 100 * time.Millisecond
	h := newHarness(t, &fakeTranscoder{}, opts)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)

	done, err := h.m.Convert(context.Background(), added[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, wait(t, done).Status)

	require.NoError(t, h.m.Remove(added[0].ID))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.m.Drain(ctx))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, h.dl.count())
}

func TestTimeoutDiscardsLateResult(t *testing.T) {
	opts := fastOptions()
	opts.ConvertTimeout = 30 * time.Millisecond
	tc := &fakeTranscoder{gate: make(chan struct{}), ignoreCtx: true}
	h := newHarness(t, tc, opts)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("slow.jpg")})
	require.NoError(t, err)
	id := added[0].ID

	done, err := h.m.Convert(context.Background(), id)
	require.NoError(t, err)
	final := wait(t, done)

	assert.Equal(t, StatusError, final.Status)
	assert.Contains(t, final.Err, context.DeadlineExceeded.Error())

	close(tc.gate)
	time.Sleep(50 * time.Millisecond)

	it, ok := h.m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusError, it.Status)
	assert.Nil(t, it.Output)
	assert.Equal(t, 0, h.store.Live())
	assert.Empty(t, h.store.mintedHandles())
}

func TestCloseReleasesEverything(t *testing.T) {
	opts := fastOptions()
	opts.AutoDownload = true
	opts.AutoDownloadDelay = time.Hour
	h := newHarness(t, &fakeTranscoder{}, opts)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg"), pdf("b.pdf")})
	require.NoError(t, err)
	for _, it := range added {
		done, err := h.m.Convert(context.Background(), it.ID)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, wait(t, done).Status)
	}
	require.Equal(t, 2, h.store.Live())

	require.NoError(t, h.m.Close())
	assert.Equal(t, 0, h.store.Live())
	assert.Empty(t, h.m.Items())

	_, err = h.m.Convert(context.Background(), added[0].ID)
	assert.ErrorIs(t, err, ErrClosed)

	late, err := h.m.Enqueue([]intake.Candidate{jpg("late.jpg")})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, late)
	assert.Empty(t, h.m.Items())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.m.Drain(ctx))
	assert.Zero(t, h.dl.count())
}

func TestJournalRecordsAttempts(t *testing.T) {
	journal, err := storage.New(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	defer journal.Close()

	opts := fastOptions()
	opts.Journal = journal
	h := newHarness(t, &fakeTranscoder{failFirst: 1}, opts)

	added, err := h.m.Enqueue([]intake.Candidate{jpg("a.jpg")})
	require.NoError(t, err)
	id := added[0].ID

	for i := 0; i < 2; i++ {
		done, err := h.m.Convert(context.Background(), id)
		require.NoError(t, err)
		wait(t, done)
	}

	records, err := journal.ListByItem(id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, storage.StatusFailed, records[0].Status)
	assert.Equal(t, storage.StatusOK, records[1].Status)
	assert.Equal(t, "jpg->pdf", records[1].Attempt.Direction)
	require.NotNil(t, records[1].OutName)
	assert.Equal(t, "a.pdf", *records[1].OutName)
}

func TestEndToEndImageToSinglePageDocument(t *testing.T) {
	var src bytes.Buffer
	fill := color.RGBA{R: 20, G: 40, B: 220, A: 255}
	require.NoError(t, imaging.Encode(&src, imaging.New(300, 150, fill), imaging.JPEG))

	st, err := artifact.New(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	defer st.Close()

	m := NewManager(transcoder.New(transcoder.Options{}), st, nil, nil, fastOptions())
	defer m.Close()

	added, err := m.Enqueue([]intake.Candidate{intake.FromBytes("Photo.JPEG", intake.MediaTypeJPEG, src.Bytes())})
	require.NoError(t, err)

	done, err := m.Convert(context.Background(), added[0].ID)
	require.NoError(t, err)
	final := wait(t, done)
	require.Equal(t, StatusCompleted, final.Status, final.Err)
	assert.Equal(t, "Photo.pdf", final.Output.FileName)

	doc, err := fitz.NewFromMemory(final.Output.Blob)
	require.NoError(t, err)
	defer doc.Close()

	require.Equal(t, 1, doc.NumPage())
	bound, err := doc.Bound(0)
	require.NoError(t, err)
	wantHeight := transcoder.PageHeight(transcoder.PageWidthMM, 300, 150) / transcoder.PageWidthMM
	assert.InDelta(t, wantHeight, float64(bound.Dy())/float64(bound.Dx()), 0.01)

	page, err := doc.ImageDPI(0, 72)
	require.NoError(t, err)
	b := page.Bounds()
	for _, p := range [][2]int{{b.Dx() / 2, b.Dy() / 2}, {5, 5}, {b.Dx() - 5, b.Dy() - 5}} {
		r, g, bl, _ := page.At(b.Min.X+p[0], b.Min.Y+p[1]).RGBA()
		assert.InDelta(t, 20, int(r>>8), 30, "точка %v", p)
		assert.InDelta(t, 40, int(g>>8), 30, "точка %v", p)
		assert.InDelta(t, 220, int(bl>>8), 30, "точка %v", p)
	}
}

func TestConvertSurfacesOpenErrors(t *testing.T) {
	h := newHarness(t, &fakeTranscoder{}, fastOptions())

	added, err := h.m.Enqueue([]intake.Candidate{{Name: "ghost.jpg", MediaType: intake.MediaTypeJPEG}})
	require.NoError(t, err)

	done, err := h.m.Convert(context.Background(), added[0].ID)
	require.NoError(t, err)
	final := wait(t, done)

	assert.Equal(t, StatusError, final.Status)
	assert.Contains(t, final.Err, "содержимое ghost.jpg недоступно")
	assert.Zero(t, h.tc.calls.Load())
}
