package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/artemshloyda/neonconvert/internal/artifact"
	"github.com/artemshloyda/neonconvert/internal/intake"
	"github.com/artemshloyda/neonconvert/internal/notify"
	"github.com/artemshloyda/neonconvert/internal/storage"
	"github.com/artemshloyda/neonconvert/internal/transcoder"
)

// Transcoder выполняет конвертацию содержимого.
type Transcoder interface {
	ImageToDocument(ctx context.Context, r io.Reader, fileName, declaredType string) (transcoder.Result, error)
	DocumentToImage(ctx context.Context, r io.Reader, fileName string) (transcoder.Result, error)
}

// Artifacts выдаёт и освобождает дескрипторы результатов.
type Artifacts interface {
	Mint(blob []byte, fileName, mediaType string) (artifact.Handle, error)
	Release(h artifact.Handle) error
}

// Downloader отдаёт результат пользователю.
type Downloader interface {
	Download(ctx context.Context, h artifact.Handle, fileName string) (string, error)
}

// Journal записывает попытки конвертации.
type Journal interface {
	Begin(a storage.Attempt) (int64, error)
	Finish(id int64, o storage.Outcome) error
}

const (
	// DefaultTickInterval - период обновления прогресса.
	DefaultTickInterval = 200 * time.Millisecond
	// DefaultTickStep - шаг прогресса за один тик.
	DefaultTickStep = 10
	// DefaultProgressCap - максимум прогресса до завершения.
	DefaultProgressCap = 90
	// DefaultAutoDownloadDelay - задержка автоматической загрузки.
	DefaultAutoDownloadDelay = time.Second
	// DefaultConvertTimeout - ограничение времени одной конвертации.
	DefaultConvertTimeout = 2 * time.Minute
)

// Options содержит настройки менеджера очереди.
type Options struct {
	// TickInterval - период обновления прогресса.
	TickInterval time.Duration

	// TickStep - прирост прогресса за тик.
	TickStep int

	// ProgressCap - прогресс, выше которого тики не поднимают значение (1-99).
	ProgressCap int

	// AutoDownload - загружать результат автоматически после завершения.
	AutoDownload bool

	// AutoDownloadDelay - задержка перед автоматической загрузкой.
	AutoDownloadDelay time.Duration

	// ConvertTimeout - ограничение времени конвертации (0 = без ограничения).
	ConvertTimeout time.Duration

	// MaxItems - максимальный размер очереди (0 = без ограничения).
	MaxItems int

	// Journal - журнал попыток (может быть nil).
	Journal Journal

	// Logger - логгер.
	Logger zerolog.Logger

	// OnDownloaded вызывается после каждой успешной загрузки.
	OnDownloaded func(item Item, path string)
}

// DefaultOptions возвращает настройки по умолчанию.
func DefaultOptions() Options {
	return Options{
		TickInterval:      DefaultTickInterval,
		TickStep:          DefaultTickStep,
		ProgressCap:       DefaultProgressCap,
		AutoDownload:      true,
		AutoDownloadDelay: DefaultAutoDownloadDelay,
		ConvertTimeout:    DefaultConvertTimeout,
		Logger:            zerolog.Nop(),
	}
}

type snapshot struct {
	items []Item
}

// Manager владеет коллекцией элементов очереди.
// Любое изменение - compare-and-swap всей коллекции.
type Manager struct {
	state atomic.Pointer[snapshot]

	transcoder Transcoder
	artifacts  Artifacts
	downloader Downloader
	notifier   notify.Notifier
	opts       Options
	log        zerolog.Logger

	// mu защищает timers и closed.
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	inflight  sync.WaitGroup
	scheduled sync.WaitGroup
}

// NewManager создаёт менеджер очереди.
// downloader и notifier могут быть nil.
func NewManager(tc Transcoder, artifacts Artifacts, downloader Downloader, notifier notify.Notifier, opts Options) *Manager {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.TickStep <= 0 {
		opts.TickStep = DefaultTickStep
	}
	if opts.ProgressCap <= 0 || opts.ProgressCap >= 100 {
		opts.ProgressCap = DefaultProgressCap
	}
	if opts.AutoDownloadDelay < 0 {
		opts.AutoDownloadDelay = 0
	}
	if opts.ConvertTimeout < 0 {
		opts.ConvertTimeout = 0
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}

	m := &Manager{
		transcoder: tc,
		artifacts:  artifacts,
		downloader: downloader,
		notifier:   notifier,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "queue").Logger(),
		timers:     make(map[string]*time.Timer),
	}
	m.state.Store(&snapshot{})
	return m
}

// Items возвращает копию очереди в порядке добавления.
func (m *Manager) Items() []Item {
	return slices.Clone(m.state.Load().items)
}

// Get возвращает текущий снимок элемента.
func (m *Manager) Get(id string) (Item, bool) {
	items := m.state.Load().items
	if idx := indexOf(items, id); idx >= 0 {
		return items[idx], true
	}
	return Item{}, false
}

// Counts возвращает количество элементов по статусам.
func (m *Manager) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, it := range m.state.Load().items {
		counts[it.Status]++
	}
	return counts
}

// Enqueue добавляет кандидатов в конец очереди со статусом pending.
// При переполнении возвращает добавленную часть и ErrQueueFull.
func (m *Manager) Enqueue(candidates []intake.Candidate) ([]Item, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	// Добавление под mu: Close очищает коллекцию сразу после установки closed
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	var added []Item
	var overflow []intake.Candidate

	m.update(func(items []Item) ([]Item, bool) {
		added, overflow = nil, nil

		room := len(candidates)
		if m.opts.MaxItems > 0 {
			room = max(0, min(room, m.opts.MaxItems-len(items)))
		}
		overflow = candidates[room:]
		if room == 0 {
			return nil, false
		}

		now := time.Now()
		next := make([]Item, len(items), len(items)+room)
		copy(next, items)
		for _, c := range candidates[:room] {
			it := Item{
				ID:        uuid.NewString(),
				Source:    c,
				Status:    StatusPending,
				AddedAt:   now,
				UpdatedAt: now,
			}
			next = append(next, it)
			added = append(added, it)
		}
		return next, true
	})
	m.mu.Unlock()

	for _, it := range added {
		m.log.Debug().Str("item_id", it.ID).Str("file", it.Source.Name).Msg("файл добавлен в очередь")
	}

	if len(overflow) > 0 {
		for _, c := range overflow {
			m.notifier.Notify(
				"Очередь заполнена",
				fmt.Sprintf("%s не добавлен: в очереди уже %d файлов.", c.Name, m.opts.MaxItems),
				notify.SeverityError,
			)
		}
		return added, fmt.Errorf("%w: не добавлено файлов: %d", ErrQueueFull, len(overflow))
	}
	return added, nil
}

// Convert запускает конвертацию элемента в состоянии pending или error.
// Канал получает итоговый снимок ровно один раз и закрывается.
func (m *Manager) Convert(ctx context.Context, id string) (<-chan Item, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.inflight.Add(1)
	m.mu.Unlock()

	_, item, err := m.modify(id, func(it Item) (Item, error) {
		if !it.Convertible() {
			return it, fmt.Errorf("%w: %s в состоянии %s", ErrInvalidState, it.Source.Name, it.Status)
		}
		it.Status = StatusConverting
		it.Progress = 0
		it.Attempt++
		it.Err = ""
		it.UpdatedAt = time.Now()
		return it, nil
	})
	if err != nil {
		m.inflight.Done()
		return nil, err
	}

	done := make(chan Item, 1)
	go m.run(ctx, item, done)
	return done, nil
}

type result struct {
	res transcoder.Result
	err error
}

// run выполняет одну попытку конвертации.
func (m *Manager) run(ctx context.Context, item Item, done chan<- Item) {
	defer m.inflight.Done()
	defer close(done)

	log := m.log.With().
		Str("item_id", item.ID).
		Str("file", item.Source.Name).
		Int("attempt", item.Attempt).
		Logger()
	entry := m.beginJournal(item, log)
	start := time.Now()

	if m.opts.ConvertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ConvertTimeout)
		defer cancel()
	}

	// Буфер 1: опоздавший результат не блокирует горутину
	results := make(chan result, 1)
	go func() {
		res, err := m.transcode(ctx, item)
		results <- result{res: res, err: err}
	}()

	ticker := time.NewTicker(m.opts.TickInterval)
	defer ticker.Stop()

	var r result
wait:
	for {
		select {
		case <-ticker.C:
			m.tick(item.ID, item.Attempt)
		case r = <-results:
			break wait
		case <-ctx.Done():
			r = result{err: fmt.Errorf("конвертация прервана: %w", ctx.Err())}
			break wait
		}
	}

	final, outcome := m.settle(item, r, log)
	m.finishJournal(entry, outcome, log)

	log.Info().
		Str("status", string(final.Status)).
		Dur("duration", time.Since(start)).
		Msg("попытка конвертации завершена")

	done <- final
}

// transcode открывает источник и вызывает нужное преобразование.
func (m *Manager) transcode(ctx context.Context, item Item) (transcoder.Result, error) {
	rc, err := item.Source.Open()
	if err != nil {
		return transcoder.Result{}, fmt.Errorf("%w %s: %w", transcoder.ErrRead, item.Source.Name, err)
	}
	defer rc.Close()

	if item.Direction() == transcoder.DirectionDocumentToImage {
		return m.transcoder.DocumentToImage(ctx, rc, item.Source.Name)
	}
	return m.transcoder.ImageToDocument(ctx, rc, item.Source.Name, item.Source.MediaType)
}

// tick продвигает прогресс текущей попытки, не выше ProgressCap.
func (m *Manager) tick(id string, attempt int) {
	_, _, _ = m.modify(id, func(it Item) (Item, error) {
		if it.Status != StatusConverting || it.Attempt != attempt {
			return it, errStale
		}
		next := min(it.Progress+m.opts.TickStep, m.opts.ProgressCap)
		if next <= it.Progress {
			return it, errStale
		}
		it.Progress = next
		it.UpdatedAt = time.Now()
		return it, nil
	})
}

// settle фиксирует результат попытки в очереди.
func (m *Manager) settle(item Item, r result, log zerolog.Logger) (Item, storage.Outcome) {
	if r.err != nil {
		return m.fail(item, r.err, log)
	}

	handle, err := m.artifacts.Mint(r.res.Blob, r.res.FileName, r.res.MediaType)
	if err != nil {
		return m.fail(item, fmt.Errorf("%w %s: %w", transcoder.ErrEncode, r.res.FileName, err), log)
	}

	out := &Output{
		Handle:    handle,
		Blob:      r.res.Blob,
		FileName:  r.res.FileName,
		MediaType: r.res.MediaType,
		Size:      int64(len(r.res.Blob)),
	}

	before, after, err := m.modify(item.ID, func(it Item) (Item, error) {
		if it.Status != StatusConverting || it.Attempt != item.Attempt {
			return it, errStale
		}
		it.Status = StatusCompleted
		it.Progress = 100
		it.Output = out
		it.Err = ""
		it.UpdatedAt = time.Now()
		return it, nil
	})
	if err != nil {
		// Элемент удалён или попытка устарела: результат никому не нужен
		m.release(handle, log)
		log.Debug().Err(err).Msg("результат конвертации отброшен")
		return discarded(item), storage.Outcome{Status: storage.StatusDiscarded}
	}
	if before.Output != nil && before.Output.Handle != handle {
		m.release(before.Output.Handle, log)
	}

	m.notifier.Notify(
		"Конвертация завершена!",
		fmt.Sprintf("%s успешно сконвертирован.", item.Source.Name),
		notify.SeveritySuccess,
	)
	m.scheduleDownload(after)

	return after, storage.Outcome{Status: storage.StatusOK, OutName: out.FileName, OutSize: out.Size}
}

// fail переводит попытку в error. Прогресс не меняется.
func (m *Manager) fail(item Item, cause error, log zerolog.Logger) (Item, storage.Outcome) {
	_, after, err := m.modify(item.ID, func(it Item) (Item, error) {
		if it.Status != StatusConverting || it.Attempt != item.Attempt {
			return it, errStale
		}
		it.Status = StatusError
		it.Output = nil
		it.Err = cause.Error()
		it.UpdatedAt = time.Now()
		return it, nil
	})
	if err != nil {
		log.Debug().Err(cause).Msg("ошибка конвертации удалённого элемента")
		return discarded(item), storage.Outcome{Status: storage.StatusDiscarded, Error: cause.Error()}
	}

	log.Warn().Err(cause).Msg("ошибка конвертации")
	m.notifier.Notify(
		"Ошибка конвертации",
		fmt.Sprintf("При конвертации %s произошла ошибка. Попробуйте ещё раз.", item.Source.Name),
		notify.SeverityError,
	)

	return after, storage.Outcome{Status: storage.StatusFailed, Error: cause.Error()}
}

// discarded - итоговый снимок попытки, элемент которой уже не в очереди.
func discarded(item Item) Item {
	item.Status = StatusError
	item.Output = nil
	item.Err = ErrNotFound.Error()
	item.UpdatedAt = time.Now()
	return item
}

// Download отдаёт результат элемента загрузчику. Можно вызывать повторно.
func (m *Manager) Download(ctx context.Context, id string) (string, error) {
	item, ok := m.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if item.Status != StatusCompleted || item.Output == nil {
		return "", fmt.Errorf("%w: %s в состоянии %s", ErrNotCompleted, item.Source.Name, item.Status)
	}
	if m.downloader == nil {
		return "", fmt.Errorf("загрузка не настроена")
	}

	path, err := m.downloader.Download(ctx, item.Output.Handle, item.Output.FileName)
	if err != nil {
		if errors.Is(err, artifact.ErrReleased) || errors.Is(err, artifact.ErrUnknownHandle) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("не удалось загрузить %s: %w", item.Output.FileName, err)
	}

	m.notifier.Notify(
		"Загрузка начата",
		fmt.Sprintf("%s загружается.", item.Output.FileName),
		notify.SeverityInfo,
	)
	if m.opts.OnDownloaded != nil {
		m.opts.OnDownloaded(item, path)
	}
	return path, nil
}

// scheduleDownload планирует однократную автоматическую загрузку.
func (m *Manager) scheduleDownload(item Item) {
	if !m.opts.AutoDownload || m.downloader == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.scheduled.Add(1)
	m.timers[item.ID] = time.AfterFunc(m.opts.AutoDownloadDelay, func() {
		defer m.scheduled.Done()

		m.mu.Lock()
		delete(m.timers, item.ID)
		m.mu.Unlock()

		if _, err := m.Download(context.Background(), item.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				m.log.Debug().Str("item_id", item.ID).Msg("автозагрузка пропущена: элемент удалён")
				return
			}
			m.log.Warn().Err(err).Str("item_id", item.ID).Msg("автозагрузка не удалась")
		}
	})
}

// cancelDownload отменяет запланированную загрузку, если она ещё не началась.
func (m *Manager) cancelDownload(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[id]; ok {
		delete(m.timers, id)
		if t.Stop() {
			m.scheduled.Done()
		}
	}
}

// Remove удаляет элемент в любом состоянии и освобождает его результат.
func (m *Manager) Remove(id string) error {
	var removed Item
	found := false

	m.update(func(items []Item) ([]Item, bool) {
		idx := indexOf(items, id)
		if idx < 0 {
			found = false
			return nil, false
		}
		removed, found = items[idx], true
		return slices.Delete(slices.Clone(items), idx, idx+1), true
	})
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	m.cancelDownload(id)
	if removed.Output != nil {
		m.release(removed.Output.Handle, m.log)
	}

	m.log.Debug().Str("item_id", id).Str("status", string(removed.Status)).Msg("элемент удалён из очереди")
	return nil
}

// Drain ждёт завершения текущих конвертаций и запланированных загрузок.
// Новые конвертации во время ожидания запускать нельзя.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		m.scheduled.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close отменяет загрузки, очищает очередь и освобождает все результаты.
// Конвертации, завершившиеся позже, освобождают свои результаты сами.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for id, t := range m.timers {
		delete(m.timers, id)
		if t.Stop() {
			m.scheduled.Done()
		}
	}
	m.mu.Unlock()

	var removed []Item
	m.update(func(items []Item) ([]Item, bool) {
		removed = items
		return nil, true
	})

	for _, it := range removed {
		if it.Output != nil {
			m.release(it.Output.Handle, m.log)
		}
	}
	return nil
}

// release освобождает дескриптор, логируя ошибку.
func (m *Manager) release(h artifact.Handle, log zerolog.Logger) {
	if err := m.artifacts.Release(h); err != nil {
		log.Warn().Err(err).Str("handle", h.String()).Msg("не удалось освободить артефакт")
	}
}

// update применяет fn к текущей коллекции через compare-and-swap.
// fn не должна изменять переданный срез и может вызываться повторно.
func (m *Manager) update(fn func(items []Item) ([]Item, bool)) bool {
	for {
		old := m.state.Load()
		next, changed := fn(old.items)
		if !changed {
			return false
		}
		if m.state.CompareAndSwap(old, &snapshot{items: next}) {
			return true
		}
	}
}

// modify заменяет элемент id результатом fn.
// Ошибка fn отменяет изменение и возвращается вызывающему.
func (m *Manager) modify(id string, fn func(Item) (Item, error)) (before, after Item, err error) {
	m.update(func(items []Item) ([]Item, bool) {
		idx := indexOf(items, id)
		if idx < 0 {
			err = fmt.Errorf("%w: %s", ErrNotFound, id)
			return nil, false
		}
		b := items[idx]
		a, ferr := fn(b)
		if ferr != nil {
			err = ferr
			return nil, false
		}
		next := slices.Clone(items)
		next[idx] = a
		before, after, err = b, a, nil
		return next, true
	})
	return before, after, err
}

func indexOf(items []Item, id string) int {
	return slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
}

func (m *Manager) beginJournal(item Item, log zerolog.Logger) int64 {
	if m.opts.Journal == nil {
		return 0
	}
	id, err := m.opts.Journal.Begin(storage.Attempt{
		ItemID:    item.ID,
		Attempt:   item.Attempt,
		SrcName:   item.Source.Name,
		SrcType:   item.Source.MediaType,
		SrcSize:   item.Source.Size,
		Direction: string(item.Direction()),
	})
	if err != nil {
		log.Warn().Err(err).Msg("не удалось записать попытку в журнал")
		return 0
	}
	return id
}

func (m *Manager) finishJournal(id int64, o storage.Outcome, log zerolog.Logger) {
	if m.opts.Journal == nil || id == 0 {
		return
	}
	if err := m.opts.Journal.Finish(id, o); err != nil {
		log.Warn().Err(err).Msg("не удалось обновить журнал")
	}
}
