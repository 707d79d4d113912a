// Package watcher следит за директорией и отдаёт новые файлы на конвертацию.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/artemshloyda/neonconvert/internal/intake"
	"github.com/artemshloyda/neonconvert/internal/scanner"
)

// DefaultDebounce - пауза после последней записи, прежде чем файл считается готовым.
const DefaultDebounce = 500 * time.Millisecond

// Watcher следит за директорией и её поддиректориями.
type Watcher struct {
	fs       *fsnotify.Watcher
	log      zerolog.Logger
	debounce time.Duration

	// pending - время последнего события по файлу. Доступ только из loop.
	pending map[string]time.Time
}

// New создаёт Watcher.
func New(log zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать watcher: %w", err)
	}

	return &Watcher{
		fs:       w,
		log:      log.With().Str("component", "watcher").Logger(),
		debounce: DefaultDebounce,
		pending:  make(map[string]time.Time),
	}, nil
}

// SetDebounce устанавливает паузу debounce. Вызывать до Watch.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Watch начинает слежение за dir.
// Канал закрывается после отмены ctx; fsnotify закрывается вместе с ним.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan intake.Candidate, error) {
	if err := w.addRecursive(dir); err != nil {
		_ = w.fs.Close()
		return nil, err
	}

	out := make(chan intake.Candidate, 16)
	go w.loop(ctx, out)
	return out, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && scanner.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("не удалось добавить директорию %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, out chan<- intake.Candidate) {
	defer close(out)
	defer w.fs.Close()

	ticker := time.NewTicker(max(w.debounce/5, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("ошибка watcher")

		case now := <-ticker.C:
			for _, c := range w.ready(now) {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if scanner.IsHidden(filepath.Base(event.Name)) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.Warn().Err(err).Str("path", event.Name).Msg("не удалось следить за директорией")
			}
		}
		return
	}

	w.pending[event.Name] = time.Now()
}

// ready забирает из pending файлы, которые не менялись дольше debounce.
func (w *Watcher) ready(now time.Time) []intake.Candidate {
	var out []intake.Candidate
	for path, last := range w.pending {
		if now.Sub(last) < w.debounce {
			continue
		}
		delete(w.pending, path)

		c, err := intake.FromFile(path)
		if err != nil {
			w.log.Debug().Err(err).Str("path", path).Msg("файл исчез до обработки")
			continue
		}
		out = append(out, c)
	}
	return out
}
