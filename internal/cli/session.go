package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/artemshloyda/neonconvert/internal/artifact"
	"github.com/artemshloyda/neonconvert/internal/config"
	"github.com/artemshloyda/neonconvert/internal/download"
	"github.com/artemshloyda/neonconvert/internal/intake"
	"github.com/artemshloyda/neonconvert/internal/notify"
	"github.com/artemshloyda/neonconvert/internal/queue"
	"github.com/artemshloyda/neonconvert/internal/storage"
	"github.com/artemshloyda/neonconvert/internal/transcoder"
)

// drainTimeout - сколько ждать конвертаций и загрузок при завершении.
const drainTimeout = 10 * time.Second

// session владеет всеми ресурсами одного запуска.
// Всё созданное в workDir удаляется в close.
type session struct {
	cfg *config.Config
	log zerolog.Logger

	workDir   string
	artifacts *artifact.Store
	journal   *storage.Storage
	console   *notify.Console
	filter    *intake.Filter
	saver     *download.Saver
	manager   *queue.Manager
}

// newSession собирает очередь и её зависимости.
// onDownloaded вызывается после каждой загрузки (может быть nil).
func newSession(cfg *config.Config, log zerolog.Logger, out io.Writer, onDownloaded func(*session, queue.Item, string)) (*session, error) {
	tcOpts, err := cfg.TranscoderOptions()
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(cfg.WorkDir, "neonconvert-*")
	if err != nil {
		return nil, fmt.Errorf("не удалось создать рабочую директорию: %w", err)
	}

	s := &session{cfg: cfg, log: log, workDir: workDir}

	s.artifacts, err = artifact.New(filepath.Join(workDir, "artifacts"))
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}

	s.journal, err = storage.New(filepath.Join(workDir, "journal.sqlite"))
	if err != nil {
		_ = s.artifacts.Close()
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("не удалось открыть журнал: %w", err)
	}

	s.console = notify.NewConsole(out)
	notifier := notify.Multi{s.console, notify.NewNtfy(cfg.NtfyTopic, cfg.NtfyTimeout, log)}

	s.filter = intake.NewFilter(notifier, cfg.MaxFileSize())
	s.saver = download.NewSaver(s.artifacts, cfg.OutputDir, log)

	opts := queue.DefaultOptions()
	opts.TickInterval = cfg.TickInterval
	opts.ProgressCap = cfg.ProgressCap
	opts.AutoDownload = cfg.AutoDownload
	opts.AutoDownloadDelay = cfg.AutoDownloadDelay
	opts.ConvertTimeout = cfg.ConvertTimeout
	opts.MaxItems = cfg.MaxItems
	opts.Journal = s.journal
	opts.Logger = log
	if onDownloaded != nil {
		opts.OnDownloaded = func(item queue.Item, path string) { onDownloaded(s, item, path) }
	}

	s.manager = queue.NewManager(transcoder.New(tcOpts), s.artifacts, s.saver, notifier, opts)

	log.Debug().Str("work_dir", workDir).Msg("сессия создана")
	return s, nil
}

// admit отсеивает кандидатов и ставит допустимых в очередь.
func (s *session) admit(candidates []intake.Candidate) []queue.Item {
	added, err := s.manager.Enqueue(s.filter.Admit(candidates))
	if err != nil {
		s.log.Warn().Err(err).Msg("не все файлы поставлены в очередь")
	}
	return added
}

// stats возвращает сводку журнала.
func (s *session) stats() (storage.Stats, error) {
	return s.journal.GetStats()
}

// close дожидается фоновой работы и освобождает ресурсы сессии.
func (s *session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := s.manager.Drain(ctx); err != nil {
		s.log.Warn().Err(err).Msg("не дождались завершения фоновых задач")
	}

	_ = s.manager.Close()

	if n, err := s.journal.CleanupInProgress(); err == nil && n > 0 {
		s.log.Debug().Int64("attempts", n).Msg("незавершённые попытки отмечены в журнале")
	}

	var firstErr error
	for _, closeFn := range []func() error{s.journal.Close, s.artifacts.Close} {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := os.RemoveAll(s.workDir); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("не удалось удалить рабочую директорию: %w", err)
	}
	return firstErr
}
