package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artemshloyda/neonconvert/internal/intake"
	"github.com/artemshloyda/neonconvert/internal/logging"
	"github.com/artemshloyda/neonconvert/internal/progress"
	"github.com/artemshloyda/neonconvert/internal/queue"
	"github.com/artemshloyda/neonconvert/internal/scanner"
	"github.com/artemshloyda/neonconvert/internal/watcher"
	"github.com/artemshloyda/neonconvert/internal/worker"
)

// newWatchCmd создаёт команду watch.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Конвертировать файлы по мере появления в директории",
		Long: `Следит за входной директорией и конвертирует новые JPG и PDF.

Файлы, уже лежащие в директории, конвертируются при запуске.
После загрузки результата элемент удаляется из очереди.
Выходная директория не может находиться внутри входной.

Пример:
  neonconvert watch --in ./incoming --out ./converted`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().String("in", "", "Директория для слежения (обязательно)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	out := cmd.OutOrStdout()

	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}
	if err := cfg.ValidateWatch(); err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	ctx, stop := signalContext(out)
	defer stop()

	s, err := newSession(cfg, log, out, removeDownloaded)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			log.Warn().Err(err).Msg("ошибка при завершении сессии")
		}
	}()

	w, err := watcher.New(log)
	if err != nil {
		return err
	}
	candidates, err := w.Watch(ctx, cfg.InputDir)
	if err != nil {
		return err
	}

	existing, err := scanner.New(log).Collect(ctx, []string{cfg.InputDir})
	if err != nil {
		return err
	}

	if cfgPath != "" {
		fmt.Fprintf(out, "📄 Конфигурация: %s\n", cfgPath)
	}
	fmt.Fprintf(out, "👀 Слежение за %s -> %s (Ctrl+C для остановки)\n\n", cfg.InputDir, cfg.OutputDir)

	bar := progress.New(progress.Options{
		Disabled: cfg.NoProgress,
		Writer:   cmd.ErrOrStderr(),
	})
	s.console.SetMessageWriter(bar)

	pool := worker.New(s.manager, worker.Options{
		Workers:     cfg.Workers,
		Retries:     cfg.Retries,
		MaxMemoryMB: cfg.MaxMemoryMB,
		Verbose:     cfg.Verbose,
		OnDone:      settleWatched(ctx, s, log),
	}, log)
	pool.SetProgressBar(bar)

	feed := make(chan queue.Item)
	go func() {
		defer close(feed)

		forward := func(found []intake.Candidate) bool {
			for _, it := range s.admit(found) {
				bar.AddTotal(1)
				select {
				case feed <- it:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		if !forward(existing) {
			return
		}
		startup := newStartupSet(existing)
		for c := range candidates {
			if startup.seen(c) {
				log.Debug().Str("file", c.Path).Msg("файл уже поставлен в очередь при запуске")
				continue
			}
			if !forward([]intake.Candidate{c}) {
				return
			}
		}
	}()

	stats := pool.Process(ctx, feed)
	bar.Finish()
	s.console.SetMessageWriter(nil)

	journal, err := s.stats()
	if err != nil {
		log.Warn().Err(err).Msg("не удалось прочитать журнал")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSummary(stats, journal, time.Since(startTime)))

	return nil
}

// removeDownloaded убирает из очереди загруженный элемент.
func removeDownloaded(s *session, item queue.Item, _ string) {
	if err := s.manager.Remove(item.ID); err != nil && !errors.Is(err, queue.ErrNotFound) {
		s.log.Warn().Err(err).Str("item_id", item.ID).Msg("не удалось удалить элемент")
	}
}

// settleWatched завершает жизнь элемента в режиме слежения.
// Ошибочные элементы удаляются сразу, готовые после загрузки.
func settleWatched(ctx context.Context, s *session, log zerolog.Logger) func(queue.Item) {
	download := downloadNow(ctx, s, log)
	return func(item queue.Item) {
		if item.Status == queue.StatusError {
			removeDownloaded(s, item, "")
			return
		}
		download(item)
	}
}

// startupSet помнит файлы, найденные при запуске. Watcher стартует раньше обхода,
// поэтому файл, созданный между ними, приходит и событием.
type startupSet map[string]int64

func newStartupSet(existing []intake.Candidate) startupSet {
	set := make(startupSet, len(existing))
	for _, c := range existing {
		if c.Path != "" {
			set[c.Path] = c.Size
		}
	}
	return set
}

// seen сообщает, что событие повторяет файл из обхода при запуске.
// Каждый файл гасится один раз: следующие изменения снова попадают в очередь.
func (s startupSet) seen(c intake.Candidate) bool {
	size, ok := s[c.Path]
	if !ok {
		return false
	}
	delete(s, c.Path)
	return size == c.Size
}
