// Package cli содержит CLI интерфейс приложения.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artemshloyda/neonconvert/internal/config"
	"github.com/artemshloyda/neonconvert/internal/logging"
	"github.com/artemshloyda/neonconvert/internal/progress"
	"github.com/artemshloyda/neonconvert/internal/queue"
	"github.com/artemshloyda/neonconvert/internal/scanner"
	"github.com/artemshloyda/neonconvert/internal/worker"
)

var (
	// Version будет установлена при сборке.
	Version = "dev"

	// BuildTime будет установлена при сборке.
	BuildTime = "unknown"
)

// NewRootCmd создаёт корневую команду CLI.
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "neonconvert [файлы или директории...]",
		Short: "Конвертация JPG в PDF и PDF в JPG",
		Long: `neonconvert - конвертер файлов JPG <-> PDF.

JPG превращается в одностраничный PDF шириной 210 мм с высотой по пропорциям изображения.
PDF превращается в JPG: первая страница вписывается в холст заданного размера.
Результаты загружаются в выходную директорию автоматически.

Примеры:
  # Сконвертировать файлы и директории
  neonconvert photo.jpg scans/ --out ./converted

  # Холст для печати и 8 воркеров
  neonconvert docs/ --out ./jpg --preset print --workers 8

  # Следить за директорией
  neonconvert watch --in ./incoming --out ./converted`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE:         runConvert,
	}

	flags := rootCmd.PersistentFlags()

	flags.String("config", "", "Путь к YAML файлу конфигурации")
	flags.String("out", "", "Директория для результатов (обязательно)")

	// Конвертация
	flags.Int("quality", defaults.Quality, "Качество JPEG при PDF -> JPG (1-100)")
	flags.String("canvas", fmt.Sprintf("%dx%d", defaults.CanvasWidth, defaults.CanvasHeight), "Размер холста PDF -> JPG (ШxВ)")
	flags.String("renderer", defaults.Renderer, "Отрисовка PDF: page или placeholder")
	flags.String("preset", "", fmt.Sprintf("Профиль холста: %v", config.ValidPresets()))

	// Очередь
	flags.Int("workers", defaults.Workers, "Количество параллельных конвертаций")
	flags.Int("retries", defaults.Retries, "Повторы после ошибки")
	flags.Duration("timeout", defaults.ConvertTimeout, "Ограничение времени одной конвертации")
	flags.Bool("no-auto-download", false, "Загружать результаты сразу, без отложенной автозагрузки")
	flags.Duration("download-delay", defaults.AutoDownloadDelay, "Задержка автоматической загрузки")
	flags.Int("max-items", 0, "Ограничение размера очереди (0 = без ограничения)")
	flags.Int("max-file-size", 0, "Максимальный размер файла в МБ (0 = без ограничения)")
	flags.Int("max-memory", 0, "Ограничение памяти на декодирование в МБ (0 = без ограничения)")
	flags.String("work-dir", "", "Где создать временную директорию сессии")

	// Вывод
	flags.String("ntfy", "", "URL темы ntfy для уведомлений")
	flags.String("log-level", defaults.LogLevel, "Уровень логов: debug, info, warn, error")
	flags.String("log-format", defaults.LogFormat, "Формат логов: console или json")
	flags.Bool("no-progress", false, "Отключить прогресс-бар")
	flags.BoolP("verbose", "v", false, "Подробный вывод")

	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newPresetsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig собирает конфигурацию: умолчания < файл < окружение < флаги.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg := config.DefaultConfig()

	configPath, _ := cmd.Flags().GetString("config")
	fc, usedPath, err := config.FindAndLoadConfig(configPath)
	if err != nil {
		return nil, "", err
	}
	if err := fc.ApplyToConfig(cfg); err != nil {
		return nil, "", fmt.Errorf("ошибка в %s: %w", usedPath, err)
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, "", err
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, "", err
	}

	return cfg, usedPath, nil
}

// applyFlags переносит в конфигурацию только явно заданные флаги.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	if f.Changed("preset") {
		name, _ := f.GetString("preset")
		if !cfg.ApplyPreset(name) {
			return fmt.Errorf("неизвестный пресет: %s (доступны: %v)", name, config.ValidPresets())
		}
	}
	if f.Changed("canvas") {
		raw, _ := f.GetString("canvas")
		w, h, err := config.ParseCanvas(raw)
		if err != nil {
			return err
		}
		cfg.CanvasWidth, cfg.CanvasHeight = w, h
	}

	for name, dst := range map[string]*string{
		"in":         &cfg.InputDir,
		"out":        &cfg.OutputDir,
		"renderer":   &cfg.Renderer,
		"work-dir":   &cfg.WorkDir,
		"ntfy":       &cfg.NtfyTopic,
		"log-level":  &cfg.LogLevel,
		"log-format": &cfg.LogFormat,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}

	for name, dst := range map[string]*int{
		"quality":       &cfg.Quality,
		"workers":       &cfg.Workers,
		"retries":       &cfg.Retries,
		"max-items":     &cfg.MaxItems,
		"max-file-size": &cfg.MaxFileSizeMB,
		"max-memory":    &cfg.MaxMemoryMB,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	for name, dst := range map[string]*time.Duration{
		"timeout":        &cfg.ConvertTimeout,
		"download-delay": &cfg.AutoDownloadDelay,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetDuration(name)
		}
	}

	if f.Changed("no-auto-download") {
		v, _ := f.GetBool("no-auto-download")
		cfg.AutoDownload = !v
	}
	if f.Changed("no-progress") {
		cfg.NoProgress, _ = f.GetBool("no-progress")
	}
	if f.Changed("verbose") {
		cfg.Verbose, _ = f.GetBool("verbose")
	}

	return nil
}

// runConvert конвертирует файлы из аргументов и загружает результаты.
func runConvert(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	out := cmd.OutOrStdout()

	cfg, cfgPath, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	ctx, stop := signalContext(out)
	defer stop()

	candidates, err := scanner.New(log).Collect(ctx, args)
	if err != nil {
		return err
	}

	s, err := newSession(cfg, log, out, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			log.Warn().Err(err).Msg("ошибка при завершении сессии")
		}
	}()

	items := s.admit(candidates)
	if len(items) == 0 {
		fmt.Fprintln(out, "⚠️  Нет файлов для конвертации")
		return nil
	}

	printStart(out, cfg, cfgPath, len(items))

	bar := progress.New(progress.Options{
		Total:    int64(len(items)),
		Disabled: cfg.NoProgress,
		Writer:   cmd.ErrOrStderr(),
	})
	s.console.SetMessageWriter(bar)

	pool := worker.New(s.manager, worker.Options{
		Workers:     cfg.Workers,
		Retries:     cfg.Retries,
		MaxMemoryMB: cfg.MaxMemoryMB,
		Verbose:     cfg.Verbose,
		OnDone:      downloadNow(ctx, s, log),
	}, log)
	pool.SetProgressBar(bar)

	feed := make(chan queue.Item, len(items))
	for _, it := range items {
		feed <- it
	}
	close(feed)

	stats := pool.Process(ctx, feed)
	bar.Finish()

	// Ждём отложенные загрузки, чтобы таблица показала итог
	drainCtx, cancel := context.WithTimeout(ctx, cfg.AutoDownloadDelay+drainTimeout)
	defer cancel()
	if err := s.manager.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("не дождались автоматических загрузок")
	}
	s.console.SetMessageWriter(nil)

	fmt.Fprintln(out)
	fmt.Fprintln(out, renderQueue(s.manager.Items()))

	journal, err := s.stats()
	if err != nil {
		log.Warn().Err(err).Msg("не удалось прочитать журнал")
	}
	fmt.Fprintln(out, renderSummary(stats, journal, time.Since(startTime)))

	if stats.Failed > 0 {
		return fmt.Errorf("завершено с %d ошибками", stats.Failed)
	}
	return nil
}

// downloadNow загружает результат сразу, если автозагрузка выключена.
func downloadNow(ctx context.Context, s *session, log zerolog.Logger) func(queue.Item) {
	return func(item queue.Item) {
		if s.cfg.AutoDownload || item.Status != queue.StatusCompleted {
			return
		}
		if _, err := s.manager.Download(ctx, item.ID); err != nil {
			log.Warn().Err(err).Str("item_id", item.ID).Msg("загрузка не удалась")
		}
	}
}

func printStart(out io.Writer, cfg *config.Config, cfgPath string, n int) {
	if cfgPath != "" {
		fmt.Fprintf(out, "📄 Конфигурация: %s\n", cfgPath)
	}
	fmt.Fprintf(out, "🚀 Запуск конвертации:\n")
	fmt.Fprintf(out, "   Файлов: %d\n", n)
	fmt.Fprintf(out, "   Выход: %s\n", cfg.OutputDir)
	fmt.Fprintf(out, "   Холст PDF -> JPG: %dx%d (качество: %d, отрисовка: %s)\n",
		cfg.CanvasWidth, cfg.CanvasHeight, cfg.Quality, cfg.Renderer)
	fmt.Fprintf(out, "   Воркеров: %d, повторов: %d\n", cfg.Workers, cfg.Retries)
	if !cfg.AutoDownload {
		fmt.Fprintln(out, "   Автозагрузка отключена: результаты загружаются сразу после конвертации")
	}
	fmt.Fprintln(out)
}

// signalContext отменяет контекст по SIGINT/SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(out, "\n⚠️  Получен сигнал завершения, останавливаем...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// newConfigCmd создаёт команду config.
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Показать пример файла конфигурации",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateExampleConfig())
		},
	}
}

// newVersionCmd создаёт команду version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neonconvert %s (built %s)\n", Version, BuildTime)
		},
	}
}

// Execute запускает CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Не выводим ошибку, cobra уже вывела
		os.Exit(1)
	}
}
