// Package config содержит конфигурацию приложения.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/artemshloyda/neonconvert/internal/transcoder"
)

// Config содержит все настройки сессии конвертации.
type Config struct {
	// InputDir - директория для режима наблюдения.
	InputDir string

	// OutputDir - куда загружаются результаты.
	OutputDir string

	// Workers - количество параллельных конвертаций.
	Workers int

	// Retries - повторы после ошибки в пакетном режиме.
	Retries int

	// Quality - качество JPEG при конвертации PDF в изображение (1-100).
	Quality int

	// CanvasWidth - ширина холста для PDF -> JPG.
	CanvasWidth int

	// CanvasHeight - высота холста для PDF -> JPG.
	CanvasHeight int

	// PageWidthMM - ширина страницы PDF в миллиметрах.
	PageWidthMM float64

	// Renderer - способ отрисовки PDF (page, placeholder).
	Renderer string

	// RenderDPI - разрешение отрисовки страницы.
	RenderDPI float64

	// Preset - профиль холста и качества (web, print, thumbnail).
	Preset string

	// ConvertTimeout - ограничение времени одной конвертации.
	ConvertTimeout time.Duration

	// AutoDownload - загружать результат автоматически.
	AutoDownload bool

	// AutoDownloadDelay - задержка автоматической загрузки.
	AutoDownloadDelay time.Duration

	// TickInterval - период обновления прогресса элемента.
	TickInterval time.Duration

	// ProgressCap - максимум прогресса до завершения.
	ProgressCap int

	// MaxItems - ограничение размера очереди (0 = без ограничения).
	MaxItems int

	// MaxFileSizeMB - максимальный размер входного файла (0 = без ограничения).
	MaxFileSizeMB int

	// MaxMemoryMB - ограничение памяти на декодирование (0 = без ограничения).
	MaxMemoryMB int

	// WorkDir - где создаётся временная директория сессии (пусто = системная).
	WorkDir string

	// LogLevel - уровень логирования (debug, info, warn, error).
	LogLevel string

	// LogFormat - формат логов (console, json).
	LogFormat string

	// NtfyTopic - URL темы ntfy для уведомлений (пусто = отключено).
	NtfyTopic string

	// NtfyTimeout - таймаут запроса к ntfy.
	NtfyTimeout time.Duration

	// Verbose - подробный вывод.
	Verbose bool

	// NoProgress - отключить прогресс-бар.
	NoProgress bool
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() *Config {
	return &Config{
		Workers:           runtime.NumCPU(),
		Retries:           1,
		Quality:           transcoder.DefaultQuality,
		CanvasWidth:       transcoder.DefaultCanvasWidth,
		CanvasHeight:      transcoder.DefaultCanvasHeight,
		PageWidthMM:       transcoder.PageWidthMM,
		Renderer:          transcoder.RasterizerPage,
		RenderDPI:         transcoder.DefaultDPI,
		ConvertTimeout:    2 * time.Minute,
		AutoDownload:      true,
		AutoDownloadDelay: time.Second,
		TickInterval:      200 * time.Millisecond,
		ProgressCap:       90,
		LogLevel:          "warn",
		LogFormat:         "console",
		NtfyTimeout:       5 * time.Second,
	}
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("выходная директория не указана (--out)")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("качество должно быть от 1 до 100, получено: %d", c.Quality)
	}
	if c.Workers < 1 {
		return fmt.Errorf("количество воркеров должно быть >= 1, получено: %d", c.Workers)
	}
	if c.Retries < 0 {
		return fmt.Errorf("количество повторов должно быть >= 0, получено: %d", c.Retries)
	}
	if c.CanvasWidth < 1 || c.CanvasHeight < 1 {
		return fmt.Errorf("некорректный размер холста: %dx%d", c.CanvasWidth, c.CanvasHeight)
	}
	if c.PageWidthMM <= 0 {
		return fmt.Errorf("ширина страницы должна быть > 0, получено: %g", c.PageWidthMM)
	}
	if !slices.Contains([]string{transcoder.RasterizerPage, transcoder.RasterizerPlaceholder}, c.Renderer) {
		return fmt.Errorf("неизвестный способ отрисовки: %s (доступны: page, placeholder)", c.Renderer)
	}
	if c.ProgressCap < 1 || c.ProgressCap > 99 {
		return fmt.Errorf("потолок прогресса должен быть от 1 до 99, получено: %d", c.ProgressCap)
	}
	if c.ConvertTimeout < 0 || c.AutoDownloadDelay < 0 {
		return fmt.Errorf("длительности не могут быть отрицательными")
	}
	if c.MaxItems < 0 || c.MaxFileSizeMB < 0 || c.MaxMemoryMB < 0 {
		return fmt.Errorf("ограничения не могут быть отрицательными")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("неизвестный формат логов: %s (доступны: console, json)", c.LogFormat)
	}
	return nil
}

// ValidateWatch дополнительно проверяет настройки режима наблюдения.
func (c *Config) ValidateWatch() error {
	if c.InputDir == "" {
		return fmt.Errorf("входная директория не указана (--in)")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	in, err := filepath.Abs(c.InputDir)
	if err != nil {
		return fmt.Errorf("некорректная входная директория: %w", err)
	}
	out, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return fmt.Errorf("некорректная выходная директория: %w", err)
	}
	// Результаты внутри наблюдаемой директории снова попадут в очередь
	if rel, err := filepath.Rel(in, out); err == nil && !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("выходная директория не может находиться внутри входной")
	}
	return nil
}

// MaxFileSize возвращает ограничение размера файла в байтах.
func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// TranscoderOptions возвращает настройки конвертера.
func (c *Config) TranscoderOptions() (transcoder.Options, error) {
	rasterizer, err := transcoder.NewRasterizer(c.Renderer, c.RenderDPI, c.CanvasWidth, c.CanvasHeight)
	if err != nil {
		return transcoder.Options{}, err
	}
	return transcoder.Options{
		PageWidthMM:  c.PageWidthMM,
		CanvasWidth:  c.CanvasWidth,
		CanvasHeight: c.CanvasHeight,
		Quality:      c.Quality,
		Rasterizer:   rasterizer,
	}, nil
}
