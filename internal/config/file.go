package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру конфигурационного файла YAML.
// Все поля опциональны: незаданные не меняют конфигурацию.
type FileConfig struct {
	// Input - настройки входных данных.
	Input *InputConfig `yaml:"input,omitempty"`

	// Output - настройки результатов.
	Output *OutputConfig `yaml:"output,omitempty"`

	// Queue - настройки очереди.
	Queue *QueueConfig `yaml:"queue,omitempty"`

	// Processing - настройки обработки.
	Processing *ProcessingConfig `yaml:"processing,omitempty"`

	// Notify - настройки уведомлений.
	Notify *NotifyConfig `yaml:"notify,omitempty"`

	// Log - настройки логирования.
	Log *LogConfig `yaml:"log,omitempty"`
}

// InputConfig содержит настройки входных данных.
type InputConfig struct {
	// Dir - директория для режима наблюдения.
	Dir string `yaml:"dir,omitempty"`

	// MaxFileSizeMB - максимальный размер файла.
	MaxFileSizeMB int `yaml:"max_file_size_mb,omitempty"`
}

// OutputConfig содержит настройки результатов.
type OutputConfig struct {
	// Dir - куда загружаются результаты.
	Dir string `yaml:"dir,omitempty"`

	// Preset - профиль холста (web, print, thumbnail).
	Preset string `yaml:"preset,omitempty"`

	// Quality - качество JPEG (1-100).
	Quality int `yaml:"quality,omitempty"`

	// Canvas - размер холста, например "800x600".
	Canvas string `yaml:"canvas,omitempty"`

	// PageWidthMM - ширина страницы PDF.
	PageWidthMM float64 `yaml:"page_width_mm,omitempty"`

	// Renderer - способ отрисовки PDF (page, placeholder).
	Renderer string `yaml:"renderer,omitempty"`

	// RenderDPI - разрешение отрисовки страницы.
	RenderDPI float64 `yaml:"render_dpi,omitempty"`
}

// QueueConfig содержит настройки очереди.
type QueueConfig struct {
	// MaxItems - ограничение размера очереди.
	MaxItems int `yaml:"max_items,omitempty"`

	// AutoDownload - загружать результат автоматически.
	AutoDownload *bool `yaml:"auto_download,omitempty"`

	// AutoDownloadDelay - задержка загрузки, например "1s".
	AutoDownloadDelay string `yaml:"auto_download_delay,omitempty"`

	// Timeout - ограничение времени конвертации, например "2m".
	Timeout string `yaml:"timeout,omitempty"`

	// TickInterval - период обновления прогресса.
	TickInterval string `yaml:"tick_interval,omitempty"`
}

// ProcessingConfig содержит настройки обработки.
type ProcessingConfig struct {
	// Workers - количество параллельных конвертаций.
	Workers int `yaml:"workers,omitempty"`

	// Retries - повторы после ошибки.
	Retries *int `yaml:"retries,omitempty"`

	// MaxMemoryMB - ограничение памяти.
	MaxMemoryMB int `yaml:"max_memory_mb,omitempty"`

	// WorkDir - где создаётся временная директория сессии.
	WorkDir string `yaml:"work_dir,omitempty"`

	// Verbose - подробный вывод.
	Verbose bool `yaml:"verbose,omitempty"`

	// NoProgress - отключить прогресс-бар.
	NoProgress bool `yaml:"no_progress,omitempty"`
}

// NotifyConfig содержит настройки уведомлений.
type NotifyConfig struct {
	// NtfyTopic - URL темы ntfy.
	NtfyTopic string `yaml:"ntfy_topic,omitempty"`

	// Timeout - таймаут запроса, например "5s".
	Timeout string `yaml:"timeout,omitempty"`
}

// LogConfig содержит настройки логирования.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// DefaultConfigPaths возвращает пути поиска конфигурационного файла:
// ./neonconvert.yaml, ./neonconvert.yml, затем ~/.config/neonconvert/config.yaml(.yml).
func DefaultConfigPaths() []string {
	paths := []string{
		"neonconvert.yaml",
		"neonconvert.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "neonconvert", "config.yaml"),
			filepath.Join(home, ".config", "neonconvert", "config.yml"),
		)
	}

	return paths
}

// LoadFromFile загружает конфигурацию из указанного файла.
// Возвращает nil, nil если файл не существует.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга YAML в %s: %w", path, err)
	}

	return &fc, nil
}

// FindAndLoadConfig ищет и загружает конфигурационный файл.
// Если configPath указан явно, использует только его.
// Возвращает nil, "", nil если файл не найден.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("файл конфигурации не найден: %s", configPath)
		}
		return fc, configPath, nil
	}

	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}

	return nil, "", nil
}

// ApplyToConfig применяет настройки из файла к конфигурации.
// Вызывается до переменных окружения и CLI флагов.
func (fc *FileConfig) ApplyToConfig(cfg *Config) error {
	if fc == nil {
		return nil
	}

	if in := fc.Input; in != nil {
		if in.Dir != "" {
			cfg.InputDir = in.Dir
		}
		if in.MaxFileSizeMB > 0 {
			cfg.MaxFileSizeMB = in.MaxFileSizeMB
		}
	}

	if out := fc.Output; out != nil {
		if out.Dir != "" {
			cfg.OutputDir = out.Dir
		}
		// Пресет первым: явные значения ниже его перекрывают
		if out.Preset != "" && !cfg.ApplyPreset(out.Preset) {
			return fmt.Errorf("неизвестный пресет в файле: %s", out.Preset)
		}
		if out.Quality > 0 {
			cfg.Quality = out.Quality
		}
		if out.Canvas != "" {
			w, h, err := ParseCanvas(out.Canvas)
			if err != nil {
				return err
			}
			cfg.CanvasWidth, cfg.CanvasHeight = w, h
		}
		if out.PageWidthMM > 0 {
			cfg.PageWidthMM = out.PageWidthMM
		}
		if out.Renderer != "" {
			cfg.Renderer = out.Renderer
		}
		if out.RenderDPI > 0 {
			cfg.RenderDPI = out.RenderDPI
		}
	}

	if q := fc.Queue; q != nil {
		if q.MaxItems > 0 {
			cfg.MaxItems = q.MaxItems
		}
		if q.AutoDownload != nil {
			cfg.AutoDownload = *q.AutoDownload
		}
		for _, d := range []struct {
			raw string
			dst *time.Duration
		}{
			{q.AutoDownloadDelay, &cfg.AutoDownloadDelay},
			{q.Timeout, &cfg.ConvertTimeout},
			{q.TickInterval, &cfg.TickInterval},
		} {
			if d.raw == "" {
				continue
			}
			v, err := time.ParseDuration(d.raw)
			if err != nil {
				return fmt.Errorf("некорректная длительность %q: %w", d.raw, err)
			}
			*d.dst = v
		}
	}

	if p := fc.Processing; p != nil {
		if p.Workers > 0 {
			cfg.Workers = p.Workers
		}
		if p.Retries != nil {
			cfg.Retries = *p.Retries
		}
		if p.MaxMemoryMB > 0 {
			cfg.MaxMemoryMB = p.MaxMemoryMB
		}
		if p.WorkDir != "" {
			cfg.WorkDir = p.WorkDir
		}
		if p.Verbose {
			cfg.Verbose = true
		}
		if p.NoProgress {
			cfg.NoProgress = true
		}
	}

	if n := fc.Notify; n != nil {
		if n.NtfyTopic != "" {
			cfg.NtfyTopic = n.NtfyTopic
		}
		if n.Timeout != "" {
			v, err := time.ParseDuration(n.Timeout)
			if err != nil {
				return fmt.Errorf("некорректная длительность %q: %w", n.Timeout, err)
			}
			cfg.NtfyTimeout = v
		}
	}

	if l := fc.Log; l != nil {
		if l.Level != "" {
			cfg.LogLevel = l.Level
		}
		if l.Format != "" {
			cfg.LogFormat = l.Format
		}
	}

	return nil
}

// ParseCanvas разбирает размер холста вида "800x600".
func ParseCanvas(s string) (width, height int, err error) {
	if _, err := fmt.Sscanf(s, "%dx%d", &width, &height); err != nil {
		return 0, 0, fmt.Errorf("некорректный размер холста %q (ожидается ШxВ, например 800x600)", s)
	}
	if width < 1 || height < 1 {
		return 0, 0, fmt.Errorf("некорректный размер холста %q", s)
	}
	return width, height, nil
}

// GenerateExampleConfig генерирует пример конфигурационного файла.
func GenerateExampleConfig() string {
	return `# neonconvert configuration file
# Все параметры опциональны. Приоритет: файл < переменные NEONCONVERT_* < CLI флаги.

input:
  # Директория для режима watch
  dir: "./incoming"
  # Максимальный размер входного файла в МБ (0 = без ограничения)
  max_file_size_mb: 0

output:
  # Куда загружаются результаты
  dir: "./converted"
  # Профиль холста для PDF -> JPG: web, print, thumbnail
  preset: web
  # Качество JPEG (1-100)
  quality: 90
  # Размер холста для PDF -> JPG
  canvas: "800x600"
  # Ширина страницы PDF в мм
  page_width_mm: 210
  # Отрисовка PDF: page (первая страница) или placeholder (надпись)
  renderer: page
  render_dpi: 96

queue:
  # Ограничение размера очереди (0 = без ограничения)
  max_items: 0
  # Загружать результаты автоматически
  auto_download: true
  auto_download_delay: "1s"
  # Ограничение времени одной конвертации
  timeout: "2m"
  tick_interval: "200ms"

processing:
  # Параллельные конвертации (по умолчанию = CPU cores)
  workers: 4
  # Повторы после ошибки
  retries: 1
  # Ограничение памяти на декодирование в МБ (0 = без ограничения)
  max_memory_mb: 0
  work_dir: ""
  verbose: false
  no_progress: false

notify:
  # URL темы ntfy, например https://ntfy.sh/my-topic (пусто = отключено)
  ntfy_topic: ""
  timeout: "5s"

log:
  # debug, info, warn, error
  level: warn
  # console или json
  format: console
`
}
