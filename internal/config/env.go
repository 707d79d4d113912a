package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix - префикс переменных окружения.
const EnvPrefix = "NEONCONVERT_"

// envConfig - переопределения из окружения. nil = переменная не задана.
type envConfig struct {
	InputDir          *string        `env:"IN"`
	OutputDir         *string        `env:"OUT"`
	Workers           *int           `env:"WORKERS"`
	Retries           *int           `env:"RETRIES"`
	Quality           *int           `env:"QUALITY"`
	Canvas            *string        `env:"CANVAS"`
	Preset            *string        `env:"PRESET"`
	Renderer          *string        `env:"RENDERER"`
	RenderDPI         *float64       `env:"RENDER_DPI"`
	ConvertTimeout    *time.Duration `env:"TIMEOUT"`
	AutoDownload      *bool          `env:"AUTO_DOWNLOAD"`
	AutoDownloadDelay *time.Duration `env:"AUTO_DOWNLOAD_DELAY"`
	MaxItems          *int           `env:"MAX_ITEMS"`
	MaxFileSizeMB     *int           `env:"MAX_FILE_SIZE_MB"`
	MaxMemoryMB       *int           `env:"MAX_MEMORY_MB"`
	WorkDir           *string        `env:"WORK_DIR"`
	LogLevel          *string        `env:"LOG_LEVEL"`
	LogFormat         *string        `env:"LOG_FORMAT"`
	NtfyTopic         *string        `env:"NTFY_TOPIC"`
	NtfyTimeout       *time.Duration `env:"NTFY_TIMEOUT"`
}

// ApplyEnv применяет переменные NEONCONVERT_* из окружения процесса.
func ApplyEnv(cfg *Config) error {
	return ApplyEnvFrom(cfg, environ())
}

// ApplyEnvFrom применяет переменные из переданной карты.
func ApplyEnvFrom(cfg *Config, environment map[string]string) error {
	var ec envConfig
	if err := env.ParseWithOptions(&ec, env.Options{
		Prefix:      EnvPrefix,
		Environment: environment,
	}); err != nil {
		return fmt.Errorf("ошибка разбора переменных окружения: %w", err)
	}

	// Пресет первым, как и в файле
	if ec.Preset != nil && !cfg.ApplyPreset(*ec.Preset) {
		return fmt.Errorf("неизвестный пресет в %sPRESET: %s", EnvPrefix, *ec.Preset)
	}
	if ec.Canvas != nil {
		w, h, err := ParseCanvas(*ec.Canvas)
		if err != nil {
			return err
		}
		cfg.CanvasWidth, cfg.CanvasHeight = w, h
	}

	set(&cfg.InputDir, ec.InputDir)
	set(&cfg.OutputDir, ec.OutputDir)
	set(&cfg.Workers, ec.Workers)
	set(&cfg.Retries, ec.Retries)
	set(&cfg.Quality, ec.Quality)
	set(&cfg.Renderer, ec.Renderer)
	set(&cfg.RenderDPI, ec.RenderDPI)
	set(&cfg.ConvertTimeout, ec.ConvertTimeout)
	set(&cfg.AutoDownload, ec.AutoDownload)
	set(&cfg.AutoDownloadDelay, ec.AutoDownloadDelay)
	set(&cfg.MaxItems, ec.MaxItems)
	set(&cfg.MaxFileSizeMB, ec.MaxFileSizeMB)
	set(&cfg.MaxMemoryMB, ec.MaxMemoryMB)
	set(&cfg.WorkDir, ec.WorkDir)
	set(&cfg.LogLevel, ec.LogLevel)
	set(&cfg.LogFormat, ec.LogFormat)
	set(&cfg.NtfyTopic, ec.NtfyTopic)
	set(&cfg.NtfyTimeout, ec.NtfyTimeout)

	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			vars[k] = v
		}
	}
	return vars
}
