// Package download сохраняет готовые результаты в выходную директорию.
package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artemshloyda/neonconvert/internal/artifact"
)

// Source открывает содержимое артефакта по дескриптору.
type Source interface {
	Open(h artifact.Handle) (io.ReadCloser, error)
}

// Saver копирует артефакты в выходную директорию.
// Каждый артефакт получает свой путь: совпадающие имена нумеруются как "photo (1).pdf".
type Saver struct {
	src Source
	dir string
	log zerolog.Logger

	// mu защищает paths и claimed.
	mu      sync.Mutex
	paths   map[artifact.Handle]string
	claimed map[string]bool
}

// NewSaver создаёт Saver для директории dir.
func NewSaver(src Source, dir string, log zerolog.Logger) *Saver {
	return &Saver{
		src: src,
		dir: dir,
		log: log.With().Str("component", "download").Logger(),

		paths:   make(map[artifact.Handle]string),
		claimed: make(map[string]bool),
	}
}

// Download сохраняет артефакт под именем fileName и возвращает итоговый путь.
// Повторный вызов для того же артефакта перезаписывает тот же файл.
func (s *Saver) Download(ctx context.Context, h artifact.Handle, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("не удалось создать директорию %s: %w", s.dir, err)
	}

	rc, err := s.src.Open(h)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dstPath := s.target(h, fileName)

	// Пишем во временный файл и переименовываем, чтобы не оставлять обрезанный результат
	f, err := os.CreateTemp(s.dir, ".downloading-*"+filepath.Ext(dstPath))
	if err != nil {
		return "", fmt.Errorf("не удалось создать временный файл в %s: %w", s.dir, err)
	}
	tmpPath := f.Name()

	if err := f.Chmod(0644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("не удалось изменить права %s: %w", tmpPath, err)
	}

	n, err := io.Copy(f, rc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("не удалось записать %s: %w", dstPath, err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("не удалось переименовать %s: %w", tmpPath, err)
	}

	s.log.Debug().Str("path", dstPath).Int64("bytes", n).Msg("результат сохранён")
	return dstPath, nil
}

// target возвращает путь артефакта h, закрепляя за ним свободное имя при первом вызове.
func (s *Saver) target(h artifact.Handle, fileName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.paths[h]; ok {
		return p
	}

	base := filepath.Base(fileName)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		p := filepath.Join(s.dir, name)
		if s.claimed[p] {
			continue
		}
		if _, err := os.Lstat(p); err == nil {
			continue
		}
		s.paths[h] = p
		s.claimed[p] = true
		return p
	}
}
