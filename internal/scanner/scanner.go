// Package scanner собирает файлы для конвертации из аргументов командной строки.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/artemshloyda/neonconvert/internal/intake"
)

// Scanner превращает пути в кандидатов на конвертацию.
type Scanner struct {
	log zerolog.Logger
}

// New создаёт Scanner.
func New(log zerolog.Logger) *Scanner {
	return &Scanner{log: log.With().Str("component", "scanner").Logger()}
}

// Collect возвращает кандидатов в порядке аргументов.
// Явно указанные файлы передаются как есть: тип проверяет intake.Filter.
// В директориях берутся только файлы с расширениями JPG и PDF.
func (s *Scanner) Collect(ctx context.Context, paths []string) ([]intake.Candidate, error) {
	var out []intake.Candidate

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("не удалось получить информацию о %s: %w", p, err)
		}

		if !info.IsDir() {
			c, err := intake.FromFile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
			continue
		}

		found, err := s.walk(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	return out, nil
}

func (s *Scanner) walk(ctx context.Context, dir string) ([]intake.Candidate, error) {
	var out []intake.Candidate

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("не удалось прочитать")
			return nil
		}

		if d.IsDir() {
			if path != dir && IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if IsHidden(d.Name()) || !intake.IsAccepted(intake.MediaTypeByName(path)) {
			return nil
		}

		c, err := intake.FromFile(path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("файл пропущен")
			return nil
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования %s: %w", dir, err)
	}

	return out, nil
}

// IsHidden возвращает true для скрытых файлов и метаданных macOS (._*).
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
