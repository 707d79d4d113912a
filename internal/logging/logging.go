// Package logging настраивает структурированное логирование.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format - формат вывода логов.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New создаёт логгер. Неизвестный уровень = warn.
// out = nil означает os.Stderr.
func New(level, format string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	var zl zerolog.Logger
	if format == FormatJSON {
		zl = zerolog.New(out)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.TimeOnly,
		})
	}

	return zl.Level(ParseLevel(level)).With().
		Timestamp().
		Str("app", "neonconvert").
		Logger()
}

// ParseLevel переводит строку в уровень zerolog.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.WarnLevel
	}
	return lvl
}
