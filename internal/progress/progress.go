// Package progress показывает ход пакетной конвертации в терминале.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar - прогресс-бар с ETA и счётчиками исходов.
// Методы безопасны для вызова из нескольких горутин.
type Bar struct {
	bar *progressbar.ProgressBar

	// mu защищает bar и счётчики.
	mu sync.Mutex

	disabled bool
	writer   io.Writer
	started  time.Time

	total     int64
	completed int64
	failed    int64
	retried   int64
}

// Options содержит настройки прогресс-бара.
type Options struct {
	// Total - ожидаемое количество файлов (0 = неизвестно, растёт через AddTotal).
	Total int64

	// Description - подпись слева от полосы.
	Description string

	// Disabled - выводить только сообщения, без полосы.
	Disabled bool

	// Writer - куда выводить (по умолчанию os.Stderr).
	Writer io.Writer
}

// New создаёт прогресс-бар.
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	b := &Bar{
		disabled: opts.Disabled,
		writer:   writer,
		started:  time.Now(),
		total:    opts.Total,
	}
	if opts.Disabled {
		return b
	}

	description := opts.Description
	if description == "" {
		description = "Конвертация"
	}

	limit := opts.Total
	if limit <= 0 {
		limit = -1
	}

	b.bar = progressbar.NewOptions64(
		limit,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("файл"),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[cyan]█[reset]",
			SaucerHead:    "[cyan]▓[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(writer)
		}),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	return b
}

// Complete отмечает успешно сконвертированный файл.
func (b *Bar) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.completed++
	b.advance()
}

// Fail отмечает файл, все попытки которого завершились ошибкой.
func (b *Bar) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failed++
	b.advance()
}

// Retry отмечает повторную попытку. Полоса не двигается.
func (b *Bar) Retry() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.retried++
}

func (b *Bar) advance() {
	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// AddTotal увеличивает ожидаемое количество файлов.
func (b *Bar) AddTotal(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += n
	if b.bar != nil {
		b.bar.ChangeMax64(b.total)
	}
}

// Finish завершает прогресс-бар.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Counts возвращает счётчики исходов.
func (b *Bar) Counts() (completed, failed, retried int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed, b.failed, b.retried
}

// Total возвращает ожидаемое количество файлов.
func (b *Bar) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Duration возвращает время с момента создания.
func (b *Bar) Duration() time.Duration {
	return time.Since(b.started)
}

// IsDisabled возвращает true, если полоса отключена.
func (b *Bar) IsDisabled() bool {
	return b.disabled
}

// WriteMessage выводит строку над полосой.
func (b *Bar) WriteMessage(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Clear()
	}

	fmt.Fprintf(b.writer, format, args...)

	if b.bar != nil {
		_ = b.bar.RenderBlank()
	}
}
