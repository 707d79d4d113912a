package notify

import (
	"fmt"
	"io"
	"sync"
)

// MessageWriter выводит строку, не ломая отрисовку прогресс-бара.
type MessageWriter interface {
	WriteMessage(format string, args ...interface{})
	IsDisabled() bool
}

// Console печатает уведомления в терминал.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	// bar - активный прогресс-бар (может быть nil).
	bar MessageWriter
}

// NewConsole создаёт консольный Notifier.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// SetMessageWriter направляет вывод через прогресс-бар.
// nil возвращает прямой вывод в out.
func (c *Console) SetMessageWriter(w MessageWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bar = w
}

// Notify печатает уведомление одной строкой.
func (c *Console) Notify(title, message string, severity Severity) {
	line := fmt.Sprintf("%s %s %s\n", icon(severity), title, message)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar != nil && !c.bar.IsDisabled() {
		c.bar.WriteMessage("%s", line)
		return
	}
	fmt.Fprint(c.out, line)
}

func icon(severity Severity) string {
	switch severity {
	case SeveritySuccess:
		return "✅"
	case SeverityError:
		return "❌"
	default:
		return "💾"
	}
}
