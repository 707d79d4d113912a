// Package worker ведёт элементы очереди через конвертацию параллельно.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/artemshloyda/neonconvert/internal/progress"
	"github.com/artemshloyda/neonconvert/internal/queue"
)

// Converter запускает конвертацию элементов очереди.
type Converter interface {
	Convert(ctx context.Context, id string) (<-chan queue.Item, error)
	Get(id string) (queue.Item, bool)
}

// Stats содержит статистику обработки.
type Stats struct {
	// Completed - количество сконвертированных файлов.
	Completed int64

	// Failed - количество файлов, все попытки которых завершились ошибкой.
	Failed int64

	// Retried - количество повторных попыток.
	Retried int64

	// Total - количество элементов, принятых пулом.
	Total int64

	// InputBytes - размер исходных файлов (сконвертированных).
	InputBytes int64

	// OutputBytes - размер результатов.
	OutputBytes int64
}

// FormatBytes форматирует байты в человекочитаемый формат.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Options содержит настройки пула.
type Options struct {
	// Workers - количество параллельных конвертаций.
	Workers int

	// Retries - сколько раз повторять конвертацию после ошибки.
	Retries int

	// MaxMemoryMB - ограничение памяти (0 = без ограничения).
	MaxMemoryMB int

	// Verbose - выводить строку о каждом файле.
	Verbose bool

	// OnDone вызывается с итоговым снимком каждого элемента.
	OnDone func(item queue.Item)
}

// Pool управляет воркерами, которые конвертируют элементы очереди.
type Pool struct {
	conv     Converter
	opts     Options
	log      zerolog.Logger
	progress *progress.Bar
	memory   *MemoryLimiter
	stats    Stats
}

// New создаёт пул воркеров.
func New(conv Converter, opts Options, log zerolog.Logger) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Pool{
		conv:   conv,
		opts:   opts,
		log:    log.With().Str("component", "worker").Logger(),
		memory: NewMemoryLimiter(opts.MaxMemoryMB),
	}
}

// SetProgressBar устанавливает прогресс-бар.
func (p *Pool) SetProgressBar(bar *progress.Bar) {
	p.progress = bar
}

// Process конвертирует элементы из канала, пока он не закроется или не отменён ctx.
func (p *Pool) Process(ctx context.Context, items <-chan queue.Item) Stats {
	var wg sync.WaitGroup

	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID, items)
		}(i)
	}

	wg.Wait()
	return p.GetStats()
}

func (p *Pool) worker(ctx context.Context, id int, items <-chan queue.Item) {
	log := p.log.With().Int("worker", id).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			p.processItem(ctx, item, log)
		}
	}
}

// processItem конвертирует элемент, повторяя попытку после ошибки.
func (p *Pool) processItem(ctx context.Context, item queue.Item, log zerolog.Logger) {
	atomic.AddInt64(&p.stats.Total, 1)
	log = log.With().Str("item_id", item.ID).Str("file", item.Source.Name).Logger()

	final, err := p.convert(ctx, item, log)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		final = item
		final.Status = queue.StatusError
		final.Err = err.Error()
	}

	if final.Status == queue.StatusCompleted && final.Output != nil {
		atomic.AddInt64(&p.stats.Completed, 1)
		atomic.AddInt64(&p.stats.InputBytes, item.Source.Size)
		atomic.AddInt64(&p.stats.OutputBytes, final.Output.Size)

		if p.opts.Verbose {
			p.message("✅ %s -> %s (%s)\n", item.Source.Name, final.Output.FileName, FormatBytes(final.Output.Size))
		}
		if p.progress != nil {
			p.progress.Complete()
		}
	} else {
		p.failed(item.Source.Name, final.Err)
	}

	if p.opts.OnDone != nil {
		p.opts.OnDone(final)
	}
}

// convert выполняет до Retries+1 попыток и возвращает итоговый снимок.
func (p *Pool) convert(ctx context.Context, item queue.Item, log zerolog.Logger) (queue.Item, error) {
	release, err := p.memory.Acquire(ctx, item.Source.Size)
	if err != nil {
		return queue.Item{}, fmt.Errorf("ожидание памяти прервано: %w", err)
	}
	defer release()

	var final queue.Item
	for attempt := 0; attempt <= p.opts.Retries; attempt++ {
		if attempt > 0 {
			if _, ok := p.conv.Get(item.ID); !ok {
				log.Debug().Msg("элемент удалён, повтор отменён")
				return final, nil
			}
			atomic.AddInt64(&p.stats.Retried, 1)
			if p.progress != nil {
				p.progress.Retry()
			}
			log.Info().Int("attempt", attempt+1).Msg("повторная попытка конвертации")
		}

		done, err := p.conv.Convert(ctx, item.ID)
		if err != nil {
			return queue.Item{}, err
		}

		select {
		case final = <-done:
		case <-ctx.Done():
			return queue.Item{}, ctx.Err()
		}

		if final.Status == queue.StatusCompleted || ctx.Err() != nil {
			break
		}
	}
	return final, nil
}

func (p *Pool) failed(name, reason string) {
	atomic.AddInt64(&p.stats.Failed, 1)
	if p.progress != nil {
		p.progress.Fail()
	}
	if p.opts.Verbose {
		p.message("❌ %s: %s\n", name, reason)
	}
	p.log.Debug().Str("file", name).Str("error", reason).Msg("файл не сконвертирован")
}

func (p *Pool) message(format string, args ...any) {
	if p.progress != nil && !p.progress.IsDisabled() {
		p.progress.WriteMessage(format, args...)
		return
	}
	p.log.Info().Msgf(format, args...)
}

// GetStats возвращает текущую статистику.
func (p *Pool) GetStats() Stats {
	return Stats{
		Completed:   atomic.LoadInt64(&p.stats.Completed),
		Failed:      atomic.LoadInt64(&p.stats.Failed),
		Retried:     atomic.LoadInt64(&p.stats.Retried),
		Total:       atomic.LoadInt64(&p.stats.Total),
		InputBytes:  atomic.LoadInt64(&p.stats.InputBytes),
		OutputBytes: atomic.LoadInt64(&p.stats.OutputBytes),
	}
}
