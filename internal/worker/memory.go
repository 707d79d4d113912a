package worker

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// decodeFactor - во сколько раз декодированное изображение больше файла.
const decodeFactor = 4

// MemoryLimiter ограничивает суммарный объём одновременно декодируемых файлов.
type MemoryLimiter struct {
	limit uint64

	// mu защищает reserved.
	mu       sync.Mutex
	reserved uint64
}

// NewMemoryLimiter создаёт ограничитель. maxMemoryMB = 0 отключает ограничение.
func NewMemoryLimiter(maxMemoryMB int) *MemoryLimiter {
	if maxMemoryMB <= 0 {
		return &MemoryLimiter{}
	}
	return &MemoryLimiter{limit: uint64(maxMemoryMB) * 1024 * 1024}
}

// Acquire резервирует память под файл размером fileSize.
// Блокируется, пока резерв не поместится в лимит.
// Файл крупнее всего лимита допускается, когда других резервов нет.
func (ml *MemoryLimiter) Acquire(ctx context.Context, fileSize int64) (release func(), err error) {
	if !ml.IsEnabled() {
		return func() {}, nil
	}

	need := uint64(max(fileSize, 0)) * decodeFactor

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ml.mu.Lock()
		if ml.reserved == 0 || ml.reserved+need <= ml.limit {
			ml.reserved += need
			ml.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					ml.mu.Lock()
					ml.reserved -= need
					ml.mu.Unlock()
				})
			}, nil
		}
		ml.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
			runtime.GC()
		}
	}
}

// IsEnabled возвращает true, если ограничение включено.
func (ml *MemoryLimiter) IsEnabled() bool {
	return ml.limit > 0
}

// Reserved возвращает текущий резерв в байтах.
func (ml *MemoryLimiter) Reserved() uint64 {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.reserved
}
