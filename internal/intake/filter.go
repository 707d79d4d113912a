package intake

import (
	"fmt"

	"github.com/artemshloyda/neonconvert/internal/notify"
)

var acceptedTypes = map[string]bool{
	MediaTypeJPEG: true,
	MediaTypeJPG:  true,
	MediaTypePDF:  true,
}

// IsAccepted возвращает true для типов, которые умеет конвертировать приложение.
func IsAccepted(mediaType string) bool {
	return acceptedTypes[mediaType]
}

// Filter отсеивает неподдерживаемые файлы до постановки в очередь.
type Filter struct {
	notifier notify.Notifier

	// maxSize - максимальный размер файла в байтах (0 = без ограничения).
	maxSize int64
}

// NewFilter создаёт фильтр. maxSize = 0 отключает проверку размера.
func NewFilter(n notify.Notifier, maxSize int64) *Filter {
	if n == nil {
		n = notify.Noop{}
	}
	return &Filter{notifier: n, maxSize: maxSize}
}

// Admit возвращает допустимых кандидатов в исходном порядке.
// О каждом отклонённом файле отправляется уведомление.
func (f *Filter) Admit(candidates []Candidate) []Candidate {
	admitted := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		if !IsAccepted(c.MediaType) {
			f.notifier.Notify(
				"Неверный тип файла",
				fmt.Sprintf("%s не является файлом JPG или PDF.", c.Name),
				notify.SeverityError,
			)
			continue
		}
		if f.maxSize > 0 && c.Size > f.maxSize {
			f.notifier.Notify(
				"Файл слишком большой",
				fmt.Sprintf("%s превышает допустимый размер %d МБ.", c.Name, f.maxSize/(1024*1024)),
				notify.SeverityError,
			)
			continue
		}
		admitted = append(admitted, c)
	}

	return admitted
}
