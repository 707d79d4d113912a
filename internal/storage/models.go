// Package storage содержит модели журнала сессии.
package storage

import "time"

// AttemptStatus определяет статус попытки конвертации.
type AttemptStatus string

const (
	// StatusInProgress - попытка выполняется.
	StatusInProgress AttemptStatus = "in_progress"
	// StatusOK - попытка завершилась успешно.
	StatusOK AttemptStatus = "ok"
	// StatusFailed - попытка завершилась с ошибкой.
	StatusFailed AttemptStatus = "failed"
	// StatusDiscarded - результат отброшен (элемент удалён до завершения).
	StatusDiscarded AttemptStatus = "discarded"
)

// Attempt описывает начатую попытку конвертации.
type Attempt struct {
	// ItemID - идентификатор элемента очереди.
	ItemID string

	// Attempt - номер попытки элемента, начиная с 1.
	Attempt int

	// SrcName - имя исходного файла.
	SrcName string

	// SrcType - заявленный MIME тип источника.
	SrcType string

	// SrcSize - размер источника в байтах.
	SrcSize int64

	// Direction - направление конвертации (jpg->pdf, pdf->jpg).
	Direction string
}

// Outcome описывает результат попытки.
type Outcome struct {
	// Status - итоговый статус.
	Status AttemptStatus

	// OutName - имя результата (при успехе).
	OutName string

	// OutSize - размер результата в байтах (при успехе).
	OutSize int64

	// Error - сообщение об ошибке.
	Error string
}

// Record - строка журнала.
type Record struct {
	ID         int64
	Attempt    Attempt
	Status     AttemptStatus
	OutName    *string
	OutSize    *int64
	Error      *string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Stats - сводка по журналу.
type Stats struct {
	// Total - всего попыток.
	Total int64

	// OK - успешных попыток.
	OK int64

	// Failed - попыток с ошибкой.
	Failed int64

	// InProgress - незавершённых попыток.
	InProgress int64

	// Discarded - отброшенных результатов.
	Discarded int64

	// OutputBytes - суммарный размер успешных результатов.
	OutputBytes int64

	// AvgDuration - среднее время завершённой попытки.
	AvgDuration time.Duration
}
