// Package queue отслеживает файлы в очереди конвертации и их жизненный цикл.
package queue

import (
	"time"

	"github.com/artemshloyda/neonconvert/internal/artifact"
	"github.com/artemshloyda/neonconvert/internal/intake"
	"github.com/artemshloyda/neonconvert/internal/transcoder"
)

// Status - состояние элемента очереди.
type Status string

const (
	// StatusPending - ожидает конвертации.
	StatusPending Status = "pending"
	// StatusConverting - конвертация выполняется.
	StatusConverting Status = "converting"
	// StatusCompleted - результат готов.
	StatusCompleted Status = "completed"
	// StatusError - конвертация завершилась ошибкой, можно повторить.
	StatusError Status = "error"
)

// Output - готовый результат конвертации.
// Значение не меняется после создания.
type Output struct {
	// Handle - дескриптор артефакта.
	Handle artifact.Handle

	// Blob - содержимое результата.
	Blob []byte

	// FileName - имя результата.
	FileName string

	// MediaType - MIME тип результата.
	MediaType string

	// Size - размер в байтах.
	Size int64
}

// Item - снимок элемента очереди.
// Элементы не изменяются на месте: каждое изменение создаёт новый снимок.
type Item struct {
	// ID - уникальный идентификатор элемента.
	ID string

	// Source - исходный файл.
	Source intake.Candidate

	// Status - текущее состояние.
	Status Status

	// Progress - прогресс 0-100.
	Progress int

	// Output - результат, только для StatusCompleted.
	Output *Output

	// Attempt - сколько раз элемент переходил в StatusConverting.
	Attempt int

	// Err - сообщение последней ошибки.
	Err string

	// AddedAt - время постановки в очередь.
	AddedAt time.Time

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// Direction возвращает направление конвертации элемента.
func (it Item) Direction() transcoder.Direction {
	return transcoder.DirectionFor(it.Source.MediaType)
}

// Convertible возвращает true, если элемент можно отправить на конвертацию.
func (it Item) Convertible() bool {
	return it.Status == StatusPending || it.Status == StatusError
}
