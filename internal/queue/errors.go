package queue

import "errors"

var (
	// ErrNotFound - элемента с таким ID нет в очереди.
	ErrNotFound = errors.New("элемент не найден в очереди")

	// ErrInvalidState - операция недопустима в текущем состоянии элемента.
	ErrInvalidState = errors.New("недопустимое состояние элемента")

	// ErrNotCompleted - результат ещё не готов.
	ErrNotCompleted = errors.New("конвертация не завершена")

	// ErrQueueFull - очередь достигла MaxItems.
	ErrQueueFull = errors.New("очередь заполнена")

	// ErrClosed - менеджер закрыт.
	ErrClosed = errors.New("очередь закрыта")

	// errStale - обновление относится к устаревшей попытке.
	errStale = errors.New("устаревшее обновление")
)
