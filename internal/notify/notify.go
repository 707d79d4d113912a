// Package notify доставляет пользователю короткие уведомления о ходе конвертации.
package notify

// Severity определяет тип уведомления.
type Severity string

const (
	// SeverityInfo - информационное сообщение.
	SeverityInfo Severity = "info"
	// SeveritySuccess - успешное завершение операции.
	SeveritySuccess Severity = "success"
	// SeverityError - ошибка.
	SeverityError Severity = "error"
)

// Notifier принимает уведомления. Доставка не подтверждается.
type Notifier interface {
	Notify(title, message string, severity Severity)
}

// Noop отбрасывает все уведомления.
type Noop struct{}

// Notify ничего не делает.
func (Noop) Notify(string, string, Severity) {}

// Multi рассылает уведомление всем получателям по порядку.
type Multi []Notifier

// Notify передаёт уведомление каждому получателю.
func (m Multi) Notify(title, message string, severity Severity) {
	for _, n := range m {
		if n != nil {
			n.Notify(title, message, severity)
		}
	}
}

// Func позволяет использовать функцию как Notifier.
type Func func(title, message string, severity Severity)

// Notify вызывает f.
func (f Func) Notify(title, message string, severity Severity) {
	f(title, message, severity)
}
