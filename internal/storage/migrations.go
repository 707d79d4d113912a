// Package storage содержит миграции журнала сессии.
package storage

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: Таблица попыток конвертации
	`CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		src_name TEXT NOT NULL,
		src_type TEXT NOT NULL,
		src_size INTEGER NOT NULL,
		direction TEXT NOT NULL,
		status TEXT NOT NULL,
		out_name TEXT,
		out_size INTEGER,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);`,

	// Миграция 2: Одна запись на попытку элемента
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_attempts_item
	ON attempts (item_id, attempt);`,

	// Миграция 3: Индекс для быстрого поиска по статусу
	`CREATE INDEX IF NOT EXISTS ix_attempts_status ON attempts (status);`,

	// Миграция 4: Таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 5: Запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}
