// Package storage ведёт журнал попыток конвертации в SQLite.
// База живёт в рабочей директории сессии и удаляется вместе с ней.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateAttempt - попытка с таким номером уже записана.
var ErrDuplicateAttempt = errors.New("попытка уже записана в журнал")

// Storage предоставляет методы для работы с журналом.
type Storage struct {
	db *sql.DB
}

// New создаёт новое подключение к SQLite и выполняет миграции.
func New(dbPath string) (*Storage, error) {
	// Создаём директорию для БД, если не существует
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite не поддерживает concurrent writes
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *Storage) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Begin записывает начало попытки и возвращает ID записи.
func (s *Storage) Begin(a Attempt) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO attempts (item_id, attempt, src_name, src_type, src_size, direction, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ItemID, a.Attempt, a.SrcName, a.SrcType, a.SrcSize, a.Direction, StatusInProgress, time.Now().UnixMilli(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, fmt.Errorf("%w: %s #%d", ErrDuplicateAttempt, a.ItemID, a.Attempt)
		}
		return 0, fmt.Errorf("не удалось записать попытку: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("не удалось получить ID попытки: %w", err)
	}
	return id, nil
}

// Finish записывает итог попытки.
func (s *Storage) Finish(id int64, o Outcome) error {
	var outName, errMsg *string
	var outSize *int64
	if o.OutName != "" {
		outName = &o.OutName
		outSize = &o.OutSize
	}
	if o.Error != "" {
		errMsg = &o.Error
	}

	_, err := s.db.Exec(
		"UPDATE attempts SET status = ?, out_name = ?, out_size = ?, error = ?, finished_at = ? WHERE id = ?",
		o.Status, outName, outSize, errMsg, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("не удалось обновить попытку: %w", err)
	}
	return nil
}

// ListByItem возвращает попытки элемента по возрастанию номера.
func (s *Storage) ListByItem(itemID string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, attempt, src_name, src_type, src_size, direction,
		       status, out_name, out_size, error, started_at, finished_at
		FROM attempts WHERE item_id = ? ORDER BY attempt`, itemID)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать журнал: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r        Record
			started  int64
			finished *int64
		)
		if err := rows.Scan(
			&r.ID, &r.Attempt.ItemID, &r.Attempt.Attempt, &r.Attempt.SrcName, &r.Attempt.SrcType,
			&r.Attempt.SrcSize, &r.Attempt.Direction, &r.Status, &r.OutName, &r.OutSize, &r.Error,
			&started, &finished,
		); err != nil {
			return nil, fmt.Errorf("не удалось прочитать строку журнала: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished != nil {
			t := time.UnixMilli(*finished)
			r.FinishedAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetStats возвращает сводку по журналу.
func (s *Storage) GetStats() (Stats, error) {
	var (
		st       Stats
		avgMilli sql.NullFloat64
	)
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN out_size END), 0),
		       AVG(CASE WHEN finished_at IS NOT NULL THEN finished_at - started_at END)
		FROM attempts`,
		StatusOK, StatusFailed, StatusInProgress, StatusDiscarded, StatusOK,
	).Scan(&st.Total, &st.OK, &st.Failed, &st.InProgress, &st.Discarded, &st.OutputBytes, &avgMilli)
	if err != nil {
		return Stats{}, fmt.Errorf("не удалось получить статистику: %w", err)
	}
	if avgMilli.Valid {
		st.AvgDuration = time.Duration(avgMilli.Float64 * float64(time.Millisecond))
	}
	return st, nil
}

// CleanupInProgress помечает незавершённые попытки как failed.
// Вызывается при закрытии сессии.
func (s *Storage) CleanupInProgress() (int64, error) {
	result, err := s.db.Exec(
		"UPDATE attempts SET status = ?, error = ?, finished_at = ? WHERE status = ?",
		StatusFailed, "прервано при завершении сессии", time.Now().UnixMilli(), StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("не удалось очистить in_progress: %w", err)
	}
	return result.RowsAffected()
}

// isUniqueConstraintError проверяет, является ли ошибка нарушением уникальности.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
