// Package artifact хранит результаты конвертации на время сессии
// и выдаёт на них временные дескрипторы.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownHandle - дескриптор не выдавался этим хранилищем.
	ErrUnknownHandle = errors.New("неизвестный дескриптор артефакта")

	// ErrReleased - дескриптор уже освобождён.
	ErrReleased = errors.New("дескриптор артефакта уже освобождён")
)

const handlePrefix = "artifact:"

// Handle - временная ссылка на результат конвертации.
type Handle string

// String возвращает текстовое представление дескриптора.
func (h Handle) String() string {
	return string(h)
}

// Info описывает артефакт.
type Info struct {
	// FileName - имя результата.
	FileName string

	// MediaType - MIME тип.
	MediaType string

	// Size - размер в байтах.
	Size int64

	// Path - путь к файлу в рабочей директории сессии.
	Path string
}

// Store держит артефакты в отдельной директории.
type Store struct {
	// dir - директория для артефактов.
	dir string

	mu       sync.Mutex
	live     map[Handle]Info
	released map[Handle]struct{}
	closed   bool
}

// New создаёт хранилище в директории dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию артефактов: %w", err)
	}

	return &Store{
		dir:      dir,
		live:     make(map[Handle]Info),
		released: make(map[Handle]struct{}),
	}, nil
}

// Dir возвращает директорию хранилища.
func (s *Store) Dir() string {
	return s.dir
}

// Mint сохраняет blob и выдаёт новый дескриптор.
func (s *Store) Mint(blob []byte, fileName, mediaType string) (Handle, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+strings.ToLower(filepath.Ext(fileName)))

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", fmt.Errorf("хранилище артефактов закрыто")
	}

	if err := os.WriteFile(path, blob, 0644); err != nil {
		return "", fmt.Errorf("не удалось сохранить артефакт %s: %w", fileName, err)
	}

	h := Handle(handlePrefix + id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = os.Remove(path)
		return "", fmt.Errorf("хранилище артефактов закрыто")
	}
	s.live[h] = Info{
		FileName:  fileName,
		MediaType: mediaType,
		Size:      int64(len(blob)),
		Path:      path,
	}

	return h, nil
}

// Stat возвращает информацию о живом артефакте.
func (s *Store) Stat(h Handle) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(h)
}

// Open открывает содержимое артефакта.
func (s *Store) Open(h Handle) (io.ReadCloser, error) {
	info, err := s.Stat(h)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(info.Path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть артефакт %s: %w", info.FileName, err)
	}
	return f, nil
}

// Release освобождает дескриптор и удаляет файл.
// Повторный вызов возвращает ErrReleased.
func (s *Store) Release(h Handle) error {
	s.mu.Lock()
	info, err := s.lookup(h)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.live, h)
	s.released[h] = struct{}{}
	s.mu.Unlock()

	if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("не удалось удалить артефакт %s: %w", info.FileName, err)
	}
	return nil
}

// lookup ищет артефакт. Вызывается под s.mu.
func (s *Store) lookup(h Handle) (Info, error) {
	if info, ok := s.live[h]; ok {
		return info, nil
	}
	if _, ok := s.released[h]; ok {
		return Info{}, fmt.Errorf("%w: %s", ErrReleased, h)
	}
	return Info{}, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
}

// Live возвращает количество неосвобождённых артефактов.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Size возвращает суммарный размер живых артефактов в байтах.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var size int64
	for _, info := range s.live {
		size += info.Size
	}
	return size
}

// Close освобождает все артефакты и удаляет директорию.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	for h := range s.live {
		delete(s.live, h)
		s.released[h] = struct{}{}
	}
	s.mu.Unlock()

	return os.RemoveAll(s.dir)
}
