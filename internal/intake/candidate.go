// Package intake принимает файлы от пользователя и отсеивает неподдерживаемые.
package intake

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MediaTypeJPEG - основной тип JPEG изображений.
	MediaTypeJPEG = "image/jpeg"
	// MediaTypeJPG - нестандартный тип, который встречается у некоторых клиентов.
	MediaTypeJPG = "image/jpg"
	// MediaTypePDF - PDF документ.
	MediaTypePDF = "application/pdf"
	// MediaTypeUnknown - тип не удалось определить.
	MediaTypeUnknown = "application/octet-stream"
)

// Candidate - файл, предложенный к конвертации.
type Candidate struct {
	// Name - имя файла без директории.
	Name string

	// Path - абсолютный путь (пусто для данных из памяти).
	Path string

	// MediaType - заявленный MIME тип.
	MediaType string

	// Size - размер в байтах.
	Size int64

	open func() (io.ReadCloser, error)
}

// Open открывает содержимое файла для чтения.
func (c Candidate) Open() (io.ReadCloser, error) {
	if c.open == nil {
		return nil, fmt.Errorf("содержимое %s недоступно", c.Name)
	}
	return c.open()
}

// FromFile создаёт кандидата из файла на диске.
// Тип определяется по расширению.
func FromFile(path string) (Candidate, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return Candidate{}, fmt.Errorf("не удалось получить информацию о файле %s: %w", path, err)
	}
	if info.IsDir() {
		return Candidate{}, fmt.Errorf("%s является директорией", path)
	}

	return Candidate{
		Name:      filepath.Base(absPath),
		Path:      absPath,
		MediaType: MediaTypeByName(absPath),
		Size:      info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(absPath)
		},
	}, nil
}

// FromBytes создаёт кандидата из данных в памяти.
func FromBytes(name, mediaType string, data []byte) Candidate {
	return Candidate{
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// MediaTypeByName определяет MIME тип по расширению имени файла.
func MediaTypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg":
		return MediaTypeJPEG
	case ".pdf":
		return MediaTypePDF
	case "":
		return MediaTypeUnknown
	}

	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return MediaTypeUnknown
}
