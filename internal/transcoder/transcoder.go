// Package transcoder содержит преобразования JPG -> PDF и PDF -> JPG.
// Функции чистые: они не знают об очереди и не хранят состояние между вызовами.
package transcoder

import (
	"errors"
	"regexp"
	"time"
)

var (
	// ErrDecode - исходное изображение не удалось декодировать.
	ErrDecode = errors.New("не удалось декодировать изображение")

	// ErrRead - исходный документ не удалось прочитать или разобрать.
	ErrRead = errors.New("не удалось прочитать документ")

	// ErrEncode - результат не удалось закодировать.
	ErrEncode = errors.New("не удалось сохранить результат")
)

const (
	// PageWidthMM - ширина страницы A4 в миллиметрах.
	PageWidthMM = 210.0

	// DefaultCanvasWidth - ширина холста для PDF -> JPG.
	DefaultCanvasWidth = 800

	// DefaultCanvasHeight - высота холста для PDF -> JPG.
	DefaultCanvasHeight = 600

	// DefaultQuality - качество JPEG (1-100).
	DefaultQuality = 90

	// DefaultDPI - разрешение рендеринга страницы PDF.
	DefaultDPI = 96.0

	mediaTypeJPEG = "image/jpeg"
	mediaTypePDF  = "application/pdf"
)

// Direction - направление конвертации.
type Direction string

const (
	// DirectionImageToDocument - JPG -> PDF.
	DirectionImageToDocument Direction = "jpg->pdf"
	// DirectionDocumentToImage - PDF -> JPG.
	DirectionDocumentToImage Direction = "pdf->jpg"
)

// DirectionFor выбирает направление по заявленному MIME типу.
// Всё, что не PDF, считается изображением.
func DirectionFor(mediaType string) Direction {
	if mediaType == mediaTypePDF {
		return DirectionDocumentToImage
	}
	return DirectionImageToDocument
}

// Options содержит параметры конвертации.
type Options struct {
	// PageWidthMM - ширина страницы PDF в миллиметрах.
	PageWidthMM float64

	// CanvasWidth - ширина итогового JPEG.
	CanvasWidth int

	// CanvasHeight - высота итогового JPEG.
	CanvasHeight int

	// Quality - качество JPEG (1-100).
	Quality int

	// Rasterizer - способ получения изображения страницы.
	// nil = рендеринг первой страницы через MuPDF.
	Rasterizer Rasterizer
}

// Result содержит результат одной конвертации.
type Result struct {
	// Blob - содержимое результата.
	Blob []byte

	// FileName - имя результата.
	FileName string

	// MediaType - MIME тип результата.
	MediaType string

	// Pages - количество страниц (для PDF) или 1 (для JPEG).
	Pages int

	// Width, Height - размеры исходного изображения (JPG -> PDF)
	// или итогового холста (PDF -> JPG) в пикселях.
	Width  int
	Height int

	// PageHeightMM - высота страницы PDF в миллиметрах (только JPG -> PDF).
	PageHeightMM float64

	// Duration - время конвертации.
	Duration time.Duration
}

// Transcoder выполняет конвертации с фиксированными параметрами.
type Transcoder struct {
	opts Options
}

// New создаёт Transcoder, подставляя значения по умолчанию для пустых полей.
func New(opts Options) *Transcoder {
	if opts.PageWidthMM <= 0 {
		opts.PageWidthMM = PageWidthMM
	}
	if opts.CanvasWidth <= 0 {
		opts.CanvasWidth = DefaultCanvasWidth
	}
	if opts.CanvasHeight <= 0 {
		opts.CanvasHeight = DefaultCanvasHeight
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.Rasterizer == nil {
		opts.Rasterizer = NewPageRasterizer(DefaultDPI)
	}
	return &Transcoder{opts: opts}
}

// PageHeight возвращает высоту страницы, сохраняющую пропорции изображения srcW x srcH.
func PageHeight(pageWidth float64, srcW, srcH int) float64 {
	if srcW <= 0 {
		return 0
	}
	return float64(srcH) * pageWidth / float64(srcW)
}

var (
	imageExt    = regexp.MustCompile(`(?i)\.(jpg|jpeg)$`)
	documentExt = regexp.MustCompile(`(?i)\.pdf$`)
)

// DocumentName возвращает имя PDF для изображения: "photo.JPG" -> "photo.pdf".
func DocumentName(name string) string {
	if imageExt.MatchString(name) {
		return imageExt.ReplaceAllString(name, ".pdf")
	}
	return name + ".pdf"
}

// ImageName возвращает имя JPEG для документа: "report.pdf" -> "report.jpg".
func ImageName(name string) string {
	if documentExt.MatchString(name) {
		return documentExt.ReplaceAllString(name, ".jpg")
	}
	return name + ".jpg"
}
