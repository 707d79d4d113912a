package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
)

// sourceQuality - качество перекодирования повёрнутого по EXIF кадра.
const sourceQuality = 100

// exifMarker - заголовок сегмента APP1 с EXIF. Ищется только в начале файла.
var exifMarker = []byte("Exif\x00\x00")

// exifSearchLimit - максимальный размер сегмента APP1.
const exifSearchLimit = 64 << 10

// ImageToDocument помещает изображение на одну страницу PDF шириной PageWidthMM.
// Высота страницы повторяет пропорции изображения.
func (t *Transcoder) ImageToDocument(ctx context.Context, r io.Reader, fileName, declaredType string) (Result, error) {
	start := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("%w %s (%s): %w", ErrDecode, fileName, declaredType, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("%w %s (%s): %w", ErrDecode, fileName, declaredType, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return Result{}, fmt.Errorf("%w %s: пустое изображение", ErrDecode, fileName)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// JPEG без EXIF встраивается как есть, остальное перекодируется из повёрнутого кадра
	source := bytes.NewReader(data)
	if !embeddable(data) {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(sourceQuality)); err != nil {
			return Result{}, fmt.Errorf("%w %s: %w", ErrEncode, fileName, err)
		}
		source = bytes.NewReader(buf.Bytes())
	}

	pageWidth := t.opts.PageWidthMM
	pageHeight := PageHeight(pageWidth, w, h)

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: pageWidth, Ht: pageHeight},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCreator("neonconvert", true)
	doc.SetTitle(fileName, true)
	doc.AddPage()

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	doc.RegisterImageOptionsReader("source", opts, source)
	doc.ImageOptions("source", 0, 0, pageWidth, pageHeight, false, opts, 0, "")

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return Result{}, fmt.Errorf("%w %s: %w", ErrEncode, fileName, err)
	}

	return Result{
		Blob:         out.Bytes(),
		FileName:     DocumentName(fileName),
		MediaType:    mediaTypePDF,
		Pages:        1,
		Width:        w,
		Height:       h,
		PageHeightMM: pageHeight,
		Duration:     time.Since(start),
	}, nil
}

// embeddable сообщает, можно ли встроить исходные байты без перекодирования:
// это JPEG и в нём нет EXIF, а значит и поворота.
func embeddable(data []byte) bool {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "jpeg" {
		return false
	}
	return !bytes.Contains(data[:min(len(data), exifSearchLimit)], exifMarker)
}
