package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/disintegration/imaging"
)

// DocumentToImage превращает документ в одно JPEG изображение размера холста.
// Страница от растеризатора вписывается в холст по центру на белом фоне.
func (t *Transcoder) DocumentToImage(ctx context.Context, r io.Reader, fileName string) (Result, error) {
	start := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("%w %s: %w", ErrRead, fileName, err)
	}

	page, err := t.opts.Rasterizer.Rasterize(ctx, data, fileName)
	if err != nil {
		return Result{}, err
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	w, h := t.opts.CanvasWidth, t.opts.CanvasHeight
	canvas := imaging.New(w, h, color.White)
	canvas = imaging.PasteCenter(canvas, imaging.Fit(page, w, h, imaging.Lanczos))

	var out bytes.Buffer
	if err := imaging.Encode(&out, canvas, imaging.JPEG, imaging.JPEGQuality(t.opts.Quality)); err != nil {
		return Result{}, fmt.Errorf("%w %s: %w", ErrEncode, fileName, err)
	}

	return Result{
		Blob:      out.Bytes(),
		FileName:  ImageName(fileName),
		MediaType: mediaTypeJPEG,
		Pages:     1,
		Width:     w,
		Height:    h,
		Duration:  time.Since(start),
	}, nil
}
