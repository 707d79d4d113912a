package transcoder

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Rasterizer получает изображение из содержимого документа.
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte, fileName string) (image.Image, error)
}

// Имена растеризаторов для конфигурации.
const (
	RasterizerPage        = "page"
	RasterizerPlaceholder = "placeholder"
)

// NewRasterizer возвращает растеризатор по имени.
func NewRasterizer(name string, dpi float64, canvasW, canvasH int) (Rasterizer, error) {
	switch name {
	case "", RasterizerPage:
		return NewPageRasterizer(dpi), nil
	case RasterizerPlaceholder:
		return NewPlaceholder(canvasW, canvasH), nil
	default:
		return nil, fmt.Errorf("неизвестный растеризатор: %s (доступны: page, placeholder)", name)
	}
}

// PageRasterizer рендерит первую страницу PDF через MuPDF.
type PageRasterizer struct {
	dpi float64
}

// NewPageRasterizer создаёт PageRasterizer. dpi <= 0 = DefaultDPI.
func NewPageRasterizer(dpi float64) *PageRasterizer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PageRasterizer{dpi: dpi}
}

// Rasterize рендерит первую страницу документа.
func (p *PageRasterizer) Rasterize(ctx context.Context, data []byte, fileName string) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrRead, fileName, err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w %s: документ не содержит страниц", ErrRead, fileName)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := doc.ImageDPI(0, p.dpi)
	if err != nil {
		return nil, fmt.Errorf("%w %s: не удалось отрисовать страницу 1: %w", ErrRead, fileName, err)
	}
	return img, nil
}

// Placeholder рисует белый холст с подписью вместо содержимого страницы.
// Содержимое документа не разбирается.
type Placeholder struct {
	width  int
	height int
}

// NewPlaceholder создаёт Placeholder с размером холста width x height.
func NewPlaceholder(width, height int) *Placeholder {
	if width <= 0 {
		width = DefaultCanvasWidth
	}
	if height <= 0 {
		height = DefaultCanvasHeight
	}
	return &Placeholder{width: width, height: height}
}

var captionColor = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}

// Rasterize рисует две строки по центру холста.
func (p *Placeholder) Rasterize(_ context.Context, _ []byte, fileName string) (image.Image, error) {
	canvas := imaging.New(p.width, p.height, color.White)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(captionColor),
		Face: basicfont.Face7x13,
	}

	drawCentered(d, p.width, p.height/2, "PDF Content Converted to JPG")
	drawCentered(d, p.width, p.height/2+40, "Original file: "+fileName)

	return canvas, nil
}

func drawCentered(d *font.Drawer, width, baseline int, text string) {
	textWidth := d.MeasureString(text).Round()
	d.Dot = fixed.P((width-textWidth)/2, baseline)
	d.DrawString(text)
}
