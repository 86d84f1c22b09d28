package ocr

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// Preprocess увеличивает кадр, переводит в оттенки серого и добавляет белую рамку.
// Движки заметно хуже читают текст у самого края изображения.
type Preprocess struct {
	Scale   float64
	Padding int
}

// Enabled true если преобразование что-то меняет
func (p Preprocess) Enabled() bool {
	return (p.Scale > 0 && p.Scale != 1) || p.Padding > 0
}

func (p Preprocess) scale() float64 {
	if p.Scale <= 0 {
		return 1
	}
	return p.Scale
}

// Apply возвращает новое изображение, исходное не трогается
func (p Preprocess) Apply(img image.Image) *image.Gray {
	b := img.Bounds()
	s := p.scale()
	w := uint(float64(b.Dx()) * s)
	h := uint(float64(b.Dy()) * s)

	var scaled image.Image = img
	if s != 1 {
		scaled = resize.Resize(w, h, img, resize.Bilinear)
	}

	sb := scaled.Bounds()
	out := image.NewGray(image.Rect(0, 0, sb.Dx()+2*p.Padding, sb.Dy()+2*p.Padding))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(p.Padding, p.Padding, p.Padding+sb.Dx(), p.Padding+sb.Dy()), scaled, sb.Min, draw.Src)
	return out
}

// MapBack переводит координаты региона обратно в пространство исходного кадра
func (p Preprocess) MapBack(r Region) Region {
	s := p.scale()
	pad := float64(p.Padding)
	for i, pt := range r.Polygon {
		r.Polygon[i] = Point{X: (pt.X - pad) / s, Y: (pt.Y - pad) / s}
	}
	return r
}

type preprocessed struct {
	inner Recognizer
	pre   Preprocess
}

// WithPreprocess оборачивает распознаватель предобработкой кадра
func WithPreprocess(inner Recognizer, pre Preprocess) Recognizer {
	if !pre.Enabled() {
		return inner
	}
	return &preprocessed{inner: inner, pre: pre}
}

func (p *preprocessed) Recognize(ctx context.Context, img image.Image) ([]Region, error) {
	regions, err := p.inner.Recognize(ctx, p.pre.Apply(img))
	if err != nil {
		return nil, err
	}
	for i := range regions {
		regions[i] = p.pre.MapBack(regions[i])
	}
	return regions, nil
}
