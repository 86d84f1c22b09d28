// Package ocr описывает границу с движком распознавания текста:
// тип Region и интерфейс Recognizer, плюс адаптер внешнего OCR-процесса.
package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
)

// Point точка в координатах исходного кадра
type Point struct {
	X float64
	Y float64
}

// MarshalJSON пишет точку как [x, y], в том же виде, что отдает движок
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON читает точку из [x, y]
func (p *Point) UnmarshalJSON(data []byte) error {
	var xy []float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	if len(xy) != 2 {
		return fmt.Errorf("point: expected 2 coordinates, got %d", len(xy))
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Region один распознанный фрагмент текста.
// Polygon упорядочен: левый верхний, правый верхний, правый нижний, левый нижний.
type Region struct {
	Text       string   `json:"text"`
	Polygon    [4]Point `json:"box"`
	Confidence float64  `json:"confidence"`
}

// Center середина диагонали Polygon[0]-Polygon[2]
func (r Region) Center() Point {
	return Point{
		X: (r.Polygon[0].X + r.Polygon[2].X) / 2,
		Y: (r.Polygon[0].Y + r.Polygon[2].Y) / 2,
	}
}

// RectPolygon строит полигон из прямоугольника
func RectPolygon(rect image.Rectangle) [4]Point {
	return [4]Point{
		{X: float64(rect.Min.X), Y: float64(rect.Min.Y)},
		{X: float64(rect.Max.X), Y: float64(rect.Min.Y)},
		{X: float64(rect.Max.X), Y: float64(rect.Max.Y)},
		{X: float64(rect.Min.X), Y: float64(rect.Max.Y)},
	}
}

// Recognizer внешний движок распознавания. Не должен изменять img.
// Порядок результата сохраняется движком и важен для сопоставления правил.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]Region, error)
}

// normalizeConfidence приводит уверенность к [0,1]: часть движков отдает проценты
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c = c / 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
