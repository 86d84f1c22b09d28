// Package tesseract адаптер распознавателя на libtesseract (cgo).
// Вынесен в отдельный пакет, чтобы остальной код собирался без tesseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"sniper/internal/ocr"
)

// Config параметры клиента tesseract
type Config struct {
	Languages []string
	// Level уровень разбиения: "line" (по умолчанию), "word", "block"
	Level     string
	Whitelist string
}

// Recognizer реализует ocr.Recognizer поверх gosseract.
// Клиент не потокобезопасен, вызовы сериализуются.
type Recognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
	level  gosseract.PageIteratorLevel
}

// New создает клиента и применяет настройки
func New(cfg Config) (*Recognizer, error) {
	client := gosseract.NewClient()
	if len(cfg.Languages) > 0 {
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("ошибка установки языков tesseract: %w", err)
		}
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("ошибка установки whitelist: %w", err)
		}
	}
	return &Recognizer{client: client, level: parseLevel(cfg.Level)}, nil
}

func parseLevel(s string) gosseract.PageIteratorLevel {
	switch strings.ToLower(s) {
	case "word":
		return gosseract.RIL_WORD
	case "block":
		return gosseract.RIL_BLOCK
	case "para", "paragraph":
		return gosseract.RIL_PARA
	default:
		return gosseract.RIL_TEXTLINE
	}
}

// Recognize распознает кадр и возвращает регионы в порядке tesseract.
// Координаты отсчитываются от левого верхнего угла кадра.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) ([]ocr.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("ошибка кодирования кадра: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	boxes, err := r.client.GetBoundingBoxes(r.level)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	regions := make([]ocr.Region, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		regions = append(regions, ocr.Region{
			Text:       text,
			Polygon:    ocr.RectPolygon(b.Box),
			Confidence: b.Confidence / 100,
		})
	}
	return regions, nil
}

// Close освобождает клиента tesseract
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}
