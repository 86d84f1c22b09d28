package telemetry

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"
	"golang.org/x/time/rate"

	"sniper/internal/ocr"
)

// PreviewOptions параметры превью
type PreviewOptions struct {
	Width           int
	JPEGQuality     int
	PreviewInterval time.Duration
	SummaryInterval time.Duration
	// HashDistance кадры с расстоянием dHash не больше этого считаются одинаковыми
	HashDistance int
	// Keepalive одинаковый кадр все равно отправляется не реже этого интервала
	Keepalive time.Duration
}

// DefaultPreviewOptions 800px, JPEG 60, превью раз в 100мс, сводка раз в секунду
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{
		Width:           800,
		JPEGQuality:     60,
		PreviewInterval: 100 * time.Millisecond,
		SummaryInterval: time.Second,
		HashDistance:    0,
		Keepalive:       time.Second,
	}
}

// Previewer уменьшенные кадры с регионами и текстовая сводка READ.
// Вызывается из потока распознавания, дорогие шаги ограничены по частоте.
type Previewer struct {
	emitter *Emitter
	opts    PreviewOptions

	preview *rate.Sometimes
	summary *rate.Sometimes

	mu       sync.Mutex
	lastHash *goimagehash.ImageHash
	lastSent time.Time
	skipped  uint64
}

// NewPreviewer создает превьюер поверх очереди телеметрии
func NewPreviewer(emitter *Emitter, opts PreviewOptions) *Previewer {
	def := DefaultPreviewOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if opts.PreviewInterval <= 0 {
		opts.PreviewInterval = def.PreviewInterval
	}
	if opts.SummaryInterval <= 0 {
		opts.SummaryInterval = def.SummaryInterval
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = def.Keepalive
	}
	return &Previewer{
		emitter: emitter,
		opts:    opts,
		preview: &rate.Sometimes{Interval: opts.PreviewInterval},
		summary: &rate.Sometimes{Interval: opts.SummaryInterval},
	}
}

// Offer предлагает кадр цикла; превью и сводка уходят не чаще своих интервалов
func (p *Previewer) Offer(img image.Image, regions []ocr.Region) {
	p.preview.Do(func() {
		if err := p.sendPreview(img, regions); err != nil {
			p.emitter.logger.Debug("⚠️ ошибка превью: %v", err)
		}
	})
	p.summary.Do(func() {
		if s, ok := Summary(regions); ok {
			p.emitter.Logf("READ: %s", s)
		}
	})
}

// Skipped число превью, пропущенных как неизменившиеся
func (p *Previewer) Skipped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

func (p *Previewer) sendPreview(img image.Image, regions []ocr.Region) error {
	b := img.Bounds()
	if b.Empty() {
		return nil
	}
	small := resize.Resize(uint(p.opts.Width), 0, img, resize.NearestNeighbor)

	if p.unchanged(small, len(regions)) {
		return nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		return fmt.Errorf("jpeg: %w", err)
	}
	if regions == nil {
		regions = []ocr.Region{}
	}
	p.emitter.Emit(KindPreview, Preview{
		Image:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		Results: regions,
		Width:   b.Dx(),
		Height:  b.Dy(),
	})
	return nil
}

// unchanged true если кадр совпадает с предыдущим отправленным и keepalive не истек.
// При непустых регионах превью отправляется всегда: на нем рамки распознавания.
func (p *Previewer) unchanged(img image.Image, regions int) bool {
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.lastHash != nil && regions == 0 && now.Sub(p.lastSent) < p.opts.Keepalive {
		if dist, err := p.lastHash.Distance(hash); err == nil && dist <= p.opts.HashDistance {
			p.skipped++
			return true
		}
	}
	p.lastHash = hash
	p.lastSent = now
	return false
}

// Summary тексты с уверенностью > 0.4 и длиной > 1, первые пять через " | "
func Summary(regions []ocr.Region) (string, bool) {
	var texts []string
	for _, r := range regions {
		if r.Confidence > 0.4 && utf8.RuneCountInString(r.Text) > 1 {
			texts = append(texts, r.Text)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	s := strings.Join(texts[:min(5, len(texts))], " | ")
	if len(texts) > 5 {
		s += "..."
	}
	return s, true
}
