// Package pipeline связывает захват экрана и распознавание в два
// независимых цикла, общающихся только через frame.Cell.
package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/sourcegraph/conc/panics"

	"sniper/internal/frame"
	"sniper/internal/logger"
	"sniper/internal/metrics"
)

// Capturer источник кадров (screenshot.Capturer)
type Capturer interface {
	Grab() (*image.RGBA, error)
}

// Producer цикл захвата: кадры кладутся в ячейку без ограничения частоты
type Producer struct {
	capturer Capturer
	cell     *frame.Cell
	backoff  time.Duration
	logger   *logger.LoggerManager
	metrics  *metrics.Metrics
}

// NewProducer создает цикл захвата; backoff пауза после ошибки захвата
func NewProducer(capturer Capturer, cell *frame.Cell, backoff time.Duration, loggerManager *logger.LoggerManager) *Producer {
	if backoff <= 0 {
		backoff = time.Second
	}
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	return &Producer{capturer: capturer, cell: cell, backoff: backoff, logger: loggerManager}
}

// Instrument подключает метрики; nil отключает
func (p *Producer) Instrument(m *metrics.Metrics) { p.metrics = m }

// Run захватывает кадры до отмены ctx. Ошибки захвата не фатальны.
func (p *Producer) Run(ctx context.Context) {
	p.logger.Debug("📸 цикл захвата запущен")
	defer p.logger.Debug("📸 цикл захвата остановлен")

	for ctx.Err() == nil {
		img, err := p.grab()
		if err != nil {
			p.metrics.CaptureError()
			p.logger.LogError(err, "Ошибка захвата экрана")
			if !sleepCtx(ctx, p.backoff) {
				return
			}
			continue
		}
		p.cell.Write(img, time.Now())
		p.metrics.FrameCaptured()
	}
}

// grab один захват; паника библиотеки захвата возвращается как ошибка
func (p *Producer) grab() (img *image.RGBA, err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		img, err = p.capturer.Grab()
	})
	if r := catcher.Recovered(); r != nil {
		return nil, r.AsError()
	}
	return img, err
}

// sleepCtx спит d или до отмены ctx; false означает отмену
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
