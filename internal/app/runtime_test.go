package app

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniper/internal/config"
	"sniper/internal/ledger"
	"sniper/internal/logger"
	"sniper/internal/ocr"
	"sniper/internal/telemetry"
)

type fakeDisplay struct{}

func (fakeDisplay) NumActiveDisplays() int                 { return 1 }
func (fakeDisplay) GetDisplayBounds(int) image.Rectangle { return image.Rect(0, 0, 200, 100) }
func (fakeDisplay) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	img.Set(1, 1, color.White)
	return img, nil
}

type scriptedRecognizer struct{ calls atomic.Int32 }

func (s *scriptedRecognizer) Recognize(context.Context, image.Image) ([]ocr.Region, error) {
	s.calls.Add(1)
	return []ocr.Region{
		{Text: "Legendary Blade", Polygon: ocr.RectPolygon(image.Rect(95, 95, 105, 105)), Confidence: 0.9},
		{Text: "$250", Polygon: ocr.RectPolygon(image.Rect(125, 105, 135, 115)), Confidence: 0.8},
	}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("", map[string]any{
		"dry_run": true,
		"rules": []any{
			map[string]any{"id": "legendary", "trigger_text": []any{"Legendary"}, "min_value": 10, "max_value": 500, "cooldown": 60},
		},
		"hold_duration": 0.5,
		"hold_stddev":   0,
		"hold_floor":    0.01,
	})
	require.NoError(t, err)
	return cfg
}

func TestBuildRunsSessionEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	led := ledger.Open("", 10, nil)
	rec := &scriptedRecognizer{}
	closed := 0
	rt := &Runtime{
		Logger:  logger.Discard(),
		Emitter: telemetry.NewEmitter(64, nil),
		Ledger:  led,
		Display: fakeDisplay{},
		Recognizers: func(config.OCRConfig) (ocr.Recognizer, func(), error) {
			return rec, func() { closed++ }, nil
		},
	}

	s, err := rt.Build(cfg, image.Rect(10, 20, 210, 120))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return led.Len() == 1 }, 3*time.Second, 5*time.Millisecond)
	s.Stop()

	e := led.Entries()[0]
	assert.Equal(t, "Legendary", e.Item)
	assert.Equal(t, 250.0, *e.Price)
	assert.Equal(t, "legendary", e.RuleID)
	assert.Equal(t, 1, led.Len(), "кулдаун 60с не дает повторного срабатывания")

	rt.Close()
	assert.Equal(t, 1, closed)
	rt.Close()
	assert.Equal(t, 1, closed)
}

func TestBuildRecognizerError(t *testing.T) {
	rt := &Runtime{
		Logger:  logger.Discard(),
		Emitter: telemetry.NewEmitter(4, nil),
		Ledger:  ledger.Open("", 10, nil),
		Display: fakeDisplay{},
		Recognizers: func(config.OCRConfig) (ocr.Recognizer, func(), error) {
			return nil, nil, errors.New("tessdata missing")
		},
	}
	_, err := rt.Build(testConfig(t), image.Rect(0, 0, 10, 10))
	assert.ErrorContains(t, err, "tessdata missing")
}

func TestOpenActuatorDisabled(t *testing.T) {
	act, closer, err := OpenActuator(testConfig(t), logger.Discard())
	require.NoError(t, err)
	assert.Nil(t, act)
	assert.Nil(t, closer)
}
