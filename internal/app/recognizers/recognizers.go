// Package recognizers выбирает движок OCR по конфигу. Отдельный пакет
// держит cgo-зависимость tesseract вне остальной сборки.
package recognizers

import (
	"fmt"

	"sniper/internal/config"
	"sniper/internal/ocr"
	"sniper/internal/ocr/tesseract"
)

// New создает распознаватель по ocr.engine. closeFn освобождает
// клиента tesseract и безопасен для любого движка.
func New(cfg config.OCRConfig) (rec ocr.Recognizer, closeFn func(), err error) {
	closeFn = func() {}
	switch cfg.Engine {
	case "exec":
		rec = ocr.NewExecRecognizer(cfg.Executable, cfg.Args...)
	case "tesseract", "":
		t, err := tesseract.New(tesseract.Config{
			Languages: cfg.Languages,
			Level:     cfg.Level,
			Whitelist: cfg.Whitelist,
		})
		if err != nil {
			return nil, nil, err
		}
		rec = t
		closeFn = func() { _ = t.Close() }
	default:
		return nil, nil, fmt.Errorf("неизвестный движок OCR: %s", cfg.Engine)
	}

	pre := ocr.Preprocess{Scale: cfg.Upscale, Padding: cfg.Padding}
	if pre.Enabled() {
		rec = ocr.WithPreprocess(rec, pre)
	}
	return rec, closeFn, nil
}
