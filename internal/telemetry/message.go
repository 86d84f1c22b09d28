// Package telemetry канал сообщений к внешнему супервизору:
// строки JSON {"type": ..., "data": ...}. Отправка никогда не блокирует цикл.
package telemetry

import "sniper/internal/ocr"

// Kind тип сообщения
type Kind string

const (
	KindStatus  Kind = "status"
	KindLog     Kind = "log"
	KindPreview Kind = "preview"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Message одно сообщение супервизору
type Message struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

// Status данные сообщения status
type Status struct {
	IsRunning bool   `json:"isRunning"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// Preview данные сообщения preview. Width/Height размер исходного кадра,
// координаты Results тоже в его пространстве.
type Preview struct {
	Image   string       `json:"image"`
	Results []ocr.Region `json:"results"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
}
