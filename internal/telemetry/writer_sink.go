package telemetry

import (
	"encoding/json"
	"io"
	"sync"
)

// WriterSink пишет сообщения строками JSON (stdout супервизора)
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterSink создает получателя поверх w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// Send кодирует сообщение одной строкой
func (s *WriterSink) Send(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(msg)
}

// LogSink дублирует сообщения log/error/status в файловый лог
type LogSink struct {
	logf func(format string, args ...any)
}

// NewLogSink создает получателя поверх функции логирования
func NewLogSink(logf func(format string, args ...any)) *LogSink {
	return &LogSink{logf: logf}
}

// Send пишет сообщение в лог; превью пропускаются
func (s *LogSink) Send(msg Message) error {
	if msg.Type == KindPreview {
		return nil
	}
	s.logf("📡 [%s] %v", msg.Type, msg.Data)
	return nil
}
