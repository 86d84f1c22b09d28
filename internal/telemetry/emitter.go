package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"sniper/internal/logger"
)

// Sink получатель сообщений (stdout, websocket)
type Sink interface {
	Send(msg Message) error
}

// Emitter буферизованная очередь сообщений с раздачей по Sink.
// Emit не блокируется: при полном буфере сообщение отбрасывается и считается.
type Emitter struct {
	ch      chan Message
	mu      sync.RWMutex
	sinks   []Sink
	dropped atomic.Uint64
	logger  *logger.LoggerManager
}

// NewEmitter создает очередь емкостью buffer
func NewEmitter(buffer int, loggerManager *logger.LoggerManager, sinks ...Sink) *Emitter {
	if buffer <= 0 {
		buffer = 64
	}
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	return &Emitter{ch: make(chan Message, buffer), sinks: sinks, logger: loggerManager}
}

// AddSink подключает еще одного получателя
func (e *Emitter) AddSink(s Sink) {
	e.mu.Lock()
	e.sinks = append(e.sinks, s)
	e.mu.Unlock()
}

// Emit ставит сообщение в очередь без ожидания
func (e *Emitter) Emit(kind Kind, data any) bool {
	select {
	case e.ch <- Message{Type: kind, Data: data}:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// EmitWait ставит сообщение в очередь, ожидая места. Для управляющих
// сообщений вне цикла распознавания (статусы старта и остановки).
func (e *Emitter) EmitWait(ctx context.Context, kind Kind, data any) error {
	select {
	case e.ch <- Message{Type: kind, Data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logf сообщение типа log
func (e *Emitter) Logf(format string, args ...any) {
	e.Emit(KindLog, fmt.Sprintf(format, args...))
}

// Dropped число отброшенных сообщений
func (e *Emitter) Dropped() uint64 { return e.dropped.Load() }

// Run раздает сообщения получателям до отмены ctx, затем досылает остаток очереди
func (e *Emitter) Run(ctx context.Context) {
	for {
		select {
		case msg := <-e.ch:
			e.dispatch(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-e.ch:
					e.dispatch(msg)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) dispatch(msg Message) {
	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Send(msg); err != nil {
			e.logger.Debug("⚠️ ошибка отправки телеметрии (%s): %v", msg.Type, err)
		}
	}
}
