package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"sniper/internal/logger"
)

// ErrSessionStarted сессию нельзя запустить повторно
var ErrSessionStarted = errors.New("сессия уже запускалась")

// Session пара циклов захвата и распознавания. Одноразовая:
// после Stop для нового запуска создается новая сессия.
type Session struct {
	ID string

	producer *Producer
	consumer *Consumer
	logger   *logger.LoggerManager

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	done    chan struct{}
}

// NewSession создает сессию с новым идентификатором
func NewSession(producer *Producer, consumer *Consumer, loggerManager *logger.LoggerManager) *Session {
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	return &Session{
		ID:       uuid.NewString(),
		producer: producer,
		consumer: consumer,
		logger:   loggerManager,
		done:     make(chan struct{}),
	}
}

// Start запускает оба цикла в своих горутинах
func (s *Session) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSessionStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Go(func() { s.producer.Run(ctx) })
	s.wg.Go(func() { s.consumer.Run(ctx) })
	go func() {
		defer close(s.done)
		if r := s.wg.WaitAndRecover(); r != nil {
			s.logger.Error("💥 паника в цикле сессии %s: %s", s.ID, r.String())
		}
	}()

	s.logger.Info("▶️ сессия %s запущена", s.ID)
	return nil
}

// Stop отменяет циклы и ждет их завершения. Повторный вызов безопасен.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done
	s.logger.Info("⏹️ сессия %s остановлена", s.ID)
}

// Done закрывается, когда оба цикла завершились
func (s *Session) Done() <-chan struct{} { return s.done }
