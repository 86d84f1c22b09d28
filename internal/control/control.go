// Package control принимает команды супервизора (start/stop) строками JSON
// со stdin или из websocket и управляет сессией.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"sniper/internal/config"
	"sniper/internal/logger"
	"sniper/internal/pipeline"
	"sniper/internal/screenshot"
	"sniper/internal/telemetry"
)

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// Сообщения статуса, которые ожидает супервизор
const (
	MsgStarted        = "Engine Started"
	MsgStopped        = "Engine Stopped"
	MsgWindowNotFound = "Window Not Found"
)

// maxLine предел длины строки команды (встроенный конфиг может быть большим)
const maxLine = 1 << 20

// Command входящая команда
type Command struct {
	Action string         `json:"action"`
	Config map[string]any `json:"config,omitempty"`
}

// Scanner определение области захвата (screenshot.Scanner)
type Scanner interface {
	ScanRegion(windowName string, manual *screenshot.Rect) (image.Rectangle, error)
}

// BuildFunc собирает сессию по конфигу и найденной области захвата
type BuildFunc func(cfg *config.Config, region image.Rectangle) (*pipeline.Session, error)

// ConfigFunc конфиг для очередного start с учетом встроенных значений
type ConfigFunc func(overrides map[string]any) (*config.Config, error)

// Bridge управляющий мост. Одновременно работает не больше одной сессии.
type Bridge struct {
	configure ConfigFunc
	scanner   Scanner
	build     BuildFunc
	emitter   *telemetry.Emitter
	logger    *logger.LoggerManager

	mu      sync.Mutex
	session *pipeline.Session
}

// NewBridge создает мост
func NewBridge(configure ConfigFunc, scanner Scanner, build BuildFunc, emitter *telemetry.Emitter, loggerManager *logger.LoggerManager) *Bridge {
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	return &Bridge{
		configure: configure,
		scanner:   scanner,
		build:     build,
		emitter:   emitter,
		logger:    loggerManager,
	}
}

// Listen читает команды построчно до EOF или отмены ctx.
// При выходе запущенная сессия останавливается.
func (b *Bridge) Listen(ctx context.Context, r io.Reader) error {
	defer b.shutdown()

	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLine)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("ошибка чтения команд: %w", err)
			}
			b.logger.Info("📭 поток команд закрыт")
			return nil
		case line := <-lines:
			b.Handle(ctx, line)
		}
	}
}

// Handle разбирает и выполняет одну команду. Ошибки уходят в телеметрию.
func (b *Bridge) Handle(ctx context.Context, line []byte) {
	if len(line) == 0 {
		return
	}
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		b.fail(ctx, fmt.Errorf("некорректная команда: %w", err))
		return
	}
	switch cmd.Action {
	case ActionStart:
		if err := b.Start(ctx, cmd.Config); err != nil {
			b.fail(ctx, err)
		}
	case ActionStop:
		b.Stop(ctx)
	default:
		b.fail(ctx, fmt.Errorf("неизвестное действие %q", cmd.Action))
	}
}

// Start загружает конфиг, определяет область и запускает новую сессию.
// Предыдущая сессия, если есть, сначала останавливается.
func (b *Bridge) Start(ctx context.Context, overrides map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != nil {
		b.logger.Info("🔁 повторный start, останавливаем сессию %s", b.session.ID)
		b.session.Stop()
		b.session = nil
	}

	cfg, err := b.configure(overrides)
	if err != nil {
		return fmt.Errorf("конфиг не принят: %w", err)
	}

	region, err := b.scanner.ScanRegion(cfg.TargetWindow, cfg.ManualRegion())
	if err != nil {
		b.logger.LogError(err, "Область захвата не найдена")
		b.status(ctx, telemetry.Status{IsRunning: false, Message: MsgWindowNotFound})
		return nil
	}
	b.logger.Info("🪟 область захвата: %v", region)

	session, err := b.build(cfg, region)
	if err != nil {
		return fmt.Errorf("сборка сессии: %w", err)
	}
	// сессия живет дольше команды, ее останавливает stop или shutdown
	if err := session.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	b.session = session
	b.status(ctx, telemetry.Status{IsRunning: true, Message: MsgStarted, SessionID: session.ID})
	return nil
}

// Stop останавливает сессию. Без сессии ничего не делает.
func (b *Bridge) Stop(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		b.logger.Debug("⏹️ stop без запущенной сессии")
		return
	}
	id := b.session.ID
	b.session.Stop()
	b.session = nil
	b.status(ctx, telemetry.Status{IsRunning: false, Message: MsgStopped, SessionID: id})
}

// Running есть ли запущенная сессия
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session != nil
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Stop()
		b.session = nil
	}
}

func (b *Bridge) status(ctx context.Context, s telemetry.Status) {
	if err := b.emitter.EmitWait(ctx, telemetry.KindStatus, s); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warn("⚠️ статус не отправлен: %v", err)
	}
}

func (b *Bridge) fail(ctx context.Context, err error) {
	b.logger.LogError(err, "Ошибка команды")
	if werr := b.emitter.EmitWait(ctx, telemetry.KindError, err.Error()); werr != nil {
		b.logger.Warn("⚠️ ошибка не отправлена: %v", werr)
	}
}
