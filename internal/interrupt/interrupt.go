// Package interrupt глобальные горячие клавиши автономного режима:
// Shift+Enter запускает сессию, Q или CapsLock останавливает.
package interrupt

import (
	"sync/atomic"

	"sniper/internal/logger"
)

// InterruptManager управляет прерываниями и горячими клавишами
type InterruptManager struct {
	scriptInterruptChan chan bool
	scriptStartChan     chan bool
	isScriptRunning     atomic.Bool
	loggerManager       *logger.LoggerManager
}

// NewInterruptManager создает новый менеджер прерываний
func NewInterruptManager(loggerManager *logger.LoggerManager) *InterruptManager {
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	return &InterruptManager{
		scriptInterruptChan: make(chan bool, 1),
		scriptStartChan:     make(chan bool, 1),
		loggerManager:       loggerManager,
	}
}

// StartMonitoring запускает мониторинг горячих клавиш
func (im *InterruptManager) StartMonitoring() {
	go im.monitorHotkeys()
}

// GetScriptInterruptChan возвращает канал для остановки сессии
func (im *InterruptManager) GetScriptInterruptChan() <-chan bool {
	return im.scriptInterruptChan
}

// GetScriptStartChan возвращает канал для запуска сессии
func (im *InterruptManager) GetScriptStartChan() <-chan bool {
	return im.scriptStartChan
}

// SetScriptRunning устанавливает состояние выполнения сессии
func (im *InterruptManager) SetScriptRunning(running bool) {
	im.isScriptRunning.Store(running)
}

// IsScriptRunning возвращает состояние выполнения сессии
func (im *InterruptManager) IsScriptRunning() bool {
	return im.isScriptRunning.Load()
}

// requestStart сигнал запуска; повторное нажатие при полном канале теряется
func (im *InterruptManager) requestStart() {
	if im.IsScriptRunning() {
		return
	}
	select {
	case im.scriptStartChan <- true:
	default:
	}
}

// requestStop прерывает только запущенную сессию
func (im *InterruptManager) requestStop() {
	if !im.IsScriptRunning() {
		return
	}
	select {
	case im.scriptInterruptChan <- true:
	default:
	}
}

// hotkeys состояние Shift между событиями клавиатуры
type hotkeys struct {
	shiftPressed bool
}

type keyEvent struct {
	down bool
	key  key
}

type key int

const (
	keyOther key = iota
	keyShift
	keyEnter
	keyStop
)

// handle разбирает одно событие клавиатуры
func (im *InterruptManager) handle(h *hotkeys, ev keyEvent) {
	switch ev.key {
	case keyShift:
		h.shiftPressed = ev.down
	case keyEnter:
		if ev.down && h.shiftPressed {
			im.loggerManager.Debug("⌨️ Shift+Enter")
			im.requestStart()
		}
	case keyStop:
		if ev.down {
			im.loggerManager.Debug("⌨️ стоп-клавиша")
			im.requestStop()
		}
	}
}
