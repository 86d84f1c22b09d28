// Package trigger выполняет действие по сработавшему правилу:
// лог в телеметрию, запись в историю, удержание клавиши или клик, кулдаун.
package trigger

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"sniper/internal/ledger"
	"sniper/internal/logger"
	"sniper/internal/rules"
)

// ClickAction ключ действия, означающий клик по центру якоря
const ClickAction = "[CLICK]"

// DefaultActionKey клавиша по умолчанию
const DefaultActionKey = "e"

// Клик смещается от центра якоря на случайные ±ClickJitter пикселей
// и выполняется после паузы из [ClickSettleMin, ClickSettleMax].
const (
	ClickJitter    = 2
	ClickSettleMin = 50 * time.Millisecond
	ClickSettleMax = 150 * time.Millisecond
)

// Actuator устройство ввода. Ошибки логируются исполнителем и не пробрасываются.
type Actuator interface {
	PressKey(ctx context.Context, key string, d time.Duration) error
	Click(ctx context.Context, x, y int) error
}

// Recorder получатель записей истории
type Recorder interface {
	Record(e ledger.Entry)
}

// Reporter канал телеметрии для строк лога
type Reporter interface {
	Logf(format string, args ...any)
}

// Executor исполнитель срабатываний. Вызывается синхронно из потока распознавания.
type Executor struct {
	actuator  Actuator
	recorder  Recorder
	cooldowns *rules.Cooldowns
	hold      *HoldSampler
	reporter  Reporter
	logger    *logger.LoggerManager
	globalKey string
	origin    image.Point
}

// Options параметры исполнителя
type Options struct {
	GlobalKey string
	// Origin левый верхний угол области захвата на экране, для кликов
	Origin image.Point
}

// NewExecutor создает исполнителя. reporter может быть nil.
func NewExecutor(actuator Actuator, recorder Recorder, cooldowns *rules.Cooldowns, hold *HoldSampler, reporter Reporter, loggerManager *logger.LoggerManager, opts Options) *Executor {
	if opts.GlobalKey == "" {
		opts.GlobalKey = DefaultActionKey
	}
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	if hold == nil {
		hold = NewHoldSampler(1200*time.Millisecond, 100*time.Millisecond, 500*time.Millisecond, nil)
	}
	return &Executor{
		actuator:  actuator,
		recorder:  recorder,
		cooldowns: cooldowns,
		hold:      hold,
		reporter:  reporter,
		logger:    loggerManager,
		globalKey: opts.GlobalKey,
		origin:    opts.Origin,
	}
}

// Result что было сделано по срабатыванию
type Result struct {
	Entry     ledger.Entry
	ActionKey string
	Hold      time.Duration
	ActErr    error
}

// Describe строка срабатывания для лога
func Describe(d rules.Decision) string {
	if d.Value == nil {
		return fmt.Sprintf("[%s] (No Price Limit)", d.Keyword)
	}
	return fmt.Sprintf("[%s] found @ %s", d.Keyword, formatValue(*d.Value))
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}

// ActionKey клавиша правила или глобальная
func (e *Executor) ActionKey(rule rules.Rule) string {
	if rule.ActionKey != "" {
		return rule.ActionKey
	}
	return e.globalKey
}

// Execute обрабатывает срабатывание. Кулдаун ставится всегда:
// совпадение состоялось, даже если устройство ввода вернуло ошибку.
func (e *Executor) Execute(ctx context.Context, d rules.Decision, now time.Time) Result {
	desc := Describe(d)
	if e.reporter != nil {
		e.reporter.Logf("BUY TRIGGER: %s", desc)
	}
	e.logger.Info("🎯 правило %s сработало: %s", d.Rule.ID, desc)

	var conf *float64
	if d.Confidence > 0 {
		c := d.Confidence
		conf = &c
	}
	entry := ledger.NewEntry(d.Keyword, d.Value, conf, d.Rule.ID, now)
	if e.recorder != nil {
		e.recorder.Record(entry)
	}

	res := Result{Entry: entry, ActionKey: e.ActionKey(d.Rule)}
	if res.ActionKey == ClickAction {
		c := d.Anchor.Center()
		x := e.origin.X + int(math.Round(c.X)) + e.hold.Jitter(ClickJitter)
		y := e.origin.Y + int(math.Round(c.Y)) + e.hold.Jitter(ClickJitter)
		settle := e.hold.Between(ClickSettleMin, ClickSettleMax)
		e.logger.Debug("🖱️ клик по якорю (%d, %d) через %s", x, y, settle)
		if waitCtx(ctx, settle) {
			res.ActErr = e.actuator.Click(ctx, x, y)
		} else {
			res.ActErr = ctx.Err()
		}
	} else {
		res.Hold = e.hold.Next()
		e.logger.Debug("⌨️ удержание %s: %s", res.ActionKey, res.Hold)
		res.ActErr = e.actuator.PressKey(ctx, res.ActionKey, res.Hold)
	}
	if res.ActErr != nil {
		e.logger.LogError(res.ActErr, "❌ ошибка устройства ввода")
	}

	e.cooldowns.Mark(d.Rule.ID, now)
	return res
}

// waitCtx спит d; false если ctx отменен раньше
func waitCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
