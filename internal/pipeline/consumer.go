package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"sniper/internal/config"
	"sniper/internal/frame"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/ocr"
	"sniper/internal/rules"
	"sniper/internal/telemetry"
	"sniper/internal/trigger"
)

// Executor исполнитель срабатываний (trigger.Executor)
type Executor interface {
	Execute(ctx context.Context, d rules.Decision, now time.Time) trigger.Result
}

// Consumer цикл распознавания: снимок ячейки, OCR, правила, действие
type Consumer struct {
	cell       *frame.Cell
	recognizer ocr.Recognizer
	engine     *rules.Engine
	executor   Executor
	emitter    *telemetry.Emitter
	previewer  *telemetry.Previewer
	pacing     config.Pacing
	logger     *logger.LoggerManager
	metrics    *metrics.Metrics

	now    func() time.Time
	cycles atomic.Uint64
}

// NewConsumer создает цикл распознавания. previewer может быть nil.
func NewConsumer(cell *frame.Cell, recognizer ocr.Recognizer, engine *rules.Engine, executor Executor,
	emitter *telemetry.Emitter, previewer *telemetry.Previewer, pacing config.Pacing, loggerManager *logger.LoggerManager) *Consumer {
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	if emitter == nil {
		emitter = telemetry.NewEmitter(0, loggerManager)
	}
	if pacing.IdleSleep <= 0 {
		pacing.IdleSleep = 10 * time.Millisecond
	}
	return &Consumer{
		cell:       cell,
		recognizer: recognizer,
		engine:     engine,
		executor:   executor,
		emitter:    emitter,
		previewer:  previewer,
		pacing:     pacing,
		logger:     loggerManager,
		now:        time.Now,
	}
}

// Instrument подключает метрики; nil отключает
func (c *Consumer) Instrument(m *metrics.Metrics) { c.metrics = m }

// Cycle один проход. false без ошибки означает, что кадра еще нет.
// Паника внутри прохода возвращается как ошибка.
func (c *Consumer) Cycle(ctx context.Context) (ready bool, err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		ready, err = c.cycle(ctx)
	})
	if r := catcher.Recovered(); r != nil {
		return true, r.AsError()
	}
	return ready, err
}

func (c *Consumer) cycle(ctx context.Context) (bool, error) {
	f, ok := c.cell.ReadCopy()
	if !ok {
		return false, nil
	}

	started := time.Now()
	regions, err := c.recognizer.Recognize(ctx, f.Image)
	if err != nil {
		return true, fmt.Errorf("распознавание кадра %d: %w", f.Seq, err)
	}
	c.metrics.Recognized(time.Since(started), len(regions))

	if d, fired := c.engine.Evaluate(regions, c.now()); fired {
		res := c.executor.Execute(ctx, d, c.now())
		c.metrics.Trigger(d.Rule.ID, res.ActErr)
	}

	if c.previewer != nil {
		c.previewer.Offer(f.Image, regions)
	}
	return true, nil
}

// Run крутит Cycle до отмены ctx, выдерживая целевой интервал цикла.
// Ошибка цикла уходит в телеметрию, после нее пауза ErrorPause.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Debug("🔍 цикл распознавания запущен")
	defer c.logger.Debug("🔍 цикл распознавания остановлен")

	for ctx.Err() == nil {
		start := time.Now()

		ready, err := c.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.metrics.CycleError()
			c.emitter.Logf("LoopErr: %v", err)
			c.logger.LogError(err, "Ошибка цикла распознавания")
			if !sleepCtx(ctx, c.pacing.ErrorPause) {
				return
			}
			continue
		}
		if !ready {
			if !sleepCtx(ctx, c.pacing.IdleSleep) {
				return
			}
			continue
		}

		n := c.cycles.Add(1)
		c.metrics.Cycle()
		if c.pacing.HeartbeatEvery > 0 && n%uint64(c.pacing.HeartbeatEvery) == 0 {
			st := c.cell.Stats()
			c.logger.Debug("💓 циклов: %d, кадров записано: %d, прочитано: %d, перезаписано: %d",
				n, st.Writes, st.Reads, st.Overwrites)
		}

		if rest := c.pacing.CycleInterval - time.Since(start); rest > 0 {
			if !sleepCtx(ctx, rest) {
				return
			}
		}
	}
}

// Cycles число завершенных проходов с кадром
func (c *Consumer) Cycles() uint64 { return c.cycles.Load() }
