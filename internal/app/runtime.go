// Package app собирает компоненты процесса из конфига: устройство ввода
// и сессии циклов.
package app

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"sniper/internal/arduino"
	"sniper/internal/click_manager"
	"sniper/internal/config"
	"sniper/internal/frame"
	"sniper/internal/ledger"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/ocr"
	"sniper/internal/pipeline"
	"sniper/internal/rules"
	"sniper/internal/screenshot"
	"sniper/internal/telemetry"
	"sniper/internal/trigger"
)

// RecognizerFactory создает распознаватель для сессии
type RecognizerFactory func(cfg config.OCRConfig) (ocr.Recognizer, func(), error)

// Runtime долгоживущие ресурсы процесса. Сессии создаются на каждый start
// со свежими кулдаунами и распознавателем.
type Runtime struct {
	Logger      *logger.LoggerManager
	Emitter     *telemetry.Emitter
	Ledger      *ledger.Ledger
	Actuator    trigger.Actuator
	Display     screenshot.Display
	Recognizers RecognizerFactory
	Metrics     *metrics.Metrics

	mu          sync.Mutex
	closeActive func()
}

// Build собирает сессию для области region; совместим с control.BuildFunc.
// Предыдущая сессия к этому моменту уже остановлена, ее распознаватель закрывается.
func (r *Runtime) Build(cfg *config.Config, region image.Rectangle) (*pipeline.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()

	ruleSet, err := cfg.BuildRules()
	if err != nil {
		return nil, err
	}
	if len(ruleSet) == 0 {
		r.Logger.Warn("⚠️ правила не заданы, срабатываний не будет")
	}

	if r.Recognizers == nil {
		return nil, errors.New("фабрика распознавателей не задана")
	}
	rec, closeRec, err := r.Recognizers(cfg.OCR)
	if err != nil {
		return nil, fmt.Errorf("распознаватель: %w", err)
	}
	r.closeActive = closeRec

	actuator := r.Actuator
	if actuator == nil || cfg.DryRun {
		actuator = click_manager.NewDryRun(r.Logger, true)
	}

	cooldowns := rules.NewCooldowns()
	engine := rules.NewEngine(ruleSet, cfg.Thresholds(), cooldowns)
	base, stddev, floor := cfg.Hold()
	executor := trigger.NewExecutor(actuator, r.Ledger, cooldowns,
		trigger.NewHoldSampler(base, stddev, floor, nil), r.Emitter, r.Logger,
		trigger.Options{GlobalKey: cfg.GlobalActionKey, Origin: region.Min})

	previewer := telemetry.NewPreviewer(r.Emitter, telemetry.PreviewOptions{
		Width:           cfg.Telemetry.PreviewWidth,
		JPEGQuality:     cfg.Telemetry.JPEGQuality,
		PreviewInterval: cfg.Pacing.PreviewInterval,
		SummaryInterval: cfg.Pacing.SummaryInterval,
		Keepalive:       time.Second,
	})

	cell := frame.NewCell()
	producer := pipeline.NewProducer(screenshot.NewCapturer(r.Display, region), cell, cfg.Pacing.CaptureBackoff, r.Logger)
	consumer := pipeline.NewConsumer(cell, rec, engine, executor, r.Emitter, previewer, cfg.Pacing, r.Logger)
	producer.Instrument(r.Metrics)
	consumer.Instrument(r.Metrics)

	r.Logger.Info("🧩 сессия собрана: правил %d, движок %s, область %v", len(ruleSet), cfg.OCR.Engine, region)
	return pipeline.NewSession(producer, consumer, r.Logger), nil
}

// Close освобождает распознаватель последней сессии
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
}

func (r *Runtime) releaseLocked() {
	if r.closeActive != nil {
		r.closeActive()
		r.closeActive = nil
	}
}

// OpenActuator открывает Arduino по конфигу. nil без ошибки означает
// режим без устройства (arduino.enabled=false или dry_run).
func OpenActuator(cfg *config.Config, loggerManager *logger.LoggerManager) (trigger.Actuator, io.Closer, error) {
	if !cfg.Arduino.Enabled || cfg.DryRun {
		loggerManager.Info("🧪 Arduino отключен, нажатия только логируются")
		return nil, nil, nil
	}
	port, err := arduino.InitializePort(cfg.Arduino.Port, cfg.Arduino.BaudRate, cfg.Arduino.ReadTimeout)
	if err != nil {
		return nil, nil, err
	}
	loggerManager.Info("🔌 Arduino подключен: %s @ %d", cfg.Arduino.Port, cfg.Arduino.BaudRate)
	ctrl := arduino.NewController(port, cfg.Arduino.AckTimeout)
	return click_manager.NewClickManager(ctrl, cfg.Arduino.MarginX, cfg.Arduino.MarginY, loggerManager), port, nil
}
