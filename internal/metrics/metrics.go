// Package metrics счетчики циклов для Prometheus. Методы безопасны
// для nil-получателя: компоненты работают и без метрик.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sniper"

// Metrics набор метрик процесса со своим реестром
type Metrics struct {
	Registry *prometheus.Registry

	framesCaptured   prometheus.Counter
	captureErrors    prometheus.Counter
	cycles           prometheus.Counter
	cycleErrors      prometheus.Counter
	recognizeSeconds prometheus.Histogram
	regions          prometheus.Gauge
	triggers         *prometheus.CounterVec
	actuatorErrors   prometheus.Counter
}

// New создает и регистрирует метрики
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		framesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_captured_total",
			Help: "Кадры, записанные в ячейку.",
		}),
		captureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "capture_errors_total",
			Help: "Ошибки захвата экрана.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Завершенные циклы распознавания.",
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycle_errors_total",
			Help: "Циклы, завершенные ошибкой или паникой.",
		}),
		recognizeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "recognize_seconds",
			Help:    "Длительность распознавания кадра.",
			Buckets: []float64{.005, .01, .02, .033, .05, .1, .2, .5, 1, 2},
		}),
		regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "regions",
			Help: "Число текстовых регионов в последнем кадре.",
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "triggers_total",
			Help: "Срабатывания правил.",
		}, []string{"rule"}),
		actuatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "actuator_errors_total",
			Help: "Ошибки устройства ввода.",
		}),
	}
	reg.MustRegister(
		m.framesCaptured, m.captureErrors, m.cycles, m.cycleErrors,
		m.recognizeSeconds, m.regions, m.triggers, m.actuatorErrors,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler HTTP-обработчик /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// CounterFunc регистрирует счетчик, значение которого читается из fn (например, потери телеметрии)
func (m *Metrics) CounterFunc(name, help string, fn func() uint64) {
	if m == nil {
		return
	}
	m.Registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: name, Help: help,
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) FrameCaptured() {
	if m != nil {
		m.framesCaptured.Inc()
	}
}

func (m *Metrics) CaptureError() {
	if m != nil {
		m.captureErrors.Inc()
	}
}

// Recognized учитывает успешное распознавание кадра
func (m *Metrics) Recognized(d time.Duration, regions int) {
	if m == nil {
		return
	}
	m.recognizeSeconds.Observe(d.Seconds())
	m.regions.Set(float64(regions))
}

func (m *Metrics) Cycle() {
	if m != nil {
		m.cycles.Inc()
	}
}

func (m *Metrics) CycleError() {
	if m != nil {
		m.cycleErrors.Inc()
	}
}

// Trigger учитывает срабатывание правила и ошибку устройства, если она была
func (m *Metrics) Trigger(ruleID string, actErr error) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(ruleID).Inc()
	if actErr != nil {
		m.actuatorErrors.Inc()
	}
}
