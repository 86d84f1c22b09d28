package rules

import (
	"math"
	"strings"
	"time"

	"sniper/internal/ocr"
)

// Thresholds пороги "той же строки" между центрами якоря и значения, в пикселях
type Thresholds struct {
	Vertical   float64
	Horizontal float64
}

// DefaultThresholds строки в интерфейсе короткие и горизонтальные
func DefaultThresholds() Thresholds {
	return Thresholds{Vertical: 50, Horizontal: 600}
}

// Decision результат срабатывания правила
type Decision struct {
	Rule       Rule
	Keyword    string
	Anchor     ocr.Region
	Value      *float64
	ValueText  string
	Confidence float64
}

type compiledRule struct {
	Rule
	lower []string
}

// Engine сопоставитель правил. Состояние кулдаунов передается явно.
type Engine struct {
	rules      []compiledRule
	thresholds Thresholds
	cooldowns  *Cooldowns
}

// NewEngine создает движок. rules должны быть нормализованы.
func NewEngine(rules []Rule, thresholds Thresholds, cooldowns *Cooldowns) *Engine {
	if cooldowns == nil {
		cooldowns = NewCooldowns()
	}
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		lower := make([]string, len(r.Keywords))
		for j, k := range r.Keywords {
			lower[j] = strings.ToLower(k)
		}
		compiled[i] = compiledRule{Rule: r, lower: lower}
	}
	return &Engine{rules: compiled, thresholds: thresholds, cooldowns: cooldowns}
}

// Cooldowns трекер кулдаунов движка
func (e *Engine) Cooldowns() *Cooldowns { return e.cooldowns }

// Rules правила в порядке приоритета
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Rule
	}
	return out
}

type located struct {
	region ocr.Region
	lower  string
	center ocr.Point
}

// Evaluate возвращает не более одного срабатывания за цикл.
// Якорем правила служит только первый (в порядке распознавания) регион
// с ключевым словом. Если рядом с ним нет подходящего числа, правило в этом
// цикле не срабатывает, даже когда ниже есть другая строка с тем же словом
// и числом в диапазоне.
// Кулдаун не отмечается: это делает исполнитель после срабатывания.
func (e *Engine) Evaluate(regions []ocr.Region, now time.Time) (Decision, bool) {
	if len(regions) == 0 || len(e.rules) == 0 {
		return Decision{}, false
	}

	// центры считаются один раз на кадр
	items := make([]located, len(regions))
	for i, r := range regions {
		items[i] = located{region: r, lower: strings.ToLower(r.Text), center: r.Center()}
	}

	for _, rule := range e.rules {
		if !e.cooldowns.Ready(rule.ID, rule.Cooldown, now) {
			continue
		}
		anchor, keyword := findAnchor(items, rule)
		if anchor < 0 {
			continue
		}
		d := Decision{
			Rule:       rule.Rule,
			Keyword:    keyword,
			Anchor:     items[anchor].region,
			Confidence: items[anchor].region.Confidence,
		}
		if !rule.HasBounds() {
			return d, true
		}
		if v, text, ok := e.findValue(items, anchor, rule.Rule); ok {
			d.Value = &v
			d.ValueText = text
			return d, true
		}
	}
	return Decision{}, false
}

// findAnchor первый регион, содержащий любое ключевое слово правила
func findAnchor(items []located, rule compiledRule) (int, string) {
	for i, it := range items {
		for j, kw := range rule.lower {
			if strings.Contains(it.lower, kw) {
				return i, rule.Keywords[j]
			}
		}
	}
	return -1, ""
}

// findValue ищет среди остальных регионов первое число рядом с якорем в диапазоне правила
func (e *Engine) findValue(items []located, anchor int, rule Rule) (float64, string, bool) {
	ac := items[anchor].center
	for i, it := range items {
		if i == anchor {
			continue
		}
		if math.Abs(it.center.Y-ac.Y) >= e.thresholds.Vertical {
			continue
		}
		if math.Abs(it.center.X-ac.X) >= e.thresholds.Horizontal {
			continue
		}
		v, ok := ExtractNumeric(it.region.Text)
		if !ok || !rule.InRange(v) {
			continue
		}
		return v, it.region.Text, true
	}
	return 0, "", false
}
