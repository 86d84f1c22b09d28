// Package rules сопоставляет распознанный текст с настроенными правилами.
//
// Правило срабатывает, когда в кадре есть регион-якорь с ключевым словом и,
// если заданы границы, рядом с ним в той же строке есть регион с числом
// в диапазоне [Min, Max]. Правила проверяются в порядке конфигурации,
// за цикл срабатывает не больше одного.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultCooldown кулдаун правила, если ключ cooldown в конфиге не задан
const DefaultCooldown = time.Second

var (
	ErrNoKeywords       = errors.New("rule has no trigger keywords")
	ErrInvalidBounds    = errors.New("rule min_value is greater than max_value")
	ErrNegativeCooldown = errors.New("rule cooldown is negative")
)

// Rule одно правило срабатывания. Не изменяется во время работы цикла.
// Cooldown 0 означает срабатывание в каждом подходящем цикле.
type Rule struct {
	ID        string
	Keywords  []string
	Min       *float64
	Max       *float64
	Cooldown  time.Duration
	ActionKey string
}

// DefaultID строковое представление списка ключевых слов.
// Идентичность правила без явного id зависит от форматирования списка:
// переименование или перестановка слов сбрасывает кулдаун.
func DefaultID(keywords []string) string {
	return fmt.Sprint(keywords)
}

// Normalize убирает пустые ключевые слова и проставляет id по умолчанию.
// Кулдаун не подменяется: значение по умолчанию ставит загрузчик конфига.
func (r *Rule) Normalize() error {
	kws := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	r.Keywords = kws
	if len(r.Keywords) == 0 {
		return ErrNoKeywords
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%w: %v > %v", ErrInvalidBounds, *r.Min, *r.Max)
	}
	if strings.TrimSpace(r.ID) == "" {
		r.ID = DefaultID(r.Keywords)
	}
	if r.Cooldown < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeCooldown, r.Cooldown)
	}
	return nil
}

// HasBounds true если правило требует числовое значение
func (r Rule) HasBounds() bool {
	return r.Min != nil || r.Max != nil
}

// InRange проверяет значение против границ, отсутствующая граница не ограничивает
func (r Rule) InRange(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

var numericRe = regexp.MustCompile(`\d+(?:,\d+)*(?:\.\d+)?`)

// ExtractNumeric извлекает первое число из текста: "$1,250.50" -> 1250.5.
// Разделители тысяч отбрасываются. Текст без цифр значения не дает.
func ExtractNumeric(text string) (float64, bool) {
	m := numericRe.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
