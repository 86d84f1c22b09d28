package rules

import "time"

// Cooldowns время последнего срабатывания по id правила.
// Принадлежит потоку распознавания, блокировок не требует.
type Cooldowns struct {
	last map[string]time.Time
}

// NewCooldowns создает пустой трекер
func NewCooldowns() *Cooldowns {
	return &Cooldowns{last: make(map[string]time.Time)}
}

// Ready true если правило ни разу не срабатывало или окно кулдауна истекло
func (c *Cooldowns) Ready(id string, cooldown time.Duration, now time.Time) bool {
	last, ok := c.last[id]
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}

// Mark фиксирует срабатывание правила
func (c *Cooldowns) Mark(id string, now time.Time) {
	c.last[id] = now
}

// Last время последнего срабатывания
func (c *Cooldowns) Last(id string) (time.Time, bool) {
	t, ok := c.last[id]
	return t, ok
}

// Reset забывает все срабатывания, используется между сессиями
func (c *Cooldowns) Reset() {
	clear(c.last)
}
