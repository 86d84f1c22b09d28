package trigger

import (
	"math/rand"
	"sync"
	"time"
)

// HoldSampler длительность удержания клавиши: max(Floor, N(Base, StdDev)).
// Случайность убирает строго периодичный рисунок нажатий.
type HoldSampler struct {
	Base   time.Duration
	StdDev time.Duration
	Floor  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewHoldSampler создает сэмплер; src nil означает источник от текущего времени
func NewHoldSampler(base, stddev, floor time.Duration, src rand.Source) *HoldSampler {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	if base <= 0 {
		base = 1200 * time.Millisecond
	}
	if stddev < 0 {
		stddev = 0
	}
	return &HoldSampler{Base: base, StdDev: stddev, Floor: floor, rng: rand.New(src)}
}

// Next следующая длительность, никогда не меньше Floor
func (h *HoldSampler) Next() time.Duration {
	h.mu.Lock()
	n := h.rng.NormFloat64()
	h.mu.Unlock()

	d := h.Base + time.Duration(n*float64(h.StdDev))
	if d < h.Floor {
		return h.Floor
	}
	return d
}

// Jitter равномерное смещение в [-n, n]
func (h *HoldSampler) Jitter(n int) int {
	if n <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(2*n+1) - n
}

// Between равномерная длительность в [lo, hi]
func (h *HoldSampler) Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return lo + time.Duration(h.rng.Int63n(int64(hi-lo)+1))
}
