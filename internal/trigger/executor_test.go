package trigger

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniper/internal/ledger"
	"sniper/internal/ocr"
	"sniper/internal/rules"
)

type press struct {
	key string
	d   time.Duration
}

type fakeActuator struct {
	presses []press
	clicks  []image.Point
	err     error
}

func (f *fakeActuator) PressKey(_ context.Context, key string, d time.Duration) error {
	f.presses = append(f.presses, press{key, d})
	return f.err
}

func (f *fakeActuator) Click(_ context.Context, x, y int) error {
	f.clicks = append(f.clicks, image.Point{X: x, Y: y})
	return f.err
}

type fakeRecorder struct{ entries []ledger.Entry }

func (f *fakeRecorder) Record(e ledger.Entry) { f.entries = append(f.entries, e) }

type fakeReporter struct{ lines []string }

func (f *fakeReporter) Logf(format string, args ...any) {
	f.lines = append(f.lines, fmt.Sprintf(format, args...))
}

func decision(key string, value *float64) rules.Decision {
	return rules.Decision{
		Rule:    rules.Rule{ID: "legendary", Keywords: []string{"Legendary"}, ActionKey: key, Cooldown: 2 * time.Second},
		Keyword: "Legendary",
		Anchor: ocr.Region{
			Text:       "Legendary Blade",
			Polygon:    ocr.RectPolygon(image.Rect(90, 95, 110, 105)),
			Confidence: 0.93,
		},
		Value:      value,
		Confidence: 0.93,
	}
}

func TestExecutePressesKeyAndRecords(t *testing.T) {
	act := &fakeActuator{}
	rec := &fakeRecorder{}
	rep := &fakeReporter{}
	cd := rules.NewCooldowns()
	hold := NewHoldSampler(1200*time.Millisecond, 100*time.Millisecond, 500*time.Millisecond, rand.NewSource(1))
	ex := NewExecutor(act, rec, cd, hold, rep, nil, Options{})

	v := 250.0
	now := time.Unix(1_700_000_000, 0)
	res := ex.Execute(context.Background(), decision("", &v), now)

	require.Len(t, rep.lines, 1)
	assert.Equal(t, "BUY TRIGGER: [Legendary] found @ 250", rep.lines[0])

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "Legendary", rec.entries[0].Item)
	assert.Equal(t, 250.0, *rec.entries[0].Price)
	assert.InDelta(t, 0.93, *rec.entries[0].Confidence, 1e-9)
	assert.Equal(t, "legendary", rec.entries[0].RuleID)

	require.Len(t, act.presses, 1)
	assert.Equal(t, DefaultActionKey, act.presses[0].key)
	assert.Equal(t, res.Hold, act.presses[0].d)
	assert.GreaterOrEqual(t, res.Hold, 500*time.Millisecond)

	last, ok := cd.Last("legendary")
	require.True(t, ok)
	assert.Equal(t, now, last)
}

func TestExecuteUsesRuleKey(t *testing.T) {
	act := &fakeActuator{}
	ex := NewExecutor(act, nil, rules.NewCooldowns(), nil, nil, nil, Options{GlobalKey: "f"})
	ex.Execute(context.Background(), decision("g", nil), time.Now())
	require.Len(t, act.presses, 1)
	assert.Equal(t, "g", act.presses[0].key)

	ex.Execute(context.Background(), decision("", nil), time.Now())
	assert.Equal(t, "f", act.presses[1].key)
}

func TestExecuteClickAction(t *testing.T) {
	act := &fakeActuator{}
	rep := &fakeReporter{}
	ex := NewExecutor(act, nil, rules.NewCooldowns(), nil, rep, nil, Options{Origin: image.Point{X: 1000, Y: 200}})

	start := time.Now()
	ex.Execute(context.Background(), decision(ClickAction, nil), time.Now())
	assert.GreaterOrEqual(t, time.Since(start), ClickSettleMin)
	assert.Empty(t, act.presses)
	require.Len(t, act.clicks, 1)
	assert.InDelta(t, 1100, act.clicks[0].X, ClickJitter)
	assert.InDelta(t, 300, act.clicks[0].Y, ClickJitter)
	assert.Equal(t, "BUY TRIGGER: [Legendary] (No Price Limit)", rep.lines[0])
}

func TestClickJitterVaries(t *testing.T) {
	act := &fakeActuator{}
	hold := NewHoldSampler(time.Second, 0, 0, rand.NewSource(3))
	ex := NewExecutor(act, nil, rules.NewCooldowns(), hold, nil, nil, Options{})

	seen := map[image.Point]bool{}
	for i := 0; i < 8; i++ {
		ex.Execute(context.Background(), decision(ClickAction, nil), time.Now())
	}
	for _, p := range act.clicks {
		assert.InDelta(t, 100, p.X, ClickJitter)
		assert.InDelta(t, 100, p.Y, ClickJitter)
		seen[p] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestClickCancelledDuringSettle(t *testing.T) {
	act := &fakeActuator{}
	cd := rules.NewCooldowns()
	ex := NewExecutor(act, nil, cd, nil, nil, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	now := time.Now()
	res := ex.Execute(ctx, decision(ClickAction, nil), now)
	assert.ErrorIs(t, res.ActErr, context.Canceled)
	assert.Empty(t, act.clicks)
	assert.False(t, cd.Ready("legendary", 2*time.Second, now))
}

func TestHoldSamplerJitterAndBetween(t *testing.T) {
	h := NewHoldSampler(time.Second, 0, 0, rand.NewSource(9))
	for i := 0; i < 200; i++ {
		j := h.Jitter(2)
		assert.GreaterOrEqual(t, j, -2)
		assert.LessOrEqual(t, j, 2)

		d := h.Between(ClickSettleMin, ClickSettleMax)
		assert.GreaterOrEqual(t, d, ClickSettleMin)
		assert.LessOrEqual(t, d, ClickSettleMax)
	}
	assert.Zero(t, h.Jitter(0))
	assert.Equal(t, ClickSettleMin, h.Between(ClickSettleMin, ClickSettleMin))
}

func TestExecuteMarksCooldownOnActuatorFailure(t *testing.T) {
	act := &fakeActuator{err: errors.New("serial port closed")}
	cd := rules.NewCooldowns()
	ex := NewExecutor(act, nil, cd, nil, nil, nil, Options{})

	now := time.Now()
	res := ex.Execute(context.Background(), decision("", nil), now)
	assert.Error(t, res.ActErr)
	assert.False(t, cd.Ready("legendary", 2*time.Second, now.Add(time.Second)))
}

func TestHoldSamplerFloor(t *testing.T) {
	h := NewHoldSampler(100*time.Millisecond, 10*time.Millisecond, 500*time.Millisecond, rand.NewSource(7))
	for i := 0; i < 100; i++ {
		assert.Equal(t, 500*time.Millisecond, h.Next())
	}
}

func TestHoldSamplerDistribution(t *testing.T) {
	h := NewHoldSampler(1200*time.Millisecond, 100*time.Millisecond, 500*time.Millisecond, rand.NewSource(42))
	var sum time.Duration
	distinct := map[time.Duration]bool{}
	const n = 2000
	for i := 0; i < n; i++ {
		d := h.Next()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		sum += d
		distinct[d] = true
	}
	mean := sum / n
	assert.InDelta(t, float64(1200*time.Millisecond), float64(mean), float64(20*time.Millisecond))
	assert.Greater(t, len(distinct), n/2)
}

func TestDescribeFractionalValue(t *testing.T) {
	v := 1250.5
	assert.Equal(t, "[Legendary] found @ 1250.5", Describe(decision("", &v)))
}
