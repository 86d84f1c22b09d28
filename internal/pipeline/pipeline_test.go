package pipeline

import (
	"context"
	"errors"
	"image"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniper/internal/config"
	"sniper/internal/frame"
	"sniper/internal/metrics"
	"sniper/internal/ocr"
	"sniper/internal/rules"
	"sniper/internal/telemetry"
	"sniper/internal/trigger"
)

type fakeCapturer struct {
	calls   atomic.Int32
	failUp  int32
	panicUp int32
}

func (f *fakeCapturer) Grab() (*image.RGBA, error) {
	n := f.calls.Add(1)
	if n <= f.panicUp {
		panic("capture driver crashed")
	}
	if n <= f.failUp {
		return nil, errors.New("display busy")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type fakeRecognizer struct {
	calls atomic.Int32
	fn    func(n int32) ([]ocr.Region, error)
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ image.Image) ([]ocr.Region, error) {
	return f.fn(f.calls.Add(1))
}

type fakeActuator struct {
	mu      sync.Mutex
	presses int
}

func (f *fakeActuator) PressKey(context.Context, string, time.Duration) error {
	f.mu.Lock()
	f.presses++
	f.mu.Unlock()
	return nil
}

func (f *fakeActuator) Click(context.Context, int, int) error { return nil }

func (f *fakeActuator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presses
}

type memorySink struct {
	mu   sync.Mutex
	msgs []telemetry.Message
}

func (m *memorySink) Send(msg telemetry.Message) error {
	m.mu.Lock()
	m.msgs = append(m.msgs, msg)
	m.mu.Unlock()
	return nil
}

func region(text string, x, y int) ocr.Region {
	return ocr.Region{Text: text, Polygon: ocr.RectPolygon(image.Rect(x-5, y-5, x+5, y+5)), Confidence: 0.9}
}

func legendaryRule() rules.Rule {
	minV, maxV := 10.0, 500.0
	r := rules.Rule{Keywords: []string{"Legendary"}, Min: &minV, Max: &maxV, Cooldown: 2 * time.Second}
	_ = r.Normalize()
	return r
}

func newTestConsumer(rec ocr.Recognizer, act *fakeActuator, emitter *telemetry.Emitter, pacing config.Pacing) (*Consumer, *frame.Cell) {
	cell := frame.NewCell()
	cd := rules.NewCooldowns()
	engine := rules.NewEngine([]rules.Rule{legendaryRule()}, rules.DefaultThresholds(), cd)
	ex := trigger.NewExecutor(act, nil, cd, nil, nil, nil, trigger.Options{})
	return NewConsumer(cell, rec, engine, ex, emitter, nil, pacing, nil), cell
}

func TestCycleWithoutFrame(t *testing.T) {
	rec := &fakeRecognizer{fn: func(int32) ([]ocr.Region, error) { return nil, nil }}
	c, _ := newTestConsumer(rec, &fakeActuator{}, nil, config.Pacing{})

	ready, err := c.Cycle(context.Background())
	assert.False(t, ready)
	assert.NoError(t, err)
	assert.Zero(t, rec.calls.Load())
}

func TestCycleFiresRespectingCooldown(t *testing.T) {
	rec := &fakeRecognizer{fn: func(int32) ([]ocr.Region, error) {
		return []ocr.Region{region("Legendary Blade", 100, 100), region("$250", 130, 110)}, nil
	}}
	act := &fakeActuator{}
	c, cell := newTestConsumer(rec, act, nil, config.Pacing{})
	cell.Write(image.NewRGBA(image.Rect(0, 0, 8, 8)), time.Now())

	t0 := time.Unix(1_700_000_000, 0)
	for _, step := range []struct {
		at      time.Duration
		presses int
	}{
		{0, 1},
		{time.Second, 1},
		{1999 * time.Millisecond, 1},
		{2 * time.Second, 2},
	} {
		c.now = func() time.Time { return t0.Add(step.at) }
		ready, err := c.Cycle(context.Background())
		require.NoError(t, err)
		require.True(t, ready)
		assert.Equal(t, step.presses, act.count(), "at %s", step.at)
	}
}

func TestCycleRecoversPanic(t *testing.T) {
	rec := &fakeRecognizer{fn: func(int32) ([]ocr.Region, error) { panic("bad frame") }}
	c, cell := newTestConsumer(rec, &fakeActuator{}, nil, config.Pacing{})
	cell.Write(image.NewRGBA(image.Rect(0, 0, 2, 2)), time.Now())

	_, err := c.Cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad frame")
}

func TestRunReportsLoopErrAndContinues(t *testing.T) {
	rec := &fakeRecognizer{fn: func(n int32) ([]ocr.Region, error) {
		if n == 1 {
			return nil, errors.New("engine crashed")
		}
		return nil, nil
	}}
	sink := &memorySink{}
	emitter := telemetry.NewEmitter(16, nil, sink)
	c, cell := newTestConsumer(rec, &fakeActuator{}, emitter, config.Pacing{
		CycleInterval: time.Millisecond,
		IdleSleep:     time.Millisecond,
		ErrorPause:    5 * time.Millisecond,
	})
	cell.Write(image.NewRGBA(image.Rect(0, 0, 2, 2)), time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return rec.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	drained, stop := context.WithCancel(context.Background())
	stop()
	emitter.Run(drained)

	require.NotEmpty(t, sink.msgs)
	assert.Equal(t, telemetry.KindLog, sink.msgs[0].Type)
	assert.Contains(t, sink.msgs[0].Data, "LoopErr: ")
	assert.Contains(t, sink.msgs[0].Data, "engine crashed")
}

func TestRunPacesCycles(t *testing.T) {
	rec := &fakeRecognizer{fn: func(int32) ([]ocr.Region, error) { return nil, nil }}
	c, cell := newTestConsumer(rec, &fakeActuator{}, nil, config.Pacing{CycleInterval: 20 * time.Millisecond})
	cell.Write(image.NewRGBA(image.Rect(0, 0, 2, 2)), time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	assert.GreaterOrEqual(t, c.Cycles(), uint64(2))
	assert.LessOrEqual(t, c.Cycles(), uint64(12))
}

func TestProducerRetriesAfterCaptureFailure(t *testing.T) {
	capt := &fakeCapturer{failUp: 2}
	cell := frame.NewCell()
	p := NewProducer(capt, cell, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return cell.Stats().Writes > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer did not stop")
	}
	assert.GreaterOrEqual(t, capt.calls.Load(), int32(3))
}

func TestProducerRecoversCapturePanic(t *testing.T) {
	capt := &fakeCapturer{panicUp: 2}
	cell := frame.NewCell()
	p := NewProducer(capt, cell, 5*time.Millisecond, nil)
	m := metrics.New()
	p.Instrument(m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return cell.Stats().Writes > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer did not stop")
	}
	assert.GreaterOrEqual(t, capt.calls.Load(), int32(3))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "sniper_capture_errors_total 2")
}

func TestProducerStopsDuringBackoff(t *testing.T) {
	capt := &fakeCapturer{failUp: 1 << 30}
	p := NewProducer(capt, frame.NewCell(), time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return capt.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer stuck in backoff")
	}
}

func TestSessionStartStop(t *testing.T) {
	rec := &fakeRecognizer{fn: func(int32) ([]ocr.Region, error) { return nil, nil }}
	c, cell := newTestConsumer(rec, &fakeActuator{}, nil, config.Pacing{CycleInterval: time.Millisecond})
	p := NewProducer(&fakeCapturer{}, cell, time.Millisecond, nil)

	s := NewSession(p, c, nil)
	require.NotEmpty(t, s.ID)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionStarted)

	require.Eventually(t, func() bool { return c.Cycles() > 0 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	_, open := <-s.Done()
	assert.False(t, open)
}
