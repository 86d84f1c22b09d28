package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sniper/internal/ocr"
	"sniper/internal/rules"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, "e", cfg.GlobalActionKey)
	assert.Equal(t, 33*time.Millisecond, cfg.Pacing.CycleInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.Pacing.IdleSleep)
	assert.Equal(t, time.Second, cfg.Pacing.ErrorPause)
	assert.Equal(t, 100*time.Millisecond, cfg.Pacing.PreviewInterval)
	assert.Equal(t, rules.DefaultThresholds(), cfg.Thresholds())
	assert.Equal(t, 1000, cfg.Ledger.Capacity)
	assert.Equal(t, 800, cfg.Telemetry.PreviewWidth)
	assert.Nil(t, cfg.ManualRegion())

	base, stddev, floor := cfg.Hold()
	assert.Equal(t, 1200*time.Millisecond, base)
	assert.Equal(t, 100*time.Millisecond, stddev)
	assert.Equal(t, 500*time.Millisecond, floor)
}

func TestRulesDecoding(t *testing.T) {
	path := writeConfig(t, `
global_action_key: f
rules:
  - id: legendary
    trigger_text: [Legendary, Mythic]
    min_value: 10
    max_value: 500
    cooldown: 2
    action_key: g
  - trigger_text: "Slime, King"
  - trigger_text: Ore
    max_value: 99.5
pacing:
  cycle_interval: 50ms
ocr_region: {x: 10, y: 20, width: 300, height: 100}
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Pacing.CycleInterval)
	require.NotNil(t, cfg.ManualRegion())
	assert.Equal(t, 300, cfg.ManualRegion().Width)

	rs, err := cfg.BuildRules()
	require.NoError(t, err)
	require.Len(t, rs, 3)

	assert.Equal(t, "legendary", rs[0].ID)
	assert.Equal(t, []string{"Legendary", "Mythic"}, rs[0].Keywords)
	assert.Equal(t, 10.0, *rs[0].Min)
	assert.Equal(t, 500.0, *rs[0].Max)
	assert.Equal(t, 2*time.Second, rs[0].Cooldown)
	assert.Equal(t, "g", rs[0].ActionKey)

	// строка не режется по запятой
	assert.Equal(t, []string{"Slime, King"}, rs[1].Keywords)
	assert.Equal(t, "[Slime, King]", rs[1].ID)
	assert.Equal(t, rules.DefaultCooldown, rs[1].Cooldown)
	assert.False(t, rs[1].HasBounds())

	assert.Nil(t, rs[2].Min)
	assert.Equal(t, 99.5, *rs[2].Max)
}

func TestOverridesFromStartCommand(t *testing.T) {
	path := writeConfig(t, `
target_window: Old
hold_duration: 1
pacing: {idle_sleep: 20ms}
rules:
  - trigger_text: Old
`)
	overrides := map[string]any{
		"target_window": "Game",
		"hold_duration": 0.8,
		"pacing":        map[string]any{"cycle_interval": "40ms"},
		"rules": []any{
			map[string]any{"trigger_text": "Legendary", "min_value": 10.0, "max_value": nil, "cooldown": 2.0},
		},
	}
	cfg, err := Load(path, overrides)
	require.NoError(t, err)
	assert.Equal(t, "Game", cfg.TargetWindow)
	assert.Equal(t, 0.8, cfg.HoldDuration)
	assert.Equal(t, 40*time.Millisecond, cfg.Pacing.CycleInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.Pacing.IdleSleep)

	rs, err := cfg.BuildRules()
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, []string{"Legendary"}, rs[0].Keywords)
	assert.Nil(t, rs[0].Max)
}

func TestRuleCooldownZeroIsKept(t *testing.T) {
	path := writeConfig(t, `
rules:
  - trigger_text: Slime
    cooldown: 0
  - trigger_text: Ore
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	rs, err := cfg.BuildRules()
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Zero(t, rs[0].Cooldown)
	assert.Equal(t, rules.DefaultCooldown, rs[1].Cooldown)

	e := rules.NewEngine(rs[:1], cfg.Thresholds(), nil)
	now := time.Unix(1_700_000_000, 0)
	d, ok := e.Evaluate([]ocr.Region{{Text: "Slime", Polygon: ocr.RectPolygon(image.Rect(0, 0, 10, 10))}}, now)
	require.True(t, ok)
	e.Cooldowns().Mark(d.Rule.ID, now)
	_, ok = e.Evaluate([]ocr.Region{{Text: "Slime", Polygon: ocr.RectPolygon(image.Rect(0, 0, 10, 10))}}, now.Add(100*time.Millisecond))
	assert.True(t, ok)
}

func TestNegativeCooldownRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "rules: [{trigger_text: Slime, cooldown: -1}]\n"), nil)
	assert.ErrorIs(t, err, rules.ErrNegativeCooldown)
}

func TestLedgerCapacityBounded(t *testing.T) {
	_, err := Load(writeConfig(t, "ledger: {capacity: 2000}\n"), nil)
	assert.ErrorContains(t, err, "ledger.capacity")

	cfg, err := Load(writeConfig(t, "ledger: {capacity: 1000}\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Ledger.Capacity)
}

func TestArduinoReadTimeoutRequired(t *testing.T) {
	_, err := Load(writeConfig(t, "arduino: {enabled: true, read_timeout: 0s}\n"), nil)
	assert.ErrorContains(t, err, "arduino.read_timeout")

	// выключенная Arduino таймаут не проверяет
	_, err = Load(writeConfig(t, "arduino: {enabled: false, read_timeout: 0s}\n"), nil)
	assert.NoError(t, err)
}

func TestMalformedFileFallsBackToDefaults(t *testing.T) {
	path := writeConfig(t, "rules: [a, b\nfoo: }\n")
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Rules)
	assert.Equal(t, "e", cfg.GlobalActionKey)
}

func TestInvalidRuleRejected(t *testing.T) {
	path := writeConfig(t, `
rules:
  - trigger_text: Legendary
    min_value: 500
    max_value: 10
`)
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, rules.ErrInvalidBounds)
}

func TestValidateEngine(t *testing.T) {
	_, err := Load(writeConfig(t, "ocr: {engine: exec}\n"), nil)
	assert.ErrorContains(t, err, "ocr.executable")

	_, err = Load(writeConfig(t, "ocr: {engine: magic}\n"), nil)
	assert.ErrorContains(t, err, "unknown ocr.engine")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SNIPER_LEDGER_PATH", "/tmp/other-ledger.json")
	cfg, err := Load(writeConfig(t, "ledger: {path: ledger.json}\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other-ledger.json", cfg.Ledger.Path)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "dry_run: false\nlog_level: warn\n")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--dry-run"}))

	cfg, err := NewLoader(fs, nil).Load(nil)
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "warn", cfg.LogLevel, "unset flag keeps file value")
}

func TestWatcherKeepsLastValid(t *testing.T) {
	path := writeConfig(t, "global_action_key: f\n")
	w, err := (&Loader{Path: path}).withDefaults().Watch()
	require.NoError(t, err)
	assert.Equal(t, "f", w.Current().GlobalActionKey)

	changed := make(chan *Config, 4)
	w.OnChange(func(c *Config) { changed <- c })

	require.NoError(t, os.WriteFile(path, []byte("global_action_key: g\n"), 0644))
	select {
	case c := <-changed:
		assert.Equal(t, "g", c.GlobalActionKey)
		assert.Equal(t, "g", w.Current().GlobalActionKey)
	case <-time.After(5 * time.Second):
		t.Skip("fsnotify events are not delivered in this environment")
	}
}
