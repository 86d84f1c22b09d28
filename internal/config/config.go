// Package config загрузка настроек из config.yaml, переменных окружения,
// флагов и встроенного конфига команды start.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sniper/internal/ledger"
	"sniper/internal/logger"
	"sniper/internal/rules"
	"sniper/internal/screenshot"
)

// EnvPrefix префикс переменных окружения: SNIPER_LEDGER_PATH и т.п.
const EnvPrefix = "SNIPER"

// Структура правила в конфиге. trigger_text может быть строкой или списком.
type RuleConfig struct {
	ID          string   `mapstructure:"id"`
	TriggerText []string `mapstructure:"trigger_text"`
	MinValue    *float64 `mapstructure:"min_value"`
	MaxValue    *float64 `mapstructure:"max_value"`
	Cooldown    *float64 `mapstructure:"cooldown"` // секунды, nil означает rules.DefaultCooldown
	ActionKey   string   `mapstructure:"action_key"`
}

// Пороги "той же строки"
type MatcherConfig struct {
	VerticalThreshold   float64 `mapstructure:"vertical_threshold"`
	HorizontalThreshold float64 `mapstructure:"horizontal_threshold"`
}

// Темп циклов
type Pacing struct {
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`
	IdleSleep       time.Duration `mapstructure:"idle_sleep"`
	ErrorPause      time.Duration `mapstructure:"error_pause"`
	CaptureBackoff  time.Duration `mapstructure:"capture_backoff"`
	PreviewInterval time.Duration `mapstructure:"preview_interval"`
	SummaryInterval time.Duration `mapstructure:"summary_interval"`
	HeartbeatEvery  int           `mapstructure:"heartbeat_every"`
}

// Распознавание
type OCRConfig struct {
	Engine     string   `mapstructure:"engine"` // tesseract | exec
	Languages  []string `mapstructure:"languages"`
	Level      string   `mapstructure:"level"`
	Whitelist  string   `mapstructure:"whitelist"`
	Executable string   `mapstructure:"executable"`
	Args       []string `mapstructure:"args"`
	Upscale    float64  `mapstructure:"upscale"`
	Padding    int      `mapstructure:"padding"`
}

// HID-эмулятор
type ArduinoConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	AckTimeout  time.Duration `mapstructure:"ack_timeout"`
	MarginX     int           `mapstructure:"margin_x"`
	MarginY     int           `mapstructure:"margin_y"`
}

type LedgerConfig struct {
	Path     string `mapstructure:"path"`
	Capacity int    `mapstructure:"capacity"`
}

// Зеркало истории в SQL; пустой DSN отключает
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mysql | postgres
	DSN    string `mapstructure:"dsn"`
}

type TelemetryConfig struct {
	ListenAddr   string `mapstructure:"listen_addr"`
	PreviewWidth int    `mapstructure:"preview_width"`
	JPEGQuality  int    `mapstructure:"jpeg_quality"`
	Buffer       int    `mapstructure:"buffer"`
}

// Основная структура конфигурации
type Config struct {
	TargetWindow    string          `mapstructure:"target_window"`
	OCRRegion       screenshot.Rect `mapstructure:"ocr_region"`
	WindowTopOffset int             `mapstructure:"window_top_offset"`
	GlobalActionKey string          `mapstructure:"global_action_key"`
	HoldDuration    float64         `mapstructure:"hold_duration"` // секунды
	HoldStdDev      float64         `mapstructure:"hold_stddev"`
	HoldFloor       float64         `mapstructure:"hold_floor"`
	DryRun          bool            `mapstructure:"dry_run"`
	LogFilePath     string          `mapstructure:"log_file_path"`
	LogLevel        string          `mapstructure:"log_level"`
	Rules           []RuleConfig    `mapstructure:"rules"`
	Matcher         MatcherConfig   `mapstructure:"matcher"`
	Pacing          Pacing          `mapstructure:"pacing"`
	OCR             OCRConfig       `mapstructure:"ocr"`
	Arduino         ArduinoConfig   `mapstructure:"arduino"`
	Ledger          LedgerConfig    `mapstructure:"ledger"`
	Database        DatabaseConfig  `mapstructure:"database"`
	Telemetry       TelemetryConfig `mapstructure:"telemetry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target_window", "")
	v.SetDefault("ocr_region", map[string]any{"x": 0, "y": 0, "width": 0, "height": 0})
	v.SetDefault("window_top_offset", 0)
	v.SetDefault("global_action_key", "e")
	v.SetDefault("hold_duration", 1.2)
	v.SetDefault("hold_stddev", 0.1)
	v.SetDefault("hold_floor", 0.5)
	v.SetDefault("dry_run", false)
	v.SetDefault("log_file_path", "logs/sniper.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("rules", []any{})

	v.SetDefault("matcher.vertical_threshold", 50.0)
	v.SetDefault("matcher.horizontal_threshold", 600.0)

	v.SetDefault("pacing.cycle_interval", "33ms")
	v.SetDefault("pacing.idle_sleep", "10ms")
	v.SetDefault("pacing.error_pause", "1s")
	v.SetDefault("pacing.capture_backoff", "1s")
	v.SetDefault("pacing.preview_interval", "100ms")
	v.SetDefault("pacing.summary_interval", "1s")
	v.SetDefault("pacing.heartbeat_every", 100)

	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.level", "line")
	v.SetDefault("ocr.whitelist", "")
	v.SetDefault("ocr.executable", "")
	v.SetDefault("ocr.args", []string{})
	v.SetDefault("ocr.upscale", 2.0)
	v.SetDefault("ocr.padding", 10)

	v.SetDefault("arduino.enabled", false)
	v.SetDefault("arduino.port", "COM3")
	v.SetDefault("arduino.baud_rate", 9600)
	v.SetDefault("arduino.read_timeout", "100ms")
	v.SetDefault("arduino.ack_timeout", "2s")
	v.SetDefault("arduino.margin_x", 0)
	v.SetDefault("arduino.margin_y", 0)

	v.SetDefault("ledger.path", "ledger.json")
	v.SetDefault("ledger.capacity", 1000)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")

	v.SetDefault("telemetry.listen_addr", "")
	v.SetDefault("telemetry.preview_width", 800)
	v.SetDefault("telemetry.jpeg_quality", 60)
	v.SetDefault("telemetry.buffer", 64)
}

// флаги командной строки, которые перекрывают ключи конфига
var flagKeys = map[string]string{
	"dry-run":   "dry_run",
	"log-level": "log_level",
	"listen":    "telemetry.listen_addr",
	"window":    "target_window",
	"ledger":    "ledger.path",
}

// RegisterFlags объявляет общие флаги утилит
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "путь к config.yaml")
	fs.Bool("dry-run", false, "не нажимать клавиши, только логировать")
	fs.String("log-level", "", "debug | info | warn | error")
	fs.String("listen", "", "адрес websocket телеметрии, например :8090")
	fs.String("window", "", "заголовок окна для поиска области захвата")
	fs.String("ledger", "", "путь к файлу истории")
}

// Loader собирает конфиг из всех источников. Приоритет: встроенный конфиг
// команды start, флаги, окружение, файл, значения по умолчанию.
type Loader struct {
	Path   string
	Flags  *pflag.FlagSet
	Logger *logger.LoggerManager
}

// NewLoader создает загрузчик; путь берется из флага --config, если он задан
func NewLoader(flags *pflag.FlagSet, loggerManager *logger.LoggerManager) *Loader {
	l := &Loader{Flags: flags, Logger: loggerManager}
	if flags != nil {
		if p, err := flags.GetString("config"); err == nil {
			l.Path = p
		}
	}
	if l.Logger == nil {
		l.Logger = logger.Discard()
	}
	return l
}

func (l *Loader) newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.Path != "" {
		v.SetConfigFile(l.Path)
	} else {
		v.SetConfigName("config") // Имя конфигурационного файла без расширения
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if l.Flags != nil {
		for name, key := range flagKeys {
			if f := l.Flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}
	return v
}

// readFile читает файл. Отсутствующий файл не ошибка; поврежденный
// логируется, и используются значения по умолчанию.
func (l *Loader) readFile(v *viper.Viper) {
	err := v.ReadInConfig()
	if err == nil {
		l.Logger.Info("⚙️ конфиг загружен: %s", v.ConfigFileUsed())
		return
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		l.Logger.Warn("⚠️ конфиг не найден, используются значения по умолчанию")
		return
	}
	l.Logger.Warn("⚠️ конфиг поврежден, используются значения по умолчанию: %v", err)
}

// Load читает конфиг и применяет overrides (встроенный конфиг команды start)
func (l *Loader) Load(overrides map[string]any) (*Config, error) {
	v := l.newViper()
	l.readFile(v)
	applyOverrides(v, "", overrides)
	return decode(v)
}

// applyOverrides раскладывает вложенные карты в ключи через точку.
// Set, в отличие от MergeConfigMap, не отбрасывает значения другого типа
// (1 в файле и 0.8 в JSON).
func applyOverrides(v *viper.Viper, prefix string, overrides map[string]any) {
	for k, val := range overrides {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok && len(nested) > 0 {
			applyOverrides(v, key, nested)
			continue
		}
		if val == nil {
			continue
		}
		v.Set(key, val)
	}
}

// Load загружает конфиг из path без флагов
func Load(path string, overrides map[string]any) (*Config, error) {
	return (&Loader{Path: path}).withDefaults().Load(overrides)
}

func (l *Loader) withDefaults() *Loader {
	if l.Logger == nil {
		l.Logger = logger.Discard()
	}
	return l
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	// без StringToSlice: запятая внутри ключевого слова не должна его разрезать
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("ошибка декодирования конфига: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые сломают цикл
func (c *Config) Validate() error {
	var errs []error
	if c.Matcher.VerticalThreshold <= 0 || c.Matcher.HorizontalThreshold <= 0 {
		errs = append(errs, errors.New("matcher thresholds must be positive"))
	}
	if c.Pacing.CycleInterval < 0 || c.Pacing.IdleSleep <= 0 || c.Pacing.ErrorPause < 0 || c.Pacing.CaptureBackoff < 0 {
		errs = append(errs, errors.New("pacing intervals must not be negative, idle_sleep must be positive"))
	}
	if c.HoldDuration <= 0 || c.HoldStdDev < 0 || c.HoldFloor < 0 {
		errs = append(errs, errors.New("hold_duration must be positive, hold_stddev and hold_floor not negative"))
	}
	if c.Ledger.Capacity <= 0 || c.Ledger.Capacity > ledger.DefaultCapacity {
		errs = append(errs, fmt.Errorf("ledger.capacity must be in 1..%d", ledger.DefaultCapacity))
	}
	if c.Arduino.Enabled && (c.Arduino.ReadTimeout <= 0 || c.Arduino.AckTimeout <= 0) {
		errs = append(errs, errors.New("arduino.read_timeout and arduino.ack_timeout must be positive"))
	}
	switch c.OCR.Engine {
	case "tesseract":
	case "exec":
		if c.OCR.Executable == "" {
			errs = append(errs, errors.New("ocr.executable is required for the exec engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ocr.engine %q", c.OCR.Engine))
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if _, err := c.BuildRules(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BuildRules переводит правила конфига в нормализованные rules.Rule
func (c *Config) BuildRules() ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(c.Rules))
	for i, rc := range c.Rules {
		r := rules.Rule{
			ID:        rc.ID,
			Keywords:  append([]string(nil), rc.TriggerText...),
			Min:       rc.MinValue,
			Max:       rc.MaxValue,
			Cooldown:  rules.DefaultCooldown,
			ActionKey: strings.TrimSpace(rc.ActionKey),
		}
		if rc.Cooldown != nil {
			r.Cooldown = seconds(*rc.Cooldown)
		}
		if err := r.Normalize(); err != nil {
			return nil, fmt.Errorf("rule #%d (%s): %w", i+1, rc.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Thresholds пороги сопоставителя
func (c *Config) Thresholds() rules.Thresholds {
	return rules.Thresholds{Vertical: c.Matcher.VerticalThreshold, Horizontal: c.Matcher.HorizontalThreshold}
}

// ManualRegion ручная область захвата или nil
func (c *Config) ManualRegion() *screenshot.Rect {
	if c.OCRRegion.Empty() {
		return nil
	}
	r := c.OCRRegion
	return &r
}

// Hold параметры удержания клавиши
func (c *Config) Hold() (base, stddev, floor time.Duration) {
	return seconds(c.HoldDuration), seconds(c.HoldStdDev), seconds(c.HoldFloor)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
