package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"sniper/internal/app/recognizers"
	"sniper/internal/config"
	"sniper/internal/logger"
	"sniper/internal/ocr"
	"sniper/internal/rules"
	"sniper/internal/trigger"
)

// report результат по одному файлу
type report struct {
	File    string       `json:"file"`
	Regions []ocr.Region `json:"regions"`
	Fired   string       `json:"fired,omitempty"`
	RuleID  string       `json:"rule_id,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func main() {
	fs := pflag.NewFlagSet("ocr_runner", pflag.ExitOnError)
	config.RegisterFlags(fs)
	debugMode := fs.Bool("debug", false, "подробный лог")
	_ = fs.Parse(os.Args[1:])

	// 1. Проверяем, передан ли хотя бы один путь к файлу.
	if fs.NArg() == 0 {
		log.Fatalf("Пожалуйста, укажите один или несколько путей к файлам скриншотов. Пример: go run ./cmd/ocr_runner ./imgs/screenshot1.png ./imgs/screenshot2.png")
	}

	loggerManager := logger.NewConsoleLogger(os.Stderr)
	if !*debugMode {
		loggerManager.SetLevel(logger.INFO)
	}

	c, err := config.NewLoader(fs, loggerManager).Load(nil)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	ruleSet, err := c.BuildRules()
	if err != nil {
		log.Fatalf("Ошибка правил: %v", err)
	}

	// 2. Распознаватель из конфига (tesseract или внешний исполняемый файл).
	rec, closeRec, err := recognizers.New(c.OCR)
	if err != nil {
		log.Fatalf("Ошибка инициализации OCR: %v", err)
	}
	defer closeRec()

	loggerManager.Info("Запускаю OCR для %d файлов...", fs.NArg())

	// 3. Каждый файл проверяется отдельно, кулдауны не переносятся между файлами.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, fileArg := range fs.Args() {
		r := process(rec, ruleSet, c, fileArg)
		if r.Error != "" {
			loggerManager.Error("Ошибка при обработке '%s': %s", fileArg, r.Error)
		}
		if err := enc.Encode(r); err != nil {
			log.Fatalf("Ошибка вывода: %v", err)
		}
	}

	loggerManager.Info("Обработка завершена.")
}

func process(rec ocr.Recognizer, ruleSet []rules.Rule, c *config.Config, fileArg string) report {
	r := report{File: fileArg}
	path, err := filepath.Abs(fileArg)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	img, err := loadImage(path)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r.Regions, err = rec.Recognize(ctx, img)
	if err != nil {
		r.Error = err.Error()
		return r
	}

	engine := rules.NewEngine(ruleSet, c.Thresholds(), rules.NewCooldowns())
	if d, ok := engine.Evaluate(r.Regions, time.Now()); ok {
		r.Fired = trigger.Describe(d)
		r.RuleID = d.Rule.ID
	}
	return r
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("не удалось декодировать %s: %w", path, err)
	}
	return img, nil
}
