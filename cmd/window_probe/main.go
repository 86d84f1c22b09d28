package main

import (
	"fmt"
	"image/png"
	"log"
	"os"

	"github.com/spf13/pflag"

	"sniper/internal/config"
	"sniper/internal/logger"
	"sniper/internal/screenshot"
)

// Проверка области захвата на реальном экране: та же логика, что у start,
// плюс снимок найденной области в PNG.
func main() {
	fs := pflag.NewFlagSet("window_probe", pflag.ExitOnError)
	config.RegisterFlags(fs)
	out := fs.StringP("out", "o", "debug_region.png", "куда сохранить снимок области")
	_ = fs.Parse(os.Args[1:])

	loggerManager := logger.NewConsoleLogger(os.Stderr)
	c, err := config.NewLoader(fs, loggerManager).Load(nil)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	scanner := screenshot.NewScanner(c.WindowTopOffset)
	region, err := scanner.ScanRegion(c.TargetWindow, c.ManualRegion())
	if err != nil {
		fmt.Printf("Ошибка поиска окна: %v\n", err)
		os.Exit(1)
	}

	switch {
	case c.ManualRegion() != nil:
		fmt.Println("Источник: ocr_region из конфига")
	case c.TargetWindow != "":
		fmt.Printf("Источник: поиск окна %q (если окно не найдено, берется весь монитор)\n", c.TargetWindow)
	default:
		fmt.Println("Источник: основной монитор")
	}
	fmt.Printf("Координаты: X=%d, Y=%d\n", region.Min.X, region.Min.Y)
	fmt.Printf("Размеры: Width=%d, Height=%d\n", region.Dx(), region.Dy())

	img, err := screenshot.NewCapturer(screenshot.SystemDisplay(), region).Grab()
	if err != nil {
		log.Fatalf("Ошибка захвата: %v", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Снимок области сохранен как %s\n", *out)
}
