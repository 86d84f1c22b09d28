package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

const (
	jsonStartMarker = "=== JSON START ==="
	jsonEndMarker   = "=== JSON END ==="
)

// ErrNoJSON вывод движка не содержит JSON с регионами
var ErrNoJSON = errors.New("ocr output contains no json")

// ExecRecognizer запускает внешний OCR-процесс на каждый кадр.
// Кадр передается через временный PNG, результат читается из stdout.
type ExecRecognizer struct {
	Executable string
	Args       []string
	TempDir    string
}

// NewExecRecognizer создает адаптер внешнего движка
func NewExecRecognizer(executable string, args ...string) *ExecRecognizer {
	return &ExecRecognizer{Executable: executable, Args: args}
}

// Recognize сохраняет кадр во временный файл и запускает движок
func (e *ExecRecognizer) Recognize(ctx context.Context, img image.Image) ([]Region, error) {
	if e.Executable == "" {
		return nil, errors.New("ocr executable is not configured")
	}

	f, err := os.CreateTemp(e.TempDir, "sniper-frame-*.png")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка кодирования кадра: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	args := append(append([]string{}, e.Args...), path)
	cmd := exec.CommandContext(ctx, e.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ошибка при выполнении OCR: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseOutput(string(out))
}

// регионы иногда склеены без запятой: `} {"text":`
var missingComma = regexp.MustCompile(`(\}\s*)(\{\s*"text"\s*:)`)

// ExtractJSON вырезает JSON из вывода движка: сначала между маркерами,
// иначе от первой открывающей скобки до последней закрывающей.
func ExtractJSON(output string) (string, bool) {
	start := strings.Index(output, jsonStartMarker)
	end := strings.Index(output, jsonEndMarker)
	if start != -1 && end > start {
		data := strings.TrimSpace(output[start+len(jsonStartMarker) : end])
		return missingComma.ReplaceAllString(data, "$1,$2"), data != ""
	}

	open := strings.IndexAny(output, "[{")
	if open == -1 {
		return "", false
	}
	closer := "}"
	if output[open] == '[' {
		closer = "]"
	}
	last := strings.LastIndex(output, closer)
	if last <= open {
		return "", false
	}
	data := strings.TrimSpace(output[open : last+1])
	return missingComma.ReplaceAllString(data, "$1,$2"), true
}

// ParseOutput разбирает вывод движка. Поддерживается массив регионов
// или объект с полем "regions" (либо "results").
func ParseOutput(output string) ([]Region, error) {
	data, ok := ExtractJSON(output)
	if !ok {
		return nil, ErrNoJSON
	}

	var regions []Region
	if strings.HasPrefix(data, "[") {
		if err := json.Unmarshal([]byte(data), &regions); err != nil {
			return nil, fmt.Errorf("ошибка парсинга JSON: %w", err)
		}
	} else {
		var wrapped struct {
			Regions []Region `json:"regions"`
			Results []Region `json:"results"`
		}
		if err := json.Unmarshal([]byte(data), &wrapped); err != nil {
			return nil, fmt.Errorf("ошибка парсинга JSON: %w", err)
		}
		regions = wrapped.Regions
		if regions == nil {
			regions = wrapped.Results
		}
	}

	out := regions[:0]
	for _, r := range regions {
		r.Text = strings.TrimSpace(r.Text)
		if r.Text == "" {
			continue
		}
		r.Confidence = normalizeConfidence(r.Confidence)
		out = append(out, r)
	}
	return out, nil
}
