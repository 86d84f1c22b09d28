// Package screenshot захват области экрана и определение этой области.
package screenshot

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/kbinani/screenshot"

	imageInternal "sniper/internal/image"
)

// ErrRegionNotFound область захвата не удалось определить
var ErrRegionNotFound = errors.New("capture region not found")

// Rect область экрана в конфиге
type Rect struct {
	X      int `mapstructure:"x" json:"x"`
	Y      int `mapstructure:"y" json:"y"`
	Width  int `mapstructure:"width" json:"width"`
	Height int `mapstructure:"height" json:"height"`
}

// Empty true если ширина или высота не заданы
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Rectangle область как image.Rectangle
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Display доступ к мониторам. По умолчанию kbinani/screenshot.
type Display interface {
	NumActiveDisplays() int
	GetDisplayBounds(i int) image.Rectangle
	CaptureRect(r image.Rectangle) (*image.RGBA, error)
}

type systemDisplay struct{}

func (systemDisplay) NumActiveDisplays() int                 { return screenshot.NumActiveDisplays() }
func (systemDisplay) GetDisplayBounds(i int) image.Rectangle { return screenshot.GetDisplayBounds(i) }
func (systemDisplay) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(r)
}

// SystemDisplay мониторы текущей системы
func SystemDisplay() Display { return systemDisplay{} }

// Scanner определяет область захвата. Вызывается один раз до старта циклов,
// не одновременно с активным захватом.
type Scanner struct {
	Display   Display
	TopOffset int
}

// NewScanner создает сканер для системных мониторов
func NewScanner(topOffset int) *Scanner {
	return &Scanner{Display: SystemDisplay(), TopOffset: topOffset}
}

// ScanRegion: ручная область, если задана; иначе при заданном имени окна
// ищется окно на основном мониторе; иначе весь основной монитор.
func (s *Scanner) ScanRegion(windowName string, manual *Rect) (image.Rectangle, error) {
	if manual != nil && !manual.Empty() {
		return manual.Rectangle(), nil
	}
	if s.Display.NumActiveDisplays() == 0 {
		return image.Rectangle{}, fmt.Errorf("%w: no active displays", ErrRegionNotFound)
	}
	primary := s.Display.GetDisplayBounds(0)
	if primary.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: primary display has empty bounds", ErrRegionNotFound)
	}

	if windowName != "" {
		full, err := s.Display.CaptureRect(primary)
		if err == nil {
			win, ferr := imageInternal.FindWindow(full, s.TopOffset)
			if ferr == nil {
				// снимок начинается с (0,0), окно переводится в координаты экрана
				return win.Add(primary.Min).Sub(full.Bounds().Min), nil
			}
		}
	}
	return primary, nil
}

// Capturer захватывает фиксированную область. Grab вызывается
// только из горутины производителя.
type Capturer struct {
	mu      sync.Mutex
	display Display
	rect    image.Rectangle
}

// NewCapturer создает захватчик для области rect
func NewCapturer(display Display, rect image.Rectangle) *Capturer {
	if display == nil {
		display = SystemDisplay()
	}
	return &Capturer{display: display, rect: rect}
}

// Rect область захвата
func (c *Capturer) Rect() image.Rectangle { return c.rect }

// Grab захватывает кадр. Возвращаемое изображение принадлежит вызывающему.
func (c *Capturer) Grab() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, err := c.display.CaptureRect(c.rect)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return img, nil
}
