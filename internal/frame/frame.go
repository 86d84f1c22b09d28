// Package frame содержит кадр экрана и однослотовую ячейку для передачи
// последнего кадра от потока захвата к потоку распознавания.
package frame

import (
	"image"
	"sync"
	"time"
)

// Frame один захваченный кадр. После записи в Cell не изменяется.
type Frame struct {
	Image      *image.RGBA
	Seq        uint64
	CapturedAt time.Time
}

// Width ширина кадра в пикселях
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height высота кадра в пикселях
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// Clone возвращает глубокую копию кадра
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{Seq: f.Seq, CapturedAt: f.CapturedAt}
	if f.Image != nil {
		img := &image.RGBA{
			Pix:    make([]uint8, len(f.Image.Pix)),
			Stride: f.Image.Stride,
			Rect:   f.Image.Rect,
		}
		copy(img.Pix, f.Image.Pix)
		out.Image = img
	}
	return out
}

// CellStats снимок счетчиков ячейки
type CellStats struct {
	Writes     uint64
	Reads      uint64
	Overwrites uint64 // кадры, перезаписанные до того как их прочитали
}

// Cell однослотовый почтовый ящик: запись всегда перезаписывает кадр,
// чтение возвращает копию. Очереди нет, писатель никогда не ждет читателя.
type Cell struct {
	mu     sync.Mutex
	frame  *Frame
	unread bool
	seq    uint64
	stats  CellStats
}

// NewCell создает пустую ячейку
func NewCell() *Cell {
	return &Cell{}
}

// Write заменяет текущий кадр. O(1), под мьютексом только присваивание.
func (c *Cell) Write(img *image.RGBA, capturedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if c.unread {
		c.stats.Overwrites++
	}
	c.frame = &Frame{Image: img, Seq: c.seq, CapturedAt: capturedAt}
	c.unread = true
	c.stats.Writes++
}

// ReadCopy возвращает собственную копию последнего кадра.
// false означает, что кадров еще не было.
func (c *Cell) ReadCopy() (*Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frame == nil {
		return nil, false
	}
	c.unread = false
	c.stats.Reads++
	return c.frame.Clone(), true
}

// Stats возвращает снимок счетчиков
func (c *Cell) Stats() CellStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
