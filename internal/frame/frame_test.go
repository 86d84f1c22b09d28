package frame

import (
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestReadCopyBeforeWrite(t *testing.T) {
	c := NewCell()
	f, ok := c.ReadCopy()
	assert.False(t, ok)
	assert.Nil(t, f)
}

func TestWriteOverwritesLatest(t *testing.T) {
	c := NewCell()
	now := time.Now()
	c.Write(solid(2, 2, color.RGBA{R: 1, A: 255}), now)
	c.Write(solid(2, 2, color.RGBA{R: 2, A: 255}), now)
	c.Write(solid(2, 2, color.RGBA{R: 3, A: 255}), now)

	f, ok := c.ReadCopy()
	require.True(t, ok)
	assert.Equal(t, uint64(3), f.Seq)
	assert.Equal(t, uint8(3), f.Image.RGBAAt(0, 0).R)

	stats := c.Stats()
	assert.Equal(t, uint64(3), stats.Writes)
	assert.Equal(t, uint64(1), stats.Reads)
	assert.Equal(t, uint64(2), stats.Overwrites)
}

func TestReadCopyIsOwned(t *testing.T) {
	c := NewCell()
	src := solid(4, 3, color.RGBA{G: 10, A: 255})
	c.Write(src, time.Now())

	f, ok := c.ReadCopy()
	require.True(t, ok)
	assert.Equal(t, 4, f.Width())
	assert.Equal(t, 3, f.Height())

	// изменение копии не затрагивает ячейку и наоборот
	f.Image.SetRGBA(0, 0, color.RGBA{G: 99, A: 255})
	src.SetRGBA(1, 1, color.RGBA{G: 77, A: 255})

	again, ok := c.ReadCopy()
	require.True(t, ok)
	assert.Equal(t, uint8(10), again.Image.RGBAAt(0, 0).G)
	assert.Equal(t, uint8(10), f.Image.RGBAAt(1, 1).G)
}

func TestRepeatedReadWithoutWrite(t *testing.T) {
	c := NewCell()
	c.Write(solid(1, 1, color.RGBA{A: 255}), time.Now())

	_, ok := c.ReadCopy()
	require.True(t, ok)
	f, ok := c.ReadCopy()
	require.True(t, ok)
	assert.Equal(t, uint64(1), f.Seq, "stale frame is returned again")
	assert.Equal(t, uint64(0), c.Stats().Overwrites)
}

func TestConcurrentWriteRead(t *testing.T) {
	c := NewCell()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			v := uint8(i % 255)
			c.Write(solid(8, 8, color.RGBA{R: v, G: v, B: v, A: 255}), time.Now())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			f, ok := c.ReadCopy()
			if !ok {
				continue
			}
			// кадр никогда не бывает записан наполовину
			first := f.Image.RGBAAt(0, 0)
			last := f.Image.RGBAAt(7, 7)
			if first != last {
				t.Errorf("torn frame: %v vs %v", first, last)
				return
			}
		}
	}()
	wg.Wait()
}

func TestCloneNil(t *testing.T) {
	var f *Frame
	assert.Nil(t, f.Clone())
}
