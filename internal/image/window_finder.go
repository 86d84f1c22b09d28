// Package image поиск окна на снимке экрана.
package image

import (
	"errors"
	"image"
)

// ErrWindowNotFound на снимке нет ни одного не черного пикселя
var ErrWindowNotFound = errors.New("window not found")

// blackLevel яркость канала, ниже которой пиксель считается рамкой
const blackLevel = 10

func isBlack(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return r>>8 < blackLevel && g>>8 < blackLevel && b>>8 < blackLevel
}

// FindWindow ищет первую не черную точку, затем расширяет прямоугольник
// до черной границы по строке и столбцу этой точки. topOffset пропускает
// верхние строки снимка (панель задач, заголовок).
// Результат в координатах img.
func FindWindow(img image.Image, topOffset int) (image.Rectangle, error) {
	b := img.Bounds()
	minY := b.Min.Y + topOffset

	// 1. Первая не черная точка
	found := false
	var startX, startY int
	for y := minY; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !isBlack(img, x, y) {
				startX, startY = x, y
				found = true
				break
			}
		}
	}
	if !found {
		return image.Rectangle{}, ErrWindowNotFound
	}

	// 2. Расширяем до границ окна
	left, right := startX, startX
	top, bottom := startY, startY
	for x := startX; x < b.Max.X && !isBlack(img, x, startY); x++ {
		right = x
	}
	for x := startX; x >= b.Min.X && !isBlack(img, x, startY); x-- {
		left = x
	}
	for y := startY; y < b.Max.Y && !isBlack(img, startX, y); y++ {
		bottom = y
	}
	for y := startY; y >= minY && !isBlack(img, startX, y); y-- {
		top = y
	}

	return image.Rect(left, top, right+1, bottom+1), nil
}
