// Package arduino управляет HID-эмулятором на Arduino по последовательному порту.
// Каждая команда подтверждается строкой "received".
package arduino

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Controller последовательный доступ к порту: команда, затем ожидание ответа
type Controller struct {
	mu      sync.Mutex
	port    io.ReadWriter
	ackWait time.Duration
}

// NewController создает контроллер поверх открытого порта
func NewController(port io.ReadWriter, ackWait time.Duration) *Controller {
	if ackWait <= 0 {
		ackWait = 2 * time.Second
	}
	return &Controller{port: port, ackWait: ackWait}
}

// processAndWait отправляет команду и ждет подтверждения
func (c *Controller) processAndWait(send func(io.Writer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := send(c.port); err != nil {
		return err
	}
	if _, err := WaitForArduinoResponse(c.port, AckResponse, c.ackWait); err != nil {
		return fmt.Errorf("error waiting for Arduino response: %w", err)
	}
	return nil
}

// HoldKey держит клавишу d. Клавиша отпускается и при отмене ctx.
func (c *Controller) HoldKey(ctx context.Context, key string, d time.Duration) error {
	if err := c.processAndWait(func(w io.Writer) error { return SendKeyDownToArduino(w, key) }); err != nil {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	return c.processAndWait(func(w io.Writer) error { return SendKeyUpToArduino(w, key) })
}

// ClickCoordinates кликает по абсолютным координатам экрана
func (c *Controller) ClickCoordinates(x, y int) error {
	return c.processAndWait(func(w io.Writer) error { return SendCoordinatesToArduino(w, x, y) })
}
