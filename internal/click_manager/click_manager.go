// Package click_manager реализует устройство ввода для исполнителя срабатываний.
package click_manager

import (
	"context"
	"image"
	"time"

	"sniper/internal/logger"
)

// Device низкоуровневое устройство (arduino.Controller)
type Device interface {
	HoldKey(ctx context.Context, key string, d time.Duration) error
	ClickCoordinates(x, y int) error
}

// ClickManager управляет нажатиями и кликами через устройство
type ClickManager struct {
	device  Device
	marginX int
	marginY int
	logger  *logger.LoggerManager
}

// NewClickManager создает новый экземпляр ClickManager.
// marginX/marginY сдвигают клики, если координаты экрана и устройства расходятся.
func NewClickManager(device Device, marginX, marginY int, loggerManager *logger.LoggerManager) *ClickManager {
	return &ClickManager{
		device:  device,
		marginX: marginX,
		marginY: marginY,
		logger:  loggerManager,
	}
}

// PressKey держит клавишу заданное время
func (m *ClickManager) PressKey(ctx context.Context, key string, d time.Duration) error {
	m.logger.Debug("⌨️ %s на %s", key, d)
	return m.device.HoldKey(ctx, key, d)
}

// Click выполняет клик по указанным координатам с учетом отступов
func (m *ClickManager) Click(_ context.Context, x, y int) error {
	final := image.Point{X: m.marginX + x, Y: m.marginY + y}
	m.logger.Debug("🖱️ клик %v", final)
	return m.device.ClickCoordinates(final.X, final.Y)
}

// DryRun устройство, которое только пишет в лог. Используется без Arduino.
type DryRun struct {
	logger *logger.LoggerManager
	sleep  bool
}

// NewDryRun создает пустое устройство. hold=true имитирует время удержания.
func NewDryRun(loggerManager *logger.LoggerManager, hold bool) *DryRun {
	return &DryRun{logger: loggerManager, sleep: hold}
}

// PressKey пишет нажатие в лог
func (d *DryRun) PressKey(ctx context.Context, key string, hold time.Duration) error {
	d.logger.Info("🧪 [dry-run] удержание %s: %s", key, hold)
	if !d.sleep {
		return nil
	}
	t := time.NewTimer(hold)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return nil
}

// Click пишет клик в лог
func (d *DryRun) Click(_ context.Context, x, y int) error {
	d.logger.Info("🧪 [dry-run] клик (%d, %d)", x, y)
	return nil
}
