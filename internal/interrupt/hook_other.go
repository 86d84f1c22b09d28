//go:build !windows

package interrupt

// monitorHotkeys глобальный хук есть только на Windows
func (im *InterruptManager) monitorHotkeys() {
	im.loggerManager.Warn("⚠️ глобальные горячие клавиши недоступны на этой платформе, используйте --stdio")
}
