//go:build windows

package interrupt

import (
	"github.com/moutend/go-hook/pkg/keyboard"
	"github.com/moutend/go-hook/pkg/types"
)

// monitorHotkeys мониторит горячие клавиши через низкоуровневый хук
func (im *InterruptManager) monitorHotkeys() {
	eventChan := make(chan types.KeyboardEvent, 100)
	if err := keyboard.Install(nil, eventChan); err != nil {
		im.loggerManager.LogError(err, "Ошибка установки хука клавиатуры")
		return
	}
	defer keyboard.Uninstall()

	h := &hotkeys{}
	for event := range eventChan {
		var ev keyEvent
		switch event.Message {
		case types.WM_KEYDOWN:
			ev.down = true
		case types.WM_KEYUP:
		default:
			continue
		}
		switch event.VKCode {
		case types.VK_LSHIFT, types.VK_RSHIFT:
			ev.key = keyShift
		case types.VK_RETURN:
			ev.key = keyEnter
		case types.VK_Q, types.VK_CAPITAL:
			ev.key = keyStop
		default:
			continue
		}
		im.handle(h, ev)
	}
}
