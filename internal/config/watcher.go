package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher следит за файлом конфига и хранит последнюю корректную версию.
// Запущенная сессия не меняется: новый конфиг берется при следующем start.
type Watcher struct {
	loader *Loader

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
}

// Watch загружает конфиг и подписывается на изменения файла
func (l *Loader) Watch() (*Watcher, error) {
	v := l.newViper()
	l.readFile(v)
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	w := &Watcher{loader: l, current: cfg}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			l.Logger.Warn("⚠️ конфиг %s изменен, но невалиден, оставляем прежний: %v", e.Name, err)
			return
		}
		w.mu.Lock()
		w.current = next
		callbacks := append([]func(*Config){}, w.onChange...)
		w.mu.Unlock()

		l.Logger.Info("🔄 конфиг перечитан: %s", e.Name)
		for _, fn := range callbacks {
			fn(next)
		}
	})
	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
	}
	return w, nil
}

// Current последний корректный конфиг
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange подписка на успешную перезагрузку
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.onChange = append(w.onChange, fn)
	w.mu.Unlock()
}
