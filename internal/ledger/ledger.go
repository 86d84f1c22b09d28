// Package ledger ведет историю срабатываний: новые записи первыми,
// не больше Capacity, весь список перезаписывается в JSON-файл атомарно.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"sniper/internal/logger"
)

// DefaultCapacity максимальное число записей в истории
const DefaultCapacity = 1000

// DateLayout формат поля date_str
const DateLayout = "2006-01-02 15:04:05"

// Entry одна запись истории. После записи не изменяется.
type Entry struct {
	ID         string   `json:"id"`
	Timestamp  float64  `json:"timestamp"`
	Item       string   `json:"item"`
	Price      *float64 `json:"price"`
	Confidence *float64 `json:"confidence"`
	DateStr    string   `json:"date_str"`
	RuleID     string   `json:"rule_id,omitempty"`
}

// NewEntry создает запись на момент now
func NewEntry(item string, price, confidence *float64, ruleID string, now time.Time) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Timestamp:  float64(now.UnixNano()) / float64(time.Second),
		Item:       item,
		Price:      price,
		Confidence: confidence,
		DateStr:    now.Format(DateLayout),
		RuleID:     ruleID,
	}
}

// Time время записи
func (e Entry) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Mirror дополнительное хранилище записей (например, SQL)
type Mirror interface {
	SaveEntry(e Entry) error
}

// Ledger история срабатываний
type Ledger struct {
	mu       sync.RWMutex
	path     string
	capacity int
	entries  []Entry
	mirror   Mirror
	logger   *logger.LoggerManager
}

// Open загружает историю из path. Отсутствующий или поврежденный файл
// дает пустую историю, ошибка только логируется.
// Емкость вне 1..DefaultCapacity заменяется на DefaultCapacity.
func Open(path string, capacity int, loggerManager *logger.LoggerManager) *Ledger {
	if capacity <= 0 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	l := &Ledger{path: path, capacity: capacity, logger: loggerManager}

	entries, err := Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Debug("📒 файл истории %s не найден, начинаем с пустой", path)
	case err != nil:
		l.logger.Warn("⚠️ история %s повреждена, начинаем с пустой: %v", path, err)
	default:
		if len(entries) > capacity {
			entries = entries[:capacity]
		}
		l.entries = entries
		l.logger.Info("📒 загружено %d записей истории", len(entries))
	}
	return l
}

// Load читает историю из файла
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("ошибка парсинга истории: %w", err)
	}
	return entries, nil
}

// SetMirror подключает дополнительное хранилище
func (l *Ledger) SetMirror(m Mirror) {
	l.mu.Lock()
	l.mirror = m
	l.mu.Unlock()
}

// Record добавляет запись в начало, обрезает до Capacity и сохраняет файл.
// Ошибки сохранения логируются и не возвращаются.
func (l *Ledger) Record(e Entry) {
	l.mu.Lock()
	next := make([]Entry, 0, min(len(l.entries)+1, l.capacity))
	next = append(next, e)
	rest := l.entries
	if len(rest) > l.capacity-1 {
		rest = rest[:l.capacity-1]
	}
	l.entries = append(next, rest...)
	err := l.persist(l.entries)
	mirror := l.mirror
	l.mu.Unlock()

	if err != nil {
		l.logger.LogError(err, "❌ ошибка сохранения истории")
	}
	if mirror != nil {
		if err := mirror.SaveEntry(e); err != nil {
			l.logger.LogError(err, "❌ ошибка зеркалирования записи")
		}
	}
}

// Entries копия истории, новые записи первыми
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len число записей
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Path путь к файлу истории
func (l *Ledger) Path() string { return l.path }

// persist пишет во временный файл рядом и переименовывает поверх
func (l *Ledger) persist(entries []Entry) error {
	if l.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации истории: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ошибка создания директории истории: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ошибка записи истории: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ошибка замены файла истории: %w", err)
	}
	return nil
}
