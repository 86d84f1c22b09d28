// Package database зеркалит историю срабатываний в MySQL или PostgreSQL
// и читает ее для веб-просмотра.
package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"sniper/internal/ledger"
	"sniper/internal/logger"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Open открывает соединение и проверяет его
func Open(driver, dsn string) (*sql.DB, error) {
	if driver != DriverMySQL && driver != DriverPostgres {
		return nil, fmt.Errorf("неизвестный драйвер БД: %s", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки подключения к БД: %w", err)
	}
	return db, nil
}

// SchemaSQL DDL таблицы transactions для драйвера
func SchemaSQL(driver string) string {
	if driver == DriverPostgres {
		return `CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(36) PRIMARY KEY,
		rule_id VARCHAR(255),
		item VARCHAR(255) NOT NULL,
		price DOUBLE PRECISION,
		confidence DOUBLE PRECISION,
		ts DOUBLE PRECISION NOT NULL,
		date_str VARCHAR(32) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	}
	return `CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(36) PRIMARY KEY,
		rule_id VARCHAR(255),
		item VARCHAR(255) NOT NULL,
		price DOUBLE,
		confidence DOUBLE,
		ts DOUBLE NOT NULL,
		date_str VARCHAR(32) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_transactions_ts (ts)
	)`
}

// rebind заменяет ? на $1, $2... для postgres
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DatabaseManager содержит функции для работы с базой данных
type DatabaseManager struct {
	db     *sql.DB
	driver string
	logger *logger.LoggerManager
	wg     sync.WaitGroup // для ожидания завершения асинхронных операций
}

// NewDatabaseManager создает новый экземпляр DatabaseManager
func NewDatabaseManager(db *sql.DB, driver string, loggerManager *logger.LoggerManager) *DatabaseManager {
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	return &DatabaseManager{db: db, driver: driver, logger: loggerManager}
}

// EnsureSchema создает таблицу, если она не существует
func (h *DatabaseManager) EnsureSchema() error {
	if _, err := h.db.Exec(SchemaSQL(h.driver)); err != nil {
		return fmt.Errorf("ошибка создания таблицы transactions: %w", err)
	}
	return nil
}

const insertColumns = `INSERT INTO transactions (id, rule_id, item, price, confidence, ts, date_str) VALUES (?, ?, ?, ?, ?, ?, ?)`

// InsertEntry синхронно сохраняет запись
func (h *DatabaseManager) InsertEntry(e ledger.Entry) error {
	query := rebind(h.driver, insertColumns)
	if _, err := h.db.Exec(query, e.ID, e.RuleID, e.Item, e.Price, e.Confidence, e.Timestamp, e.DateStr); err != nil {
		return fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return nil
}

// SaveEntry реализует ledger.Mirror: вставка идет в фоне, цикл распознавания не ждет БД
func (h *DatabaseManager) SaveEntry(e ledger.Entry) error {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.InsertEntry(e); err != nil {
			h.logger.LogError(err, "Ошибка асинхронного сохранения записи")
			return
		}
		h.logger.Debug("✅ запись %s сохранена в БД", e.ID)
	}()
	return nil
}

// WaitForAsyncOperations ожидает завершения всех асинхронных операций сохранения
func (h *DatabaseManager) WaitForAsyncOperations() {
	h.logger.Info("⏳ Ожидаем завершения асинхронных операций сохранения...")
	h.wg.Wait()
	h.logger.Info("✅ Все асинхронные операции сохранения завершены")
}
