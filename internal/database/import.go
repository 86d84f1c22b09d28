package database

import (
	"fmt"

	"sniper/internal/ledger"
)

// importSQL вставка, пропускающая уже существующие id
func importSQL(driver string) string {
	if driver == DriverPostgres {
		return rebind(driver, insertColumns+" ON CONFLICT (id) DO NOTHING")
	}
	return "INSERT IGNORE" + insertColumns[len("INSERT"):]
}

// ImportEntries переносит записи файла истории одной транзакцией.
// Возвращает число реально добавленных строк.
func (h *DatabaseManager) ImportEntries(entries []ledger.Entry) (n int, err error) {
	if len(entries) == 0 {
		return 0, nil
	}

	// Начинаем транзакцию для batch обработки
	tx, err := h.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(importSQL(h.driver))
	if err != nil {
		return 0, fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		res, execErr := stmt.Exec(e.ID, e.RuleID, e.Item, e.Price, e.Confidence, e.Timestamp, e.DateStr)
		if execErr != nil {
			err = fmt.Errorf("ошибка вставки записи %s: %w", e.ID, execErr)
			return 0, err
		}
		if affected, aerr := res.RowsAffected(); aerr == nil {
			n += int(affected)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка подтверждения транзакции: %w", err)
	}
	h.logger.Info("✅ импортировано %d из %d записей истории", n, len(entries))
	return n, nil
}
