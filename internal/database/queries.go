package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sniper/internal/ledger"
)

// buildListQuery собирает запрос выборки и подсчета по фильтру
func buildListQuery(driver string, f ledger.Filter) (list string, count string, args []any) {
	var where []string
	if f.Item != "" {
		where = append(where, "LOWER(item) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Item)+"%")
	}
	if f.MinPrice != nil {
		where = append(where, "price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "price <= ?")
		args = append(args, *f.MaxPrice)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	count = rebind(driver, "SELECT COUNT(*) FROM transactions"+cond)
	list = "SELECT id, COALESCE(rule_id, ''), item, price, confidence, ts, date_str FROM transactions" + cond + " ORDER BY ts DESC"
	if f.Limit > 0 {
		list += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, max(f.Offset, 0))
	}
	return rebind(driver, list), count, args
}

// ListEntries страница истории из БД, новые записи первыми, и общее число
func (h *DatabaseManager) ListEntries(ctx context.Context, f ledger.Filter) ([]ledger.Entry, int, error) {
	list, count, args := buildListQuery(h.driver, f)

	var total int
	if err := h.db.QueryRowContext(ctx, count, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета записей: %w", err)
	}

	rows, err := h.db.QueryContext(ctx, list, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки записей: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var price, conf sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.RuleID, &e.Item, &price, &conf, &e.Timestamp, &e.DateStr); err != nil {
			return nil, 0, fmt.Errorf("ошибка чтения записи: %w", err)
		}
		if price.Valid {
			e.Price = &price.Float64
		}
		if conf.Valid {
			e.Confidence = &conf.Float64
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Stats агрегаты истории для заголовка веб-просмотра
type Stats struct {
	Total    int
	Items    int
	AvgPrice sql.NullFloat64
}

// LoadStats считает число записей, уникальных предметов и среднюю цену
func (h *DatabaseManager) LoadStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := h.db.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT item), AVG(price) FROM transactions").
		Scan(&s.Total, &s.Items, &s.AvgPrice)
	if err != nil {
		return s, fmt.Errorf("ошибка подсчета статистики: %w", err)
	}
	return s, nil
}
