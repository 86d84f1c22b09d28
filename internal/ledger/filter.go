package ledger

import "strings"

// Filter выборка истории для просмотра
type Filter struct {
	Item     string
	MinPrice *float64
	MaxPrice *float64
	Limit    int
	Offset   int
}

// Match проверяет одну запись. Записи без цены не проходят ценовой фильтр.
func (f Filter) Match(e Entry) bool {
	if f.Item != "" && !strings.Contains(strings.ToLower(e.Item), strings.ToLower(f.Item)) {
		return false
	}
	if f.MinPrice != nil && (e.Price == nil || *e.Price < *f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && (e.Price == nil || *e.Price > *f.MaxPrice) {
		return false
	}
	return true
}

// Apply возвращает страницу отфильтрованных записей и их общее число
func (f Filter) Apply(entries []Entry) ([]Entry, int) {
	var matched []Entry
	for _, e := range entries {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if f.Offset >= total {
		return []Entry{}, total
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total
}
