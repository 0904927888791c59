// Пакет dateutil — нормализация дат из разнородных представлений бэкенд-ответов.
// Бэкофис и панель возвращают даты как unix timestamp (секунды или миллисекунды),
// строки в нескольких форматах или ISO-8601. Все вызывающие стороны трактуют
// неразборчивую дату как "нет даты" — поэтому ParseAny никогда не возвращает ошибку.
package dateutil

import (
	"encoding/json"
	"strings"
	"time"
)

// layouts — упорядоченный список известных строковых форматов.
// Дробные секунды Go принимает и без явного указания в layout.
var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// ParseAny приводит значение неизвестной формы к time.Time.
// Числа > 1e12 трактуются как миллисекунды, иначе — секунды unix epoch.
// Возвращает (zero, false), если дату извлечь не удалось. Никогда не паникует.
func ParseAny(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x, true
	case float64:
		return fromUnix(x)
	case int:
		return fromUnix(float64(x))
	case int64:
		return fromUnix(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromUnix(f)
	case string:
		return parseString(x)
	}
	return time.Time{}, false
}

// fromUnix конвертирует unix timestamp (секунды или миллисекунды) в time.Time.
func fromUnix(ts float64) (time.Time, bool) {
	if ts <= 0 {
		return time.Time{}, false
	}
	if ts > 1e12 {
		ts /= 1000.0
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec), true
}

// parseString перебирает известные форматы, затем ISO-8601 fallback.
func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	// ISO fallback: "Z" трактуется как UTC, смещения поддерживаются
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}

	return time.Time{}, false
}
