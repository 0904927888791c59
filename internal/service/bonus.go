package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bigkaa/vipquery/internal/dateutil"
	"github.com/bigkaa/vipquery/internal/domain/model"
)

// BonusEndpoint — кандидат endpoint'а бонусов бэкофиса.
// Рабочий endpoint зависит от версии бэкофиса, поэтому кандидаты
// перебираются по порядку до первого результата.
type BonusEndpoint struct {
	// Method — GET или POST
	Method string
	// Path — путь относительно базового URL бэкофиса
	Path string
	// IDParam — имя параметра с идентификатором клиента
	IDParam string
	// MaxRows — ограничение выборки для POST-запросов (0 — не передаётся)
	MaxRows int
}

// DefaultBonusEndpoints — известные варианты endpoint'ов бонусов.
func DefaultBonusEndpoints() []BonusEndpoint {
	return []BonusEndpoint{
		{Method: "GET", Path: "/Bonus/GetClientBonuses", IDParam: "id"},
		{Method: "GET", Path: "/Client/GetClientBonuses", IDParam: "id"},
		{Method: "GET", Path: "/Bonus/GetWageringBonuses", IDParam: "clientId"},
		{Method: "POST", Path: "/Bonus/GetClientBonuses", IDParam: "ClientId", MaxRows: 50},
		{Method: "POST", Path: "/Client/GetClientBonuses", IDParam: "ClientId", MaxRows: 50},
	}
}

// Алиасы полей бонусной записи. Порядок задаёт приоритет.
var (
	// bonusDateKeys — даты "жизни" бонуса; Created* намеренно не здесь:
	// дата создания часто сильно старше фактического начисления.
	bonusDateKeys = []string{
		"ResultDateLocal", "ResultDate",
		"AcceptanceDateLocal", "AcceptanceDate",
		"ModifiedLocal", "Modified",
		"UsedDateLocal", "UsedDate",
		"UpdatedLocal", "Updated",
		"date", "bonusDate",
	}
	// bonusCreatedKeys — fallback, когда других дат у записи нет.
	bonusCreatedKeys = []string{"CreatedLocal", "Created", "CreatedDate"}
	bonusNameKeys    = []string{"Name", "name", "BonusName", "bonusName", "title"}
	bonusAmountKeys  = []string{"Amount", "amount", "BonusAmount", "bonusAmount", "Value", "value"}
)

// dataObjects извлекает список объектов из конверта Data/Objects/Items.
// Понимает формы: {Data:{Objects:[...]}}, {Data:[...]}, {Objects:[...]}, [...].
func dataObjects(raw any) []map[string]any {
	if list, ok := toObjectList(raw); ok {
		return list
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	for _, key := range []string{"Data", "data"} {
		if inner, ok := m[key]; ok {
			if list, ok := toObjectList(inner); ok {
				return list
			}
			if innerMap, ok := inner.(map[string]any); ok {
				if list := objectsField(innerMap); list != nil {
					return list
				}
			}
		}
	}

	return objectsField(m)
}

// extractBonusObjects извлекает бонусные записи из ответа произвольной формы.
// Сначала общий конверт Data/Objects, затем именованные коллекции.
// Неизвестная форма — пустой список, не ошибка.
func extractBonusObjects(raw any) []map[string]any {
	if list := dataObjects(raw); len(list) > 0 {
		return list
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	named := []string{"WageringBonuses", "WageringBonus", "Bonuses", "Bonus", "ClientBonuses", "clientBonuses"}
	for _, key := range named {
		inner, ok := m[key]
		if !ok {
			continue
		}
		if list, ok := toObjectList(inner); ok && len(list) > 0 {
			return list
		}
		// именованная коллекция может сама быть конвертом с Objects
		if innerMap, ok := inner.(map[string]any); ok {
			if list := objectsField(innerMap); len(list) > 0 {
				return list
			}
		}
	}
	return nil
}

// objectsField достаёт список из ключей Objects/objects/Items/items.
func objectsField(m map[string]any) []map[string]any {
	for _, key := range []string{"Objects", "objects", "Items", "items"} {
		if inner, ok := m[key]; ok {
			if list, ok := toObjectList(inner); ok {
				return list
			}
		}
	}
	return nil
}

func toObjectList(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, true
}

// latestBonus выбирает самый поздний бонус по нормализованной дате.
// Записи без разборчивой даты отбрасываются. При равных датах побеждает
// более ранняя в исходном порядке запись.
func latestBonus(objs []map[string]any) *model.BonusRecord {
	var best *model.BonusRecord

	for _, obj := range objs {
		rawDate := pickFirst(obj, bonusDateKeys)
		d, ok := dateutil.ParseAny(rawDate)
		if !ok {
			rawDate = pickFirst(obj, bonusCreatedKeys)
			d, ok = dateutil.ParseAny(rawDate)
		}
		if !ok {
			continue
		}

		if best != nil && !d.After(best.Date) {
			continue
		}

		rec := &model.BonusRecord{
			Date:    d,
			RawDate: stringify(rawDate),
			Amount:  parseAmount(pickFirst(obj, bonusAmountKeys)),
		}
		if name, ok := pickFirst(obj, bonusNameKeys).(string); ok {
			rec.Name = strings.TrimSpace(name)
		}
		best = rec
	}

	return best
}

// pickFirst возвращает первое содержательное значение по списку ключей.
// nil, пустые строки и пустые списки пропускаются.
func pickFirst(m map[string]any, keys []string) any {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			if strings.TrimSpace(x) == "" {
				continue
			}
		case []any:
			if len(x) == 0 {
				continue
			}
		}
		return v
	}
	return nil
}

// pickCI — как pickFirst, но без учёта регистра ключей.
func pickCI(m map[string]any, keys []string) any {
	lower := make(map[string]any, len(m))
	for k, v := range m {
		if _, exists := lower[strings.ToLower(k)]; !exists {
			lower[strings.ToLower(k)] = v
		}
	}
	for _, k := range keys {
		v, ok := lower[strings.ToLower(k)]
		if !ok || v == nil {
			continue
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			continue
		}
		return v
	}
	return nil
}

// parseAmount нормализует денежную сумму произвольного представления.
// Строка с обоими разделителями трактуется как европейский формат:
// точка — разряды, запятая — десятичная ("1.500,50" → 1500.5).
// Строка только с запятой — запятая десятичная.
func parseAmount(v any) *float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return &x
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), " ", "")
		if s == "" {
			return nil
		}
		hasComma := strings.Contains(s, ",")
		hasDot := strings.Contains(s, ".")
		switch {
		case hasComma && hasDot:
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		case hasComma:
			s = strings.ReplaceAll(s, ",", ".")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// toFloat — прямое числовое приведение без локальных разделителей (для KPI).
func toFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// toInt64 — приведение идентификатора к int64.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
