// Пакет model — доменные модели vip-query.
// DirectoryEntry — запись справочника VIP-участников панели,
// KpiResult — агрегированный результат запроса к бэкофису.
package model

import "encoding/json"

// DirectoryEntry — участник из справочника панели (/api/vip-members).
// Панель отдаёт уровень либо плоскими полями levelId/levelName,
// либо вложенным объектом level{id,name} — UnmarshalJSON принимает оба варианта.
type DirectoryEntry struct {
	// ID — идентификатор участника в панели
	ID int64 `json:"id"`
	// Username — логин участника (ключ справочника)
	Username string `json:"username"`
	// LevelID — идентификатор VIP-уровня (iron, bronze, ...)
	LevelID string `json:"levelId"`
	// LevelName — отображаемое имя уровня
	LevelName string `json:"levelName"`
	// Deposit90d — сумма депозитов за 90 дней
	Deposit90d float64 `json:"deposit90d"`
}

// UnmarshalJSON — толерантный разбор записи справочника.
func (e *DirectoryEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         int64   `json:"id"`
		Username   string  `json:"username"`
		LevelID    string  `json:"levelId"`
		LevelName  string  `json:"levelName"`
		Deposit90d float64 `json:"deposit90d"`
		Level      *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"level"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.Username = raw.Username
	e.LevelID = raw.LevelID
	e.LevelName = raw.LevelName
	e.Deposit90d = raw.Deposit90d
	if raw.Level != nil {
		if e.LevelID == "" {
			e.LevelID = raw.Level.ID
		}
		if e.LevelName == "" {
			e.LevelName = raw.Level.Name
		}
	}
	return nil
}

// MemberDetail — детальная карточка участника (/api/members/{id}).
// История смен уровня и награды приходят со слабо фиксированной схемой
// (алиасы ключей rewardAt/reward_at/rewardDate), поэтому храним сырые map.
type MemberDetail struct {
	// History — история смен уровня, последняя запись может содержать награду
	History []map[string]any `json:"history"`
	// Rewards — награды по идентификатору уровня
	Rewards map[string]any `json:"rewards"`
}
