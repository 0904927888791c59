package service

import (
	"time"

	"github.com/bigkaa/vipquery/internal/dateutil"
	"github.com/bigkaa/vipquery/internal/domain/model"
)

// rewardDateKeys — алиасы даты награды в истории уровней.
var rewardDateKeys = []string{"rewardAt", "reward_at", "rewardDate"}

// RewardInfo — последняя полученная награда за уровень.
type RewardInfo struct {
	// Name — имя награды или уровня
	Name string `json:"name"`
	// At — дата получения
	At time.Time `json:"at"`
}

// LatestLevelReward извлекает последнюю награду за уровень из карточки участника.
// Основной источник — history; когда истории нет, используется map rewards
// (уровень → дата). Записи без разборчивой даты пропускаются.
func LatestLevelReward(detail *model.MemberDetail) (RewardInfo, bool) {
	if detail == nil {
		return RewardInfo{}, false
	}

	var best map[string]any
	var bestAt time.Time
	for _, h := range detail.History {
		d, ok := dateutil.ParseAny(pickFirst(h, rewardDateKeys))
		if !ok {
			continue
		}
		if best == nil || d.After(bestAt) {
			best = h
			bestAt = d
		}
	}

	if best != nil {
		name, _ := best["name"].(string)
		if name == "" {
			if id, ok := best["id"].(string); ok {
				name = levelDisplayName(id)
			}
		}
		return RewardInfo{Name: name, At: bestAt}, true
	}

	var bestLevel string
	for lvl, raw := range detail.Rewards {
		d, ok := dateutil.ParseAny(raw)
		if !ok {
			continue
		}
		if bestLevel == "" || d.After(bestAt) {
			bestLevel = lvl
			bestAt = d
		}
	}
	if bestLevel != "" {
		return RewardInfo{Name: levelDisplayName(bestLevel), At: bestAt}, true
	}

	return RewardInfo{}, false
}

// levelDisplayName — отображаемое имя уровня (fallback — сам идентификатор).
func levelDisplayName(levelID string) string {
	names := map[string]string{
		"iron":    "Iron",
		"bronze":  "Bronze",
		"silver":  "Gümüş",
		"gold":    "Altın",
		"plat":    "Platin",
		"diamond": "Diamond",
	}
	if name, ok := names[levelID]; ok {
		return name
	}
	return levelID
}
