package model

// LevelOrder — VIP-уровни от младшего к старшему.
var LevelOrder = []string{"iron", "bronze", "silver", "gold", "plat", "diamond"}

// LevelTargets90d — порог депозитов за 90 дней для достижения уровня.
// У младшего уровня порога нет.
var LevelTargets90d = map[string]float64{
	"bronze":  50000,
	"silver":  100000,
	"gold":    200000,
	"plat":    500000,
	"diamond": 2000000,
}

// levelRank — позиция уровня в LevelOrder.
var levelRank = func() map[string]int {
	m := make(map[string]int, len(LevelOrder))
	for i, id := range LevelOrder {
		m[id] = i
	}
	return m
}()

// NextLevelRemaining возвращает следующий уровень и сколько депозитов за 90 дней
// осталось до него. Для старшего уровня next пустой и remaining нулевой.
// ok == false, когда levelID не входит в известный порядок уровней.
func NextLevelRemaining(levelID string, deposit90d float64) (next string, remaining float64, ok bool) {
	rank, known := levelRank[levelID]
	if !known {
		return "", 0, false
	}
	if rank >= len(LevelOrder)-1 {
		return "", 0, true
	}
	next = LevelOrder[rank+1]
	remaining = LevelTargets90d[next] - deposit90d
	if remaining < 0 {
		remaining = 0
	}
	return next, remaining, true
}
