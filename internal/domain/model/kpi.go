package model

import "time"

// KpiStatus — статус агрегированного результата.
type KpiStatus string

const (
	// StatusOK — клиент найден, KPI получен
	StatusOK KpiStatus = "ok"
	// StatusNotFound — клиент не найден в бэкофисе
	StatusNotFound KpiStatus = "not_found"
	// StatusError — бэкофис вернул логическую ошибку (HasError)
	StatusError KpiStatus = "error"
)

// KpiResult — агрегированный результат запроса по логину:
// депозитные KPI плюс последний бонус (best-effort).
// Поля-указатели равны nil, когда бэкофис данных не дал.
type KpiResult struct {
	// Status — итоговый статус запроса
	Status KpiStatus `json:"status"`
	// ClientID — идентификатор клиента в бэкофисе
	ClientID int64 `json:"clientId,omitempty"`
	// LastDepositAmount — сумма последнего депозита
	LastDepositAmount *float64 `json:"lastDepositAmount,omitempty"`
	// LastDepositTime — время последнего депозита
	LastDepositTime *time.Time `json:"lastDepositTime,omitempty"`
	// LatestBonusName — имя последнего бонуса
	LatestBonusName *string `json:"latestBonusName,omitempty"`
	// LatestBonusAmount — сумма последнего бонуса
	LatestBonusAmount *float64 `json:"latestBonusAmount,omitempty"`
	// LatestBonusDate — дата последнего бонуса
	LatestBonusDate *time.Time `json:"latestBonusDate,omitempty"`
	// Message — сообщение бэкофиса при Status == StatusError
	Message string `json:"message,omitempty"`
}

// BonusRecord — последний бонус клиента, извлечённый из ответа бэкофиса.
type BonusRecord struct {
	// Name — имя бонуса (пустое, если бэкофис имени не дал)
	Name string
	// Amount — нормализованная сумма (nil, если распарсить не удалось)
	Amount *float64
	// Date — дата бонуса, по ней выбирается последний
	Date time.Time
	// RawDate — исходное представление даты из ответа
	RawDate string
}
