package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/vipquery/internal/backoffice"
	"github.com/bigkaa/vipquery/internal/dateutil"
	"github.com/bigkaa/vipquery/internal/domain/model"
)

// Prometheus-метрики агрегации.
var (
	aggregateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vq_aggregate_total",
		Help: "Количество агрегаций по итоговому статусу.",
	}, []string{"status"})
	aggregateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vq_aggregate_duration_seconds",
		Help:    "Длительность полной агрегации по логину.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	bonusFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vq_bonus_fetch_total",
		Help: "Исходы фонового запроса бонусов (found, none, timeout).",
	}, []string{"result"})
)

// Алиасы KPI-полей бэкофиса. Регистр ключей у бэкофиса плавает,
// выбор идёт без учёта регистра.
var (
	kpiDepositAmountKeys = []string{"LastDepositAmount", "DepositAmount", "TotalDeposit"}
	kpiDepositTimeKeys   = []string{"LastDepositTimeLocal", "LastDepositTime", "FirstDepositTimeLocal", "FirstDepositTime"}
)

// AggregateConfig — параметры агрегации.
type AggregateConfig struct {
	// BonusGrace — запас ожидания бонусной горутины сверх таймаута бэкофиса
	BonusGrace time.Duration
	// BonusEndpoints — кандидаты endpoint'ов бонусов (nil — DefaultBonusEndpoints)
	BonusEndpoints []BonusEndpoint
}

// AggregateService собирает по логину единый результат: идентификатор клиента,
// депозитные KPI (обязательная часть) и последний бонус (best-effort).
// Бонус запрашивается параллельно с KPI; его сбой или опоздание не ломает ответ.
type AggregateService struct {
	bo         *backoffice.Client
	results    *ResultCache
	identities *IdentityCache
	cfg        AggregateConfig
	logger     *slog.Logger
}

// NewAggregateService создаёт сервис агрегации.
func NewAggregateService(bo *backoffice.Client, results *ResultCache, identities *IdentityCache, cfg AggregateConfig, logger *slog.Logger) *AggregateService {
	if cfg.BonusEndpoints == nil {
		cfg.BonusEndpoints = DefaultBonusEndpoints()
	}
	return &AggregateService{
		bo:         bo,
		results:    results,
		identities: identities,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "aggregate")),
	}
}

// FetchAggregate возвращает агрегированный результат по логину.
// Результат (включая not_found и логические ошибки бэкофиса) кэшируется;
// транспортный сбой не кэшируется и возвращается как ошибка.
func (s *AggregateService) FetchAggregate(ctx context.Context, login string) (*model.KpiResult, error) {
	if cached, ok := s.results.Get(login); ok {
		return cached, nil
	}

	start := time.Now()

	clientID, err := s.resolveClientID(ctx, login)
	if err != nil {
		aggregateTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("поиск клиента %q: %w", login, err)
	}
	if clientID == 0 {
		result := &model.KpiResult{Status: model.StatusNotFound}
		s.results.Set(login, result)
		aggregateTotal.WithLabelValues(string(model.StatusNotFound)).Inc()
		return result, nil
	}

	// бонус — параллельно с KPI; ожидание ограничено таймаутом бэкофиса
	// плюс запас, чтобы не зависнуть на медленном переборе endpoint'ов
	bonusWait := s.bo.Snapshot().Timeout + s.cfg.BonusGrace
	bonusCtx, cancelBonus := context.WithTimeout(ctx, bonusWait)
	defer cancelBonus()

	bonusCh := make(chan *model.BonusRecord, 1)
	go func() {
		bonusCh <- s.fetchLatestBonus(bonusCtx, clientID)
	}()

	kpiRaw, err := s.bo.GetJSON(ctx, "/Client/GetClientKpi",
		url.Values{"id": {strconv.FormatInt(clientID, 10)}})
	if err != nil {
		aggregateTotal.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("KPI клиента %d: %w", clientID, err)
	}

	if hasError(kpiRaw) {
		// бонус при логической ошибке KPI не ждём и не используем
		result := &model.KpiResult{
			Status:   model.StatusError,
			ClientID: clientID,
			Message:  alertMessage(kpiRaw),
		}
		s.results.Set(login, result)
		aggregateTotal.WithLabelValues(string(model.StatusError)).Inc()
		return result, nil
	}

	result := &model.KpiResult{
		Status:   model.StatusOK,
		ClientID: clientID,
	}

	kpi := dataSection(kpiRaw)
	result.LastDepositAmount = toFloat(pickCI(kpi, kpiDepositAmountKeys))
	if t, ok := dateutil.ParseAny(pickCI(kpi, kpiDepositTimeKeys)); ok {
		result.LastDepositTime = &t
	}

	var bonus *model.BonusRecord
	select {
	case bonus = <-bonusCh:
	case <-bonusCtx.Done():
		bonusFetchTotal.WithLabelValues("timeout").Inc()
		s.logger.Warn("Бонус не успел за отведённое время",
			slog.Int64("clientID", clientID),
			slog.Duration("wait", bonusWait))
	}

	if bonus != nil {
		if bonus.Name != "" {
			name := bonus.Name
			result.LatestBonusName = &name
		}
		result.LatestBonusAmount = bonus.Amount
		if !bonus.Date.IsZero() {
			d := bonus.Date
			result.LatestBonusDate = &d
		}
	}

	s.results.Set(login, result)
	aggregateTotal.WithLabelValues(string(model.StatusOK)).Inc()
	aggregateDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// resolveClientID находит идентификатор клиента по логину.
// Возвращает 0 без ошибки, когда бэкофис клиента не знает.
// Найденный идентификатор кэшируется, отсутствие — нет.
func (s *AggregateService) resolveClientID(ctx context.Context, login string) (int64, error) {
	if id, ok := s.identities.Get(login); ok {
		return id, nil
	}

	payload := map[string]any{
		"Login":                  login,
		"SkeepRows":              0,
		"MaxRows":                20,
		"OrderedItem":            1,
		"IsOrderedDesc":          true,
		"IsStartWithSearch":      false,
		"MaxCreatedLocalDisable": true,
		"MinCreatedLocalDisable": true,
	}

	raw, err := s.bo.PostJSON(ctx, "/Client/GetClients", payload)
	if err != nil {
		return 0, err
	}
	if hasError(raw) {
		return 0, fmt.Errorf("поиск клиента: %s", alertMessage(raw))
	}

	objs := dataObjects(raw)
	if len(objs) == 0 {
		return 0, nil
	}
	id, ok := toInt64(objs[0]["Id"])
	if !ok || id == 0 {
		return 0, nil
	}

	s.identities.Set(login, id)
	return id, nil
}

// fetchLatestBonus перебирает кандидатов endpoint'ов бонусов до первого
// результата. Любой сбой кандидата — переход к следующему; nil означает,
// что бонус найти не удалось.
func (s *AggregateService) fetchLatestBonus(ctx context.Context, clientID int64) *model.BonusRecord {
	idStr := strconv.FormatInt(clientID, 10)

	for _, ep := range s.cfg.BonusEndpoints {
		if ctx.Err() != nil {
			return nil
		}

		var raw any
		var err error
		if ep.Method == "POST" {
			payload := map[string]any{ep.IDParam: clientID, "SkeepRows": 0}
			if ep.MaxRows > 0 {
				payload["MaxRows"] = ep.MaxRows
			}
			raw, err = s.bo.PostJSON(ctx, ep.Path, payload)
		} else {
			raw, err = s.bo.GetJSON(ctx, ep.Path, url.Values{ep.IDParam: {idStr}})
		}
		if err != nil {
			s.logger.Debug("Кандидат endpoint'а бонусов не сработал",
				slog.String("path", ep.Path),
				slog.String("method", ep.Method),
				slog.String("error", err.Error()))
			continue
		}
		if hasError(raw) {
			continue
		}

		if bonus := latestBonus(extractBonusObjects(raw)); bonus != nil {
			bonusFetchTotal.WithLabelValues("found").Inc()
			return bonus
		}
	}

	bonusFetchTotal.WithLabelValues("none").Inc()
	return nil
}

// hasError — структурный протокол ошибок бэкофиса: HasError=true в конверте.
func hasError(raw any) bool {
	m, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	v, ok := m["HasError"].(bool)
	return ok && v
}

// alertMessage — сообщение из конверта ошибки бэкофиса.
func alertMessage(raw any) string {
	if m, ok := raw.(map[string]any); ok {
		if msg, ok := m["AlertMessage"].(string); ok && msg != "" {
			return msg
		}
	}
	return "бэкофис сообщил об ошибке без описания"
}

// dataSection — полезная нагрузка ответа: содержимое Data, если есть.
func dataSection(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	if d, ok := m["Data"].(map[string]any); ok {
		return d
	}
	return m
}
