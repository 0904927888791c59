// Пакет service — бизнес-логика vip-query: справочный индекс участников,
// удалённая конфигурация, агрегация KPI и бонусов из бэкофиса.
// Кэши — обёртки над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/vipquery/internal/domain/model"
)

// Prometheus-метрики кэшей.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vq_cache_hits_total",
		Help: "Общее количество попаданий в кэши по типу.",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vq_cache_misses_total",
		Help: "Общее количество промахов кэшей по типу.",
	}, []string{"cache"})
)

// ResultCache — кэш агрегированных результатов по логину с TTL.
// Каждый экземпляр сервиса имеет собственный in-memory кэш (per-instance).
type ResultCache struct {
	cache *expirable.LRU[string, *model.KpiResult]
}

// NewResultCache создаёт кэш результатов.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		cache: expirable.NewLRU[string, *model.KpiResult](maxSize, nil, ttl),
	}
}

// Get возвращает результат из кэша по логину.
// Обновляет Prometheus-метрики hit/miss.
func (c *ResultCache) Get(login string) (*model.KpiResult, bool) {
	val, ok := c.cache.Get(login)
	if ok {
		cacheHitsTotal.WithLabelValues("result").Inc()
		return val, true
	}
	cacheMissesTotal.WithLabelValues("result").Inc()
	return nil, false
}

// Set добавляет или обновляет результат в кэше.
func (c *ResultCache) Set(login string, result *model.KpiResult) {
	c.cache.Add(login, result)
}

// IdentityCache — кэш соответствия логин → идентификатор клиента бэкофиса.
// Идентификаторы стабильны, TTL нужен только чтобы кэш не рос бесконечно.
type IdentityCache struct {
	cache *expirable.LRU[string, int64]
}

// NewIdentityCache создаёт кэш идентификаторов.
func NewIdentityCache(maxSize int, ttl time.Duration) *IdentityCache {
	return &IdentityCache{
		cache: expirable.NewLRU[string, int64](maxSize, nil, ttl),
	}
}

// Get возвращает идентификатор клиента по логину.
func (c *IdentityCache) Get(login string) (int64, bool) {
	val, ok := c.cache.Get(login)
	if ok {
		cacheHitsTotal.WithLabelValues("identity").Inc()
		return val, true
	}
	cacheMissesTotal.WithLabelValues("identity").Inc()
	return 0, false
}

// Set добавляет соответствие логин → идентификатор.
func (c *IdentityCache) Set(login string, clientID int64) {
	c.cache.Add(login, clientID)
}
