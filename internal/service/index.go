package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/vipquery/internal/domain/model"
	"github.com/bigkaa/vipquery/internal/panelclient"
)

// Ошибки построения индекса.
var (
	// ErrEmptyIndex — панель не вернула ни одного участника.
	ErrEmptyIndex = errors.New("панель вернула пустой справочник")
)

// Prometheus-метрики индекса.
var (
	indexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vq_index_entries",
		Help: "Количество участников в текущем снапшоте индекса.",
	})
	indexRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vq_index_refresh_total",
		Help: "Количество обновлений индекса по результату (success, failure, skipped).",
	}, []string{"result"})
	indexRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vq_index_refresh_duration_seconds",
		Help:    "Длительность успешного построения индекса.",
		Buckets: prometheus.DefBuckets,
	})
)

// IndexConfig — параметры индекса справочника.
type IndexConfig struct {
	// TTL — время жизни снапшота индекса
	TTL time.Duration
	// MinRefreshGap — минимальный интервал между стартами обновления
	MinRefreshGap time.Duration
	// MaxPages — верхняя граница количества страниц при построении
	MaxPages int
}

// directoryIndex — иммутабельный снапшот справочника.
// После публикации через atomic.Pointer не изменяется.
type directoryIndex struct {
	entries   map[string]*model.DirectoryEntry
	expiresAt time.Time
}

// IndexService — справочный индекс участников со stale-while-revalidate семантикой.
// Чтение (Lookup) без блокировок по atomic-снапшоту; обновление сериализовано
// мьютексом с повторной проверкой устаревания и защитой от частых стартов.
// Устаревший снапшот продолжает обслуживать чтения до успешной замены.
type IndexService struct {
	panel  *panelclient.Client
	cfg    IndexConfig
	logger *slog.Logger

	idx       atomic.Pointer[directoryIndex]
	refreshMu sync.Mutex
	// lastStart — unix-наносекунды старта последнего обновления
	lastStart atomic.Int64
}

// NewIndexService создаёт индекс справочника.
func NewIndexService(panel *panelclient.Client, cfg IndexConfig, logger *slog.Logger) *IndexService {
	return &IndexService{
		panel:  panel,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "index")),
	}
}

// Lookup возвращает запись справочника по логину.
// Никогда не блокируется и не ходит в сеть: читает текущий снапшот,
// в том числе устаревший.
func (s *IndexService) Lookup(username string) (*model.DirectoryEntry, bool) {
	cur := s.idx.Load()
	if cur == nil {
		return nil, false
	}
	entry, ok := cur.entries[username]
	return entry, ok
}

// Empty сообщает, был ли индекс хоть раз успешно построен.
func (s *IndexService) Empty() bool {
	cur := s.idx.Load()
	return cur == nil || len(cur.entries) == 0
}

// Stale сообщает, истёк ли текущий снапшот.
func (s *IndexService) Stale() bool {
	cur := s.idx.Load()
	return cur == nil || len(cur.entries) == 0 || !time.Now().Before(cur.expiresAt)
}

// Refresh перестраивает индекс. При force=false свежий индекс не трогается.
// Возвращает true, если снапшот был заменён. При любой ошибке построения
// предыдущий снапшот остаётся действующим.
func (s *IndexService) Refresh(ctx context.Context, force bool) (bool, error) {
	if !force && !s.Stale() {
		indexRefreshTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if s.withinMinGap() {
		indexRefreshTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// повторная проверка: пока ждали мьютекс, индекс мог обновить другой вызов
	if !force && !s.Stale() {
		indexRefreshTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if s.withinMinGap() {
		indexRefreshTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}

	start := time.Now()
	s.lastStart.Store(start.UnixNano())

	entries, err := s.buildIndex(ctx)
	if err != nil {
		indexRefreshTotal.WithLabelValues("failure").Inc()
		return false, err
	}
	if len(entries) == 0 {
		indexRefreshTotal.WithLabelValues("failure").Inc()
		return false, ErrEmptyIndex
	}

	s.idx.Store(&directoryIndex{
		entries:   entries,
		expiresAt: time.Now().Add(s.cfg.TTL),
	})

	indexRefreshTotal.WithLabelValues("success").Inc()
	indexRefreshDuration.Observe(time.Since(start).Seconds())
	indexEntries.Set(float64(len(entries)))

	s.logger.Info("Индекс справочника обновлён",
		slog.Int("entries", len(entries)),
		slog.Duration("took", time.Since(start)))
	return true, nil
}

// MaybeRefreshAsync запускает фоновое обновление, если снапшот устарел.
// Вызывающий никогда не блокируется.
func (s *IndexService) MaybeRefreshAsync() {
	if !s.Stale() || s.withinMinGap() {
		return
	}
	go func() {
		if _, err := s.Refresh(context.Background(), true); err != nil {
			s.logger.Error("Фоновое обновление индекса не удалось",
				slog.String("error", err.Error()))
		}
	}()
}

// CheckReady — readiness-проверка для health endpoint.
func (s *IndexService) CheckReady() (string, string) {
	cur := s.idx.Load()
	if cur == nil || len(cur.entries) == 0 {
		return "fail", "индекс справочника не построен"
	}
	if !time.Now().Before(cur.expiresAt) {
		return "degraded", fmt.Sprintf("индекс устарел, записей: %d", len(cur.entries))
	}
	return "ok", fmt.Sprintf("записей: %d", len(cur.entries))
}

// buildIndex последовательно загружает все страницы справочника.
// Ошибка любой страницы прерывает построение целиком: частичный индекс
// незаметно терял бы участников.
func (s *IndexService) buildIndex(ctx context.Context) (map[string]*model.DirectoryEntry, error) {
	first, err := s.panel.FetchMembersPage(ctx, 1)
	if err != nil {
		return nil, err
	}
	if !first.OK {
		return nil, fmt.Errorf("страница справочника 1: панель вернула ok=false")
	}

	totalPages := first.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}
	if totalPages > s.cfg.MaxPages {
		s.logger.Warn("Панель заявила слишком много страниц, обрезаю",
			slog.Int("totalPages", totalPages),
			slog.Int("maxPages", s.cfg.MaxPages))
		totalPages = s.cfg.MaxPages
	}

	entries := make(map[string]*model.DirectoryEntry, len(first.Items)*totalPages)
	mergePage(entries, first.Items)

	for page := 2; page <= totalPages; page++ {
		p, err := s.panel.FetchMembersPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if !p.OK {
			return nil, fmt.Errorf("страница справочника %d: панель вернула ok=false", page)
		}
		mergePage(entries, p.Items)
	}

	return entries, nil
}

// mergePage вливает страницу в индекс. Дубликат логина перезаписывается:
// более поздняя страница считается более свежей.
func mergePage(entries map[string]*model.DirectoryEntry, items []model.DirectoryEntry) {
	for i := range items {
		item := items[i]
		if item.Username == "" {
			continue
		}
		entries[item.Username] = &item
	}
}

// withinMinGap сообщает, не слишком ли рано стартовать новое обновление.
func (s *IndexService) withinMinGap() bool {
	last := s.lastStart.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) < s.cfg.MinRefreshGap
}
