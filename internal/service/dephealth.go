// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// vip-query мониторит:
//   - панель VIP-участников — HTTP checker к health endpoint (critical)
//   - endpoint удалённой конфигурации — HTTP checker (non-critical, опционален)
//
// Бэкофис намеренно не мониторится: его доступность зависит от актуальности
// учётных данных, и health-проверка без них давала бы ложные срабатывания.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения ("vip-query")
//   - group — имя группы в метриках (VQ_DEPHEALTH_GROUP)
//   - panelURL — базовый URL панели
//   - configURL — URL удалённой конфигурации (пустой — проверка не добавляется)
//   - checkInterval — интервал проверки зависимостей (VQ_DEPHEALTH_CHECK_INTERVAL)
//   - isEntry — при true добавляет лейбл isentry=yes ко всем зависимостям
func NewDephealthService(
	serviceID string,
	group string,
	panelURL string,
	configURL string,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, panelURL, configURL, checkInterval, isEntry, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	panelURL string,
	configURL string,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, panelURL, configURL, checkInterval, isEntry,
		logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID string,
	group string,
	panelURL string,
	configURL string,
	checkInterval time.Duration,
	isEntry bool,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	panelDepOpts := []dephealth.DependencyOption{
		dephealth.FromURL(panelURL),
		dephealth.WithHTTPHealthPath("/health"),
		dephealth.CheckInterval(checkInterval),
		dephealth.Critical(true),
	}
	if isEntry {
		panelDepOpts = append(panelDepOpts, dephealth.WithLabel("isentry", "yes"))
	}

	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP("panel", panelDepOpts...),
	)

	if configURL != "" {
		cfgDepOpts := []dephealth.DependencyOption{
			dephealth.FromURL(configURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(false),
		}
		if path := configHealthPath(configURL); path != "" {
			cfgDepOpts = append(cfgDepOpts, dephealth.WithHTTPHealthPath(path))
		}
		if isEntry {
			cfgDepOpts = append(cfgDepOpts, dephealth.WithLabel("isentry", "yes"))
		}
		opts = append(opts, dephealth.HTTP("panel-config", cfgDepOpts...))
	}

	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// configHealthPath извлекает путь health-проверки из URL удалённой конфигурации.
// Пустой результат означает корень — checker использует собственный дефолт.
func configHealthPath(configURL string) string {
	parsed, err := url.Parse(configURL)
	if err != nil {
		return ""
	}
	if parsed.Path == "" || parsed.Path == "/" {
		return ""
	}
	return parsed.Path
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (панель + конфигурация)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
