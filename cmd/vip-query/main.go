// main.go — точка входа vip-query.
// Собирает клиентов панели и бэкофиса, кэши, сервисы, middleware и HTTP-сервер;
// cron-планировщик поддерживает индекс и удалённую конфигурацию свежими.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/bigkaa/vipquery/internal/api/handlers"
	"github.com/bigkaa/vipquery/internal/api/middleware"
	"github.com/bigkaa/vipquery/internal/backoffice"
	"github.com/bigkaa/vipquery/internal/config"
	"github.com/bigkaa/vipquery/internal/panelclient"
	"github.com/bigkaa/vipquery/internal/server"
	"github.com/bigkaa/vipquery/internal/service"
)

func main() {
	// 1. .env для локальной разработки; отсутствие файла — не ошибка
	_ = godotenv.Load()

	// 2. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 3. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("vip-query запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 4. Клиент панели
	panel := panelclient.New(panelclient.Config{
		BaseURL:   cfg.PanelAPIBase,
		Token:     cfg.PanelToken,
		ConfigURL: cfg.PanelConfigURL,
		PageSize:  cfg.PanelPageSize,
		Timeout:   cfg.PanelTimeout,
	}, logger)

	// 5. Клиент бэкофиса с начальными настройками из окружения;
	// удалённая конфигурация уточняет их на лету
	bo := backoffice.New(backoffice.Settings{
		BaseURL:        cfg.BackofficeAPIBase,
		Cookies:        cfg.BackofficeCookies,
		Authentication: cfg.BackofficeAuthentication,
		AuthToken:      cfg.BackofficeAuthToken,
		Origin:         cfg.BackofficeOrigin,
		Referer:        cfg.BackofficeReferer,
		UserAgent:      cfg.BackofficeUserAgent,
		Language:       cfg.BackofficeLanguage,
		AppVersion:     cfg.BackofficeAppVersion,
		PartnerID:      cfg.BackofficePartnerID,
		ExtraHeaders:   cfg.BackofficeExtraHeaders,
		VerifyTLS:      cfg.BackofficeVerifyTLS,
		Timeout:        cfg.BackofficeTimeout,
	}, logger)

	// 6. Кэши и сервисы
	results := service.NewResultCache(cfg.ResultCacheSize, cfg.ResultTTL)
	identities := service.NewIdentityCache(cfg.IdentityCacheSize, cfg.IdentityTTL)

	index := service.NewIndexService(panel, service.IndexConfig{
		TTL:           cfg.IndexTTL,
		MinRefreshGap: cfg.IndexMinRefreshGap,
		MaxPages:      cfg.PanelMaxPages,
	}, logger)

	remoteCfg := service.NewRemoteConfigService(panel, bo, cfg.ConfigTTL, logger)

	aggregate := service.NewAggregateService(bo, results, identities, service.AggregateConfig{
		BonusGrace: cfg.BonusGrace,
	}, logger)

	// 7. Middleware: request id, метрики, логирование, опциональный JWT
	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}

	var idpChecker handlers.ReadinessChecker
	if cfg.JWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWKSCACertPath,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			log.Fatalf("Ошибка инициализации JWT middleware: %v", err)
		}
		middlewares = append(middlewares,
			server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health", "/metrics"))

		idpChecker, err = middleware.NewJWKSReadinessChecker(cfg.JWKSURL, cfg.JWKSCACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			log.Fatalf("Ошибка инициализации JWKS readiness checker: %v", err)
		}
	} else {
		logger.Warn("VQ_JWKS_URL не задан — входящие запросы не аутентифицируются")
	}

	// 8. Обработчики и сервер
	healthHandler := handlers.NewHealthHandler(index, idpChecker)
	apiHandler := handlers.NewAPIHandler(healthHandler, index, remoteCfg, aggregate, panel, logger)
	srv := server.New(cfg, logger, apiHandler, middlewares...)

	// 9. Мониторинг зависимостей (опционально)
	if cfg.DephealthEnabled {
		dh, err := service.NewDephealthService(
			"vip-query",
			cfg.DephealthGroup,
			cfg.PanelAPIBase,
			cfg.PanelConfigURL,
			cfg.DephealthCheckInterval,
			cfg.DephealthIsEntry,
			logger,
		)
		if err != nil {
			log.Fatalf("Ошибка инициализации dephealth: %v", err)
		}
		if err := dh.Start(context.Background()); err != nil {
			log.Fatalf("Ошибка запуска dephealth: %v", err)
		}
		defer dh.Stop()
	}

	// 10. Первичное наполнение кэшей в фоне: сервер стартует сразу,
	// readiness остаётся fail до первого успешного построения индекса
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.PanelTimeout*time.Duration(cfg.PanelMaxPages))
		defer cancel()
		if _, err := remoteCfg.Refresh(ctx, true); err != nil {
			logger.Warn("Первичная загрузка удалённой конфигурации не удалась",
				slog.String("error", err.Error()))
		}
		if _, err := index.Refresh(ctx, true); err != nil {
			logger.Error("Первичное построение индекса не удалось",
				slog.String("error", err.Error()))
		}
	}()

	// 11. Планировщик фонового обновления
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.IndexTTL), func() {
		index.MaybeRefreshAsync()
	}); err != nil {
		log.Fatalf("Ошибка планировщика обновления индекса: %v", err)
	}
	if remoteCfg.Enabled() {
		if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.ConfigTTL), func() {
			remoteCfg.MaybeRefreshAsync()
		}); err != nil {
			log.Fatalf("Ошибка планировщика обновления конфигурации: %v", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 12. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("vip-query остановлен")
}
