// handler.go — основной обработчик API vip-query.
// Объединяет health и бизнес-обработчики, регистрирует маршруты chi.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/vipquery/internal/api/errors"
	"github.com/bigkaa/vipquery/internal/api/middleware"
	"github.com/bigkaa/vipquery/internal/panelclient"
	"github.com/bigkaa/vipquery/internal/service"
)

// APIHandler — основной обработчик API vip-query.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health    *HealthHandler
	index     *service.IndexService
	remoteCfg *service.RemoteConfigService
	aggregate *service.AggregateService
	panel     *panelclient.Client
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	index *service.IndexService,
	remoteCfg *service.RemoteConfigService,
	aggregate *service.AggregateService,
	panel *panelclient.Client,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		index:     index,
		remoteCfg: remoteCfg,
		aggregate: aggregate,
		panel:     panel,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// RegisterRoutes регистрирует маршруты API на chi-роутере.
// Scope-проверки работают поверх JWT middleware; без него claims в контексте
// нет и проверки пропускаются.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RequireScope(middleware.ScopeRead, middleware.ScopeAdmin)).
			Get("/directory/{username}", h.Directory)
		r.With(middleware.RequireScope(middleware.ScopeRead, middleware.ScopeAdmin)).
			Get("/aggregate/{username}", h.Aggregate)
		r.With(middleware.RequireScope(middleware.ScopeAdmin)).
			Post("/refresh/index", h.RefreshIndex)
		r.With(middleware.RequireScope(middleware.ScopeAdmin)).
			Post("/refresh/config", h.RefreshConfig)
	})
}

// usernameParam извлекает и валидирует логин из пути.
func usernameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		apierrors.ValidationError(w, "Логин не указан")
		return "", false
	}
	if len(username) > 128 {
		apierrors.ValidationError(w, "Логин слишком длинный")
		return "", false
	}
	return username, true
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
