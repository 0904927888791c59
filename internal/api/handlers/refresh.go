// refresh.go — обработчики принудительного обновления кэшей.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/vipquery/internal/api/errors"
)

// refreshResponse — результат принудительного обновления.
type refreshResponse struct {
	Refreshed bool   `json:"refreshed"`
	Reason    string `json:"reason,omitempty"`
}

// RefreshIndex — POST /api/v1/refresh/index.
// Принудительно перестраивает индекс справочника. refreshed=false без ошибки
// означает подавление по анти-штормовому интервалу.
func (h *APIHandler) RefreshIndex(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.index.Refresh(r.Context(), true)
	if err != nil {
		h.logger.Error("Принудительное обновление индекса не удалось",
			slog.String("error", err.Error()))
		apierrors.BadGateway(w, "Не удалось обновить индекс справочника")
		return
	}

	resp := refreshResponse{Refreshed: refreshed}
	if !refreshed {
		resp.Reason = "обновление подавлено: слишком частые запуски"
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefreshConfig — POST /api/v1/refresh/config.
func (h *APIHandler) RefreshConfig(w http.ResponseWriter, r *http.Request) {
	if !h.remoteCfg.Enabled() {
		writeJSON(w, http.StatusOK, refreshResponse{
			Refreshed: false,
			Reason:    "источник удалённой конфигурации не настроен",
		})
		return
	}

	refreshed, err := h.remoteCfg.Refresh(r.Context(), true)
	if err != nil {
		h.logger.Error("Принудительное обновление конфигурации не удалось",
			slog.String("error", err.Error()))
		apierrors.BadGateway(w, "Не удалось загрузить удалённую конфигурацию")
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{Refreshed: refreshed})
}
