// aggregate.go — обработчик агрегированного запроса: справочник + KPI + бонус.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/vipquery/internal/api/errors"
	"github.com/bigkaa/vipquery/internal/domain/model"
)

// aggregateResponse — агрегированный ответ по логину.
type aggregateResponse struct {
	Username  string             `json:"username"`
	Directory *directoryResponse `json:"directory,omitempty"`
	Kpi       *model.KpiResult   `json:"kpi"`
}

// Aggregate — GET /api/v1/aggregate/{username}.
// Участник обязан присутствовать в справочнике панели; KPI и бонус
// запрашиваются из бэкофиса. Запрос может занимать секунды — длительность
// ограничена таймаутами бэкофиса, а не обработчика.
func (h *APIHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameParam(w, r)
	if !ok {
		return
	}

	h.remoteCfg.MaybeRefreshAsync()
	h.index.MaybeRefreshAsync()

	if h.index.Empty() {
		if _, err := h.index.Refresh(r.Context(), true); err != nil {
			h.logger.Error("Синхронное построение индекса не удалось",
				slog.String("error", err.Error()))
			apierrors.Unavailable(w, "Справочник участников временно недоступен")
			return
		}
	}

	entry, found := h.index.Lookup(username)
	if !found {
		apierrors.NotFound(w, "Участник не найден в справочнике")
		return
	}

	result, err := h.aggregate.FetchAggregate(r.Context(), username)
	if err != nil {
		h.logger.Error("Агрегация не удалась",
			slog.String("username", username),
			slog.String("error", err.Error()))
		apierrors.BadGateway(w, "Бэкофис недоступен")
		return
	}

	block := h.directoryBlock(r, entry)
	writeJSON(w, http.StatusOK, aggregateResponse{
		Username:  username,
		Directory: &block,
		Kpi:       result,
	})
}
