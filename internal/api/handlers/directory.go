// directory.go — обработчик запросов справочника VIP-участников.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/vipquery/internal/api/errors"
	"github.com/bigkaa/vipquery/internal/domain/model"
	"github.com/bigkaa/vipquery/internal/panelclient"
	"github.com/bigkaa/vipquery/internal/service"
)

// rewardResponse — последняя награда за уровень в ответе API.
type rewardResponse struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// directoryResponse — запись справочника с прогрессом до следующего уровня.
type directoryResponse struct {
	model.DirectoryEntry
	// NextLevel — следующий уровень (пустой для старшего)
	NextLevel string `json:"nextLevel,omitempty"`
	// NextLevelRemaining — сколько депозитов за 90 дней осталось до следующего уровня
	NextLevelRemaining *float64 `json:"nextLevelRemaining,omitempty"`
	// LatestReward — последняя награда за уровень (best-effort)
	LatestReward *rewardResponse `json:"latestReward,omitempty"`
}

// Directory — GET /api/v1/directory/{username}.
// Отдаёт запись из текущего снапшота индекса, при устаревании запускает
// фоновое обновление. Пустой индекс строится синхронно: без него отвечать нечем.
func (h *APIHandler) Directory(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, h.directoryBlock(r, entry))
}

// directoryBlock собирает ответную запись справочника: прогресс до следующего
// уровня и награду из детальной карточки. Карточка — best-effort: её сбой
// не мешает отдать основную запись.
func (h *APIHandler) directoryBlock(r *http.Request, entry *model.DirectoryEntry) directoryResponse {
	resp := directoryResponse{DirectoryEntry: *entry}

	if next, remaining, ok := model.NextLevelRemaining(entry.LevelID, entry.Deposit90d); ok {
		resp.NextLevel = next
		if next != "" {
			resp.NextLevelRemaining = &remaining
		}
	}

	detail, err := h.panel.MemberDetail(r.Context(), entry.ID)
	if err != nil {
		if !errors.Is(err, panelclient.ErrNotFound) {
			h.logger.Debug("Карточка участника недоступна",
				slog.Int64("memberID", entry.ID),
				slog.String("error", err.Error()))
		}
		return resp
	}

	if reward, ok := service.LatestLevelReward(detail); ok {
		resp.LatestReward = &rewardResponse{Name: reward.Name, At: reward.At}
	}
	return resp
}
