// Пакет panelclient — HTTP-клиент панели VIP-участников.
// Панель отдаёт постраничный справочник участников, детальные карточки
// и (опционально) удалённую конфигурацию подключения к бэкофису.
// Авторизация — статичный bearer-токен.
package panelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/vipquery/internal/domain/model"
)

// Ошибки клиента панели.
var (
	// ErrNotFound — панель не знает такого участника.
	ErrNotFound = errors.New("участник не найден в панели")
	// ErrConfigDisabled — URL удалённой конфигурации не задан.
	ErrConfigDisabled = errors.New("url удалённой конфигурации не задан")
)

// retryAttempts и retryStep — параметры повторов для временных сбоев панели.
// Задержка линейная: retryStep * номер попытки.
const (
	retryAttempts = 3
	retryStep     = 600 * time.Millisecond
)

// Config — параметры клиента панели.
type Config struct {
	// BaseURL — базовый URL панели, без завершающего /
	BaseURL string
	// Token — bearer-токен (пустой — запросы без авторизации)
	Token string
	// ConfigURL — полный URL удалённой конфигурации (пустой — отключено)
	ConfigURL string
	// PageSize — размер страницы справочника
	PageSize int
	// Timeout — таймаут одного запроса
	Timeout time.Duration
}

// Client — клиент панели. Безопасен для конкурентного использования.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// MembersPage — одна страница справочника участников.
type MembersPage struct {
	OK         bool                   `json:"ok"`
	TotalPages int                    `json:"totalPages"`
	Items      []model.DirectoryEntry `json:"items"`
}

// New создаёт клиент панели.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(slog.String("component", "panelclient")),
	}
}

// ConfigEnabled сообщает, настроен ли URL удалённой конфигурации.
func (c *Client) ConfigEnabled() bool {
	return c.cfg.ConfigURL != ""
}

// FetchMembersPage загружает страницу справочника участников.
func (c *Client) FetchMembersPage(ctx context.Context, page int) (*MembersPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.cfg.PageSize))

	var out MembersPage
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/api/vip-members?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("страница справочника %d: %w", page, err)
	}
	return &out, nil
}

// MemberDetail загружает детальную карточку участника.
// Возвращает ErrNotFound, когда панель отвечает ok=false или без карточки.
func (c *Client) MemberDetail(ctx context.Context, id int64) (*model.MemberDetail, error) {
	var out struct {
		OK     bool                `json:"ok"`
		Member *model.MemberDetail `json:"member"`
	}
	reqURL := fmt.Sprintf("%s/api/members/%d", c.cfg.BaseURL, id)
	if err := c.getJSON(ctx, reqURL, &out); err != nil {
		return nil, fmt.Errorf("карточка участника %d: %w", id, err)
	}
	if !out.OK || out.Member == nil {
		return nil, ErrNotFound
	}
	return out.Member, nil
}

// FetchConfig загружает удалённую конфигурацию подключения к бэкофису.
func (c *Client) FetchConfig(ctx context.Context) (map[string]any, error) {
	if c.cfg.ConfigURL == "" {
		return nil, ErrConfigDisabled
	}
	var out map[string]any
	if err := c.getJSON(ctx, c.cfg.ConfigURL, &out); err != nil {
		return nil, fmt.Errorf("удалённая конфигурация: %w", err)
	}
	return out, nil
}

// getJSON — GET с разбором JSON и повтором временных сбоев.
// Не-2xx ответ считается неудачной попыткой наравне с сетевой ошибкой.
func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	var lastErr error

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryStep * time.Duration(attempt-1)):
			}
		}

		lastErr = c.getJSONOnce(ctx, reqURL, out)
		if lastErr == nil {
			return nil
		}
		c.logger.Debug("попытка запроса к панели не удалась",
			slog.String("url", reqURL),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
	}
	return lastErr
}

func (c *Client) getJSONOnce(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос к панели: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 220))
		return fmt.Errorf("панель вернула статус %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("разбор ответа панели: %w", err)
	}
	return nil
}
