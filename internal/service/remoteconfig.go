package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/vipquery/internal/backoffice"
	"github.com/bigkaa/vipquery/internal/panelclient"
)

// Prometheus-метрики удалённой конфигурации.
var (
	configRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vq_config_refresh_total",
		Help: "Количество обновлений удалённой конфигурации по результату.",
	}, []string{"result"})
)

// RemoteConfigService периодически подтягивает с панели параметры подключения
// к бэкофису (cookie, токены, заголовки) и применяет их к клиенту бэкофиса.
// Ответ панели слабо типизирован: поля могут лежать на верхнем уровне или
// под обёрткой data/betco, ключи имеют алиасы и произвольный регистр.
// Каждое распознанное поле применяется независимо, нераспознанные игнорируются.
type RemoteConfigService struct {
	panel  *panelclient.Client
	bo     *backoffice.Client
	ttl    time.Duration
	logger *slog.Logger

	mu sync.Mutex
	// expiresAt — unix-наносекунды истечения текущей конфигурации
	expiresAt atomic.Int64
}

// NewRemoteConfigService создаёт сервис удалённой конфигурации.
func NewRemoteConfigService(panel *panelclient.Client, bo *backoffice.Client, ttl time.Duration, logger *slog.Logger) *RemoteConfigService {
	return &RemoteConfigService{
		panel:  panel,
		bo:     bo,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "remoteconfig")),
	}
}

// Enabled сообщает, настроен ли источник удалённой конфигурации.
func (s *RemoteConfigService) Enabled() bool {
	return s.panel.ConfigEnabled()
}

// Stale сообщает, истекла ли текущая конфигурация.
func (s *RemoteConfigService) Stale() bool {
	exp := s.expiresAt.Load()
	return exp == 0 || time.Now().UnixNano() >= exp
}

// Refresh подтягивает и применяет конфигурацию. При force=false действующая
// конфигурация не трогается. Возвращает true, если конфигурация была применена.
// При ошибке загрузки прежние настройки бэкофиса продолжают действовать.
func (s *RemoteConfigService) Refresh(ctx context.Context, force bool) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	if !force && !s.Stale() {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && !s.Stale() {
		return false, nil
	}

	raw, err := s.panel.FetchConfig(ctx)
	if err != nil {
		configRefreshTotal.WithLabelValues("failure").Inc()
		return false, err
	}
	if len(raw) == 0 {
		configRefreshTotal.WithLabelValues("failure").Inc()
		s.logger.Warn("Панель вернула пустую конфигурацию, пропускаю")
		return false, nil
	}

	applied := s.apply(raw)
	s.expiresAt.Store(time.Now().Add(s.ttl).UnixNano())

	configRefreshTotal.WithLabelValues("success").Inc()
	s.logger.Info("Удалённая конфигурация применена", slog.Int("fields", applied))
	return true, nil
}

// MaybeRefreshAsync запускает фоновое обновление, если конфигурация устарела.
func (s *RemoteConfigService) MaybeRefreshAsync() {
	if !s.Enabled() || !s.Stale() {
		return
	}
	go func() {
		if _, err := s.Refresh(context.Background(), true); err != nil {
			s.logger.Error("Фоновое обновление конфигурации не удалось",
				slog.String("error", err.Error()))
		}
	}()
}

// apply переносит распознанные поля конфигурации в настройки бэкофиса.
// Возвращает количество применённых полей.
func (s *RemoteConfigService) apply(raw map[string]any) int {
	src := raw
	if d, ok := raw["data"].(map[string]any); ok {
		src = d
	}
	if b, ok := raw["betco"].(map[string]any); ok {
		src = b
	}

	fields := lowerKeys(src)
	applied := 0

	s.bo.Update(func(st *backoffice.Settings) {
		setStr := func(dst *string, aliases ...string) {
			if v, ok := pickString(fields, aliases...); ok && v != "" {
				*dst = v
				applied++
			}
		}
		setStr(&st.BaseURL, "apibase", "api_base", "baseurl")
		setStr(&st.Cookies, "cookies", "cookie", "api_cookies")
		setStr(&st.Authentication, "authentication", "api_authentication")
		setStr(&st.AuthToken, "authtoken", "api_authtoken")
		setStr(&st.Origin, "origin")
		setStr(&st.Referer, "referer")
		setStr(&st.UserAgent, "useragent", "user_agent")
		setStr(&st.Language, "language")
		setStr(&st.AppVersion, "appversion")
		setStr(&st.PartnerID, "partnerid")

		if v, ok := pickBool(fields, "verifyssl", "verify_ssl"); ok {
			st.VerifyTLS = v
			applied++
		}
		if v, ok := pickNumber(fields, "timeout"); ok && v > 0 {
			st.Timeout = time.Duration(v * float64(time.Second))
			applied++
		}
		if extra, ok := pickExtraHeaders(fields); ok {
			st.ExtraHeaders = extra
			applied++
		}
	})

	return applied
}

// lowerKeys — копия map с ключами в нижнем регистре.
func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func pickString(m map[string]any, aliases ...string) (string, bool) {
	for _, a := range aliases {
		if v, ok := m[a]; ok {
			if str, ok := v.(string); ok {
				return strings.TrimSpace(str), true
			}
		}
	}
	return "", false
}

func pickBool(m map[string]any, aliases ...string) (bool, bool) {
	for _, a := range aliases {
		v, ok := m[a]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case bool:
			return x, true
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "1", "yes":
				return true, true
			case "false", "0", "no":
				return false, true
			}
		case float64:
			return x != 0, true
		}
	}
	return false, false
}

func pickNumber(m map[string]any, aliases ...string) (float64, bool) {
	for _, a := range aliases {
		v, ok := m[a]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case float64:
			return x, true
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// pickExtraHeaders извлекает дополнительные заголовки: либо готовый объект,
// либо JSON-строка. Неразборчивая строка игнорируется, прежние заголовки
// остаются действующими.
func pickExtraHeaders(m map[string]any) (map[string]string, bool) {
	v, ok := m["extraheadersjson"]
	if !ok {
		if v, ok = m["extra_headers_json"]; !ok {
			if v, ok = m["extraheaders"]; !ok {
				return nil, false
			}
		}
	}

	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]string, len(x))
		for k, val := range x {
			if str, ok := val.(string); ok && k != "" {
				out[k] = str
			}
		}
		return out, true
	case string:
		var parsed map[string]string
		if err := json.Unmarshal([]byte(x), &parsed); err != nil {
			return nil, false
		}
		return parsed, true
	}
	return nil, false
}
