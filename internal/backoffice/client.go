// Пакет backoffice — HTTP-клиент бэкофиса с перебором вариантов авторизации.
// Бэкофис принимает учётные данные в двух заголовках (Authentication и authToken),
// и какой из них актуален — заранее неизвестно. Клиент строит упорядоченный список
// вариантов набора заголовков и пробует их по очереди: 401 переключает на следующий
// вариант, первый успешный ответ возвращается вызывающему.
package backoffice

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Ошибки клиента бэкофиса.
var (
	// ErrAuthFailed — все варианты авторизации отклонены (401).
	ErrAuthFailed = errors.New("бэкофис отклонил все варианты авторизации")
)

// Client — клиент бэкофиса. Безопасен для конкурентного использования.
// Настройки подключения обновляются атомарно целиком (Update),
// каждый запрос работает с собственным снапшотом.
type Client struct {
	mu       sync.RWMutex
	settings Settings

	// pool — транспорт с проверкой TLS, insecurePool — без неё.
	// Оба живут всё время работы клиента, выбор зависит от снапшота.
	pool         *http.Client
	insecurePool *http.Client

	logger *slog.Logger
}

// New создаёт клиент бэкофиса с начальными настройками.
// Настройки копируются: последующие правки карты ExtraHeaders у вызывающего
// не влияют на клиент.
func New(initial Settings, logger *slog.Logger) *Client {
	next := initial.clone()
	next.normalize()
	return &Client{
		settings: next,
		pool:     &http.Client{},
		insecurePool: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		logger: logger.With(slog.String("component", "backoffice")),
	}
}

// Snapshot возвращает копию текущих настроек.
func (c *Client) Snapshot() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings.clone()
}

// Update атомарно изменяет настройки. apply получает копию текущих
// настроек и правит только нужные поля.
func (c *Client) Update(apply func(*Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.settings.clone()
	apply(&next)
	next.normalize()
	c.settings = next
}

// GetJSON выполняет GET-запрос с перебором вариантов авторизации.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (any, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// PostJSON выполняет POST-запрос с JSON-телом и перебором вариантов авторизации.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (any, error) {
	return c.do(ctx, http.MethodPost, path, nil, payload)
}

// do — общий цикл перебора вариантов авторизации.
// 401 переводит на следующий вариант; прочие ошибки запоминаются как последняя
// и тоже не останавливают перебор. После исчерпания вариантов возвращается
// последняя не-авторизационная ошибка, а если её не было — ErrAuthFailed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (any, error) {
	s := c.Snapshot()

	reqURL := s.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
	}

	httpc := c.pool
	if !s.VerifyTLS {
		httpc = c.insecurePool
	}

	var lastErr error

	for i, headers := range authVariants(s) {
		result, status, err := c.attempt(ctx, httpc, method, reqURL, headers, body, s)
		if err != nil {
			lastErr = err
			c.logger.Debug("попытка запроса к бэкофису не удалась",
				slog.Int("variant", i+1),
				slog.String("url", reqURL),
				slog.String("error", err.Error()))
			continue
		}
		if status == http.StatusUnauthorized {
			c.logger.Debug("вариант авторизации отклонён",
				slog.Int("variant", i+1),
				slog.String("url", reqURL))
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrAuthFailed
}

// attempt — одна попытка запроса с собственным таймаутом.
// status == 401 возвращается без ошибки: это сигнал перебора, а не сбой.
func (c *Client) attempt(ctx context.Context, httpc *http.Client, method, reqURL string, headers http.Header, body []byte, s Settings) (any, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, reqURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("создание запроса %s %s: %w", method, reqURL, err)
	}
	req.Header = headers.Clone()

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("запрос %s %s: %w", method, reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return nil, http.StatusUnauthorized, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 220))
		return nil, resp.StatusCode, fmt.Errorf("бэкофис %s %s: статус %d: %s",
			method, reqURL, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("разбор ответа %s %s: %w", method, reqURL, err)
	}
	return result, resp.StatusCode, nil
}

// baseHeaders — полный набор заголовков из текущих настроек.
func baseHeaders(s Settings) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=UTF-8")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("X-Requested-With", "XMLHttpRequest")

	setIf := func(name, value string) {
		if value != "" {
			h.Set(name, value)
		}
	}
	setIf("Origin", s.Origin)
	setIf("Referer", s.Referer)
	setIf("User-Agent", s.UserAgent)
	setIf("language", s.Language)
	setIf("appVersion", s.AppVersion)
	setIf("partnerId", s.PartnerID)
	setIf("Cookie", s.Cookies)
	setIf("Authentication", s.Authentication)
	setIf("authToken", s.AuthToken)

	for k, v := range s.ExtraHeaders {
		if k == "" || v == "" {
			continue
		}
		h.Set(k, v)
	}
	return h
}

// authVariants — упорядоченный список вариантов набора заголовков:
// полный набор, только Authentication, только authToken, оба, без учётных данных.
// Одинаковые наборы схлопываются с сохранением порядка первого появления.
func authVariants(s Settings) []http.Header {
	base := baseHeaders(s)

	candidates := make([]http.Header, 0, 5)
	candidates = append(candidates, base.Clone())

	if s.Authentication != "" {
		v := base.Clone()
		v.Del("Authtoken")
		v.Set("Authentication", s.Authentication)
		candidates = append(candidates, v)
	}
	if s.AuthToken != "" {
		v := base.Clone()
		v.Del("Authentication")
		v.Set("authToken", s.AuthToken)
		candidates = append(candidates, v)
	}
	if s.Authentication != "" && s.AuthToken != "" {
		v := base.Clone()
		v.Set("Authentication", s.Authentication)
		v.Set("authToken", s.AuthToken)
		candidates = append(candidates, v)
	}
	v := base.Clone()
	v.Del("Authentication")
	v.Del("Authtoken")
	candidates = append(candidates, v)

	seen := make(map[string]bool, len(candidates))
	variants := make([]http.Header, 0, len(candidates))
	for _, c := range candidates {
		fp := headerFingerprint(c)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		variants = append(variants, c)
	}
	return variants
}

// headerFingerprint — каноничное представление набора заголовков для дедупликации.
func headerFingerprint(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(h[k], ","))
		b.WriteByte('\n')
	}
	return b.String()
}
