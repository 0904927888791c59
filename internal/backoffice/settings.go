package backoffice

import (
	"net/url"
	"strings"
	"time"
)

// Settings — параметры подключения к бэкофису.
// Меняются на лету при обновлении удалённой конфигурации,
// клиент работает только со снапшотами (см. Client.Snapshot).
type Settings struct {
	// BaseURL — базовый URL API бэкофиса, без завершающего /
	BaseURL string
	// Cookies — сырое значение заголовка Cookie
	Cookies string
	// Authentication — значение заголовка Authentication
	Authentication string
	// AuthToken — значение заголовка authToken
	AuthToken string
	// Origin, Referer, UserAgent, Language, AppVersion, PartnerID — сопутствующие заголовки
	Origin     string
	Referer    string
	UserAgent  string
	Language   string
	AppVersion string
	PartnerID  string
	// ExtraHeaders — дополнительные заголовки поверх базового набора
	ExtraHeaders map[string]string
	// VerifyTLS — проверять ли сертификат бэкофиса
	VerifyTLS bool
	// Timeout — таймаут одной попытки запроса
	Timeout time.Duration
}

// normalize приводит настройки к каноничному виду.
func (s *Settings) normalize() {
	s.BaseURL = completeBaseURL(s.BaseURL)
	if s.Timeout <= 0 {
		s.Timeout = 25 * time.Second
	}
	// значения заголовков с переводами строк ломают HTTP-запрос
	for k, v := range s.ExtraHeaders {
		s.ExtraHeaders[k] = sanitizeHeaderValue(v)
	}
	s.Cookies = sanitizeHeaderValue(s.Cookies)
	s.Authentication = sanitizeHeaderValue(s.Authentication)
	s.AuthToken = sanitizeHeaderValue(s.AuthToken)
}

// clone — глубокая копия (ExtraHeaders не разделяется со снапшотом).
func (s Settings) clone() Settings {
	out := s
	if s.ExtraHeaders != nil {
		out.ExtraHeaders = make(map[string]string, len(s.ExtraHeaders))
		for k, v := range s.ExtraHeaders {
			out.ExtraHeaders[k] = v
		}
	}
	return out
}

// completeBaseURL дополняет URL бэкофиса до API-базы: голый корень домена
// означает, что адрес указан без пути /api/en. Применяется и к значению
// из окружения, и к приходящему с удалённой конфигурацией.
func completeBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return base
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	if parsed.Host != "" && (parsed.Path == "" || parsed.Path == "/") {
		return base + "/api/en"
	}
	return base
}

func sanitizeHeaderValue(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	v = strings.ReplaceAll(v, "\n", "")
	return strings.TrimSpace(v)
}
