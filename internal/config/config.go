// Пакет config — загрузка и валидация конфигурации vip-query
// из переменных окружения.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации vip-query.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера. Агрегация ждёт бэкофис с перебором
	// вариантов авторизации, поэтому по умолчанию щедрые 120s.
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Панель VIP-участников ---

	// Базовый URL панели (обязательный)
	PanelAPIBase string
	// Bearer-токен панели (опционально)
	PanelToken string
	// Размер страницы справочника (по умолчанию 200)
	PanelPageSize int
	// Таймаут запроса к панели (по умолчанию 12s)
	PanelTimeout time.Duration
	// Верхняя граница количества страниц (по умолчанию 200)
	PanelMaxPages int
	// URL удалённой конфигурации (пустой — отключено)
	PanelConfigURL string

	// --- Кэши ---

	// TTL индекса справочника (по умолчанию 600s)
	IndexTTL time.Duration
	// Минимальный интервал между стартами обновления индекса (по умолчанию 5s)
	IndexMinRefreshGap time.Duration
	// TTL удалённой конфигурации (по умолчанию 300s)
	ConfigTTL time.Duration
	// TTL кэша результатов агрегации (по умолчанию 120s)
	ResultTTL time.Duration
	// Максимальный размер кэша результатов (по умолчанию 1000)
	ResultCacheSize int
	// TTL кэша идентификаторов клиентов (по умолчанию 10m)
	IdentityTTL time.Duration
	// Максимальный размер кэша идентификаторов (по умолчанию 1000)
	IdentityCacheSize int

	// --- Бэкофис ---

	// Базовый URL API бэкофиса
	BackofficeAPIBase string
	// Значение заголовка Cookie
	BackofficeCookies string
	// Значение заголовка Authentication
	BackofficeAuthentication string
	// Значение заголовка authToken
	BackofficeAuthToken string
	// Сопутствующие заголовки
	BackofficeOrigin     string
	BackofficeReferer    string
	BackofficeUserAgent  string
	BackofficeLanguage   string
	BackofficeAppVersion string
	BackofficePartnerID  string
	// Дополнительные заголовки (JSON-объект строка → строка)
	BackofficeExtraHeaders map[string]string
	// Проверять ли TLS-сертификат бэкофиса (по умолчанию false)
	BackofficeVerifyTLS bool
	// Таймаут одной попытки запроса к бэкофису (по умолчанию 25s)
	BackofficeTimeout time.Duration
	// Запас ожидания бонусной горутины сверх таймаута бэкофиса (по умолчанию 2s)
	BonusGrace time.Duration

	// --- Inbound JWT auth ---

	// URL JWKS endpoint IdP (пустой — аутентификация отключена)
	JWKSURL string
	// Ожидаемый issuer JWT (пустой — не проверяется)
	JWTIssuer string
	// Путь к CA-сертификату для TLS к IdP (опционально)
	JWKSCACertPath string
	// Таймаут HTTP-клиента JWKS (по умолчанию 10s)
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей (по умолчанию 5m)
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT (по умолчанию 30s)
	JWTLeeway time.Duration

	// --- Dephealth ---

	// Включён ли мониторинг зависимостей (по умолчанию false)
	DephealthEnabled bool
	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей (по умолчанию 30s)
	DephealthCheckInterval time.Duration
	// Лейбл isentry=yes для зависимостей
	DephealthIsEntry bool
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// VQ_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("VQ_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("VQ_PORT: %w", err)
	}

	// VQ_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("VQ_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("VQ_LOG_LEVEL: %w", err)
	}

	// VQ_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("VQ_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("VQ_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("VQ_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_HTTP_READ_TIMEOUT: %w", err)
	}

	cfg.HTTPWriteTimeout, err = getEnvDuration("VQ_HTTP_WRITE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_HTTP_WRITE_TIMEOUT: %w", err)
	}

	cfg.HTTPIdleTimeout, err = getEnvDuration("VQ_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_HTTP_IDLE_TIMEOUT: %w", err)
	}

	cfg.ShutdownTimeout, err = getEnvDuration("VQ_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Панель ---

	cfg.PanelAPIBase, err = getEnvRequired("VQ_PANEL_API_BASE")
	if err != nil {
		return nil, err
	}
	cfg.PanelAPIBase = strings.TrimRight(cfg.PanelAPIBase, "/")
	if _, err := url.ParseRequestURI(cfg.PanelAPIBase); err != nil {
		return nil, fmt.Errorf("VQ_PANEL_API_BASE: некорректный URL: %w", err)
	}

	cfg.PanelToken = os.Getenv("VQ_PANEL_BOT_API_TOKEN")

	cfg.PanelPageSize, err = getEnvInt("VQ_PANEL_PAGE_SIZE", 200)
	if err != nil {
		return nil, fmt.Errorf("VQ_PANEL_PAGE_SIZE: %w", err)
	}
	if cfg.PanelPageSize < 1 {
		return nil, fmt.Errorf("VQ_PANEL_PAGE_SIZE: значение должно быть > 0")
	}

	cfg.PanelTimeout, err = getEnvDuration("VQ_PANEL_TIMEOUT", 12*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_PANEL_TIMEOUT: %w", err)
	}

	cfg.PanelMaxPages, err = getEnvInt("VQ_PANEL_MAX_PAGES", 200)
	if err != nil {
		return nil, fmt.Errorf("VQ_PANEL_MAX_PAGES: %w", err)
	}
	if cfg.PanelMaxPages < 1 {
		return nil, fmt.Errorf("VQ_PANEL_MAX_PAGES: значение должно быть > 0")
	}

	cfg.PanelConfigURL = os.Getenv("VQ_PANEL_CONFIG_URL")
	if cfg.PanelConfigURL != "" {
		if _, err := url.ParseRequestURI(cfg.PanelConfigURL); err != nil {
			return nil, fmt.Errorf("VQ_PANEL_CONFIG_URL: некорректный URL: %w", err)
		}
	}

	// --- Кэши ---

	cfg.IndexTTL, err = getEnvDuration("VQ_INDEX_TTL", 600*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_INDEX_TTL: %w", err)
	}

	cfg.IndexMinRefreshGap, err = getEnvDuration("VQ_INDEX_MIN_REFRESH_GAP", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_INDEX_MIN_REFRESH_GAP: %w", err)
	}

	cfg.ConfigTTL, err = getEnvDuration("VQ_CONFIG_TTL", 300*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_CONFIG_TTL: %w", err)
	}

	cfg.ResultTTL, err = getEnvDuration("VQ_RESULT_TTL", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_RESULT_TTL: %w", err)
	}

	cfg.ResultCacheSize, err = getEnvInt("VQ_RESULT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("VQ_RESULT_CACHE_SIZE: %w", err)
	}

	cfg.IdentityTTL, err = getEnvDuration("VQ_IDENTITY_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VQ_IDENTITY_TTL: %w", err)
	}

	cfg.IdentityCacheSize, err = getEnvInt("VQ_IDENTITY_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("VQ_IDENTITY_CACHE_SIZE: %w", err)
	}

	// --- Бэкофис ---

	// голый корень домена дополняется до /api/en при нормализации настроек
	// клиента бэкофиса
	cfg.BackofficeAPIBase = getEnvDefault("VQ_BO_API_BASE",
		"https://backofficewebadmin.betconstruct.com/api/en")

	cfg.BackofficeCookies = os.Getenv("VQ_BO_COOKIES")
	cfg.BackofficeAuthentication = os.Getenv("VQ_BO_AUTHENTICATION")
	cfg.BackofficeAuthToken = os.Getenv("VQ_BO_AUTHTOKEN")
	cfg.BackofficeOrigin = getEnvDefault("VQ_BO_ORIGIN", "https://backoffice.betconstruct.com")
	cfg.BackofficeReferer = getEnvDefault("VQ_BO_REFERER", "https://backoffice.betconstruct.com/")
	cfg.BackofficeUserAgent = getEnvDefault("VQ_BO_USER_AGENT", "Mozilla/5.0")
	cfg.BackofficeLanguage = getEnvDefault("VQ_BO_LANGUAGE", "en")
	cfg.BackofficeAppVersion = os.Getenv("VQ_BO_APP_VERSION")
	cfg.BackofficePartnerID = os.Getenv("VQ_BO_PARTNER_ID")

	if raw := os.Getenv("VQ_BO_EXTRA_HEADERS_JSON"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.BackofficeExtraHeaders); err != nil {
			return nil, fmt.Errorf("VQ_BO_EXTRA_HEADERS_JSON: некорректный JSON-объект: %w", err)
		}
	}

	cfg.BackofficeVerifyTLS, err = getEnvBool("VQ_BO_VERIFY_TLS", false)
	if err != nil {
		return nil, fmt.Errorf("VQ_BO_VERIFY_TLS: %w", err)
	}

	cfg.BackofficeTimeout, err = getEnvDuration("VQ_BO_TIMEOUT", 25*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_BO_TIMEOUT: %w", err)
	}

	cfg.BonusGrace, err = getEnvDuration("VQ_BONUS_GRACE", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_BONUS_GRACE: %w", err)
	}

	// --- Inbound JWT auth ---

	cfg.JWKSURL = os.Getenv("VQ_JWKS_URL")
	cfg.JWTIssuer = os.Getenv("VQ_JWT_ISSUER")
	cfg.JWKSCACertPath = os.Getenv("VQ_JWKS_CA_CERT_PATH")

	cfg.JWKSClientTimeout, err = getEnvDuration("VQ_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("VQ_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VQ_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("VQ_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_JWT_LEEWAY: %w", err)
	}

	// --- Dephealth ---

	cfg.DephealthEnabled, err = getEnvBool("VQ_DEPHEALTH_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("VQ_DEPHEALTH_ENABLED: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("VQ_DEPHEALTH_GROUP", "vipquery")

	cfg.DephealthCheckInterval, err = getEnvDuration("VQ_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VQ_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
