package backoffice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockBO создаёт mock HTTP-сервер бэкофиса.
func setupMockBO(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func testSettings(baseURL string) Settings {
	return Settings{
		BaseURL:        baseURL,
		Cookies:        "session=abc",
		Authentication: "auth-value",
		AuthToken:      "token-value",
		UserAgent:      "Mozilla/5.0",
		Language:       "en",
		VerifyTLS:      true,
		Timeout:        5 * time.Second,
	}
}

// TestClient_GetJSON_FirstVariantOK: первый вариант (полный набор) сразу успешен.
func TestClient_GetJSON_FirstVariantOK(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := setupMockBO(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()

		if r.Header.Get("Authentication") != "auth-value" {
			t.Errorf("ожидался заголовок Authentication в первом варианте")
		}
		if r.Header.Get("authToken") != "token-value" {
			t.Errorf("ожидался заголовок authToken в первом варианте")
		}
		if r.Header.Get("Cookie") != "session=abc" {
			t.Errorf("ожидался заголовок Cookie")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"HasError": false, "Data": map[string]any{"x": 1}})
	})

	client := New(testSettings(server.URL), testLogger())

	result, err := client.GetJSON(context.Background(), "/Client/GetClientKpi", url.Values{"id": {"555"}})
	if err != nil {
		t.Fatalf("Ошибка GetJSON: %v", err)
	}

	if attempts != 1 {
		t.Errorf("ожидалась 1 попытка, получено %d", attempts)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("ожидался объект, получено %T", result)
	}
	if m["HasError"] != false {
		t.Errorf("неожиданный ответ: %v", m)
	}
}

// TestClient_GetJSON_FallbackVariant: 401 на полном наборе переключает
// на вариант только с Authentication (без authToken).
func TestClient_GetJSON_FallbackVariant(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := setupMockBO(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		// полный набор (оба заголовка) отклоняется
		if r.Header.Get("Authentication") != "" && r.Header.Get("authToken") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if n == 2 {
			if r.Header.Get("Authentication") == "" {
				t.Error("второй вариант должен содержать Authentication")
			}
			if r.Header.Get("authToken") != "" {
				t.Error("второй вариант не должен содержать authToken")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	client := New(testSettings(server.URL), testLogger())

	result, err := client.GetJSON(context.Background(), "/Client/GetClients", nil)
	if err != nil {
		t.Fatalf("Ошибка GetJSON: %v", err)
	}
	if attempts != 2 {
		t.Errorf("ожидались 2 попытки, получено %d", attempts)
	}
	if m, ok := result.(map[string]any); !ok || m["ok"] != true {
		t.Errorf("неожиданный результат: %v", result)
	}
}

// TestClient_GetJSON_TokenOnlyVariant: бэкофис принимает только authToken
// без Authentication — успех на третьем варианте.
func TestClient_GetJSON_TokenOnlyVariant(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := setupMockBO(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()

		if r.Header.Get("Authentication") != "" || r.Header.Get("authToken") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	client := New(testSettings(server.URL), testLogger())

	result, err := client.GetJSON(context.Background(), "/Client/GetClientKpi", nil)
	if err != nil {
		t.Fatalf("Ошибка GetJSON: %v", err)
	}
	// полный набор → 401, только Authentication → 401, только authToken → успех
	if attempts != 3 {
		t.Errorf("ожидались 3 попытки, получено %d", attempts)
	}
	if m, ok := result.(map[string]any); !ok || m["ok"] != true {
		t.Errorf("неожиданный результат: %v", result)
	}
}

// TestClient_GetJSON_AllUnauthorized: все варианты отклонены → ErrAuthFailed.
func TestClient_GetJSON_AllUnauthorized(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := setupMockBO(t, func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := New(testSettings(server.URL), testLogger())

	_, err := client.GetJSON(context.Background(), "/Client/GetClients", nil)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("ожидался ErrAuthFailed, получено %v", err)
	}
	// полный набор, только Authentication, только authToken, без учётных данных
	// (вариант "оба" совпадает с полным набором и схлопывается)
	if attempts != 4 {
		t.Errorf("ожидались 4 попытки, получено %d", attempts)
	}
}

// TestClient_VariantDedup: при единственном способе авторизации
// дублирующиеся варианты схлопываются.
func TestClient_VariantDedup(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := setupMockBO(t, func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
	})

	s := testSettings(server.URL)
	s.AuthToken = "" // остаётся только Authentication
	client := New(s, testLogger())

	_, err := client.GetJSON(context.Background(), "/x", nil)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("ожидался ErrAuthFailed, получено %v", err)
	}
	// полный набор == только Authentication; остаётся он и вариант без учётных данных
	if attempts != 2 {
		t.Errorf("ожидались 2 попытки, получено %d", attempts)
	}
}

// TestClient_GetJSON_ServerError: не-авторизационная ошибка запоминается
// и возвращается после исчерпания вариантов.
func TestClient_GetJSON_ServerError(t *testing.T) {
	server := setupMockBO(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	client := New(testSettings(server.URL), testLogger())

	_, err := client.GetJSON(context.Background(), "/x", nil)
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if errors.Is(err, ErrAuthFailed) {
		t.Errorf("ошибка сервера не должна маскироваться под ErrAuthFailed: %v", err)
	}
}

// TestClient_PostJSON_Body проверяет сериализацию тела POST-запроса.
func TestClient_PostJSON_Body(t *testing.T) {
	server := setupMockBO(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Ошибка разбора тела: %v", err)
		}
		if payload["Login"] != "alice" {
			t.Errorf("ожидался Login=alice, получено %v", payload["Login"])
		}
		if r.Header.Get("Content-Type") != "application/json; charset=UTF-8" {
			t.Errorf("неожиданный Content-Type: %s", r.Header.Get("Content-Type"))
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	client := New(testSettings(server.URL), testLogger())

	if _, err := client.PostJSON(context.Background(), "/Client/GetClients", map[string]any{"Login": "alice"}); err != nil {
		t.Fatalf("Ошибка PostJSON: %v", err)
	}
}

// TestClient_Update проверяет атомарное обновление настроек.
func TestClient_Update(t *testing.T) {
	client := New(testSettings("https://example.com/api/en/"), testLogger())

	if got := client.Snapshot().BaseURL; got != "https://example.com/api/en" {
		t.Errorf("ожидалась нормализация trailing slash, получено %q", got)
	}

	client.Update(func(s *Settings) {
		s.Cookies = "session=new\r\n"
		s.Timeout = 7 * time.Second
	})

	snap := client.Snapshot()
	if snap.Cookies != "session=new" {
		t.Errorf("ожидалась санитизация cookie, получено %q", snap.Cookies)
	}
	if snap.Timeout != 7*time.Second {
		t.Errorf("ожидался таймаут 7s, получен %v", snap.Timeout)
	}
	if snap.Authentication != "auth-value" {
		t.Errorf("нетронутые поля должны сохраняться, получено %q", snap.Authentication)
	}

	// снапшот не должен разделять ExtraHeaders с клиентом
	client.Update(func(s *Settings) {
		s.ExtraHeaders = map[string]string{"X-Custom": "1"}
	})
	snap = client.Snapshot()
	snap.ExtraHeaders["X-Custom"] = "mutated"
	if client.Snapshot().ExtraHeaders["X-Custom"] != "1" {
		t.Error("изменение снапшота не должно влиять на клиент")
	}
}

// TestClient_New_ClonesSettings: клиент не разделяет ExtraHeaders
// с переданными при создании настройками.
func TestClient_New_ClonesSettings(t *testing.T) {
	initial := testSettings("https://example.com/api/en")
	initial.ExtraHeaders = map[string]string{"X-Custom": "1"}

	client := New(initial, testLogger())

	initial.ExtraHeaders["X-Custom"] = "mutated"
	if got := client.Snapshot().ExtraHeaders["X-Custom"]; got != "1" {
		t.Errorf("изменение исходной карты не должно влиять на клиент, получено %q", got)
	}
}

// TestClient_BaseURLCompletion: голый корень домена дополняется до /api/en,
// явный путь не трогается.
func TestClient_BaseURLCompletion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"голый домен", "https://bo.example.com", "https://bo.example.com/api/en"},
		{"корень со слэшем", "https://bo.example.com/", "https://bo.example.com/api/en"},
		{"явный путь сохраняется", "https://bo.example.com/api/tr", "https://bo.example.com/api/tr"},
		{"готовая база не дублируется", "https://bo.example.com/api/en", "https://bo.example.com/api/en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings(tt.input)
			client := New(s, testLogger())
			if got := client.Snapshot().BaseURL; got != tt.expected {
				t.Errorf("ожидалось %q, получено %q", tt.expected, got)
			}
		})
	}
}
