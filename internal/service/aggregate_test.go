package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/vipquery/internal/backoffice"
)

// boCalls — потокобезопасный счётчик обращений к mock-бэкофису по путям.
type boCalls struct {
	mu    sync.Mutex
	paths map[string]int
}

func (c *boCalls) inc(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paths == nil {
		c.paths = map[string]int{}
	}
	c.paths[path]++
}

func (c *boCalls) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths[path]
}

func testAggregate(t *testing.T, handler http.HandlerFunc) (*AggregateService, *boCalls) {
	t.Helper()
	calls := &boCalls{}

	server := setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.inc(r.URL.Path)
		handler(w, r)
	})

	bo := backoffice.New(backoffice.Settings{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, testLogger())

	svc := NewAggregateService(bo,
		NewResultCache(10, time.Minute),
		NewIdentityCache(10, time.Minute),
		AggregateConfig{BonusGrace: 200 * time.Millisecond},
		testLogger())
	return svc, calls
}

// стандартный mock-бэкофис: alice → клиент 555 с KPI и бонусом.
// Пути — с базой /api/en, как у настоящего бэкофиса после нормализации URL.
func happyBackoffice(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/en/Client/GetClients":
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		objs := []map[string]any{}
		if payload["Login"] == "alice" {
			objs = append(objs, map[string]any{"Id": 555})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"HasError": false,
			"Data":     map[string]any{"Objects": objs},
		})
	case "/api/en/Client/GetClientKpi":
		json.NewEncoder(w).Encode(map[string]any{
			"HasError": false,
			"Data": map[string]any{
				"LastDepositAmount":    1000,
				"LastDepositTimeLocal": "2024-06-01 12:00:00",
			},
		})
	case "/api/en/Bonus/GetClientBonuses":
		json.NewEncoder(w).Encode(map[string]any{
			"HasError": false,
			"Data": map[string]any{"Objects": []map[string]any{
				{"Name": "Welcome", "Amount": "1.500,50", "ResultDateLocal": "2024-06-15 09:30:00"},
				{"Name": "Old", "Amount": "100", "ResultDateLocal": "2024-01-01 00:00:00"},
			}},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// TestAggregate_OK: полный сценарий — поиск клиента, KPI, последний бонус.
func TestAggregate_OK(t *testing.T) {
	svc, _ := testAggregate(t, happyBackoffice)

	result, err := svc.FetchAggregate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Ошибка FetchAggregate: %v", err)
	}

	if result.Status != "ok" {
		t.Errorf("ожидался статус ok, получен %q", result.Status)
	}
	if result.ClientID != 555 {
		t.Errorf("ожидался clientID=555, получено %d", result.ClientID)
	}
	if result.LastDepositAmount == nil || *result.LastDepositAmount != 1000 {
		t.Errorf("ожидался депозит 1000, получено %v", result.LastDepositAmount)
	}
	wantTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if result.LastDepositTime == nil || !result.LastDepositTime.Equal(wantTime) {
		t.Errorf("ожидалось время депозита %v, получено %v", wantTime, result.LastDepositTime)
	}
	if result.LatestBonusName == nil || *result.LatestBonusName != "Welcome" {
		t.Errorf("ожидался бонус Welcome, получено %v", result.LatestBonusName)
	}
	if result.LatestBonusAmount == nil || *result.LatestBonusAmount != 1500.5 {
		t.Errorf("ожидалась сумма бонуса 1500.5, получено %v", result.LatestBonusAmount)
	}
	if result.LatestBonusDate == nil {
		t.Error("ожидалась дата бонуса")
	}
}

// TestAggregate_ResultCached: повторный запрос обслуживается из кэша
// без обращений к бэкофису.
func TestAggregate_ResultCached(t *testing.T) {
	svc, calls := testAggregate(t, happyBackoffice)

	if _, err := svc.FetchAggregate(context.Background(), "alice"); err != nil {
		t.Fatalf("Ошибка первого запроса: %v", err)
	}
	first := calls.count("/api/en/Client/GetClients")

	result, err := svc.FetchAggregate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Ошибка повторного запроса: %v", err)
	}
	if result.ClientID != 555 {
		t.Errorf("ожидался кэшированный результат с clientID=555, получено %d", result.ClientID)
	}
	if got := calls.count("/api/en/Client/GetClients"); got != first {
		t.Errorf("повторный запрос не должен ходить в бэкофис: было %d, стало %d", first, got)
	}
}

// TestAggregate_NotFound: неизвестный логин — not_found, результат кэшируется.
func TestAggregate_NotFound(t *testing.T) {
	svc, calls := testAggregate(t, happyBackoffice)

	result, err := svc.FetchAggregate(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Ошибка FetchAggregate: %v", err)
	}
	if result.Status != "not_found" {
		t.Errorf("ожидался not_found, получено %q", result.Status)
	}

	if _, err := svc.FetchAggregate(context.Background(), "ghost"); err != nil {
		t.Fatalf("Ошибка повторного запроса: %v", err)
	}
	if got := calls.count("/api/en/Client/GetClients"); got != 1 {
		t.Errorf("not_found должен кэшироваться, обращений: %d", got)
	}
}

// TestAggregate_KpiError: логическая ошибка KPI — статус error с сообщением,
// результат кэшируется.
func TestAggregate_KpiError(t *testing.T) {
	svc, calls := testAggregate(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/en/Client/GetClients":
			json.NewEncoder(w).Encode(map[string]any{
				"Data": map[string]any{"Objects": []map[string]any{{"Id": 555}}},
			})
		case "/api/en/Client/GetClientKpi":
			json.NewEncoder(w).Encode(map[string]any{
				"HasError":     true,
				"AlertMessage": "Клиент заблокирован",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	result, err := svc.FetchAggregate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Ошибка FetchAggregate: %v", err)
	}
	if result.Status != "error" {
		t.Errorf("ожидался статус error, получено %q", result.Status)
	}
	if result.Message != "Клиент заблокирован" {
		t.Errorf("ожидалось сообщение бэкофиса, получено %q", result.Message)
	}
	if result.ClientID != 555 {
		t.Errorf("ожидался clientID=555, получено %d", result.ClientID)
	}

	if _, err := svc.FetchAggregate(context.Background(), "alice"); err != nil {
		t.Fatalf("Ошибка повторного запроса: %v", err)
	}
	if got := calls.count("/api/en/Client/GetClientKpi"); got != 1 {
		t.Errorf("логическая ошибка должна кэшироваться, обращений к KPI: %d", got)
	}
}

// TestAggregate_BonusUnavailable: все кандидаты бонусов недоступны —
// статус ok, бонусные поля пустые.
func TestAggregate_BonusUnavailable(t *testing.T) {
	svc, _ := testAggregate(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/en/Client/GetClients":
			json.NewEncoder(w).Encode(map[string]any{
				"Data": map[string]any{"Objects": []map[string]any{{"Id": 555}}},
			})
		case "/api/en/Client/GetClientKpi":
			json.NewEncoder(w).Encode(map[string]any{
				"Data": map[string]any{"LastDepositAmount": 200},
			})
		default:
			// все бонусные endpoint'ы недоступны
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	result, err := svc.FetchAggregate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Ошибка FetchAggregate: %v", err)
	}
	if result.Status != "ok" {
		t.Errorf("сбой бонусов не должен ломать ответ, получен статус %q", result.Status)
	}
	if result.LastDepositAmount == nil || *result.LastDepositAmount != 200 {
		t.Errorf("ожидался депозит 200, получено %v", result.LastDepositAmount)
	}
	if result.LatestBonusName != nil || result.LatestBonusAmount != nil || result.LatestBonusDate != nil {
		t.Errorf("бонусные поля должны быть пустыми: %+v", result)
	}
}

// TestAggregate_BonusTimeout: бонусные endpoint'ы висят и не отвечают —
// ожидание ограничено таймаутом бэкофиса плюс запасом, ответ уходит
// со статусом ok, KPI заполнен, бонусные поля пустые.
func TestAggregate_BonusTimeout(t *testing.T) {
	server := setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/en/Client/GetClients":
			json.NewEncoder(w).Encode(map[string]any{
				"Data": map[string]any{"Objects": []map[string]any{{"Id": 555}}},
			})
		case "/api/en/Client/GetClientKpi":
			json.NewEncoder(w).Encode(map[string]any{
				"Data": map[string]any{"LastDepositAmount": 1000},
			})
		default:
			// бонусный endpoint не отвечает до отмены запроса
			<-r.Context().Done()
		}
	})

	bo := backoffice.New(backoffice.Settings{
		BaseURL: server.URL,
		Timeout: 500 * time.Millisecond,
	}, testLogger())

	svc := NewAggregateService(bo,
		NewResultCache(10, time.Minute),
		NewIdentityCache(10, time.Minute),
		AggregateConfig{BonusGrace: 200 * time.Millisecond},
		testLogger())

	start := time.Now()
	result, err := svc.FetchAggregate(context.Background(), "alice")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Ошибка FetchAggregate: %v", err)
	}
	if result.Status != "ok" {
		t.Errorf("зависший бонус не должен ломать ответ, получен статус %q", result.Status)
	}
	if result.LastDepositAmount == nil || *result.LastDepositAmount != 1000 {
		t.Errorf("ожидался депозит 1000, получено %v", result.LastDepositAmount)
	}
	if result.LatestBonusName != nil || result.LatestBonusAmount != nil || result.LatestBonusDate != nil {
		t.Errorf("бонусные поля должны быть пустыми: %+v", result)
	}
	// ожидание ограничено таймаутом бэкофиса + запасом, с поправкой на планировщик
	if elapsed > 2*time.Second {
		t.Errorf("ответ должен укладываться в таймаут с запасом, заняло %v", elapsed)
	}
}

// TestAggregate_TransportError: транспортный сбой поиска клиента —
// ошибка без кэширования.
func TestAggregate_TransportError(t *testing.T) {
	svc, calls := testAggregate(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := svc.FetchAggregate(context.Background(), "alice"); err == nil {
		t.Fatal("ожидалась ошибка")
	}

	// повторный запрос снова идёт в бэкофис
	if _, err := svc.FetchAggregate(context.Background(), "alice"); err == nil {
		t.Fatal("ожидалась ошибка и при повторе")
	}
	if got := calls.count("/api/en/Client/GetClients"); got < 2 {
		t.Errorf("транспортная ошибка не должна кэшироваться, обращений: %d", got)
	}
}

// TestAggregate_IdentityCached: после истечения кэша результатов поиск
// клиента обслуживается кэшем идентификаторов.
func TestAggregate_IdentityCached(t *testing.T) {
	calls := &boCalls{}
	server := setupMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.inc(r.URL.Path)
		happyBackoffice(w, r)
	})

	bo := backoffice.New(backoffice.Settings{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, testLogger())

	// кэш результатов практически мгновенно истекает
	svc := NewAggregateService(bo,
		NewResultCache(10, time.Millisecond),
		NewIdentityCache(10, time.Minute),
		AggregateConfig{BonusGrace: 200 * time.Millisecond},
		testLogger())

	if _, err := svc.FetchAggregate(context.Background(), "alice"); err != nil {
		t.Fatalf("Ошибка первого запроса: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := svc.FetchAggregate(context.Background(), "alice"); err != nil {
		t.Fatalf("Ошибка повторного запроса: %v", err)
	}
	if got := calls.count("/api/en/Client/GetClients"); got != 1 {
		t.Errorf("идентификатор должен браться из кэша, обращений к поиску: %d", got)
	}
	if got := calls.count("/api/en/Client/GetClientKpi"); got != 2 {
		t.Errorf("KPI должен запрашиваться заново, обращений: %d", got)
	}
}

// TestAggregate_SearchError: логическая ошибка поиска клиента — ошибка агрегации.
func TestAggregate_SearchError(t *testing.T) {
	svc, _ := testAggregate(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"HasError":     true,
			"AlertMessage": "Недостаточно прав",
		})
	})

	_, err := svc.FetchAggregate(context.Background(), "alice")
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if !strings.Contains(err.Error(), "Недостаточно прав") {
		t.Errorf("ошибка должна содержать сообщение бэкофиса: %v", err)
	}
	if errors.Is(err, backoffice.ErrAuthFailed) {
		t.Errorf("логическая ошибка не должна быть ErrAuthFailed: %v", err)
	}
}
