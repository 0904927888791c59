package model

import (
	"encoding/json"
	"testing"
)

// TestNextLevelRemaining проверяет расчёт прогресса до следующего уровня.
func TestNextLevelRemaining(t *testing.T) {
	tests := []struct {
		name          string
		levelID       string
		deposit90d    float64
		wantNext      string
		wantRemaining float64
		wantOK        bool
	}{
		{"gold до plat", "gold", 350000, "plat", 150000, true},
		{"iron до bronze", "iron", 0, "bronze", 50000, true},
		{"перевыполнение не уходит в минус", "silver", 250000, "gold", 0, true},
		{"diamond — старший уровень", "diamond", 5000000, "", 0, true},
		{"неизвестный уровень", "mystery", 100, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, remaining, ok := NextLevelRemaining(tt.levelID, tt.deposit90d)
			if ok != tt.wantOK {
				t.Fatalf("ожидался ok=%v, получен %v", tt.wantOK, ok)
			}
			if next != tt.wantNext {
				t.Errorf("ожидался next=%q, получен %q", tt.wantNext, next)
			}
			if remaining != tt.wantRemaining {
				t.Errorf("ожидалось remaining=%v, получено %v", tt.wantRemaining, remaining)
			}
		})
	}
}

// TestDirectoryEntry_UnmarshalJSON проверяет толерантный разбор записи:
// плоские поля уровня и вложенный объект level.
func TestDirectoryEntry_UnmarshalJSON(t *testing.T) {
	t.Run("плоские поля", func(t *testing.T) {
		var e DirectoryEntry
		data := []byte(`{"id":555,"username":"alice","levelId":"gold","levelName":"Altın","deposit90d":350000}`)
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("Ошибка разбора: %v", err)
		}
		if e.ID != 555 || e.Username != "alice" || e.LevelID != "gold" {
			t.Errorf("неожиданная запись: %+v", e)
		}
		if e.Deposit90d != 350000 {
			t.Errorf("ожидался deposit90d=350000, получен %v", e.Deposit90d)
		}
	})

	t.Run("вложенный level", func(t *testing.T) {
		var e DirectoryEntry
		data := []byte(`{"id":7,"username":"bob","level":{"id":"silver","name":"Gümüş"}}`)
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("Ошибка разбора: %v", err)
		}
		if e.LevelID != "silver" {
			t.Errorf("ожидался levelId=silver, получен %q", e.LevelID)
		}
		if e.LevelName != "Gümüş" {
			t.Errorf("ожидался levelName=Gümüş, получен %q", e.LevelName)
		}
	})

	t.Run("плоские поля приоритетнее вложенных", func(t *testing.T) {
		var e DirectoryEntry
		data := []byte(`{"id":8,"username":"carol","levelId":"gold","level":{"id":"silver"}}`)
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("Ошибка разбора: %v", err)
		}
		if e.LevelID != "gold" {
			t.Errorf("ожидался levelId=gold, получен %q", e.LevelID)
		}
	})
}
