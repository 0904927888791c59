package dateutil

import (
	"testing"
	"time"
)

// TestParseAny_Strings проверяет разбор строковых форматов дат.
func TestParseAny_Strings(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "дата с микросекундами",
			input: "2025-07-11 08:05:19.859069",
			want:  time.Date(2025, 7, 11, 8, 5, 19, 859069000, time.UTC),
		},
		{
			name:  "дата без времени в европейском формате",
			input: "22.12.2025",
			want:  time.Date(2025, 12, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "дата со слэшами",
			input: "22/12/2025 10:30:00",
			want:  time.Date(2025, 12, 22, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "ISO с зоной Z",
			input: "2025-01-02T10:00:00Z",
			want:  time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "ISO без зоны",
			input: "2025-01-02T10:00:00",
			want:  time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "пробелы вокруг даты",
			input: "  2025-03-04 05:06:07  ",
			want:  time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAny(tt.input)
			if !ok {
				t.Fatalf("ожидался успешный разбор %q", tt.input)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ожидалось %v, получено %v", tt.want, got)
			}
		})
	}
}

// TestParseAny_Unix проверяет числовые timestamp: секунды и миллисекунды.
func TestParseAny_Unix(t *testing.T) {
	// 1750000000 сек и 1750000000000 мс — один и тот же момент
	want := time.Unix(1750000000, 0)

	got, ok := ParseAny(float64(1750000000))
	if !ok {
		t.Fatal("ожидался успешный разбор секунд")
	}
	if !got.Equal(want) {
		t.Errorf("секунды: ожидалось %v, получено %v", want, got)
	}

	got, ok = ParseAny(float64(1750000000000))
	if !ok {
		t.Fatal("ожидался успешный разбор миллисекунд")
	}
	if !got.Equal(want) {
		t.Errorf("миллисекунды: ожидалось %v, получено %v", want, got)
	}

	got, ok = ParseAny(int64(1750000000))
	if !ok || !got.Equal(want) {
		t.Errorf("int64: ожидалось %v, получено %v (ok=%v)", want, got, ok)
	}
}

// TestParseAny_Invalid проверяет, что мусор не считается датой.
func TestParseAny_Invalid(t *testing.T) {
	inputs := []any{
		"not-a-date",
		"",
		"   ",
		nil,
		float64(0),
		float64(-1),
		[]any{"2025-01-01"},
		map[string]any{},
	}

	for _, input := range inputs {
		if got, ok := ParseAny(input); ok {
			t.Errorf("для %v ожидался отказ, получено %v", input, got)
		}
	}
}

// TestParseAny_Passthrough проверяет прозрачную передачу time.Time.
func TestParseAny_Passthrough(t *testing.T) {
	want := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	got, ok := ParseAny(want)
	if !ok || !got.Equal(want) {
		t.Errorf("ожидалось %v, получено %v (ok=%v)", want, got, ok)
	}

	if _, ok := ParseAny(time.Time{}); ok {
		t.Error("нулевое время не должно считаться датой")
	}
}
