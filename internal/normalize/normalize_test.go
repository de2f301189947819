package normalize

import (
	"fmt"
	"strconv"
	"testing"
	"time"
)

func TestCurrencyBrazilianFormat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{"R$ 1.234,56", 1234.56},
		{"R$ 150,00", 150},
		{"1.000.000,99", 1000000.99},
		{"R$0,50", 0.5},
		{1234.56, 1234.56},
		{150, 150},
		{nil, 0},
		{"", 0},
		{"abc", 0},
		{"R$ --", 0},
	}
	for _, tc := range cases {
		if got := Currency(tc.in); got != tc.want {
			t.Errorf("Currency(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCurrencyIdempotentOnCanonicalOutput(t *testing.T) {
	first := Currency("R$ 1.234,56")
	canonical := strconv.FormatFloat(first, 'f', 2, 64)
	// Canonical output uses '.' as decimal separator; re-parsing it through the
	// pt-BR rules must not change the value.
	again := Currency(fmt.Sprintf("%s,%s", canonical[:len(canonical)-3], canonical[len(canonical)-2:]))
	if first != again {
		t.Fatalf("currency not idempotent: %v then %v", first, again)
	}
}

func TestDateFormats(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		want string
	}{
		{"12-01-2026", "2026-01-12"},
		{"12/01/2026", "2026-01-12"},
		{"12-01-2026 14:30:00", "2026-01-12"},
		{"31/12/2025", "2025-12-31"},
		{"", "2026-01-15"},
		{"not a date", "2026-01-15"},
		{"2026-01-12", "2026-01-15"}, // ISO input is not a supported vendor format
	}
	for _, tc := range cases {
		if got := Date(tc.in, now); got != tc.want {
			t.Errorf("Date(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDateIsUniquePerInput(t *testing.T) {
	now := time.Now()
	a := Date("01-02-2026", now)
	b := Date("01/02/2026", now)
	if a != b || a != "2026-02-01" {
		t.Fatalf("expected both formats to map to 2026-02-01, got %q and %q", a, b)
	}
}

func TestTimestampTolerance(t *testing.T) {
	cases := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{"2026-01-12T10:00:00.000Z", true, time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)},
		{"2026-01-12T10:00:00Z", true, time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)},
		{"2026-01-12 10:00:00", true, time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)},
		{"", false, time.Time{}},
		{"garbage", false, time.Time{}},
	}
	for _, tc := range cases {
		got, ok := Timestamp(tc.in)
		if ok != tc.ok {
			t.Errorf("Timestamp(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(tc.want) {
			t.Errorf("Timestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFirstStringFallbackOrder(t *testing.T) {
	row := map[string]any{
		"especialidade":      "",
		"nome_especialidade": "Cardiologia",
	}
	if got := FirstString(row, "especialidade", "nome_especialidade"); got != "Cardiologia" {
		t.Fatalf("expected fallback to nome_especialidade, got %q", got)
	}
	if got := FirstStringOr(map[string]any{}, "Geral", "especialidade"); got != "Geral" {
		t.Fatalf("expected default Geral, got %q", got)
	}
}

func TestFirstIntCoercion(t *testing.T) {
	if got := FirstInt(map[string]any{"status_id": "5"}, "status_id", "status"); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := FirstInt(map[string]any{"status": float64(7)}, "status_id", "status"); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := FirstInt(map[string]any{"status_id": "abc"}, "status_id"); got != 0 {
		t.Fatalf("expected unparseable status to coerce to 0, got %d", got)
	}
}
