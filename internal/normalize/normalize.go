// Package normalize holds the defensive field normalizers shared by the
// ingestion pipelines. Vendor payloads are loosely typed and column names
// drift between versions, so every accessor takes an ordered list of
// candidate keys and resolves to the first usable value.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FirstString returns the first non-empty string value among the candidate keys.
func FirstString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := row[key]; ok {
			if str := ToString(val); str != "" {
				return str
			}
		}
	}
	return ""
}

// FirstStringOr is FirstString with a semantic default for absent fields.
func FirstStringOr(row map[string]any, fallback string, keys ...string) string {
	if str := FirstString(row, keys...); str != "" {
		return str
	}
	return fallback
}

// FirstFloat returns the first non-zero numeric value among the candidate keys.
func FirstFloat(row map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if val, ok := row[key]; ok {
			if f := ToFloat(val); f != 0 {
				return f
			}
		}
	}
	return 0
}

// FirstInt coerces the first present candidate to an integer, 0 when
// unparseable. Unlike FirstFloat it does not skip explicit zero values, so a
// genuine status 0 is preserved rather than falling through.
func FirstInt(row map[string]any, keys ...string) int {
	for _, key := range keys {
		if val, ok := row[key]; ok {
			return int(ToFloat(val))
		}
	}
	return 0
}

// ToString renders a scalar value as a trimmed string, "" for empty or zero.
func ToString(val any) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		if v == 0 {
			return ""
		}
		return strconv.Itoa(v)
	case int64:
		if v == 0 {
			return ""
		}
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

// ToFloat coerces a scalar value to float64, 0 when unparseable.
func ToFloat(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
		return 0
	case json.Number:
		if parsed, err := v.Float64(); err == nil {
			return parsed
		}
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Currency parses a pt-BR formatted money string ("R$ 1.234,56") into a
// float. '.' is the thousands separator and ',' the decimal separator.
// Numeric inputs pass through; anything malformed yields 0.0, never an error.
func Currency(val any) float64 {
	switch v := val.(type) {
	case nil:
		return 0
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if parsed, err := v.Float64(); err == nil {
			return parsed
		}
		return 0
	}

	s := ToString(val)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// Date converts a vendor date string to canonical YYYY-MM-DD. Accepted inputs
// are DD-MM-YYYY or DD/MM/YYYY (disambiguated by the presence of '-'), with
// any trailing time component truncated. Empty or unparseable input falls back
// to the provided now, so a malformed date never rejects its row.
func Date(raw string, now time.Time) string {
	clean := strings.TrimSpace(raw)
	if len(clean) > 10 {
		clean = clean[:10]
	}
	if clean == "" {
		return now.Format("2006-01-02")
	}
	layout := "02/01/2006"
	if strings.Contains(clean, "-") {
		layout = "02-01-2006"
	}
	parsed, err := time.Parse(layout, clean)
	if err != nil {
		return now.Format("2006-01-02")
	}
	return parsed.Format("2006-01-02")
}

// Timestamp parses a vendor timestamp that may carry a fractional-seconds
// suffix and an ISO 'T' separator ("2026-01-12T10:00:00.000Z"). The zero time
// and false are returned on failure.
func Timestamp(raw string) (time.Time, bool) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return time.Time{}, false
	}
	if idx := strings.Index(clean, "."); idx >= 0 {
		clean = clean[:idx]
	}
	clean = strings.TrimSuffix(clean, "Z")
	clean = strings.Replace(clean, "T", " ", 1)
	parsed, err := time.Parse("2006-01-02 15:04:05", clean)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
