package analysis

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonNumericChars = regexp.MustCompile(`[^0-9.\-]+`)
	firstNumber     = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// ParseNumber leniently converts v into a finite float64. Strings have their
// non-numeric characters stripped, so "250 kcal" yields 250. Anything that
// cannot be read as a finite number yields def.
func ParseNumber(v any, def float64) float64 {
	switch n := v.(type) {
	case nil:
		return def
	case float64:
		return finiteOr(n, def)
	case float32:
		return finiteOr(float64(n), def)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return finiteOr(f, def)
	case string:
		return parseNumericString(n, def)
	default:
		return def
	}
}

func parseNumericString(raw string, def float64) float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return def
	}
	cleaned := nonNumericChars.ReplaceAllString(trimmed, "")
	if cleaned != "" {
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return finiteOr(f, def)
		}
	}
	// "2-3 cups" or "1.5.2" survive stripping but do not parse.
	match := firstNumber.FindString(trimmed)
	if match == "" {
		return def
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return def
	}
	return finiteOr(f, def)
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func nonNegative(v any) float64 {
	n := ParseNumber(v, 0)
	if n < 0 {
		return 0
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func optionalConfidence(v any) *float64 {
	if v == nil {
		return nil
	}
	n := ParseNumber(v, math.NaN())
	if math.IsNaN(n) {
		return nil
	}
	return floatPtr(clamp01(n))
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func toStringList(value any) []string {
	out := []string{}
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asMap(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

func asList(value any) []any {
	list, _ := value.([]any)
	return list
}
