package analysis

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
)

var energyToken = regexp.MustCompile(`\b\d{2,5}\b`)

var detailEnergyKeys = []string{"calories_burned", "calories", "calories_text"}

// ResolveTotalEnergy returns a single best-effort kcal figure for any record
// shape: typed records, decoded JSON maps, JSON text or garbage. It is the
// last check before persistence and never fails.
//
// Candidates are the top-level totals, the composite sub-record totals and
// the sum over every detail list. The maximum positive candidate wins; a
// total and a detail sum describing the same food must not be added.
func ResolveTotalEnergy(record any) int {
	root := toObject(record)

	candidates := make([]float64, 0, 8)
	add := func(value any) {
		if n := ParseNumber(value, 0); n > 0 {
			candidates = append(candidates, n)
		}
	}

	totals := asMap(root["totals"])
	add(totals["calories_burned"])
	add(totals["calories"])

	workout := asMap(root["workout"])
	food := asMap(root["food"])
	for _, sub := range []map[string]any{workout, food} {
		subTotals := asMap(sub["totals"])
		add(subTotals["calories_burned"])
		add(subTotals["calories"])
	}

	detailSum := 0.0
	for _, list := range []any{root["details"], workout["details"], food["details"]} {
		for _, raw := range asList(list) {
			detailSum += detailEnergy(asMap(raw))
		}
	}
	add(detailSum)

	if len(candidates) > 0 {
		best := candidates[0]
		for _, c := range candidates[1:] {
			best = math.Max(best, c)
		}
		return int(math.Round(best))
	}

	if n := scanEnergyToken(record, root); n > 0 {
		return n
	}
	return 0
}

func detailEnergy(entry map[string]any) float64 {
	for _, key := range detailEnergyKeys {
		if n := ParseNumber(entry[key], 0); n > 0 {
			return n
		}
	}
	return 0
}

func scanEnergyToken(record any, root map[string]any) int {
	var serialized string
	switch v := record.(type) {
	case string:
		serialized = v
	case []byte:
		serialized = string(v)
	default:
		encoded, err := json.Marshal(root)
		if err != nil {
			return 0
		}
		serialized = string(encoded)
	}
	match := energyToken.FindString(serialized)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func toObject(record any) map[string]any {
	switch v := record.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		return decodeObject([]byte(v))
	case []byte:
		return decodeObject(v)
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return map[string]any{}
	}
	return decodeObject(encoded)
}

func decodeObject(raw []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}
