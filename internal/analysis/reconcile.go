package analysis

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var nameNoise = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

const captionConfidenceFloor = 0.9

// NormalizeName lower-cases an item name and strips everything except
// letters, digits and whitespace.
func NormalizeName(name string) string {
	lowered := strings.ToLower(name)
	cleaned := nameNoise.ReplaceAllString(lowered, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

type seenName struct {
	name  string
	index int
}

// Merge reconciles caption-derived and vision-derived food records. Caption
// items are authoritative; a vision item that names the same food is folded
// into the caption item's assumptions instead of becoming a second line.
// Neither input is modified.
func Merge(caption, vision *FoodRecord) *FoodRecord {
	merged := NewFoodRecord()
	seen := make([]seenName, 0)

	if caption != nil {
		for _, item := range caption.Details {
			entry := item.clone()
			entry.Source = SourceUserCaption
			if entry.Confidence < captionConfidenceFloor {
				entry.Confidence = captionConfidenceFloor
			}
			merged.Details = append(merged.Details, entry)
			seen = append(seen, seenName{name: NormalizeName(entry.Item), index: len(merged.Details) - 1})
		}
	}

	if vision != nil {
		for _, item := range vision.Details {
			name := NormalizeName(item.Item)
			if idx, ok := findConflict(seen, name); ok {
				target := &merged.Details[idx]
				target.Assumptions = append(target.Assumptions, item.Assumptions...)
				target.Assumptions = append(target.Assumptions, "vision_conf:"+strconv.FormatFloat(item.Confidence, 'f', -1, 64))
				continue
			}
			entry := item.clone()
			if entry.Source == "" {
				entry.Source = SourceVision
			}
			merged.Details = append(merged.Details, entry)
			seen = append(seen, seenName{name: name, index: len(merged.Details) - 1})
		}
	}

	merged.Totals.Calories = sumFoodCalories(merged.Details)
	merged.Totals.Confidence = averageConfidence(merged.Details)
	if caption != nil {
		merged.Totals.Assumptions = append(merged.Totals.Assumptions, caption.Totals.Assumptions...)
	}
	if vision != nil {
		merged.Totals.Assumptions = append(merged.Totals.Assumptions, vision.Totals.Assumptions...)
	}
	return merged
}

// findConflict applies exact, substring and shared-token tests in that
// order and returns the index of the first matching merged item.
func findConflict(seen []seenName, name string) (int, bool) {
	for _, s := range seen {
		if s.name == name {
			return s.index, true
		}
	}
	if name == "" {
		return 0, false
	}
	for _, s := range seen {
		if s.name == "" {
			continue
		}
		if strings.Contains(s.name, name) || strings.Contains(name, s.name) {
			return s.index, true
		}
	}
	tokens := strings.Fields(name)
	for _, s := range seen {
		for _, seenToken := range strings.Fields(s.name) {
			for _, token := range tokens {
				if token == seenToken {
					return s.index, true
				}
			}
		}
	}
	return 0, false
}

func averageConfidence(details []FoodItem) *float64 {
	if len(details) == 0 {
		return nil
	}
	total := 0.0
	count := 0
	for _, item := range details {
		if math.IsNaN(item.Confidence) || math.IsInf(item.Confidence, 0) {
			continue
		}
		total += item.Confidence
		count++
	}
	if count == 0 {
		return nil
	}
	return floatPtr(total / float64(count))
}
