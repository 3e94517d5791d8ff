package analysis

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// EnrichFood re-queries each named item on its own when a record lists items
// but reports a zero total, then recomputes the total by summation. A
// per-item result supersedes the original only if it carries calories.
func (e *Extractor) EnrichFood(ctx context.Context, rec *FoodRecord) *FoodRecord {
	if !rec.HasDetails() || rec.Totals.Calories > 0 {
		return rec
	}

	enriched := &FoodRecord{
		Details: make([]FoodItem, 0, len(rec.Details)),
		Totals: FoodTotals{
			Assumptions: cloneStrings(rec.Totals.Assumptions),
			Confidence:  rec.Totals.Confidence,
		},
	}
	for _, item := range rec.Details {
		replacement := e.lookupItem(ctx, item)
		if len(replacement) == 0 {
			enriched.Details = append(enriched.Details, item.clone())
			continue
		}
		enriched.Details = append(enriched.Details, replacement...)
	}
	enriched.Totals.Calories = sumFoodCalories(enriched.Details)
	if enriched.Totals.Calories > 0 {
		enriched.Totals.Assumptions = append(enriched.Totals.Assumptions, "totals recomputed from per-item lookups")
	}
	return enriched
}

func (e *Extractor) lookupItem(ctx context.Context, item FoodItem) []FoodItem {
	query := itemQuery(item)
	if query == "" {
		return nil
	}
	key := NormalizeName(query)
	if e.itemCache != nil {
		if cached, ok := e.itemCache.Get(key); ok {
			return cloneItems(cached)
		}
	}

	result, err := e.ExtractFood(ctx, TextContent(query))
	if err != nil {
		log.Printf("food item enrichment failed item=%q err=%v", query, err)
		return nil
	}
	if sumFoodCalories(result.Details) <= 0 {
		return nil
	}
	if e.itemCache != nil {
		e.itemCache.Add(key, cloneItems(result.Details))
	}
	return result.Details
}

func itemQuery(item FoodItem) string {
	name := strings.TrimSpace(item.Item)
	if name == "" {
		return ""
	}
	parts := make([]string, 0, 4)
	if item.Quantity > 0 {
		parts = append(parts, strconv.FormatFloat(item.Quantity, 'f', -1, 64))
		if unit := strings.TrimSpace(item.Unit); unit != "" {
			parts = append(parts, unit)
		}
	}
	parts = append(parts, name)
	if brand := strings.TrimSpace(item.Brand); brand != "" {
		parts = append(parts, "("+brand+")")
	}
	return strings.Join(parts, " ")
}

func cloneItems(items []FoodItem) []FoodItem {
	out := make([]FoodItem, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}

// EnrichWorkout handles a record that lists activities but reports a zero
// total. The estimator is invoked again on the transcript first; if every
// duration is still zero the transcript is scanned for durations as a last
// resort (see ScanDurations) and calories are recomputed from the details.
func (e *Extractor) EnrichWorkout(ctx context.Context, rec *WorkoutRecord, transcript string) *WorkoutRecord {
	if !rec.HasDetails() || rec.Totals.CaloriesBurned > 0 {
		return rec
	}

	again, err := e.ExtractWorkout(ctx, TextContent(transcript))
	if err != nil {
		log.Printf("workout re-estimation failed err=%v", err)
	} else if again.Totals.CaloriesBurned > 0 {
		return again
	} else if again.HasDetails() {
		rec = again
	}

	out := cloneWorkout(rec)
	if allDurationsZero(out.Details) {
		durations := ScanDurations(transcript)
		for i := range out.Details {
			if i >= len(durations) {
				break
			}
			out.Details[i].DurationMin = durations[i]
			out.Details[i].Assumptions = append(out.Details[i].Assumptions, "duration read from transcript")
		}
	}

	for i := range out.Details {
		e.estimateActivity(&out.Details[i])
	}
	total := sumActivityCalories(out.Details)
	if total <= 0 {
		return out
	}
	out.Totals.CaloriesBurned = total
	out.Totals.Assumptions = removeString(out.Totals.Assumptions, noWorkoutAssumption)
	out.Totals.Assumptions = append(out.Totals.Assumptions, "totals recomputed from activity details")
	if out.Totals.Confidence == nil || *out.Totals.Confidence == 0 {
		out.Totals.Confidence = floatPtr(backfillConfidence)
	}
	return out
}

const backfillConfidence = 0.3

// durationPattern is a heuristic, not a parser: "<n> min(s)/minute(s)",
// "<n> h/hr(s)/hour(s)" and the spaceless "<n>mins" form, in order of
// appearance.
var durationPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(minutes?|mins?|hours?|hrs?|h)\b`)

// ScanDurations returns every duration mentioned in text, in minutes.
func ScanDurations(text string) []float64 {
	matches := durationPattern.FindAllStringSubmatch(text, -1)
	out := make([]float64, 0, len(matches))
	for _, match := range matches {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil || value <= 0 {
			continue
		}
		if strings.HasPrefix(strings.ToLower(match[2]), "h") {
			value *= 60
		}
		out = append(out, value)
	}
	return out
}

func allDurationsZero(details []WorkoutActivity) bool {
	for _, activity := range details {
		if activity.DurationMin > 0 {
			return false
		}
	}
	return true
}

func cloneWorkout(rec *WorkoutRecord) *WorkoutRecord {
	out := &WorkoutRecord{
		Details: make([]WorkoutActivity, len(rec.Details)),
		Totals: WorkoutTotals{
			CaloriesBurned: rec.Totals.CaloriesBurned,
			Assumptions:    cloneStrings(rec.Totals.Assumptions),
			Confidence:     rec.Totals.Confidence,
		},
	}
	for i, activity := range rec.Details {
		activity.Assumptions = cloneStrings(activity.Assumptions)
		out.Details[i] = activity
	}
	return out
}

func removeString(values []string, target string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value != target {
			out = append(out, value)
		}
	}
	return out
}

func describeWorkout(rec *WorkoutRecord) string {
	if rec == nil {
		return "none"
	}
	return fmt.Sprintf("activities=%d kcal=%.0f", len(rec.Details), rec.Totals.CaloriesBurned)
}
