package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kaptinlin/jsonrepair"

	"github.com/udaypartap979/cal2/internal/ai"
)

// ErrMalformedExtraction marks model output that is not valid JSON or carries
// the wrong type tag. It is recovered locally and never returned to callers.
var ErrMalformedExtraction = errors.New("malformed extraction")

type Labeler interface {
	ClassifyLabel(ctx context.Context, prompt ai.Prompt) (string, error)
}

type Generator interface {
	GenerateStructured(ctx context.Context, prompt ai.Prompt, schemaHint string) (string, error)
}

type ExtractorOptions struct {
	WeightKg      float64
	DeviceBias    float64
	METTable      *METTable
	FoodCacheSize int
	// OnMalformed is called once per recovered malformed response.
	OnMalformed func(kind Kind)
}

type Extractor struct {
	gen         Generator
	met         *METTable
	weightKg    float64
	deviceBias  float64
	itemCache   *lru.Cache[string, []FoodItem]
	onMalformed func(kind Kind)
}

func NewExtractor(gen Generator, opts ExtractorOptions) *Extractor {
	if opts.WeightKg <= 0 {
		opts.WeightKg = 70
	}
	if opts.DeviceBias <= 0 {
		opts.DeviceBias = 1
	}
	if opts.METTable == nil {
		opts.METTable = DefaultMETTable()
	}
	e := &Extractor{
		gen:         gen,
		met:         opts.METTable,
		weightKg:    opts.WeightKg,
		deviceBias:  opts.DeviceBias,
		onMalformed: opts.OnMalformed,
	}
	if opts.FoodCacheSize > 0 {
		cache, err := lru.New[string, []FoodItem](opts.FoodCacheSize)
		if err == nil {
			e.itemCache = cache
		}
	}
	return e
}

func (e *Extractor) ExtractFood(ctx context.Context, content Content) (*FoodRecord, error) {
	prompt := ai.Prompt{
		System: foodSystemPrompt,
		User:   "Extract the food consumed.\n" + content.describe(),
		Images: content.images(),
	}
	raw, err := e.gen.GenerateStructured(ctx, prompt, FoodSchemaHint)
	if err != nil {
		return nil, fmt.Errorf("generate food extraction: %w", err)
	}
	obj, err := decodeRecordObject(raw, KindFood)
	if err != nil {
		e.malformed(KindFood, raw, err)
		return NewFoodRecord(), nil
	}
	return CoerceFood(obj), nil
}

func (e *Extractor) ExtractWorkout(ctx context.Context, content Content) (*WorkoutRecord, error) {
	prompt := ai.Prompt{
		System: workoutSystemPrompt,
		User: fmt.Sprintf(
			"weight_kg=%g device_bias=%g\nExtract the exercise performed.\n%s",
			e.weightKg,
			e.deviceBias,
			content.describe(),
		),
		Images: content.images(),
	}
	raw, err := e.gen.GenerateStructured(ctx, prompt, WorkoutSchemaHint)
	if err != nil {
		return nil, fmt.Errorf("generate workout extraction: %w", err)
	}
	obj, err := decodeRecordObject(raw, KindWorkout)
	if err != nil {
		e.malformed(KindWorkout, raw, err)
		return NewZeroWorkoutRecord(), nil
	}
	return e.finalizeWorkout(CoerceWorkout(obj)), nil
}

func (e *Extractor) malformed(kind Kind, raw string, err error) {
	log.Printf("extraction malformed kind=%s err=%v raw=%q", kind, err, truncateForLog(raw, 400))
	if e.onMalformed != nil {
		e.onMalformed(kind)
	}
}

// finalizeWorkout enforces the energy invariants on a coerced record:
// positive durations always carry calories and an all-zero duration record
// collapses into the zero workout record.
func (e *Extractor) finalizeWorkout(rec *WorkoutRecord) *WorkoutRecord {
	totalDuration := 0.0
	for i := range rec.Details {
		totalDuration += rec.Details[i].DurationMin
		e.estimateActivity(&rec.Details[i])
	}
	if totalDuration <= 0 {
		for i := range rec.Details {
			rec.Details[i].CaloriesBurned = 0
		}
		rec.Totals.CaloriesBurned = 0
		rec.Totals.Confidence = floatPtr(0)
		if !containsString(rec.Totals.Assumptions, noWorkoutAssumption) {
			rec.Totals.Assumptions = append(rec.Totals.Assumptions, noWorkoutAssumption)
		}
		return rec
	}
	if rec.Totals.CaloriesBurned <= 0 {
		rec.Totals.CaloriesBurned = sumActivityCalories(rec.Details)
	}
	rec.Totals.CaloriesBurned = math.Round(rec.Totals.CaloriesBurned)
	return rec
}

func (e *Extractor) estimateActivity(activity *WorkoutActivity) {
	activity.CaloriesBurned = math.Round(activity.CaloriesBurned)
	if activity.DurationMin <= 0 || activity.CaloriesBurned > 0 {
		return
	}
	met := e.met.Lookup(activity.Activity, activity.Intensity)
	activity.CaloriesBurned = EstimateCalories(met, e.weightKg, activity.DurationMin, e.deviceBias)
	activity.Assumptions = append(activity.Assumptions, fmt.Sprintf("calories estimated from MET %.1f at %gkg", met, e.weightKg))
}

// CoerceFood turns a decoded food object into a FoodRecord, replacing every
// missing or invalid number with 0.
func CoerceFood(obj map[string]any) *FoodRecord {
	rec := NewFoodRecord()
	for _, raw := range asList(obj["details"]) {
		entry := asMap(raw)
		if entry == nil {
			continue
		}
		macros := asMap(entry["macros"])
		item := FoodItem{
			Item:     toString(entry["item"]),
			Quantity: nonNegative(entry["quantity"]),
			Unit:     toString(entry["unit"]),
			Calories: nonNegative(entry["calories"]),
			Macros: Macros{
				Protein: nonNegative(macros["protein"]),
				Fat:     nonNegative(macros["fat"]),
				Carbs:   nonNegative(macros["carbs"]),
			},
			Brand:       toString(entry["brand"]),
			Source:      toString(entry["source"]),
			Confidence:  clamp01(ParseNumber(entry["confidence"], 0)),
			Assumptions: toStringList(entry["assumptions"]),
		}
		if strings.HasPrefix(strings.ToLower(item.Source), venueMenuPrefix) && item.Confidence > 0.6 {
			item.Confidence = 0.6
		}
		rec.Details = append(rec.Details, item)
	}

	totals := asMap(obj["totals"])
	rec.Totals.Calories = nonNegative(totals["calories"])
	rec.Totals.Assumptions = toStringList(totals["assumptions"])
	rec.Totals.Confidence = optionalConfidence(totals["confidence"])
	return rec
}

func CoerceWorkout(obj map[string]any) *WorkoutRecord {
	rec := &WorkoutRecord{Details: []WorkoutActivity{}}
	for _, raw := range asList(obj["details"]) {
		entry := asMap(raw)
		if entry == nil {
			continue
		}
		intensity := toString(entry["intensity"])
		if intensity == "" {
			intensity = "unknown"
		}
		rec.Details = append(rec.Details, WorkoutActivity{
			Activity:       toString(entry["activity"]),
			DurationMin:    nonNegative(entry["duration_min"]),
			CaloriesBurned: nonNegative(entry["calories_burned"]),
			Intensity:      intensity,
			Assumptions:    toStringList(entry["assumptions"]),
			Confidence:     optionalConfidence(entry["confidence"]),
		})
	}

	totals := asMap(obj["totals"])
	rec.Totals.CaloriesBurned = nonNegative(totals["calories_burned"])
	rec.Totals.Assumptions = toStringList(totals["assumptions"])
	rec.Totals.Confidence = optionalConfidence(totals["confidence"])
	return rec
}

// decodeRecordObject isolates the JSON object in a model answer, repairs it
// if needed and checks the type tag.
func decodeRecordObject(raw string, want Kind) (map[string]any, error) {
	candidate := isolateJSONObject(raw)
	if candidate == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedExtraction)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
		}
		obj = nil
		if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
			return nil, fmt.Errorf("%w: repaired json still invalid: %v", ErrMalformedExtraction, err)
		}
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedExtraction)
	}

	tag := strings.ToLower(toString(obj["type"]))
	if tag != string(want) {
		return nil, fmt.Errorf("%w: type %q, want %q", ErrMalformedExtraction, tag, want)
	}
	return obj, nil
}

func isolateJSONObject(answer string) string {
	candidate := strings.TrimSpace(answer)
	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimSpace(strings.TrimPrefix(candidate, "```json"))
		candidate = strings.TrimSpace(strings.TrimPrefix(candidate, "```"))
		candidate = strings.TrimSpace(strings.TrimSuffix(candidate, "```"))
	}
	if !strings.HasPrefix(candidate, "{") {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start >= 0 && end > start {
			candidate = strings.TrimSpace(candidate[start : end+1])
		}
	}
	return candidate
}

func sumActivityCalories(details []WorkoutActivity) float64 {
	total := 0.0
	for _, activity := range details {
		total += activity.CaloriesBurned
	}
	return math.Round(total)
}

func sumFoodCalories(details []FoodItem) float64 {
	total := 0.0
	for _, item := range details {
		total += item.Calories
	}
	return math.Round(total)
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
