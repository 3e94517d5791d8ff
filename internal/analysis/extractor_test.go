package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udaypartap979/cal2/internal/ai"
)

func TestExtractWorkoutEstimatesMissingCalories(t *testing.T) {
	gen := &scriptedGenerator{workout: fixed(`{"type":"workout","details":[{"activity":"walking","duration_min":30}],"totals":{}}`)}
	rec, err := newTestExtractor(gen).ExtractWorkout(context.Background(), TextContent("walked 30 minutes"))
	require.NoError(t, err)

	require.Len(t, rec.Details, 1)
	activity := rec.Details[0]
	assert.Equal(t, "unknown", activity.Intensity)
	assert.Equal(t, 103.0, activity.CaloriesBurned)
	assert.Contains(t, activity.Assumptions, "calories estimated from MET 2.8 at 70kg")
	assert.Equal(t, 103.0, rec.Totals.CaloriesBurned)
}

func TestExtractWorkoutKeepsReportedCalories(t *testing.T) {
	gen := &scriptedGenerator{workout: fixed(`{"type":"workout","details":[{"activity":"running","duration_min":"20 min","calories_burned":"249.6 kcal","intensity":"moderate"}],"totals":{"calories_burned":0,"confidence":0.7}}`)}
	rec, err := newTestExtractor(gen).ExtractWorkout(context.Background(), TextContent("ran 20 minutes"))
	require.NoError(t, err)

	assert.Equal(t, 250.0, rec.Details[0].CaloriesBurned)
	assert.Empty(t, rec.Details[0].Assumptions)
	assert.Equal(t, 250.0, rec.Totals.CaloriesBurned)
	require.NotNil(t, rec.Totals.Confidence)
	assert.Equal(t, 0.7, *rec.Totals.Confidence)
}

func TestExtractWorkoutZeroDurationCollapses(t *testing.T) {
	gen := &scriptedGenerator{workout: fixed(`{"type":"workout","details":[{"activity":"yoga","duration_min":0,"calories_burned":50}],"totals":{"calories_burned":50,"confidence":0.8}}`)}
	rec, err := newTestExtractor(gen).ExtractWorkout(context.Background(), TextContent("did some yoga"))
	require.NoError(t, err)

	require.Len(t, rec.Details, 1)
	assert.Equal(t, 0.0, rec.Details[0].CaloriesBurned)
	assert.Equal(t, 0.0, rec.Totals.CaloriesBurned)
	require.NotNil(t, rec.Totals.Confidence)
	assert.Equal(t, 0.0, *rec.Totals.Confidence)
	assert.Contains(t, rec.Totals.Assumptions, "no workout found")
}

func TestExtractMalformedFallsBackToEmptyRecords(t *testing.T) {
	var malformed []Kind
	gen := &scriptedGenerator{
		food:    fixed("Sorry, I cannot help with that."),
		workout: fixed(`{"type":"food","details":[]}`),
	}
	extractor := NewExtractor(gen, ExtractorOptions{
		WeightKg:    70,
		DeviceBias:  1,
		OnMalformed: func(kind Kind) { malformed = append(malformed, kind) },
	})

	food, err := extractor.ExtractFood(context.Background(), TextContent("lunch"))
	require.NoError(t, err)
	assert.False(t, food.HasDetails())
	assert.Equal(t, 0.0, food.Totals.Calories)

	workout, err := extractor.ExtractWorkout(context.Background(), TextContent("gym"))
	require.NoError(t, err)
	assert.False(t, workout.HasDetails())
	assert.Equal(t, []string{"no workout found"}, workout.Totals.Assumptions)
	require.NotNil(t, workout.Totals.Confidence)
	assert.Equal(t, 0.0, *workout.Totals.Confidence)

	assert.Equal(t, []Kind{KindFood, KindWorkout}, malformed)
}

func TestExtractFoodRepairsFencedJSON(t *testing.T) {
	answer := "```json\n{\"type\":\"food\",\"details\":[{\"item\":\"masala dosa\",\"quantity\":1,\"unit\":\"plate\",\"calories\":387,\"macros\":{\"protein\":\"8g\",\"fat\":16,\"carbs\":52},\"confidence\":0.8,},],\"totals\":{\"calories\":387,\"confidence\":0.8}}\n```"
	gen := &scriptedGenerator{food: fixed(answer)}
	rec, err := newTestExtractor(gen).ExtractFood(context.Background(), TextContent("masala dosa"))
	require.NoError(t, err)

	require.Len(t, rec.Details, 1)
	assert.Equal(t, "masala dosa", rec.Details[0].Item)
	assert.Equal(t, 8.0, rec.Details[0].Macros.Protein)
	assert.Equal(t, 387.0, rec.Totals.Calories)
}

func TestExtractFoodCoercesInvalidNumbers(t *testing.T) {
	gen := &scriptedGenerator{food: fixed(`{"type":"food","details":[{"item":"tea","quantity":"a cup","calories":-20,"confidence":3}],"totals":{"calories":"unknown"}}`)}
	rec, err := newTestExtractor(gen).ExtractFood(context.Background(), TextContent("tea"))
	require.NoError(t, err)

	item := rec.Details[0]
	assert.Equal(t, 0.0, item.Quantity)
	assert.Equal(t, 0.0, item.Calories)
	assert.Equal(t, 1.0, item.Confidence)
	assert.Equal(t, 0.0, rec.Totals.Calories)
	assert.Nil(t, rec.Totals.Confidence)
}

func TestExtractFoodCapsVenueMenuConfidence(t *testing.T) {
	gen := &scriptedGenerator{food: fixed(`{"type":"food","details":[{"item":"Big Mac","calories":563,"source":"venue_menu:mcdonalds","confidence":0.95}],"totals":{"calories":563}}`)}
	rec, err := newTestExtractor(gen).ExtractFood(context.Background(), TextContent("big mac"))
	require.NoError(t, err)
	assert.Equal(t, 0.6, rec.Details[0].Confidence)
}

func TestExtractPropagatesGenerationFailure(t *testing.T) {
	upstream := errors.New("timeout")
	gen := &scriptedGenerator{food: func(ai.Prompt) (string, error) { return "", upstream }}
	_, err := newTestExtractor(gen).ExtractFood(context.Background(), TextContent("rice"))
	require.ErrorIs(t, err, upstream)
}
