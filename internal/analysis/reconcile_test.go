package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func foodRecord(items ...FoodItem) *FoodRecord {
	rec := NewFoodRecord()
	rec.Details = append(rec.Details, items...)
	return rec
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "banana smoothie", NormalizeName("  Banana Smoothie!! "))
	assert.Equal(t, "dal tadka", NormalizeName("Dal   (tadka)"))
	assert.Equal(t, "", NormalizeName("***"))
}

func TestMergeTokenOverlapIsAConflict(t *testing.T) {
	caption := foodRecord(FoodItem{Item: "banana smoothie", Calories: 220, Confidence: 0.5})
	vision := foodRecord(FoodItem{Item: "smoothie", Calories: 180, Confidence: 0.7, Assumptions: []string{"tall glass"}})

	merged := Merge(caption, vision)
	require.Len(t, merged.Details, 1)
	item := merged.Details[0]
	assert.Equal(t, "banana smoothie", item.Item)
	assert.Equal(t, SourceUserCaption, item.Source)
	assert.Equal(t, 0.9, item.Confidence)
	assert.Equal(t, []string{"tall glass", "vision_conf:0.7"}, item.Assumptions)
	assert.Equal(t, 220.0, merged.Totals.Calories)
}

func TestMergeSharedTokenOnly(t *testing.T) {
	caption := foodRecord(FoodItem{Item: "paneer butter masala", Calories: 400})
	vision := foodRecord(FoodItem{Item: "masala chai", Calories: 90})

	merged := Merge(caption, vision)
	require.Len(t, merged.Details, 1)
}

func TestMergeDistinctItemsAreKept(t *testing.T) {
	caption := foodRecord(FoodItem{Item: "dal", Calories: 150, Confidence: 0.95})
	vision := foodRecord(FoodItem{Item: "rice", Calories: 205.6, Confidence: 0.65})

	merged := Merge(caption, vision)
	require.Len(t, merged.Details, 2)
	assert.Equal(t, SourceUserCaption, merged.Details[0].Source)
	assert.Equal(t, SourceVision, merged.Details[1].Source)
	assert.Equal(t, 356.0, merged.Totals.Calories)
	require.NotNil(t, merged.Totals.Confidence)
	assert.InDelta(t, 0.8, *merged.Totals.Confidence, 1e-9)
}

func TestMergeConcatenatesTotalAssumptionsWithoutDedup(t *testing.T) {
	caption := foodRecord(FoodItem{Item: "dal"})
	caption.Totals.Assumptions = []string{"home cooked"}
	vision := foodRecord(FoodItem{Item: "rice"})
	vision.Totals.Assumptions = []string{"home cooked", "one bowl"}

	merged := Merge(caption, vision)
	assert.Equal(t, []string{"home cooked", "home cooked", "one bowl"}, merged.Totals.Assumptions)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	caption := foodRecord(FoodItem{Item: "oats", Confidence: 0.4, Assumptions: []string{"milk"}})
	vision := foodRecord(FoodItem{Item: "oats", Confidence: 0.8})

	Merge(caption, vision)
	assert.Equal(t, []string{"milk"}, caption.Details[0].Assumptions)
	assert.Equal(t, 0.4, caption.Details[0].Confidence)
	assert.Equal(t, "", caption.Details[0].Source)
}

func TestMergeWithoutCaptionAndEmptyInputs(t *testing.T) {
	vision := foodRecord(FoodItem{Item: "apple", Calories: 95, Source: "usda"})
	merged := Merge(nil, vision)
	require.Len(t, merged.Details, 1)
	assert.Equal(t, "usda", merged.Details[0].Source)

	empty := Merge(nil, NewFoodRecord())
	assert.False(t, empty.HasDetails())
	assert.Nil(t, empty.Totals.Confidence)
	assert.Equal(t, 0.0, empty.Totals.Calories)
}
