package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMETTableLoads(t *testing.T) {
	table := DefaultMETTable()
	require.NotEmpty(t, table.Activities)
	assert.Equal(t, 2.5, table.Default.Light)
}

func TestMETLookup(t *testing.T) {
	table := DefaultMETTable()
	assert.Equal(t, 11.0, table.Lookup("Morning jog", "vigorous"))
	assert.Equal(t, 2.8, table.Lookup("walking", "unknown"))
	assert.Equal(t, 3.5, table.Lookup("walking", "medium"))
	assert.Equal(t, 2.5, table.Lookup("something new", ""))
	assert.Equal(t, 6.0, table.Lookup("something new", "high"))
}

func TestEstimateCalories(t *testing.T) {
	assert.Equal(t, 103.0, EstimateCalories(2.8, 70, 30, 1))
	assert.Equal(t, 93.0, EstimateCalories(2.8, 70, 30, 0.9))
	assert.Equal(t, 0.0, EstimateCalories(2.8, 70, 0, 1))
	assert.Equal(t, 1.0, EstimateCalories(1, 1, 0.01, 1))
	assert.Equal(t, 103.0, EstimateCalories(2.8, 70, 30, 0), "non-positive bias means no bias")
}

func TestParseMETTableRejectsMissingDefault(t *testing.T) {
	_, err := ParseMETTable([]byte("activities: []\n"))
	require.Error(t, err)

	_, err = ParseMETTable([]byte("default: [1, 2"))
	require.Error(t, err)
}
