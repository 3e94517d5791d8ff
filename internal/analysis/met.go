package analysis

import (
	_ "embed"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/met.yaml
var defaultMETTableYAML []byte

type metValues struct {
	Light    float64 `yaml:"light"`
	Moderate float64 `yaml:"moderate"`
	Vigorous float64 `yaml:"vigorous"`
}

type metActivity struct {
	Name      string   `yaml:"name"`
	Keywords  []string `yaml:"keywords"`
	metValues `yaml:",inline"`
}

// METTable maps activity names to metabolic equivalents.
type METTable struct {
	Default    metValues     `yaml:"default"`
	Activities []metActivity `yaml:"activities"`
}

func ParseMETTable(raw []byte) (*METTable, error) {
	var table METTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse MET table: %w", err)
	}
	if table.Default.Light <= 0 {
		return nil, fmt.Errorf("parse MET table: default.light must be positive")
	}
	return &table, nil
}

// DefaultMETTable returns the embedded table. It panics only if the embedded
// file is broken, which the package tests catch.
func DefaultMETTable() *METTable {
	table, err := ParseMETTable(defaultMETTableYAML)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup picks the MET for an activity. Unknown or ambiguous intensity
// resolves to the lowest value for the activity.
func (t *METTable) Lookup(activity, intensity string) float64 {
	values := t.Default
	name := strings.ToLower(activity)
	for _, candidate := range t.Activities {
		if containsAnyKeyword(name, candidate.Keywords) {
			values = candidate.metValues
			break
		}
	}

	var met float64
	switch normalizeIntensity(intensity) {
	case "moderate":
		met = values.Moderate
	case "vigorous":
		met = values.Vigorous
	default:
		met = values.Light
	}
	if met <= 0 {
		met = t.Default.Light
	}
	return met
}

// EstimateCalories applies kcal = MET * 3.5 * weight / 200 * minutes, the
// device bias, and rounds. Positive durations never yield zero.
func EstimateCalories(met, weightKg, durationMin, deviceBias float64) float64 {
	if durationMin <= 0 || met <= 0 || weightKg <= 0 {
		return 0
	}
	if deviceBias <= 0 {
		deviceBias = 1
	}
	kcal := math.Round(met * 3.5 * weightKg / 200 * durationMin * deviceBias)
	if kcal < 1 {
		kcal = 1
	}
	return kcal
}

func normalizeIntensity(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case value == "":
		return "unknown"
	case strings.Contains(value, "vigorous"), strings.Contains(value, "high"),
		strings.Contains(value, "hard"), strings.Contains(value, "intense"):
		return "vigorous"
	case strings.Contains(value, "moderate"), strings.Contains(value, "medium"):
		return "moderate"
	case strings.Contains(value, "light"), strings.Contains(value, "low"),
		strings.Contains(value, "easy"):
		return "light"
	default:
		return "unknown"
	}
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(text, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
