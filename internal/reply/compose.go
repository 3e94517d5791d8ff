// Package reply renders analysis records as chat messages.
package reply

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/udaypartap979/cal2/internal/analysis"
)

const (
	Unrecognized = "Sorry, I couldn't work out whether that was a meal or a workout. Try describing it in a sentence."
	Unsupported  = "Sorry, I can only read text, photos and voice notes."
	Failure      = "Sorry, something went wrong while analyzing that. Please try again."

	foodHeader    = "Meal breakdown"
	workoutHeader = "Workout summary"

	transcriptExcerptLimit = 160
)

// Daily reference intake shown under every food reply.
const (
	dailyCalories = 2000
	dailyProtein  = 75
	dailyFat      = 65
	dailyCarbs    = 250
)

// Compose renders a food or workout record. Composite records are rendered
// with ComposeComposite rules; anything else gets the fixed apology.
func Compose(record analysis.Record) string {
	switch rec := record.(type) {
	case *analysis.FoodRecord:
		if rec == nil {
			return Unrecognized
		}
		return composeFood(rec)
	case *analysis.WorkoutRecord:
		if rec == nil {
			return Unrecognized
		}
		return composeWorkout(rec)
	case *analysis.CompositeRecord:
		if rec == nil {
			return Unrecognized
		}
		return ComposeComposite(rec)
	default:
		return Unrecognized
	}
}

// ComposeComposite picks the reply for a voice-note analysis: food only,
// workout only, both concatenated, or an apology quoting the transcript.
func ComposeComposite(rec *analysis.CompositeRecord) string {
	hasFood := rec.HasFood()
	hasWorkout := rec.HasWorkout()
	switch {
	case hasFood && hasWorkout:
		return composeFood(rec.Food) + "\n\n" + composeWorkout(rec.Workout)
	case hasFood:
		return composeFood(rec.Food)
	case hasWorkout:
		return composeWorkout(rec.Workout)
	default:
		return TranscriptApology(rec.Transcript)
	}
}

func TranscriptApology(transcript string) string {
	quoted := excerpt(strings.TrimSpace(transcript), transcriptExcerptLimit)
	if quoted == "" {
		return "Sorry, I couldn't make out any words in that voice note. Please try again."
	}
	return fmt.Sprintf("I heard: %q\nbut couldn't find a meal or a workout in it. Try saying what you ate or which exercise you did and for how long.", quoted)
}

// FailureWithReference is sent when every analysis path for a message failed
// and the input was kept for inspection.
func FailureWithReference(ref string) string {
	return fmt.Sprintf("Sorry, I couldn't analyze that voice note. Please try again or type it out. (ref: %s)", ref)
}

func Acknowledgement() string {
	return "Got it, analyzing..."
}

func composeFood(rec *analysis.FoodRecord) string {
	var b strings.Builder
	b.WriteString(foodHeader)
	b.WriteString("\n")

	var protein, fat, carbs float64
	for _, item := range rec.Details {
		protein += item.Macros.Protein
		fat += item.Macros.Fat
		carbs += item.Macros.Carbs

		b.WriteString("• ")
		b.WriteString(displayName(item.Item))
		if portion := formatPortion(item.Quantity, item.Unit); portion != "" {
			b.WriteString(" (" + portion + ")")
		}
		fmt.Fprintf(&b, ": %d kcal | P %sg F %sg C %sg\n",
			roundInt(item.Calories),
			formatAmount(item.Macros.Protein),
			formatAmount(item.Macros.Fat),
			formatAmount(item.Macros.Carbs),
		)
	}

	fmt.Fprintf(&b, "Total: %d kcal | P %sg F %sg C %sg",
		roundInt(rec.Totals.Calories),
		formatAmount(protein),
		formatAmount(fat),
		formatAmount(carbs),
	)
	if rec.Totals.Confidence != nil {
		fmt.Fprintf(&b, " (confidence %.2f)", *rec.Totals.Confidence)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Daily reference: %d kcal | %dg protein | %dg fat | %dg carbs",
		dailyCalories, dailyProtein, dailyFat, dailyCarbs)
	return b.String()
}

func composeWorkout(rec *analysis.WorkoutRecord) string {
	var b strings.Builder
	b.WriteString(workoutHeader)
	b.WriteString("\n")
	for _, activity := range rec.Details {
		intensity := strings.TrimSpace(activity.Intensity)
		if intensity == "" {
			intensity = "unknown"
		}
		fmt.Fprintf(&b, "• %s, %s intensity, %s min: %d kcal",
			displayName(activity.Activity),
			intensity,
			formatAmount(activity.DurationMin),
			roundInt(activity.CaloriesBurned),
		)
		if activity.Confidence != nil {
			fmt.Fprintf(&b, " (confidence %.2f)", *activity.Confidence)
		}
		if len(activity.Assumptions) > 0 {
			b.WriteString(" [" + strings.Join(activity.Assumptions, "; ") + "]")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total burned: %d kcal", roundInt(rec.Totals.CaloriesBurned))
	return b.String()
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unnamed item"
	}
	first, size := utf8.DecodeRuneInString(name)
	return strings.ToUpper(string(first)) + name[size:]
}

func formatPortion(quantity float64, unit string) string {
	unit = strings.TrimSpace(unit)
	if quantity <= 0 {
		return unit
	}
	if unit == "" {
		return formatAmount(quantity)
	}
	return formatAmount(quantity) + " " + unit
}

// formatAmount prints at most one decimal place and drops a trailing ".0".
func formatAmount(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	return strconv.FormatFloat(math.Round(value*10)/10, 'f', -1, 64)
}

func roundInt(value float64) int {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return int(math.Round(value))
}

func excerpt(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
