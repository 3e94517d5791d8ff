package analysis

import "strings"

const FoodSchemaHint = `{ "type":"food", "details":[{ "item":string, "quantity":number, "unit":string, "calories":number, "macros":{ "protein":number, "fat":number, "carbs":number }, "brand":string, "source":string, "confidence":number, "assumptions":[string] }], "totals":{ "calories":number, "assumptions":[string], "confidence":number } }`

const WorkoutSchemaHint = `{ "type":"workout", "details":[{ "activity":string, "duration_min":number, "calories_burned":number, "intensity":string, "assumptions":[string], "confidence":number }], "totals":{ "calories_burned":number, "assumptions":[string], "confidence":number } }`

var classifierSystemPrompt = strings.Join([]string{
	"You label messages sent to a nutrition and fitness logging assistant.",
	"Decide whether the content describes food or drink that was consumed, or physical exercise that was performed.",
	"Respond with exactly one word: food or workout.",
}, "\n")

var foodSystemPrompt = strings.Join([]string{
	"You are a nutrition analyst. Extract every food or drink item the user consumed.",
	"Source priority for calories and macros:",
	"1. A visible or stated brand label: use the label values and set brand.",
	"2. A named restaurant, cafe or venue: approximate from that venue's menu, set source to \"venue_menu:<venue name>\" and keep confidence at or below 0.6.",
	"3. Otherwise use trusted nutrition databases (USDA, IFCT, national tables) and set source accordingly.",
	"Never return zero calories for anything edible. Always give a best-effort non-zero estimate and list the assumptions you made (portion size, preparation, oil).",
	"Use grams for macros. Quantities are numbers; units are short words (g, ml, cup, piece, plate).",
	"confidence is a number between 0 and 1.",
	"totals.calories is the sum of item calories.",
}, "\n")

var workoutSystemPrompt = strings.Join([]string{
	"You are an exercise physiologist estimating energy expenditure.",
	"Parse each activity, its duration in minutes and any intensity cues (pace, heart rate, effort words).",
	"When intensity is ambiguous choose the lowest plausible MET value for the activity; do not overestimate.",
	"calories_burned = MET * 3.5 * weight_kg / 200 * duration_min, then multiply by the device bias factor and round to whole kcal.",
	"If no duration can be found, return duration_min 0, calories_burned 0, confidence 0 and the assumption \"no workout found\".",
	"Any activity with a positive duration must have non-zero calories_burned.",
	"intensity is one of light, moderate, vigorous or unknown.",
	"confidence is a number between 0 and 1.",
}, "\n")

// TranscriptContextPrompt biases speech-to-text toward food and exercise vocabulary.
func TranscriptContextPrompt() string {
	return "Voice note about meals eaten or exercise done. Food names, brands, portions, durations and distances may appear."
}
