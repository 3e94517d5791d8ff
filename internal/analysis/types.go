package analysis

import (
	"encoding/json"
	"strings"

	"github.com/udaypartap979/cal2/internal/ai"
)

type Kind string

const (
	KindFood      Kind = "food"
	KindWorkout   Kind = "workout"
	KindComposite Kind = "composite"
)

const (
	SourceUserCaption = "user_caption"
	SourceVision      = "vision"
	venueMenuPrefix   = "venue_menu"

	noWorkoutAssumption = "no workout found"
)

// Record is implemented by *FoodRecord, *WorkoutRecord and *CompositeRecord.
type Record interface {
	Kind() Kind
}

type Macros struct {
	Protein float64 `json:"protein"`
	Fat     float64 `json:"fat"`
	Carbs   float64 `json:"carbs"`
}

type FoodItem struct {
	Item        string   `json:"item"`
	Quantity    float64  `json:"quantity"`
	Unit        string   `json:"unit"`
	Calories    float64  `json:"calories"`
	Macros      Macros   `json:"macros"`
	Brand       string   `json:"brand"`
	Source      string   `json:"source"`
	Confidence  float64  `json:"confidence"`
	Assumptions []string `json:"assumptions"`
}

type FoodTotals struct {
	Calories    float64  `json:"calories"`
	Assumptions []string `json:"assumptions"`
	Confidence  *float64 `json:"confidence"`
}

type FoodRecord struct {
	Details []FoodItem `json:"details"`
	Totals  FoodTotals `json:"totals"`
}

type WorkoutActivity struct {
	Activity       string   `json:"activity"`
	DurationMin    float64  `json:"duration_min"`
	CaloriesBurned float64  `json:"calories_burned"`
	Intensity      string   `json:"intensity"`
	Assumptions    []string `json:"assumptions"`
	Confidence     *float64 `json:"confidence"`
}

type WorkoutTotals struct {
	CaloriesBurned float64  `json:"calories_burned"`
	Assumptions    []string `json:"assumptions"`
	Confidence     *float64 `json:"confidence"`
}

type WorkoutRecord struct {
	Details []WorkoutActivity `json:"details"`
	Totals  WorkoutTotals     `json:"totals"`
}

// CompositeRecord is produced only by the voice-note path.
type CompositeRecord struct {
	Food       *FoodRecord    `json:"food"`
	Workout    *WorkoutRecord `json:"workout"`
	Transcript string         `json:"transcript"`
}

func (*FoodRecord) Kind() Kind      { return KindFood }
func (*WorkoutRecord) Kind() Kind   { return KindWorkout }
func (*CompositeRecord) Kind() Kind { return KindComposite }

func (r FoodRecord) MarshalJSON() ([]byte, error) {
	type plain FoodRecord
	if r.Details == nil {
		r.Details = []FoodItem{}
	}
	if r.Totals.Assumptions == nil {
		r.Totals.Assumptions = []string{}
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{Type: KindFood, plain: plain(r)})
}

func (r WorkoutRecord) MarshalJSON() ([]byte, error) {
	type plain WorkoutRecord
	if r.Details == nil {
		r.Details = []WorkoutActivity{}
	}
	if r.Totals.Assumptions == nil {
		r.Totals.Assumptions = []string{}
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{Type: KindWorkout, plain: plain(r)})
}

func NewFoodRecord() *FoodRecord {
	return &FoodRecord{
		Details: []FoodItem{},
		Totals:  FoodTotals{Assumptions: []string{}},
	}
}

// NewZeroWorkoutRecord is the record for content that carries no workout.
func NewZeroWorkoutRecord() *WorkoutRecord {
	return &WorkoutRecord{
		Details: []WorkoutActivity{},
		Totals: WorkoutTotals{
			Assumptions: []string{noWorkoutAssumption},
			Confidence:  floatPtr(0),
		},
	}
}

func (r *FoodRecord) HasDetails() bool {
	return r != nil && len(r.Details) > 0
}

func (r *WorkoutRecord) HasDetails() bool {
	return r != nil && len(r.Details) > 0
}

// Content is what gets classified or extracted: plain text, or an image
// with an optional caption.
type Content struct {
	Text    string
	Caption string
	Image   *ai.Image
}

func TextContent(text string) Content {
	return Content{Text: strings.TrimSpace(text)}
}

func ImageContent(image ai.Image, caption string) Content {
	return Content{Image: &image, Caption: strings.TrimSpace(caption)}
}

func (c Content) images() []ai.Image {
	if c.Image == nil || len(c.Image.Data) == 0 {
		return nil
	}
	return []ai.Image{*c.Image}
}

func (c Content) describe() string {
	switch {
	case c.Image != nil && c.Caption != "":
		return "Image attached. Caption: " + c.Caption
	case c.Image != nil:
		return "Image attached. No caption."
	default:
		return c.Text
	}
}

func floatPtr(v float64) *float64 {
	return &v
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func (item FoodItem) clone() FoodItem {
	item.Assumptions = cloneStrings(item.Assumptions)
	return item
}

func (r *CompositeRecord) HasFood() bool {
	return r != nil && r.Food.HasDetails()
}

// HasWorkout is true only when the workout side carries energy; a zero
// workout record with placeholder activities does not count.
func (r *CompositeRecord) HasWorkout() bool {
	return r != nil && r.Workout.HasDetails() && r.Workout.Totals.CaloriesBurned > 0
}
