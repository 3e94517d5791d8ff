package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/store"
)

type seedMeal struct {
	At    string
	Items []analysis.FoodItem
}

type seedWorkout struct {
	At          string
	Activity    string
	Intensity   string
	DurationMin float64
}

var sampleMeals = []seedMeal{
	{At: "08:10", Items: []analysis.FoodItem{
		{Item: "poha", Quantity: 1, Unit: "plate", Calories: 250, Macros: analysis.Macros{Protein: 5, Fat: 8, Carbs: 40}, Confidence: 0.7},
		{Item: "masala chai", Quantity: 1, Unit: "cup", Calories: 90, Macros: analysis.Macros{Protein: 3, Fat: 3, Carbs: 12}, Confidence: 0.8},
	}},
	{At: "13:30", Items: []analysis.FoodItem{
		{Item: "dal", Quantity: 1, Unit: "bowl", Calories: 150, Macros: analysis.Macros{Protein: 9, Fat: 4, Carbs: 20}, Confidence: 0.75},
		{Item: "rice", Quantity: 1, Unit: "cup", Calories: 205, Macros: analysis.Macros{Protein: 4, Fat: 0.4, Carbs: 45}, Confidence: 0.8},
	}},
	{At: "20:15", Items: []analysis.FoodItem{
		{Item: "roti", Quantity: 2, Unit: "piece", Calories: 240, Macros: analysis.Macros{Protein: 8, Fat: 6, Carbs: 40}, Confidence: 0.7},
		{Item: "paneer bhurji", Quantity: 1, Unit: "bowl", Calories: 320, Macros: analysis.Macros{Protein: 18, Fat: 24, Carbs: 8}, Confidence: 0.6},
	}},
}

var sampleWorkouts = []seedWorkout{
	{At: "06:45", Activity: "walking", Intensity: "moderate", DurationMin: 30},
	{At: "18:00", Activity: "cycling", Intensity: "vigorous", DurationMin: 40},
}

func main() {
	var (
		userID   string
		date     string
		tag      string
		timezone string
	)
	flag.StringVar(&userID, "user-id", "15550000000", "user id (WhatsApp number) to seed")
	flag.StringVar(&date, "date", "", "local date in YYYY-MM-DD (default: today in timezone)")
	flag.StringVar(&tag, "tag", "sample_log_v1", "message id prefix for seeded rows")
	flag.StringVar(&timezone, "tz", "Asia/Kolkata", "IANA timezone for the local schedule")
	flag.Parse()

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Fatalf("load timezone: %v", err)
	}
	day := time.Now().In(loc)
	if strings.TrimSpace(date) != "" {
		day, err = time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			log.Fatalf("parse date: %v", err)
		}
	}

	ctx := context.Background()
	cfg := config.Load()
	logger, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open storage driver=%s: %v", cfg.StorageDriver, err)
	}
	defer closeStore()

	met := analysis.DefaultMETTable()
	inserted := 0
	for idx, meal := range sampleMeals {
		record := analysis.NewFoodRecord()
		for _, item := range meal.Items {
			item.Source = "seed"
			record.Details = append(record.Details, item)
			record.Totals.Calories += item.Calories
		}
		if err := seed(ctx, logger, userID, fmt.Sprintf("%s-meal-%d", tag, idx), atLocal(day, meal.At), record); err != nil {
			log.Fatalf("seed meal %d: %v", idx, err)
		}
		inserted++
	}
	for idx, workout := range sampleWorkouts {
		kcal := analysis.EstimateCalories(met.Lookup(workout.Activity, workout.Intensity), cfg.UserWeightKg, workout.DurationMin, cfg.DeviceBias)
		record := &analysis.WorkoutRecord{
			Details: []analysis.WorkoutActivity{{
				Activity:       workout.Activity,
				DurationMin:    workout.DurationMin,
				CaloriesBurned: kcal,
				Intensity:      workout.Intensity,
				Assumptions:    []string{"seeded sample"},
			}},
			Totals: analysis.WorkoutTotals{CaloriesBurned: kcal, Assumptions: []string{"seeded sample"}},
		}
		if err := seed(ctx, logger, userID, fmt.Sprintf("%s-workout-%d", tag, idx), atLocal(day, workout.At), record); err != nil {
			log.Fatalf("seed workout %d: %v", idx, err)
		}
		inserted++
	}
	log.Printf("seeded analysis log user_id=%s date=%s rows=%d tag=%s", userID, day.Format("2006-01-02"), inserted, tag)
}

func seed(ctx context.Context, logger store.AnalysisLogger, userID, messageID string, at time.Time, record analysis.Record) error {
	entry, err := store.NewEntry(userID, messageID, "seed", record)
	if err != nil {
		return err
	}
	entry.CreatedAt = at.UTC()
	return logger.PersistAnalysis(ctx, entry)
}

func atLocal(day time.Time, hm string) time.Time {
	parsed, err := time.Parse("15:04", hm)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location())
}
