package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/udaypartap979/cal2/internal/ai"
)

// Analyzer strings the classifier, extractor, enrichment and reconciler
// together for each input shape.
type Analyzer struct {
	classifier *Classifier
	extractor  *Extractor
}

func NewAnalyzer(classifier *Classifier, extractor *Extractor) *Analyzer {
	return &Analyzer{classifier: classifier, extractor: extractor}
}

// AnalyzeText classifies and extracts plain text, including interactive
// selection labels.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string) (Record, error) {
	content := TextContent(text)
	if a.classifier.Classify(ctx, content) == KindWorkout {
		rec, err := a.extractor.ExtractWorkout(ctx, content)
		if err != nil {
			return nil, err
		}
		return a.extractor.EnrichWorkout(ctx, rec, content.Text), nil
	}
	rec, err := a.extractor.ExtractFood(ctx, content)
	if err != nil {
		return nil, err
	}
	return a.extractor.EnrichFood(ctx, rec), nil
}

// AnalyzeImage runs the caption-aware path. Food images with a caption are
// extracted twice, once from the caption alone and once from the image, and
// reconciled; an empty merge falls back to the raw vision record.
func (a *Analyzer) AnalyzeImage(ctx context.Context, image ai.Image, caption string) (Record, error) {
	content := ImageContent(image, caption)
	if a.classifier.Classify(ctx, content) == KindWorkout {
		return a.extractor.ExtractWorkout(ctx, content)
	}

	vision, err := a.extractor.ExtractFood(ctx, content)
	if err != nil {
		return nil, err
	}
	if content.Caption == "" {
		return vision, nil
	}

	captionRecord, err := a.extractor.ExtractFood(ctx, TextContent(content.Caption))
	if err != nil {
		log.Printf("caption extraction failed, using vision only err=%v", err)
		captionRecord = nil
	}
	merged := Merge(captionRecord, vision)
	if !merged.HasDetails() {
		return vision, nil
	}
	return merged, nil
}

// AnalyzeTranscript extracts food and workout from a voice-note transcript
// concurrently and enriches both.
func (a *Analyzer) AnalyzeTranscript(ctx context.Context, transcript string) (*CompositeRecord, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, fmt.Errorf("empty transcript")
	}
	content := TextContent(transcript)

	var food *FoodRecord
	var workout *WorkoutRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := a.extractor.ExtractFood(gctx, content)
		if err != nil {
			return err
		}
		food = a.extractor.EnrichFood(gctx, rec)
		return nil
	})
	g.Go(func() error {
		rec, err := a.extractor.ExtractWorkout(gctx, content)
		if err != nil {
			return err
		}
		workout = a.extractor.EnrichWorkout(gctx, rec, transcript)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("transcript analyzed food_items=%d workout=%s", len(food.Details), describeWorkout(workout))
	return &CompositeRecord{Food: food, Workout: workout, Transcript: transcript}, nil
}
