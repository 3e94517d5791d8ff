package analysis

import (
	"context"
	"log"
	"strings"

	"github.com/udaypartap979/cal2/internal/ai"
)

type Classifier struct {
	labeler Labeler
}

func NewClassifier(labeler Labeler) *Classifier {
	return &Classifier{labeler: labeler}
}

// Classify labels content as food or workout. It never fails: any inference
// error, or any answer that does not mention "workout", is food.
func (c *Classifier) Classify(ctx context.Context, content Content) Kind {
	label, err := c.labeler.ClassifyLabel(ctx, ai.Prompt{
		System: classifierSystemPrompt,
		User:   content.describe(),
		Images: content.images(),
	})
	if err != nil {
		log.Printf("classify failed, defaulting to food err=%v", err)
		return KindFood
	}
	return LabelToKind(label)
}

func LabelToKind(label string) Kind {
	if strings.Contains(strings.ToLower(label), string(KindWorkout)) {
		return KindWorkout
	}
	return KindFood
}
