package analysis

import (
	"context"
	"errors"
	"sync"

	"github.com/udaypartap979/cal2/internal/ai"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	food    func(prompt ai.Prompt) (string, error)
	workout func(prompt ai.Prompt) (string, error)
	calls   []ai.Prompt
}

func (g *scriptedGenerator) GenerateStructured(_ context.Context, prompt ai.Prompt, schemaHint string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, prompt)
	g.mu.Unlock()

	if schemaHint == WorkoutSchemaHint {
		if g.workout == nil {
			return "", errors.New("no workout script")
		}
		return g.workout(prompt)
	}
	if g.food == nil {
		return "", errors.New("no food script")
	}
	return g.food(prompt)
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func fixed(answer string) func(ai.Prompt) (string, error) {
	return func(ai.Prompt) (string, error) { return answer, nil }
}

type stubLabeler struct {
	label string
	err   error
}

func (s stubLabeler) ClassifyLabel(context.Context, ai.Prompt) (string, error) {
	return s.label, s.err
}

func newTestExtractor(gen Generator) *Extractor {
	return NewExtractor(gen, ExtractorOptions{WeightKg: 70, DeviceBias: 1, FoodCacheSize: 16})
}
