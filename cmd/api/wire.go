package main

import (
	"context"
	"fmt"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/audio"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/media"
	"github.com/udaypartap979/cal2/internal/metrics"
	"github.com/udaypartap979/cal2/internal/pipeline"
	"github.com/udaypartap979/cal2/internal/store"
)

type orchestratorParts struct {
	logger    store.AnalysisLogger
	metrics   *metrics.Pipeline
	messenger pipeline.Messenger
	fallback  pipeline.AudioFallback
	archive   pipeline.DebugArchive
}

func buildOrchestrator(ctx context.Context, cfg config.Config, parts orchestratorParts) (*pipeline.Orchestrator, error) {
	client, err := ai.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ai client: %w", err)
	}
	m := parts.metrics

	extractor := analysis.NewExtractor(client, analysis.ExtractorOptions{
		WeightKg:      cfg.UserWeightKg,
		DeviceBias:    cfg.DeviceBias,
		FoodCacheSize: cfg.FoodCacheSize,
		OnMalformed: func(kind analysis.Kind) {
			if m != nil {
				m.Malformed(string(kind))
			}
		},
	})

	cleaner := audio.NewPreprocessorFromConfig(cfg)
	cleaner.OnDegraded = func(error) {
		if m != nil {
			m.PreprocessDegraded()
		}
	}

	fetcher := media.NewFetcherFromConfig(cfg, func(attempt int, outcome string) {
		if m != nil {
			m.MediaAttempt(attempt, outcome)
		}
	})

	return pipeline.New(pipeline.Deps{
		Analyzer:    analysis.NewAnalyzer(analysis.NewClassifier(client), extractor),
		Media:       fetcher,
		Cleaner:     cleaner,
		Transcriber: client,
		Fallback:    parts.fallback,
		Archive:     parts.archive,
		Logger:      parts.logger,
		Messenger:   parts.messenger,
		Metrics:     m,
		AckEnabled:  cfg.AckEnabled,
	}), nil
}
