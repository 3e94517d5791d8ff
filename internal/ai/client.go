package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/udaypartap979/cal2/internal/config"
)

type Image struct {
	Data     []byte
	MIMEType string
}

type Audio struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Prompt is the vendor-neutral request shape shared by every capability.
type Prompt struct {
	System string
	User   string
	Images []Image
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client is the inference port consumed by the analysis pipeline.
type Client interface {
	// ClassifyLabel returns the raw single-label answer for the prompt.
	ClassifyLabel(ctx context.Context, prompt Prompt) (string, error)
	// GenerateStructured returns JSON text shaped after schemaHint.
	GenerateStructured(ctx context.Context, prompt Prompt, schemaHint string) (string, error)
	Transcribe(ctx context.Context, audio Audio, contextPrompt string) (string, error)
}

func New(ctx context.Context, cfg config.Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.AIProvider)) {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	case "mock":
		return MockClient{Model: "mock"}, nil
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", cfg.AIProvider)
	}
}

func structuredSystemPrompt(system, schemaHint string) string {
	parts := make([]string, 0, 3)
	if trimmed := strings.TrimSpace(system); trimmed != "" {
		parts = append(parts, trimmed)
	}
	if hint := strings.TrimSpace(schemaHint); hint != "" {
		parts = append(parts, "Respond with a single JSON object matching this schema exactly:\n"+hint)
	}
	parts = append(parts, "No markdown, no code fences, no commentary.")
	return strings.Join(parts, "\n\n")
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
