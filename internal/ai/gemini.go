package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"

	"github.com/udaypartap979/cal2/internal/config"
)

// GeminiClient calls Gemini through the Vertex AI generateContent API. With
// GEMINI_PROJECT set it uses the project-scoped model path and application
// default credentials; otherwise it uses express mode with GEMINI_API_KEY.
type GeminiClient struct {
	service         *aiplatform.Service
	modelPath       string
	maxOutputTokens int64
	timeout         time.Duration
}

func NewGeminiClient(ctx context.Context, cfg config.Config) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	project := strings.TrimSpace(cfg.GeminiProject)
	if apiKey == "" && project == "" {
		return nil, errors.New("GEMINI_API_KEY or GEMINI_PROJECT is not configured")
	}
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}

	// WithHTTPClient would bypass the API key transport, so the timeout is
	// applied per call instead.
	opts := make([]option.ClientOption, 0, 2)
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	location := strings.TrimSpace(cfg.GeminiLocation)
	if project != "" && location != "" && location != "global" {
		opts = append(opts, option.WithEndpoint("https://"+location+"-aiplatform.googleapis.com/"))
	}
	service, err := aiplatform.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini service: %w", err)
	}

	maxTokens := int64(cfg.AIMaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}
	return &GeminiClient{
		service:         service,
		modelPath:       geminiModelPath(project, location, cfg.GeminiModel),
		maxOutputTokens: maxTokens,
		timeout:         time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func geminiModelPath(project, location, model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if project == "" {
		return "publishers/google/models/" + model
	}
	if location == "" {
		location = "global"
	}
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", project, location, model)
}

func (c *GeminiClient) ClassifyLabel(ctx context.Context, prompt Prompt) (string, error) {
	return c.generate(ctx, prompt.System, userParts(prompt), "")
}

func (c *GeminiClient) GenerateStructured(ctx context.Context, prompt Prompt, schemaHint string) (string, error) {
	return c.generate(ctx, structuredSystemPrompt(prompt.System, schemaHint), userParts(prompt), "application/json")
}

// Transcribe sends the audio inline and asks for a verbatim transcript.
func (c *GeminiClient) Transcribe(ctx context.Context, audio Audio, contextPrompt string) (string, error) {
	if len(audio.Data) == 0 {
		return "", errors.New("audio is empty")
	}
	mimeType := strings.TrimSpace(strings.Split(audio.MIMEType, ";")[0])
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	system := "Transcribe the audio verbatim. Return only the transcript text."
	if hint := strings.TrimSpace(contextPrompt); hint != "" {
		system += "\nContext: " + hint
	}
	parts := []*aiplatform.GoogleCloudAiplatformV1Part{
		{InlineData: &aiplatform.GoogleCloudAiplatformV1Blob{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(audio.Data)}},
	}
	// A silent clip yields no candidate text; that is an empty transcript.
	return c.call(ctx, system, parts, "")
}

func userParts(prompt Prompt) []*aiplatform.GoogleCloudAiplatformV1Part {
	parts := make([]*aiplatform.GoogleCloudAiplatformV1Part, 0, 1+len(prompt.Images))
	if text := strings.TrimSpace(prompt.User); text != "" {
		parts = append(parts, &aiplatform.GoogleCloudAiplatformV1Part{Text: text})
	}
	for _, image := range prompt.Images {
		if len(image.Data) == 0 {
			continue
		}
		mimeType := strings.TrimSpace(image.MIMEType)
		if mimeType == "" {
			mimeType = http.DetectContentType(image.Data)
		}
		parts = append(parts, &aiplatform.GoogleCloudAiplatformV1Part{
			InlineData: &aiplatform.GoogleCloudAiplatformV1Blob{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image.Data)},
		})
	}
	return parts
}

func (c *GeminiClient) generate(ctx context.Context, system string, parts []*aiplatform.GoogleCloudAiplatformV1Part, responseMIMEType string) (string, error) {
	answer, err := c.call(ctx, system, parts, responseMIMEType)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", errors.New("gemini response answer is empty")
	}
	return answer, nil
}

func (c *GeminiClient) call(ctx context.Context, system string, parts []*aiplatform.GoogleCloudAiplatformV1Part, responseMIMEType string) (string, error) {
	if len(parts) == 0 {
		return "", errors.New("AI request input is empty")
	}
	request := &aiplatform.GoogleCloudAiplatformV1GenerateContentRequest{
		Contents: []*aiplatform.GoogleCloudAiplatformV1Content{{Role: "user", Parts: parts}},
		GenerationConfig: &aiplatform.GoogleCloudAiplatformV1GenerationConfig{
			MaxOutputTokens:  c.maxOutputTokens,
			ResponseMimeType: responseMIMEType,
		},
	}
	if trimmed := strings.TrimSpace(system); trimmed != "" {
		request.SystemInstruction = &aiplatform.GoogleCloudAiplatformV1Content{
			Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: trimmed}},
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var response *aiplatform.GoogleCloudAiplatformV1GenerateContentResponse
	var err error
	if strings.HasPrefix(c.modelPath, "projects/") {
		response, err = c.service.Projects.Locations.Publishers.Models.GenerateContent(c.modelPath, request).Context(ctx).Do()
	} else {
		response, err = c.service.Publishers.Models.GenerateContent(c.modelPath, request).Context(ctx).Do()
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return geminiAnswer(response), nil
}

func geminiAnswer(response *aiplatform.GoogleCloudAiplatformV1GenerateContentResponse) string {
	if response == nil {
		return ""
	}
	texts := make([]string, 0)
	for _, candidate := range response.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && strings.TrimSpace(part.Text) != "" {
				texts = append(texts, strings.TrimSpace(part.Text))
			}
		}
		if len(texts) > 0 {
			break
		}
	}
	return strings.Join(texts, "\n")
}
