package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/udaypartap979/cal2/internal/config"
)

const (
	defaultMaxOutputTokens = 1200
	maxServerErrorRetries  = 1
)

type OpenAIClient struct {
	apiKey          string
	baseURL         string
	model           string
	visionModel     string
	transcribeModel string
	maxOutputTokens int
	httpClient      *http.Client
}

func NewOpenAIClient(cfg config.Config) *OpenAIClient {
	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &OpenAIClient{
		apiKey:          strings.TrimSpace(cfg.OpenAIAPIKey),
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.OpenAIBaseURL), "/"),
		model:           strings.TrimSpace(cfg.OpenAIModel),
		visionModel:     strings.TrimSpace(cfg.OpenAIVisionModel),
		transcribeModel: strings.TrimSpace(cfg.OpenAITranscribeModel),
		maxOutputTokens: cfg.AIMaxOutputTokens,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

type inputContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type inputBlock struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

func (c *OpenAIClient) ClassifyLabel(ctx context.Context, prompt Prompt) (string, error) {
	return c.respond(ctx, prompt, false)
}

func (c *OpenAIClient) GenerateStructured(ctx context.Context, prompt Prompt, schemaHint string) (string, error) {
	prompt.System = structuredSystemPrompt(prompt.System, schemaHint)
	return c.respond(ctx, prompt, true)
}

func (c *OpenAIClient) checkConfigured() error {
	if c.apiKey == "" {
		return errors.New("OPENAI_API_KEY is not configured")
	}
	if c.baseURL == "" {
		return errors.New("OPENAI_BASE_URL is not configured")
	}
	return nil
}

// respond calls the Responses API. A 5xx answer is retried once and an
// answer cut off by max_output_tokens is retried once with double budget.
func (c *OpenAIClient) respond(ctx context.Context, prompt Prompt, jsonMode bool) (string, error) {
	if err := c.checkConfigured(); err != nil {
		return "", err
	}
	model := c.model
	if len(prompt.Images) > 0 && c.visionModel != "" {
		model = c.visionModel
	}
	if model == "" {
		return "", errors.New("OPENAI_MODEL is not configured")
	}

	input := buildInput(prompt)
	if len(input) == 0 {
		return "", errors.New("AI request input is empty")
	}

	maxTokens := c.maxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxOutputTokens
	}

	serverRetries := 0
	budgetRaised := false
	for {
		payload := map[string]any{
			"model":             model,
			"input":             input,
			"max_output_tokens": maxTokens,
		}
		if jsonMode {
			payload["text"] = map[string]any{"format": map[string]any{"type": "json_object"}}
		}
		if isReasoningModel(model) {
			payload["reasoning"] = map[string]any{"effort": "low"}
		}

		statusCode, responseBody, err := c.postJSON(ctx, "/responses", payload)
		if err != nil {
			return "", err
		}
		if statusCode >= 500 && serverRetries < maxServerErrorRetries {
			serverRetries++
			log.Printf("openai responses server error, retrying status=%d", statusCode)
			continue
		}
		if statusCode < 200 || statusCode >= 300 {
			return "", fmt.Errorf("openai responses error (%d): %s", statusCode, truncateForLog(string(responseBody), 600))
		}

		parsed := parseJSONObject(responseBody)
		answer := extractResponseAnswer(parsed)
		if answer != "" {
			return answer, nil
		}
		if isMaxOutputTokenIncomplete(parsed) {
			if !budgetRaised {
				budgetRaised = true
				maxTokens *= 2
				log.Printf("openai response incomplete, retrying max_output_tokens=%d", maxTokens)
				continue
			}
			return "", errors.New("openai response incomplete due max_output_tokens")
		}
		log.Printf("openai response had no extractable answer: %s", truncateForLog(string(responseBody), 1200))
		return "", errors.New("openai response answer is empty")
	}
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func buildInput(prompt Prompt) []inputBlock {
	input := make([]inputBlock, 0, 2)
	if system := strings.TrimSpace(prompt.System); system != "" {
		input = append(input, inputBlock{
			Role:    "system",
			Content: []inputContent{{Type: "input_text", Text: system}},
		})
	}
	user := make([]inputContent, 0, 1+len(prompt.Images))
	if text := strings.TrimSpace(prompt.User); text != "" {
		user = append(user, inputContent{Type: "input_text", Text: text})
	}
	for _, image := range prompt.Images {
		if len(image.Data) == 0 {
			continue
		}
		user = append(user, inputContent{Type: "input_image", ImageURL: dataURL(image)})
	}
	if len(user) > 0 {
		input = append(input, inputBlock{Role: "user", Content: user})
	}
	return input
}

func dataURL(image Image) string {
	mimeType := strings.TrimSpace(image.MIMEType)
	if mimeType == "" {
		mimeType = http.DetectContentType(image.Data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
}

func (c *OpenAIClient) postJSON(ctx context.Context, path string, payload any) (int, []byte, error) {
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyRaw))
	if err != nil {
		return 0, nil, err
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")
	return c.do(request)
}

func (c *OpenAIClient) do(request *http.Request) (int, []byte, error) {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, responseBody, nil
}

// Transcribe sends the audio to the transcriptions endpoint with the
// nutrition vocabulary as context prompt.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio Audio, contextPrompt string) (string, error) {
	if err := c.checkConfigured(); err != nil {
		return "", err
	}
	if len(audio.Data) == 0 {
		return "", errors.New("audio is empty")
	}
	model := c.transcribeModel
	if model == "" {
		model = "whisper-1"
	}
	filename := strings.TrimSpace(audio.Filename)
	if filename == "" {
		filename = "voice-note" + ExtensionFor(audio.MIMEType)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", err
	}
	fields := map[string]string{"model": model, "response_format": "json"}
	if prompt := strings.TrimSpace(contextPrompt); prompt != "" {
		fields["prompt"] = prompt
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	statusCode, responseBody, err := c.do(request)
	if err != nil {
		return "", err
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", fmt.Errorf("openai transcription error (%d): %s", statusCode, truncateForLog(string(responseBody), 600))
	}
	// Silence transcribes to "", which callers answer with an apology.
	return strings.TrimSpace(toString(parseJSONObject(responseBody)["text"])), nil
}

// ExtensionFor maps an audio MIME type to a file extension, defaulting to .ogg.
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/webm":
		return ".webm"
	default:
		return ".ogg"
	}
}

func parseJSONObject(raw []byte) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return map[string]any{}
	}
	if parsed == nil {
		return map[string]any{}
	}
	return parsed
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func extractResponseAnswer(data map[string]any) string {
	if direct := strings.TrimSpace(toString(data["output_text"])); direct != "" {
		return direct
	}

	outputs, ok := data["output"].([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0)
	for _, item := range outputs {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		contentList, ok := block["content"].([]any)
		if !ok {
			continue
		}
		for _, contentItem := range contentList {
			contentMap, ok := contentItem.(map[string]any)
			if !ok {
				continue
			}
			contentType := strings.ToLower(strings.TrimSpace(toString(contentMap["type"])))
			if contentType != "output_text" && contentType != "text" {
				continue
			}
			if text := strings.TrimSpace(extractResponseTextValue(contentMap)); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func extractResponseTextValue(content map[string]any) string {
	if text := strings.TrimSpace(toString(content["text"])); text != "" {
		return text
	}
	if textMap, ok := content["text"].(map[string]any); ok {
		if value := strings.TrimSpace(toString(textMap["value"])); value != "" {
			return value
		}
	}
	return strings.TrimSpace(toString(content["output_text"]))
}

func isMaxOutputTokenIncomplete(parsed map[string]any) bool {
	details, ok := parsed["incomplete_details"].(map[string]any)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(toString(details["reason"])), "max_output_tokens")
}
