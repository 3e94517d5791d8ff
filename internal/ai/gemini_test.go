package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"

	"github.com/udaypartap979/cal2/internal/config"
)

func newTestGeminiService(t *testing.T, endpoint string, httpClient *http.Client) *aiplatform.Service {
	t.Helper()
	service, err := aiplatform.NewService(
		context.Background(),
		option.WithEndpoint(endpoint+"/"),
		option.WithHTTPClient(httpClient),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestGeminiClientGenerateStructured(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/publishers/google/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"type\":\"workout\"}"}]}}]}`))
	}))
	defer server.Close()

	client := &GeminiClient{
		service:         newTestGeminiService(t, server.URL, server.Client()),
		modelPath:       geminiModelPath("", "", "gemini-test"),
		maxOutputTokens: 512,
	}

	answer, err := client.GenerateStructured(context.Background(), Prompt{System: "estimate", User: "ran 20 min"}, `{ "type":"workout" }`)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if answer != `{"type":"workout"}` {
		t.Fatalf("unexpected answer: %q", answer)
	}

	config, _ := payload["generationConfig"].(map[string]any)
	if config["responseMimeType"] != "application/json" {
		t.Fatalf("expected json response mime type, got %v", config["responseMimeType"])
	}
	if _, ok := payload["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction in payload")
	}
}

func TestGeminiClientUsesProjectScopedModel(t *testing.T) {
	t.Parallel()

	var gotPath string
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"two eggs"}]}}]}`))
	}))
	defer server.Close()

	client := &GeminiClient{
		service:         newTestGeminiService(t, server.URL, server.Client()),
		modelPath:       geminiModelPath("cal2-prod", "us-central1", "gemini-test"),
		maxOutputTokens: 256,
	}
	transcript, err := client.Transcribe(context.Background(), Audio{Data: []byte("OggS"), MIMEType: "audio/ogg; codecs=opus"}, "meal log")
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if transcript != "two eggs" {
		t.Fatalf("unexpected transcript %q", transcript)
	}
	if gotPath != "/v1/projects/cal2-prod/locations/us-central1/publishers/google/models/gemini-test:generateContent" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	contents, _ := payload["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("expected one content entry, got %v", payload["contents"])
	}
	parts, _ := contents[0].(map[string]any)["parts"].([]any)
	inline, _ := parts[0].(map[string]any)["inlineData"].(map[string]any)
	if inline["mimeType"] != "audio/ogg" {
		t.Fatalf("expected bare audio mime type, got %v", inline["mimeType"])
	}
}

func TestGeminiModelPath(t *testing.T) {
	t.Parallel()

	if got := geminiModelPath("", "us-central1", " "); got != "publishers/google/models/gemini-2.0-flash" {
		t.Fatalf("unexpected express path %q", got)
	}
	if got := geminiModelPath("p1", "", "m"); got != "projects/p1/locations/global/publishers/google/models/m" {
		t.Fatalf("unexpected project path %q", got)
	}
}

func TestNewRejectsGeminiWithoutCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewGeminiClient(context.Background(), config.Config{AIProvider: "gemini"}); err == nil {
		t.Fatalf("expected missing credentials error")
	}
}

func TestGeminiAnswerSkipsEmptyCandidates(t *testing.T) {
	t.Parallel()

	response := &aiplatform.GoogleCloudAiplatformV1GenerateContentResponse{
		Candidates: []*aiplatform.GoogleCloudAiplatformV1Candidate{
			{Content: nil},
			{Content: &aiplatform.GoogleCloudAiplatformV1Content{Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: " food "}}}},
		},
	}
	if got := geminiAnswer(response); got != "food" {
		t.Fatalf("unexpected answer %q", got)
	}
	if got := geminiAnswer(nil); got != "" {
		t.Fatalf("expected empty answer, got %q", got)
	}
}

func TestMockClientRoutesByKeyword(t *testing.T) {
	t.Parallel()

	client := MockClient{Model: "mock"}
	label, _ := client.ClassifyLabel(context.Background(), Prompt{User: "walked 20 minutes"})
	if label != "workout" {
		t.Fatalf("expected workout, got %q", label)
	}
	label, _ = client.ClassifyLabel(context.Background(), Prompt{User: "two dosas"})
	if label != "food" {
		t.Fatalf("expected food, got %q", label)
	}
	raw, _ := client.GenerateStructured(context.Background(), Prompt{User: "Extract the exercise performed.\nwalked 20 minutes"}, `{ "type":"workout" }`)
	if !strings.Contains(raw, `"duration_min":20`) {
		t.Fatalf("expected parsed duration, got %s", raw)
	}
}
