package ai

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MockClient answers locally without any network call. It recognises a few
// keywords so local runs exercise both record types.
type MockClient struct {
	Model string
}

var mockWorkoutWords = []string{"workout", "running", "jog", "walk", "gym", "cycl", "swim", "yoga", "steps"}

var mockMinutes = regexp.MustCompile(`(?i)(\d+)\s*(?:min|minutes?)`)

func (m MockClient) ClassifyLabel(_ context.Context, prompt Prompt) (string, error) {
	if mockLooksLikeWorkout(prompt.User) {
		return "workout", nil
	}
	return "food", nil
}

func (m MockClient) GenerateStructured(_ context.Context, prompt Prompt, schemaHint string) (string, error) {
	if strings.Contains(schemaHint, `"workout"`) {
		if !mockLooksLikeWorkout(prompt.User) {
			return `{"type":"workout","details":[],"totals":{"calories_burned":0,"assumptions":["no workout found"],"confidence":0}}`, nil
		}
		minutes := 30
		if match := mockMinutes.FindStringSubmatch(prompt.User); match != nil {
			if value, err := strconv.Atoi(match[1]); err == nil {
				minutes = value
			}
		}
		return fmt.Sprintf(`{"type":"workout","details":[{"activity":"walking","duration_min":%d,"calories_burned":0,"intensity":"unknown","assumptions":["mock estimate"],"confidence":0.5}],"totals":{"calories_burned":0,"assumptions":["mock estimate"],"confidence":0.5}}`, minutes), nil
	}
	return `{"type":"food","details":[{"item":"mixed plate","quantity":1,"unit":"plate","calories":450,"macros":{"protein":20,"fat":15,"carbs":55},"brand":"","source":"mock","confidence":0.5,"assumptions":["mock estimate"]}],"totals":{"calories":450,"assumptions":["mock estimate"],"confidence":0.5}}`, nil
}

func (m MockClient) Transcribe(_ context.Context, audio Audio, _ string) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("audio is empty")
	}
	return "I had a bowl of dal and rice and walked for 30 minutes", nil
}

func mockLooksLikeWorkout(text string) bool {
	lowered := strings.ToLower(text)
	for _, word := range mockWorkoutWords {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}
