package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the subset of the Cloud API webhook body the bot reads.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []Message `json:"messages"`
}

type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Image       *MediaRef    `json:"image,omitempty"`
	Audio       *MediaRef    `json:"audio,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *Button      `json:"button,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type MediaRef struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Voice    bool   `json:"voice"`
}

type Interactive struct {
	Type        string     `json:"type"`
	ButtonReply *Selection `json:"button_reply,omitempty"`
	ListReply   *Selection `json:"list_reply,omitempty"`
}

type Selection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// ParsePayload decodes a webhook body and returns its messages in delivery
// order. Status-only deliveries yield no messages.
func ParsePayload(body []byte) ([]Message, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	messages := make([]Message, 0)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			messages = append(messages, change.Value.Messages...)
		}
	}
	return messages, nil
}

// SelectionLabel returns the user-visible label of an interactive reply.
func (m Message) SelectionLabel() string {
	if m.Interactive != nil {
		for _, selection := range []*Selection{m.Interactive.ButtonReply, m.Interactive.ListReply} {
			if selection == nil {
				continue
			}
			if title := strings.TrimSpace(selection.Title); title != "" {
				return title
			}
			if description := strings.TrimSpace(selection.Description); description != "" {
				return description
			}
		}
	}
	if m.Button != nil {
		return strings.TrimSpace(m.Button.Text)
	}
	return ""
}

// VerifySignature checks an X-Hub-Signature-256 header against the body.
func VerifySignature(appSecret string, body []byte, header string) bool {
	const prefix = "sha256="
	header = strings.TrimSpace(header)
	if appSecret == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
