// Package whatsapp talks to the WhatsApp Cloud API: outbound text messages
// and inbound webhook payloads.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/udaypartap979/cal2/internal/config"
)

// ErrDeliveryFailed wraps every outbound send failure.
var ErrDeliveryFailed = errors.New("delivery failed")

// maxBodyLength is the Cloud API limit for a text message body.
const maxBodyLength = 4096

type Client struct {
	graphBaseURL  string
	token         string
	phoneNumberID string
	httpClient    *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		graphBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.WhatsAppGraphBaseURL), "/"),
		token:         strings.TrimSpace(cfg.WhatsAppToken),
		phoneNumberID: strings.TrimSpace(cfg.WhatsAppPhoneNumberID),
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	RecipientType    string `json:"recipient_type"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("%w: empty recipient", ErrDeliveryFailed)
	}
	if c.token == "" || c.phoneNumberID == "" {
		return fmt.Errorf("%w: WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID are required", ErrDeliveryFailed)
	}

	msg := textMessage{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: "text"}
	msg.Text.Body = clip(body, maxBodyLength)
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphBaseURL+"/"+c.phoneNumberID+"/messages", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	request.Header.Set("Authorization", "Bearer "+c.token)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 2048))
		return fmt.Errorf("%w: graph status %d: %s", ErrDeliveryFailed, response.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func clip(body string, limit int) string {
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit-3]) + "..."
}
