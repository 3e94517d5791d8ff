package server

import (
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/udaypartap979/cal2/internal/pipeline"
	"github.com/udaypartap979/cal2/internal/whatsapp"
)

const maxWebhookBody = 1 << 20

// verifyWebhook answers the Cloud API subscription handshake.
func (a *App) verifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || a.cfg.WhatsAppVerifyToken == "" || token != a.cfg.WhatsAppVerifyToken {
		writeError(c, http.StatusForbidden, "Webhook verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// receiveWebhook acknowledges the delivery immediately and processes its
// messages in the background.
func (a *App) receiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "Unreadable request body")
		return
	}
	if a.cfg.WhatsAppAppSecret != "" && !whatsapp.VerifySignature(a.cfg.WhatsAppAppSecret, body, c.GetHeader("X-Hub-Signature-256")) {
		writeError(c, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	messages, err := whatsapp.ParsePayload(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	tasks := make([]pipeline.InboundTask, 0, len(messages))
	for _, message := range messages {
		tasks = append(tasks, taskFromMessage(message))
	}
	if len(tasks) > 0 {
		log.Printf("webhook delivery accepted messages=%d", len(tasks))
		a.dispatch(tasks)
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "messages": len(tasks)})
}

func taskFromMessage(message whatsapp.Message) pipeline.InboundTask {
	task := pipeline.InboundTask{
		SenderID:  strings.TrimSpace(message.From),
		MessageID: strings.TrimSpace(message.ID),
		Kind:      pipeline.KindUnsupported,
	}

	switch message.Type {
	case "text":
		task.Kind = pipeline.KindText
		if message.Text != nil {
			task.Text = message.Text.Body
		}
	case "image":
		if message.Image != nil {
			task.Kind = pipeline.KindImage
			task.MediaID = message.Image.ID
			task.MIMEType = message.Image.MIMEType
			task.Caption = message.Image.Caption
		}
	case "audio", "voice":
		if message.Audio != nil {
			task.Kind = pipeline.KindAudio
			task.MediaID = message.Audio.ID
			task.MIMEType = message.Audio.MIMEType
		}
	case "interactive", "button":
		task.Kind = pipeline.KindInteractive
		task.Text = message.SelectionLabel()
	}
	return task
}
