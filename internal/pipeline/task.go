// Package pipeline routes inbound chat messages through analysis, logging and
// reply delivery.
package pipeline

import (
	"context"
	"errors"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/media"
)

// ErrAnalysisFailed means every analysis path for a message failed.
var ErrAnalysisFailed = errors.New("analysis failed")

type MessageKind string

const (
	KindText        MessageKind = "text"
	KindImage       MessageKind = "image"
	KindAudio       MessageKind = "audio"
	KindInteractive MessageKind = "interactive"
	KindUnsupported MessageKind = "unsupported"
)

// InboundTask is one message from a webhook delivery. It is consumed exactly
// once by the Orchestrator.
type InboundTask struct {
	SenderID  string
	MessageID string
	Kind      MessageKind
	// Text holds the body of a text message or the label of an interactive
	// selection.
	Text     string
	MediaID  string
	MIMEType string
	Caption  string
}

type MediaSource interface {
	Fetch(ctx context.Context, mediaID string) (media.Media, error)
}

type Messenger interface {
	SendText(ctx context.Context, to, body string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio ai.Audio, contextPrompt string) (string, error)
}

type Cleaner interface {
	Clean(ctx context.Context, raw []byte) []byte
}

// AudioFallback analyzes a voice note out of process. Implementations log the
// result themselves.
type AudioFallback interface {
	AnalyzeAudio(ctx context.Context, audio ai.Audio, userID, messageID string) (*analysis.CompositeRecord, error)
}

// DebugArchive keeps inputs that could not be analyzed and returns a
// reference the user can quote.
type DebugArchive interface {
	Preserve(data []byte, mimeType string) (string, error)
}
