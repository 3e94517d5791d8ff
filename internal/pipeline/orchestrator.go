package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/metrics"
	"github.com/udaypartap979/cal2/internal/reply"
	"github.com/udaypartap979/cal2/internal/store"
)

const ackTimeout = 10 * time.Second

type Deps struct {
	Analyzer    *analysis.Analyzer
	Media       MediaSource
	Cleaner     Cleaner
	Transcriber Transcriber
	Fallback    AudioFallback
	Archive     DebugArchive
	Logger      store.AnalysisLogger
	Messenger   Messenger
	Metrics     *metrics.Pipeline
	AckEnabled  bool
}

type Orchestrator struct {
	deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = store.Nop{}
	}
	return &Orchestrator{deps: deps}
}

// HandleDelivery processes every message of one webhook delivery in order.
// One acknowledgement per distinct sender is sent concurrently with routing;
// HandleDelivery returns once those sends have finished too.
func (o *Orchestrator) HandleDelivery(ctx context.Context, tasks []InboundTask) {
	var acks sync.WaitGroup
	if o.deps.AckEnabled {
		o.acknowledge(ctx, tasks, &acks)
	}
	for _, task := range tasks {
		o.HandleTask(ctx, task)
	}
	acks.Wait()
}

func (o *Orchestrator) acknowledge(ctx context.Context, tasks []InboundTask, acks *sync.WaitGroup) {
	acked := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		sender := strings.TrimSpace(task.SenderID)
		if sender == "" {
			continue
		}
		if _, done := acked[sender]; done {
			continue
		}
		acked[sender] = struct{}{}

		acks.Add(1)
		go func(to string) {
			defer acks.Done()
			ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
			defer cancel()
			if err := o.deps.Messenger.SendText(ackCtx, to, reply.Acknowledgement()); err != nil {
				log.Printf("acknowledgement failed to=%s err=%v", to, err)
			}
		}(sender)
	}
}

// HandleTask runs one message to its reply. Failures, panics included, end
// in an apology to that sender and never escape.
func (o *Orchestrator) HandleTask(ctx context.Context, task InboundTask) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("message handler panic message_id=%s panic=%v\n%s", task.MessageID, recovered, debug.Stack())
			outcome = "panic"
			o.send(ctx, task.SenderID, reply.Failure)
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.Message(string(task.Kind), outcome)
			o.deps.Metrics.ObserveStage("message", start)
		}
	}()

	var text string
	text, outcome = o.route(ctx, task)
	o.send(ctx, task.SenderID, text)
}

func (o *Orchestrator) route(ctx context.Context, task InboundTask) (string, string) {
	switch task.Kind {
	case KindText, KindInteractive:
		return o.handleText(ctx, task)
	case KindImage:
		return o.handleImage(ctx, task)
	case KindAudio:
		return o.handleAudio(ctx, task)
	default:
		return reply.Unsupported, "unsupported"
	}
}

func (o *Orchestrator) handleText(ctx context.Context, task InboundTask) (string, string) {
	text := strings.TrimSpace(task.Text)
	if text == "" {
		return reply.Unrecognized, "empty"
	}
	record, err := o.deps.Analyzer.AnalyzeText(ctx, text)
	if err != nil {
		log.Printf("text analysis failed message_id=%s err=%v", task.MessageID, err)
		return reply.Failure, "failed"
	}
	o.persist(ctx, task, record, nil, "")
	return reply.Compose(record), "ok"
}

func (o *Orchestrator) handleImage(ctx context.Context, task InboundTask) (string, string) {
	fetched, err := o.deps.Media.Fetch(ctx, task.MediaID)
	if err != nil {
		log.Printf("image fetch failed message_id=%s media_id=%s err=%v", task.MessageID, task.MediaID, err)
		return reply.Failure, "media_unavailable"
	}
	mimeType := firstNonEmpty(fetched.MIMEType, task.MIMEType)

	record, err := o.deps.Analyzer.AnalyzeImage(ctx, ai.Image{Data: fetched.Bytes, MIMEType: mimeType}, task.Caption)
	if err != nil {
		log.Printf("image analysis failed message_id=%s err=%v", task.MessageID, err)
		return reply.Failure, "failed"
	}
	o.persist(ctx, task, record, fetched.Bytes, mimeType)
	return reply.Compose(record), "ok"
}

func (o *Orchestrator) handleAudio(ctx context.Context, task InboundTask) (string, string) {
	fetched, err := o.deps.Media.Fetch(ctx, task.MediaID)
	if err != nil {
		log.Printf("audio fetch failed message_id=%s media_id=%s err=%v", task.MessageID, task.MediaID, err)
		return reply.Failure, "media_unavailable"
	}
	voice := ai.Audio{Data: fetched.Bytes, MIMEType: firstNonEmpty(fetched.MIMEType, task.MIMEType)}

	record, err := o.AnalyzeVoice(ctx, voice, true)
	if err == nil {
		o.persist(ctx, task, record, voice.Data, voice.MIMEType)
		return reply.ComposeComposite(record), "ok"
	}
	log.Printf("audio primary path failed message_id=%s err=%v", task.MessageID, err)

	record, err = o.fallback(ctx, voice, task)
	if err == nil {
		o.countFallback("ok")
		return reply.ComposeComposite(record), "fallback"
	}
	o.countFallback("failed")
	err = fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	log.Printf("audio fallback path failed message_id=%s err=%v", task.MessageID, err)

	ref := o.preserve(voice)
	return reply.FailureWithReference(ref), "failed"
}

// AnalyzeText runs the text path without persisting or replying.
func (o *Orchestrator) AnalyzeText(ctx context.Context, text string) (analysis.Record, error) {
	return o.deps.Analyzer.AnalyzeText(ctx, text)
}

// AnalyzeImage runs the caption-aware image path without persisting or
// replying.
func (o *Orchestrator) AnalyzeImage(ctx context.Context, image ai.Image, caption string) (analysis.Record, error) {
	return o.deps.Analyzer.AnalyzeImage(ctx, image, caption)
}

// AnalyzeVoice is the in-process audio path: clean, transcribe, extract. An
// empty transcript yields a composite with nothing in it rather than an
// error.
func (o *Orchestrator) AnalyzeVoice(ctx context.Context, voice ai.Audio, preprocess bool) (*analysis.CompositeRecord, error) {
	prepared := voice
	if preprocess && o.deps.Cleaner != nil {
		start := time.Now()
		cleaned := o.deps.Cleaner.Clean(ctx, voice.Data)
		o.observe("preprocess", start)
		if len(cleaned) > 0 && !bytes.Equal(cleaned, voice.Data) {
			prepared = ai.Audio{Data: cleaned, MIMEType: "audio/wav", Filename: "voice-note.wav"}
		}
	}

	start := time.Now()
	transcript, err := o.deps.Transcriber.Transcribe(ctx, prepared, analysis.TranscriptContextPrompt())
	o.observe("transcribe", start)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return &analysis.CompositeRecord{Food: analysis.NewFoodRecord(), Workout: analysis.NewZeroWorkoutRecord()}, nil
	}

	start = time.Now()
	record, err := o.deps.Analyzer.AnalyzeTranscript(ctx, transcript)
	o.observe("extract", start)
	if err != nil {
		return nil, fmt.Errorf("analyze transcript: %w", err)
	}
	return record, nil
}

func (o *Orchestrator) fallback(ctx context.Context, voice ai.Audio, task InboundTask) (*analysis.CompositeRecord, error) {
	if o.deps.Fallback == nil {
		return nil, fmt.Errorf("no fallback configured")
	}
	return o.deps.Fallback.AnalyzeAudio(ctx, voice, task.SenderID, task.MessageID)
}

func (o *Orchestrator) preserve(voice ai.Audio) string {
	if o.deps.Archive == nil {
		return "unavailable"
	}
	ref, err := o.deps.Archive.Preserve(voice.Data, voice.MIMEType)
	if err != nil {
		log.Printf("debug audio not preserved ref=%s err=%v", ref, err)
	}
	return ref
}

func (o *Orchestrator) persist(ctx context.Context, task InboundTask, record analysis.Record, data []byte, mimeType string) {
	entry, err := store.NewEntry(task.SenderID, task.MessageID, store.SourceWebhook, record)
	if err == nil {
		err = o.deps.Logger.PersistAnalysis(ctx, entry.WithMedia(data, mimeType))
	}
	if err != nil {
		log.Printf("analysis log failed message_id=%s err=%v", task.MessageID, err)
		if o.deps.Metrics != nil {
			o.deps.Metrics.PersistFailure()
		}
	}
}

func (o *Orchestrator) send(ctx context.Context, to, text string) {
	if err := o.deps.Messenger.SendText(ctx, to, text); err != nil {
		log.Printf("reply delivery failed to=%s err=%v", to, err)
		if o.deps.Metrics != nil {
			o.deps.Metrics.DeliveryFailure()
		}
	}
}

func (o *Orchestrator) observe(stage string, start time.Time) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveStage(stage, start)
	}
}

func (o *Orchestrator) countFallback(outcome string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.AudioFallback(outcome)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
