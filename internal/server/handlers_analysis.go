package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/pipeline"
	"github.com/udaypartap979/cal2/internal/reply"
	"github.com/udaypartap979/cal2/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type analyzeTextRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

type logAnalysisResponse struct {
	ID       string `json:"id"`
	Calories int    `json:"calories"`
}

type historyItem struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	MessageID  string          `json:"message_id"`
	Kind       string          `json:"kind"`
	Calories   int             `json:"calories"`
	Source     string          `json:"source"`
	Transcript string          `json:"transcript,omitempty"`
	Record     json.RawMessage `json:"record"`
	CreatedAt  string          `json:"created_at"`
}

func (a *App) analyzeText(c *gin.Context) {
	var payload analyzeTextRequest
	if !mustJSON(c, &payload) {
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		writeError(c, http.StatusBadRequest, "text is required")
		return
	}

	record, err := a.pipeline.AnalyzeText(c.Request.Context(), text)
	if err != nil {
		log.Printf("api text analysis failed err=%v", err)
		writeError(c, http.StatusBadGateway, "Analysis failed")
		return
	}

	entry, err := store.NewEntry(authSubjectFromContext(c), payload.MessageID, store.SourceAPI, record)
	if err == nil {
		err = a.logger.PersistAnalysis(c.Request.Context(), entry)
	}
	if err != nil {
		log.Printf("api analysis log failed err=%v", err)
		if a.metrics != nil {
			a.metrics.PersistFailure()
		}
	}

	a.respondAnalysis(c, record)
}

// analyzeAudio runs the voice-note path on an uploaded file. It does not log
// the result; callers post it to /log-analysis.
func (a *App) analyzeAudio(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, a.maxUploadBytes()+1))
	if err != nil {
		writeError(c, http.StatusBadRequest, "Unreadable upload")
		return
	}
	if int64(len(data)) > a.maxUploadBytes() {
		writeError(c, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	}
	if len(data) == 0 {
		writeError(c, http.StatusBadRequest, "file is empty")
		return
	}

	preprocess := true
	if raw := strings.TrimSpace(c.PostForm("preprocess")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "preprocess must be a boolean")
			return
		}
		preprocess = parsed
	}

	mimeType := strings.TrimSpace(c.PostForm("mime_type"))
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	voice := ai.Audio{Data: data, MIMEType: mimeType, Filename: header.Filename}

	record, err := a.pipeline.AnalyzeVoice(c.Request.Context(), voice, preprocess)
	if err != nil {
		log.Printf("api audio analysis failed err=%v", err)
		writeError(c, http.StatusBadGateway, "Analysis failed")
		return
	}
	a.respondAnalysis(c, record)
}

func (a *App) logAnalysis(c *gin.Context) {
	var payload pipeline.LogRequest
	if !mustJSON(c, &payload) {
		return
	}
	record, err := decodeRecord(payload.Kind, payload.Record)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" {
		userID = authSubjectFromContext(c)
	}
	source := strings.TrimSpace(payload.Source)
	if source == "" {
		source = store.SourceAPI
	}

	entry, err := store.NewEntry(userID, payload.MessageID, source, record)
	if err == nil {
		err = a.logger.PersistAnalysis(c.Request.Context(), entry)
	}
	if err != nil {
		log.Printf("log-analysis failed user_id=%s err=%v", userID, err)
		if a.metrics != nil {
			a.metrics.PersistFailure()
		}
		writeError(c, http.StatusInternalServerError, "Failed to log analysis")
		return
	}
	c.JSON(http.StatusCreated, logAnalysisResponse{ID: entry.ID, Calories: entry.Calories})
}

func (a *App) listAnalyses(c *gin.Context) {
	reader, ok := a.logger.(store.HistoryReader)
	if !ok {
		writeError(c, http.StatusNotImplemented, "History is not available for this storage driver")
		return
	}

	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		userID = authSubjectFromContext(c)
	}

	entries, err := reader.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		log.Printf("history read failed user_id=%s err=%v", userID, err)
		writeError(c, http.StatusInternalServerError, "Failed to read history")
		return
	}

	items := make([]historyItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, historyItem{
			ID:         entry.ID,
			UserID:     entry.UserID,
			MessageID:  entry.MessageID,
			Kind:       entry.Kind,
			Calories:   entry.Calories,
			Source:     entry.Source,
			Transcript: entry.Transcript,
			Record:     entry.Record,
			CreatedAt:  entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *App) respondAnalysis(c *gin.Context, record analysis.Record) {
	raw, err := json.Marshal(record)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to encode analysis")
		return
	}
	c.JSON(http.StatusOK, pipeline.AnalyzeResponse{
		Kind:     string(record.Kind()),
		Calories: analysis.ResolveTotalEnergy(record),
		Reply:    reply.Compose(record),
		Record:   raw,
	})
}

func (a *App) maxUploadBytes() int64 {
	if a.cfg.MediaMaxBytes > 0 {
		return a.cfg.MediaMaxBytes
	}
	return 25 << 20
}

func decodeRecord(kind string, raw json.RawMessage) (analysis.Record, error) {
	if len(raw) == 0 {
		return nil, errors.New("record is required")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errors.New("record must be a JSON object")
	}

	want := analysis.Kind(strings.ToLower(strings.TrimSpace(kind)))
	if typeRaw, ok := fields["type"]; ok {
		var declared string
		if err := json.Unmarshal(typeRaw, &declared); err != nil ||
			analysis.Kind(strings.ToLower(strings.TrimSpace(declared))) != want {
			return nil, errors.New("record type does not match kind")
		}
	}

	var record analysis.Record
	switch want {
	case analysis.KindFood:
		record = &analysis.FoodRecord{}
	case analysis.KindWorkout:
		record = &analysis.WorkoutRecord{}
	case analysis.KindComposite:
		if !hasAnyField(fields, "food", "workout", "transcript") {
			return nil, errors.New("composite record needs food, workout or transcript")
		}
		record = &analysis.CompositeRecord{}
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, errors.New("record does not match kind")
	}
	return record, nil
}

func hasAnyField(fields map[string]json.RawMessage, names ...string) bool {
	for _, name := range names {
		if value, ok := fields[name]; ok && string(value) != "null" {
			return true
		}
	}
	return false
}
