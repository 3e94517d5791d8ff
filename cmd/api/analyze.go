package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/udaypartap979/cal2/internal/ai"
	"github.com/udaypartap979/cal2/internal/analysis"
	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/reply"
	"github.com/udaypartap979/cal2/internal/store"
)

type analyzeFlags struct {
	text       string
	image      string
	caption    string
	audio      string
	mimeType   string
	preprocess bool
	asJSON     bool
	persist    bool
	userID     string
}

func newAnalyzeCommand() *cobra.Command {
	flags := analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one text, image or voice note locally and print the reply",
		Example: strings.Join([]string{
			"  cal2 analyze --text \"2 rotis and dal\"",
			"  cal2 analyze --image plate.jpg --caption \"paneer tikka\"",
			"  cal2 analyze --audio note.ogg",
		}, "\n"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.text, "text", "", "message text to analyze")
	cmd.Flags().StringVar(&flags.image, "image", "", "path to a meal or workout image")
	cmd.Flags().StringVar(&flags.caption, "caption", "", "caption sent with the image")
	cmd.Flags().StringVar(&flags.audio, "audio", "", "path to a voice note")
	cmd.Flags().StringVar(&flags.mimeType, "mime", "", "MIME type of the file; detected when empty")
	cmd.Flags().BoolVar(&flags.preprocess, "preprocess", true, "clean the voice note with ffmpeg before transcription")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the structured record instead of the chat reply")
	cmd.Flags().BoolVar(&flags.persist, "log", false, "write the result to the configured storage")
	cmd.Flags().StringVar(&flags.userID, "user", "cli", "user id recorded with --log")
	cmd.MarkFlagsMutuallyExclusive("text", "image", "audio")
	cmd.MarkFlagsOneRequired("text", "image", "audio")
	return cmd
}

func runAnalyze(cmd *cobra.Command, flags analyzeFlags) error {
	ctx := cmd.Context()
	cfg := config.Load()
	if cfg.AIProvider == "" {
		return errors.New("AI_PROVIDER is required")
	}

	orchestrator, err := buildOrchestrator(ctx, cfg, orchestratorParts{})
	if err != nil {
		return err
	}

	var record analysis.Record
	switch {
	case flags.text != "":
		record, err = orchestrator.AnalyzeText(ctx, flags.text)
	case flags.image != "":
		data, mimeType, readErr := readInputFile(flags.image, flags.mimeType)
		if readErr != nil {
			return readErr
		}
		record, err = orchestrator.AnalyzeImage(ctx, ai.Image{Data: data, MIMEType: mimeType}, flags.caption)
	default:
		data, mimeType, readErr := readInputFile(flags.audio, flags.mimeType)
		if readErr != nil {
			return readErr
		}
		record, err = orchestrator.AnalyzeVoice(ctx, ai.Audio{Data: data, MIMEType: mimeType}, flags.preprocess)
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if flags.persist {
		if err := persistRecord(cmd, cfg, flags.userID, record); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if flags.asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(record)
	}
	fmt.Fprintln(out, reply.Compose(record))
	fmt.Fprintf(out, "\nresolved energy: %d kcal\n", analysis.ResolveTotalEnergy(record))
	return nil
}

func persistRecord(cmd *cobra.Command, cfg config.Config, userID string, record analysis.Record) error {
	logger, closeStore, err := store.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("storage open failed: %w", err)
	}
	defer closeStore()

	entry, err := store.NewEntry(userID, "", store.SourceAPI, record)
	if err != nil {
		return err
	}
	return logger.PersistAnalysis(cmd.Context(), entry)
}

func readInputFile(path, mimeType string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
