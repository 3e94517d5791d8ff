// Package audio prepares voice notes for transcription.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/udaypartap979/cal2/internal/config"
)

// ErrPreprocessDegraded marks a cleaning run that fell back to the raw input.
// It is only ever logged.
var ErrPreprocessDegraded = errors.New("preprocess degraded")

const (
	silenceThresholdDB = -50
	targetLoudness     = -22
	truePeakDB         = -2
	loudnessRange      = 7
	sampleRate         = 16000
)

// Executor runs an external command and returns its combined output.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.Bytes(), err
}

type Preprocessor struct {
	ffmpegPath   string
	denoiseModel string
	tempDir      string
	exec         Executor
	lookPath     func(file string) (string, error)
	// OnDegraded observes every fallback to raw bytes.
	OnDegraded func(err error)
}

func NewPreprocessor(ffmpegPath, denoiseModel string, executor Executor) *Preprocessor {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if executor == nil {
		executor = execRunner{}
	}
	return &Preprocessor{
		ffmpegPath:   ffmpegPath,
		denoiseModel: strings.TrimSpace(denoiseModel),
		exec:         executor,
		lookPath:     exec.LookPath,
	}
}

func NewPreprocessorFromConfig(cfg config.Config) *Preprocessor {
	return NewPreprocessor(cfg.FFmpegPath, cfg.DenoiseModelPath, nil)
}

// Clean denoises, trims silence, normalizes loudness and resamples to mono
// 16 kHz WAV. It never fails: on any problem the raw bytes come back
// unchanged.
func (p *Preprocessor) Clean(ctx context.Context, raw []byte) []byte {
	cleaned, err := p.run(ctx, raw)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPreprocessDegraded, err)
		log.Printf("audio preprocessing skipped, using raw bytes size=%d err=%v", len(raw), err)
		if p.OnDegraded != nil {
			p.OnDegraded(err)
		}
		return raw
	}
	return cleaned
}

func (p *Preprocessor) run(ctx context.Context, raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty input")
	}
	binary, err := p.lookPath(p.ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	workDir, err := os.MkdirTemp(p.tempDir, "voice-note-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input")
	outputPath := filepath.Join(workDir, "clean.wav")
	if err := os.WriteFile(inputPath, raw, 0o600); err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-af", p.filterChain(),
		"-ac", "1",
		"-ar", fmt.Sprint(sampleRate),
		outputPath,
	}
	if output, err := p.exec.Run(ctx, binary, args...); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, truncate(string(output), 400))
	}

	cleaned, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, err
	}
	if len(cleaned) == 0 {
		return nil, errors.New("ffmpeg produced empty output")
	}
	return cleaned, nil
}

func (p *Preprocessor) filterChain() string {
	filters := make([]string, 0, 3)
	if p.denoiseModel != "" {
		if _, err := os.Stat(p.denoiseModel); err == nil {
			filters = append(filters, "arnndn=m="+escapeFilterValue(p.denoiseModel))
		}
	}
	filters = append(filters,
		fmt.Sprintf("silenceremove=start_periods=1:start_threshold=%ddB:stop_periods=-1:stop_threshold=%ddB", silenceThresholdDB, silenceThresholdDB),
		fmt.Sprintf("loudnorm=I=%d:TP=%d:LRA=%d", targetLoudness, truePeakDB, loudnessRange),
	)
	return strings.Join(filters, ",")
}

var (
	filterOptionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `=`, `\=`)
	filterGraphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeFilterValue applies ffmpeg's two escaping levels: one for the option
// value inside its filter, one for the filter inside the graph.
func escapeFilterValue(value string) string {
	return filterGraphEscaper.Replace(filterOptionEscaper.Replace(value))
}

func truncate(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
