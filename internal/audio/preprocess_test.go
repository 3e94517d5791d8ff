package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	args   []string
	output []byte
	err    error
	// write is stored at the output path when set.
	write []byte
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.args = args
	if f.write != nil {
		if err := os.WriteFile(args[len(args)-1], f.write, 0o600); err != nil {
			return nil, err
		}
	}
	return f.output, f.err
}

func newTestPreprocessor(t *testing.T, executor Executor, denoise string) *Preprocessor {
	t.Helper()
	p := NewPreprocessor("ffmpeg", denoise, executor)
	p.tempDir = t.TempDir()
	p.lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	return p
}

func TestCleanReturnsRawBytesWhenToolFails(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("exit status 1"), output: []byte("Invalid data found")}
	p := newTestPreprocessor(t, executor, "")
	var degraded error
	p.OnDegraded = func(err error) { degraded = err }

	raw := []byte("OggS raw voice note")
	got := p.Clean(context.Background(), raw)
	assert.Equal(t, raw, got)
	assert.ErrorIs(t, degraded, ErrPreprocessDegraded)

	entries, err := os.ReadDir(p.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files must be removed")
}

func TestCleanReturnsRawBytesWhenToolMissing(t *testing.T) {
	p := NewPreprocessor("definitely-not-ffmpeg", "", &fakeExecutor{})
	p.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }

	raw := []byte{1, 2, 3}
	assert.Equal(t, raw, p.Clean(context.Background(), raw))
}

func TestCleanReturnsRawBytesOnEmptyOutput(t *testing.T) {
	p := newTestPreprocessor(t, &fakeExecutor{write: []byte{}}, "")
	raw := []byte("voice")
	assert.Equal(t, raw, p.Clean(context.Background(), raw))
}

func TestCleanUsesFilterChain(t *testing.T) {
	model := filepath.Join(t.TempDir(), "rnnoise.rnnn")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0o600))

	executor := &fakeExecutor{write: []byte("RIFF clean wav")}
	p := newTestPreprocessor(t, executor, model)

	got := p.Clean(context.Background(), []byte("raw"))
	assert.Equal(t, []byte("RIFF clean wav"), got)

	joined := strings.Join(executor.args, " ")
	assert.Contains(t, joined, "arnndn=m="+model)
	assert.Contains(t, joined, "silenceremove=start_periods=1:start_threshold=-50dB")
	assert.Contains(t, joined, "loudnorm=I=-22:TP=-2:LRA=7")
	assert.Contains(t, joined, "-ac 1 -ar 16000")

	entries, err := os.ReadDir(p.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilterChainSkipsMissingDenoiseModel(t *testing.T) {
	p := NewPreprocessor("", filepath.Join(t.TempDir(), "missing.rnnn"), nil)
	assert.NotContains(t, p.filterChain(), "arnndn")
	assert.Equal(t, "ffmpeg", p.ffmpegPath)
}

func TestFilterChainEscapesDenoiseModelPath(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "rnn:v1,a[b];c's=x.rnnn")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0o600))

	chain := NewPreprocessor("ffmpeg", model, nil).filterChain()
	want := "arnndn=m=" + dir + `/rnn\\:v1\,a\[b\]\;c\\\'s\\=x.rnnn,`
	assert.True(t, strings.HasPrefix(chain, want), "got %s", chain)
	assert.Equal(t, 3, strings.Count(chain, ",")-strings.Count(chain, `\,`)+1)
}
