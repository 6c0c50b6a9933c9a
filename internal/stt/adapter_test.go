package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/pkg/audioconv"
	pkgstt "jarvis/pkg/stt"
)

type fakeModel struct {
	rate   int
	parts  []string
	err    error
	paths  []string
	seen   []int // decoded length per call
	closed bool
}

func (m *fakeModel) SampleRate() int { return m.rate }

func (m *fakeModel) TranscribeFile(ctx context.Context, path string) ([]string, error) {
	m.paths = append(m.paths, path)
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
	if err != nil {
		return nil, err
	}
	m.seen = append(m.seen, len(pcm))
	return m.parts, m.err
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

func newAdapter(t *testing.T, m *fakeModel) (*Adapter, *int) {
	loads := 0
	return NewAdapter(func() (Model, error) {
		loads++
		return m, nil
	}, t.TempDir(), nil), &loads
}

func TestTranscribeEmptyBufferSkipsModel(t *testing.T) {
	a := NewAdapter(func() (Model, error) {
		return nil, errors.New("must not load")
	}, t.TempDir(), nil)

	text, err := a.Transcribe(context.Background(), nil, 16000)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscribeRejectsInvalidSampleRate(t *testing.T) {
	m := &fakeModel{rate: 16000}
	a, loads := newAdapter(t, m)

	for _, rate := range []int{0, -16000} {
		_, err := a.Transcribe(context.Background(), make([]float32, 1600), rate)
		assert.ErrorContains(t, err, "invalid sample rate", "rate %d", rate)
	}
	assert.Zero(t, *loads)
	assert.Empty(t, m.paths)

	// an empty buffer is still just empty
	text, err := a.Transcribe(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscribeJoinsSegmentsAndCleansUp(t *testing.T) {
	m := &fakeModel{rate: 16000, parts: []string{" hello", "there  ", ""}}
	a, loads := newAdapter(t, m)

	text, err := a.Transcribe(context.Background(), make([]float32, 16000), 16000)
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	require.Len(t, m.paths, 1)
	assert.NoFileExists(t, m.paths[0])
	assert.Equal(t, []int{16000}, m.seen)

	_, err = a.Transcribe(context.Background(), make([]float32, 100), 16000)
	require.NoError(t, err)
	assert.Equal(t, 1, *loads)
}

func TestTranscribeResamplesToModelRate(t *testing.T) {
	m := &fakeModel{rate: 16000}
	a, _ := newAdapter(t, m)

	text, err := a.Transcribe(context.Background(), make([]float32, 44100), 44100)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, []int{16000}, m.seen)
}

func TestTranscribeRemovesTempFileOnFailure(t *testing.T) {
	m := &fakeModel{rate: 16000, err: errors.New("decoder crashed")}
	a, _ := newAdapter(t, m)

	_, err := a.Transcribe(context.Background(), make([]float32, 1600), 16000)
	assert.ErrorContains(t, err, "decoder crashed")
	require.Len(t, m.paths, 1)
	assert.NoFileExists(t, m.paths[0])
}

func TestModelLoadFailureIsNotCached(t *testing.T) {
	calls := 0
	a := NewAdapter(func() (Model, error) {
		calls++
		return nil, &ConfigError{Missing: "model"}
	}, t.TempDir(), nil)

	for i := 0; i < 2; i++ {
		_, err := a.Transcribe(context.Background(), []float32{0.1}, 16000)
		var cfgErr *ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	}
	assert.Equal(t, 2, calls)
}

func TestWhisperLoaderMissingModelIsActionable(t *testing.T) {
	dir := t.TempDir()
	_, err := WhisperLoader("small", dir, pkgstt.Options{})()

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), filepath.Join(dir, "ggml-small.bin"))
	assert.Contains(t, cfgErr.Fix, "WHISPER_MODEL")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestModelPath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "ggml-base.en.bin"), ModelPath("base.en", "models"))
	assert.Equal(t, "/opt/m.bin", ModelPath("/opt/m.bin", "models"))
	assert.Equal(t, "custom.bin", ModelPath("custom.bin", "models"))
}

func TestCloseReleasesModel(t *testing.T) {
	m := &fakeModel{rate: 16000}
	a, _ := newAdapter(t, m)

	require.NoError(t, a.Close())
	assert.False(t, m.closed)

	_, err := a.Transcribe(context.Background(), []float32{0}, 16000)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.True(t, m.closed)
}
