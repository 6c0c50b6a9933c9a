package stt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jarvis/internal/metrics"
	"jarvis/pkg/audioconv"
	pkgstt "jarvis/pkg/stt"
)

// Model is an offline speech recognizer working on audio files.
type Model interface {
	SampleRate() int
	TranscribeFile(ctx context.Context, path string) ([]string, error)
	Close() error
}

// Loader builds the model. It is called on first use.
type Loader func() (Model, error)

// ConfigError means the recognizer cannot be built on this machine.
type ConfigError struct {
	Missing string
	Fix     string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "speech recognition unavailable: " + e.Missing
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Fix != "" {
		msg += " (" + e.Fix + ")"
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Adapter turns captured audio into text. The model is built lazily and kept
// for the life of the adapter.
type Adapter struct {
	mu    sync.Mutex
	load  Loader
	model Model

	tmpDir  string
	metrics *metrics.Metrics
}

func NewAdapter(load Loader, tmpDir string, m *metrics.Metrics) *Adapter {
	return &Adapter{load: load, tmpDir: tmpDir, metrics: m}
}

func (a *Adapter) ensureModel() (Model, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.model != nil {
		return a.model, nil
	}

	m, err := a.load()
	if err != nil {
		return nil, err
	}
	a.model = m
	return m, nil
}

// Transcribe returns the text spoken in samples. Audio at a rate other than
// the model's is resampled linearly first.
func (a *Adapter) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		a.metrics.Transcribed("empty", 0)
		return "", nil
	}
	if sampleRate <= 0 {
		a.metrics.Transcribed("error", 0)
		return "", fmt.Errorf("transcribe: invalid sample rate %d", sampleRate)
	}

	model, err := a.ensureModel()
	if err != nil {
		a.metrics.Transcribed("error", 0)
		return "", err
	}

	native := model.SampleRate()
	if sampleRate != native {
		slog.Debug("Resampling for transcription", "from", sampleRate, "to", native)
		samples = audioconv.ResampleLinear(samples, sampleRate, native)
	}

	f, err := os.CreateTemp(a.tmpDir, "jarvis-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(path)
	}()

	if err := audioconv.WriteWAV(f, samples, native); err != nil {
		return "", err
	}

	return a.run(ctx, model, path)
}

// TranscribeFile runs the model on an existing wav/mp3/ogg file.
func (a *Adapter) TranscribeFile(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	model, err := a.ensureModel()
	if err != nil {
		return "", err
	}

	return a.run(ctx, model, path)
}

func (a *Adapter) run(ctx context.Context, model Model, path string) (string, error) {
	start := time.Now()
	parts, err := model.TranscribeFile(ctx, path)
	took := time.Since(start).Seconds()
	if err != nil {
		a.metrics.Transcribed("error", took)
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		a.metrics.Transcribed("empty", took)
	} else {
		a.metrics.Transcribed("ok", took)
	}

	return text, nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.model == nil {
		return nil
	}
	err := a.model.Close()
	a.model = nil
	return err
}

// ModelPath resolves a model name like "small" to dir/ggml-small.bin. Names
// that already look like a path are returned unchanged.
func ModelPath(name, dir string) string {
	if strings.ContainsRune(name, os.PathSeparator) || strings.HasSuffix(name, ".bin") {
		return name
	}
	return filepath.Join(dir, "ggml-"+name+".bin")
}

// WhisperLoader builds a whisper.cpp model from a name or path.
func WhisperLoader(name, dir string, opt pkgstt.Options) Loader {
	return func() (Model, error) {
		path := ModelPath(name, dir)
		if _, err := os.Stat(path); err != nil {
			return nil, &ConfigError{
				Missing: "whisper model " + path,
				Fix:     fmt.Sprintf("download ggml-%s.bin with whisper.cpp's models/download-ggml-model.sh into %s, or point WHISPER_MODEL at a ggml .bin file, or use --text mode", name, dir),
				Err:     err,
			}
		}

		m, err := pkgstt.NewModel(path, opt)
		if err != nil {
			return nil, &ConfigError{
				Missing: "whisper runtime",
				Fix:     "check that the model file is a valid ggml model and libwhisper is installed",
				Err:     err,
			}
		}

		slog.Info("Loaded speech model", "path", path)
		return m, nil
	}
}
