package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"jarvis/pkg/audioconv"
)

// SampleRate is the only rate whisper.cpp accepts.
const SampleRate = 16000

type Options struct {
	Language      string // "auto", "en", ...
	TranslateToEn bool
	Threads       int // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int // 0 = greedy
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Model struct {
	model whisper.Model
	opt   Options
}

func NewModel(modelPath string, opt Options) (*Model, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Model{model: m, opt: opt}, nil
}

func (m *Model) SampleRate() int { return SampleRate }

func (m *Model) Close() error {
	if m.model == nil {
		return nil
	}
	return m.model.Close()
}

// TranscribeFile decodes an audio file to 16 kHz mono and returns the text
// of every recognized segment.
func (m *Model) TranscribeFile(ctx context.Context, path string) ([]string, error) {
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	segs, err := m.TranscribePCM(ctx, pcm)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// TranscribePCM runs the model over mono 16 kHz samples in [-1, 1].
func (m *Model) TranscribePCM(ctx context.Context, pcm16k []float32) ([]Segment, error) {
	if m.model == nil {
		return nil, errors.New("nil model")
	}
	if len(pcm16k) == 0 {
		return nil, nil
	}

	wctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	lang := m.opt.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(m.opt.TranslateToEn)

	threads := m.opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if m.opt.BeamSize > 0 {
		wctx.SetBeamSize(m.opt.BeamSize)
	}
	if m.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(m.opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}

	var segs []Segment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
	}

	return segs, nil
}
