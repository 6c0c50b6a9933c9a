package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"jarvis/internal/audio"
	"jarvis/internal/llm"
	"jarvis/internal/tts"
)

const systemPrompt = "You are JARVIS, Tony Stark's AI assistant. You are sophisticated, witty, and slightly sarcastic. " +
	"You speak with dry British humor and are always helpful but never obsequious. " +
	"You're confident, technically precise, and occasionally make subtle jokes. " +
	"Keep responses concise but engaging. Use phrases like 'Indeed', 'Certainly', 'I must inform you', " +
	"and 'I'm afraid' when appropriate."

var (
	errNoAudio  = errors.New("no audio recorded")
	errNoSpeech = errors.New("no speech detected")
)

type recorder interface {
	RecordWithVAD(ctx context.Context, maxDuration time.Duration) (audio.Buffer, error)
}

type transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

type speaker interface {
	Speak(ctx context.Context, text string) tts.Result
}

// assistant runs single conversation turns. Any of rec, stt and cue may be
// nil in text-only mode.
type assistant struct {
	rec       recorder
	stt       transcriber
	llm       llm.Completer
	voice     speaker
	cue       func(context.Context) error
	maxRecord time.Duration
	out       io.Writer

	listening sync.Mutex
}

// Reply completes prompt, prints the answer and speaks it.
func (a *assistant) Reply(ctx context.Context, prompt string) string {
	reply := a.llm.Complete(ctx, llm.Request{Prompt: prompt, System: systemPrompt})
	fmt.Fprintf(a.out, "Jarvis: %s\n", reply)

	res := a.voice.Speak(ctx, reply)
	if !res.Played() {
		slog.Debug("Reply not spoken", "attempts", len(res.Attempts))
	}
	return reply
}

// Listen records one utterance, transcribes it and replies to it.
func (a *assistant) Listen(ctx context.Context) (transcript, reply string, err error) {
	if a.rec == nil || a.stt == nil {
		return "", "", errors.New("audio input is not configured")
	}

	a.listening.Lock()
	defer a.listening.Unlock()

	if a.cue != nil {
		if err := a.cue(ctx); err != nil {
			slog.Debug("Listening cue", "err", err)
		}
	}

	buf, err := a.rec.RecordWithVAD(ctx, a.maxRecord)
	if err != nil {
		return "", "", fmt.Errorf("record: %w", err)
	}
	if buf.Len() == 0 {
		return "", "", errNoAudio
	}
	slog.Info("Recorded", "seconds", buf.Duration().Seconds())

	fmt.Fprintln(a.out, "Transcribing...")
	transcript, err = a.stt.Transcribe(ctx, buf.Samples, buf.SampleRate)
	if err != nil {
		return "", "", fmt.Errorf("transcribe: %w", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", "", errNoSpeech
	}
	fmt.Fprintf(a.out, "You: %s\n", transcript)

	return transcript, a.Reply(ctx, transcript), nil
}
