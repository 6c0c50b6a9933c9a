package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// Engine is an in-process synthesizer handle.
type Engine interface {
	Say(text string) error
	Close() error
}

// EngineBackend opens its engine on probe and keeps it for the process
// lifetime. Voice, rate, volume and pitch are fixed when the engine opens.
type EngineBackend struct {
	open func() (Engine, error)

	mu     sync.Mutex
	engine Engine
}

func NewEngineBackend(open func() (Engine, error)) *EngineBackend {
	return &EngineBackend{open: open}
}

func (e *EngineBackend) Name() string { return "engine" }

func (e *EngineBackend) Probe(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engine != nil {
		return nil
	}
	eng, err := e.open()
	if err != nil {
		return err
	}
	e.engine = eng
	return nil
}

func (e *EngineBackend) Say(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engine == nil {
		return errors.New("engine not open")
	}
	return e.engine.Say(text)
}

func (e *EngineBackend) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.engine == nil {
		return nil
	}
	err := e.engine.Close()
	e.engine = nil
	return err
}

type Voice struct {
	Name string
	ID   string
}

func (v Voice) description() string {
	return strings.ToLower(v.Name + " " + v.ID)
}

// Voice preference tiers, most specific accent first.
var voiceTiers = [][]string{
	{"received pronunciation"},
	{"great britain", "en-gb", "lancaster", "west midlands"},
	{"david", "alex", "daniel", "male", "man"},
}

// SelectVoice picks the first voice matching the highest tier. ok is false
// when nothing matches and the engine default should stay.
func SelectVoice(voices []Voice) (Voice, bool) {
	for _, tier := range voiceTiers {
		for _, v := range voices {
			d := v.description()
			for _, marker := range tier {
				if hasMarker(d, marker) {
					return v, true
				}
			}
		}
	}
	return Voice{}, false
}

// ApplyVoice configures an engine with the voice SelectVoice prefers. An
// empty name asks for the engine default, which is also tried when the
// engine rejects the preferred voice.
func ApplyVoice(voices []Voice, configure func(name string) error) error {
	v, ok := SelectVoice(voices)
	if !ok {
		return configure("")
	}

	err := configure(v.Name)
	if err == nil {
		return nil
	}
	slog.Debug("Voice rejected, using engine default", "name", v.Name, "err", err)

	if derr := configure(""); derr != nil {
		return fmt.Errorf("voice %q: %w; default voice: %w", v.Name, err, derr)
	}
	return nil
}

// hasMarker matches marker at letter boundaries, so "male" does not match
// "female" and "man" does not match "german".
func hasMarker(s, marker string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], marker)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(marker)
		before := start == 0 || !unicode.IsLetter(rune(s[start-1]))
		after := end == len(s) || !unicode.IsLetter(rune(s[end]))
		if before && after {
			return true
		}
		from = start + 1
	}
}
