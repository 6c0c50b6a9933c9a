package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jarvis/internal/metrics"
)

// Backend is one way of turning text into audible speech.
type Backend interface {
	Name() string
	// Probe reports whether the backend can be used at all. It is called at
	// most once per backend until ForceReprobe.
	Probe(ctx context.Context) error
	// Say blocks until the utterance has finished playing.
	Say(ctx context.Context, text string) error
}

// Attenuator lowers other audio while the assistant speaks.
type Attenuator interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type Availability int

const (
	Unknown Availability = iota
	Available
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Attempt is the outcome of handing text to one backend. A nil Err means the
// utterance played.
type Attempt struct {
	Backend string
	Err     error
}

type Result struct {
	Text     string
	Attempts []Attempt
}

func (r Result) Played() bool { return r.Backend() != "" }

// Backend returns the name of the backend that played the text, if any.
func (r Result) Backend() string {
	for _, a := range r.Attempts {
		if a.Err == nil {
			return a.Backend
		}
	}
	return ""
}

// Cascade speaks through the first working backend, in priority order. Only
// one utterance plays at a time.
type Cascade struct {
	speak    sync.Mutex
	backends []Backend

	mu    sync.Mutex
	avail map[string]Availability

	pause   time.Duration
	duck    Attenuator
	metrics *metrics.Metrics
}

type Option func(*Cascade)

// WithPause sets the delay before every utterance.
func WithPause(d time.Duration) Option {
	return func(c *Cascade) { c.pause = d }
}

func WithAttenuator(a Attenuator) Option {
	return func(c *Cascade) { c.duck = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cascade) { c.metrics = m }
}

func NewCascade(backends []Backend, opts ...Option) *Cascade {
	c := &Cascade{
		backends: backends,
		avail:    make(map[string]Availability, len(backends)),
		pause:    100 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Availability returns the memoized probe result of a backend.
func (c *Cascade) Availability(name string) Availability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.avail[name]
}

// ForceReprobe forgets every probe result.
func (c *Cascade) ForceReprobe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.avail = make(map[string]Availability, len(c.backends))
}

func (c *Cascade) available(ctx context.Context, b Backend) bool {
	name := b.Name()

	c.mu.Lock()
	state := c.avail[name]
	c.mu.Unlock()

	if state == Unknown {
		state = Available
		if err := b.Probe(ctx); err != nil {
			slog.Debug("Speech backend unavailable", "backend", name, "err", err)
			state = Unavailable
		}

		c.mu.Lock()
		c.avail[name] = state
		c.mu.Unlock()
	}

	return state == Available
}

// Speak says text through the best available backend. It never fails: when
// nothing can play the text it is silently dropped. Calls queue behind each
// other.
func (c *Cascade) Speak(ctx context.Context, text string) Result {
	spoken := Rewrite(text)
	if spoken == "" {
		return Result{}
	}

	res := Result{Text: spoken}

	c.speak.Lock()
	defer c.speak.Unlock()

	if c.pause > 0 {
		t := time.NewTimer(c.pause)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return res
		}
	}

	ducked := false
	defer func() {
		if ducked {
			if err := c.duck.Restore(context.WithoutCancel(ctx)); err != nil {
				slog.Debug("Restore other streams", "err", err)
			}
		}
	}()

	for _, b := range c.backends {
		if !c.available(ctx, b) {
			c.metrics.Attempt(b.Name(), "unavailable")
			continue
		}

		if c.duck != nil && !ducked {
			if err := c.duck.Duck(ctx); err != nil {
				slog.Debug("Duck other streams", "err", err)
			}
			ducked = true
		}

		err := say(ctx, b, res.Text)
		res.Attempts = append(res.Attempts, Attempt{Backend: b.Name(), Err: err})
		if err == nil {
			c.metrics.Attempt(b.Name(), "ok")
			break
		}

		c.metrics.Attempt(b.Name(), "error")
		slog.Debug("Speech backend failed", "backend", b.Name(), "err", err)

		if ctx.Err() != nil {
			break
		}
	}

	c.metrics.Spoken(res.Backend())
	return res
}

func say(ctx context.Context, b Backend, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", b.Name(), r)
		}
	}()
	return b.Say(ctx, text)
}
