package llm

import (
	"context"
	"log/slog"
	"strings"
)

// Fallback is returned when the model cannot be reached. Callers speak and
// print it like any other reply.
const Fallback = "I am online, but the language model is not responding. " +
	"Please ensure the model service is running and the model is available."

// EmptyReply is returned when the model answered with nothing.
const EmptyReply = "I could not generate a response just now."

type Request struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

func (r Request) withDefaults() Request {
	if r.Temperature == 0 {
		r.Temperature = 0.4
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = 200
	}
	return r
}

// Completer produces a reply for a prompt. Complete never fails.
type Completer interface {
	Complete(ctx context.Context, req Request) string
}

type generator interface {
	generate(ctx context.Context, req Request) (string, error)
	name() string
}

// complete runs g and maps every failure to plain text.
func complete(ctx context.Context, g generator, req Request) string {
	text, err := g.generate(ctx, req.withDefaults())
	if err != nil {
		slog.Warn("Text generation failed", "provider", g.name(), "err", err)
		return Fallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return EmptyReply
	}
	return text
}
