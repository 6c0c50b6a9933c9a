package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const DefaultOllamaURL = "http://localhost:11434"

// Ollama completes prompts with a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(baseURL, model string, httpClient *http.Client) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = "llama3.1:8b"
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}

	hc := &http.Client{}
	if httpClient != nil {
		*hc = *httpClient
	}
	hc.Timeout = 30 * time.Second

	return &Ollama{client: api.NewClient(u, hc), model: model}, nil
}

func (o *Ollama) Complete(ctx context.Context, req Request) string {
	return complete(ctx, o, req)
}

func (o *Ollama) name() string { return "ollama" }

func (o *Ollama) generate(ctx context.Context, req Request) (string, error) {
	stream := false
	gen := &api.GenerateRequest{
		Model:  o.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: &stream,
		Options: map[string]any{
			"temperature":    req.Temperature,
			"num_predict":    req.MaxTokens,
			"top_p":          0.9,
			"repeat_penalty": 1.1,
			"stop":           []string{"\n\n", "User:", "Human:"},
		},
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, gen, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}

	return sb.String(), nil
}
