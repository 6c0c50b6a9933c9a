package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.1:8b","response":"  Good evening, sir.  ","done":true}`))
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL+"/", "", nil)
	require.NoError(t, err)

	reply := o.Complete(context.Background(), Request{Prompt: "hello", System: "be brief"})
	assert.Equal(t, "Good evening, sir.", reply)

	assert.Equal(t, "llama3.1:8b", got["model"])
	assert.Equal(t, "be brief", got["system"])
	assert.Equal(t, false, got["stream"])
	opts := got["options"].(map[string]any)
	assert.InDelta(t, 0.4, opts["temperature"], 1e-9)
	assert.InDelta(t, 200, opts["num_predict"], 1e-9)
}

func TestOllamaFailureReturnsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL, "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, Fallback, o.Complete(context.Background(), Request{Prompt: "hello"}))
}

func TestOllamaEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","response":"","done":true}`))
	}))
	defer srv.Close()

	o, err := NewOllama(srv.URL, "m", nil)
	require.NoError(t, err)
	assert.Equal(t, EmptyReply, o.Complete(context.Background(), Request{Prompt: "hello"}))
}

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"gpt-5-nano",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"At your service."}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI("test-key", "", nil, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	reply := o.Complete(context.Background(), Request{Prompt: "hello", System: "persona", MaxTokens: 50})
	assert.Equal(t, "At your service.", reply)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.InDelta(t, 50, got["max_completion_tokens"], 1e-9)
}

func TestOpenAIFailureReturnsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	o := NewOpenAI("bad", "gpt-5-nano", nil, option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	assert.Equal(t, Fallback, o.Complete(context.Background(), Request{Prompt: "hello"}))
}
