package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	return NewProviderWithConfig(cfg)
}

func TestEmbed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Input, 2)

		resp := embedResponse{
			Model:      req.Model,
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	embeddings, err := p.Embed(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2}, embeddings[0])
}

func TestEmbedEmptyBatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty batch")
	})

	embeddings, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestEmbedEmptyText(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for invalid input")
	})

	_, err := p.Embed(context.Background(), []string{"ok", ""})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput.Code))
}

func TestEmbedCountMismatch(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Embeddings: [][]float32{{0.1}}}
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProviderResponse.Code))
}

func TestEmbedRateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrRateLimited.Code))
}

func TestEmbedServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProviderUnavailable.Code))
}

func TestEmbedUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	p := NewProviderWithConfig(cfg)

	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrProviderUnavailable.Code))
}

func TestGenerate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "system prompt", req.System)
		assert.False(t, req.Stream)

		resp := generateResponse{Model: req.Model, Response: "generated answer", Done: true}
		_ = json.NewEncoder(w).Encode(resp)
	})

	answer, err := p.Generate(context.Background(), "question", "system prompt")
	require.NoError(t, err)
	assert.Equal(t, "generated answer", answer)
}

func TestChat(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		resp := chatResponse{
			Message: chatMessage{Role: "assistant", Content: "chat reply"},
			Done:    true,
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	reply, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "chat reply", reply)
}
