package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
)

func TestOllamaEmbedder_EmbedBatch_DecodesResponse(t *testing.T) {
	// Given: a fake Ollama server returning two embeddings
	var got OllamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{
			Model:      "nomic-embed-text",
			Embeddings: [][]float64{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/"})
	defer func() { _ = e.Close() }()

	// When: embedding two texts
	vecs, err := e.EmbedBatch(context.Background(), []string{"nurse", "pilot"})

	// Then: vectors decode in order and the dimension is learned
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
	assert.Equal(t, DefaultOllamaModel, got.Model)
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, "ollama/nomic-embed-text", e.ModelName())
}

func TestOllamaEmbedder_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, nocerrors.ErrCodeNetworkUnavailable, true},
		{"rate limited", http.StatusTooManyRequests, nocerrors.ErrCodeNetworkUnavailable, true},
		{"model missing", http.StatusNotFound, nocerrors.ErrCodeMalformedResponse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL}).Embed(context.Background(), "nurse")

			assert.Equal(t, tt.wantCode, nocerrors.GetCode(err))
			assert.Equal(t, tt.retryable, nocerrors.IsRetryable(err))
		})
	}
}

func TestOllamaEmbedder_CountMismatchIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Embeddings: [][]float64{{1}}})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(OllamaConfig{Host: srv.URL}).EmbedBatch(context.Background(), []string{"a", "b"})

	assert.Equal(t, nocerrors.ErrCodeMalformedResponse, nocerrors.GetCode(err))
}

func TestOllamaEmbedder_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaTagsResponse{Models: []OllamaModelInfo{{Name: "nomic-embed-text:latest"}}})
	}))
	defer srv.Close()

	assert.True(t, NewOllamaEmbedder(OllamaConfig{Host: srv.URL}).Available(context.Background()))
	assert.False(t, NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "other"}).Available(context.Background()))
}
