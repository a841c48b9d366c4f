package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meme-cmd/memexp2000/config"
	"github.com/meme-cmd/memexp2000/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.LLMConfig{
		BaseURL:       server.URL,
		Model:         "default-model",
		APIKeyEnvVar:  "LLM_TEST_KEY_UNSET",
		TimeoutSecond: 5,
	}, zerolog.Nop())
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "  hello there  "}},
			},
		})
	})

	content, err := client.Complete(context.Background(), Request{
		System:      "be brief",
		Prompt:      "say hello",
		MaxTokens:   64,
		Temperature: 0.7,
	})

	require.NoError(t, err)
	assert.Equal(t, "hello there", content)
	assert.Equal(t, "default-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestCompleteOverridesModel(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	})

	_, err := client.Complete(context.Background(), Request{Model: "analysis-model", Prompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "analysis-model", got.Model)
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "x"})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLLM))
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "x"})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeLLM))
}
