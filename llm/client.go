package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meme-cmd/memexp2000/config"
	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/telemetry"
)

// Client talks to an OpenAI-compatible chat-completions endpoint. It does
// not retry; transient failures surface to the caller as coded errors.
type Client struct {
	baseURL      string
	defaultModel string
	apiKey       string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewClient builds a Client from configuration. The API key is read from
// the configured environment variable.
func NewClient(cfg config.LLMConfig, logger zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultModel: cfg.Model,
		apiKey:       os.Getenv(cfg.APIKeyEnvVar),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "llm_client").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the request and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	content, err := c.complete(ctx, model, req)
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.LLMRequests.WithLabelValues(model, result).Inc()
	return content, err
}

func (c *Client) complete(ctx context.Context, model string, req Request) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	})
	if err != nil {
		return "", errors.NewInternal("failed to encode completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewInternal("failed to build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.New(errors.ErrCodeLLM, "completion request failed", err).
			WithContext("model", model)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.New(errors.ErrCodeLLM, "failed to read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("model", model).
			Msg("completion endpoint returned an error")
		return "", errors.New(errors.ErrCodeLLM, fmt.Sprintf("completion endpoint returned status %d", resp.StatusCode), nil).
			WithContext("model", model)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", errors.New(errors.ErrCodeLLM, "failed to decode completion response", err)
	}
	if parsed.Error != nil {
		return "", errors.New(errors.ErrCodeLLM, parsed.Error.Message, nil).
			WithContext("model", model)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New(errors.ErrCodeLLM, "completion response has no choices", nil).
			WithContext("model", model)
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
