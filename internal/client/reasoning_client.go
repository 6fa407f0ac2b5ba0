package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
)

// ReasoningClient calls an OpenAI-shaped chat/completions endpoint. Each
// Complete call is a single model round trip; transport-level failures are
// retried once by the underlying HTTP helper, but a bad payload from a
// successful call is never re-asked of the model.
type ReasoningClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	hc          *http.Client
	log         zerolog.Logger
}

// NewReasoningClient creates a new reasoning service client.
func NewReasoningClient(baseURL, apiKey, model string, temperature float64, hc *http.Client, log zerolog.Logger) *ReasoningClient {
	if hc == nil {
		hc = &http.Client{Timeout: 45 * time.Second}
	}
	return &ReasoningClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		hc:          hc,
		log:         log,
	}
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a prompt and returns the raw text of the first choice.
func (c *ReasoningClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":           c.model,
		"temperature":     c.temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp chatCompletionResponse
	if err := postJSON(ctx, c.hc, c.log, c.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		c.log.Error().Str("req_id", reqID).Err(err).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("reasoning call failed")
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrCodeMalformedResponse, "no choices in reasoning response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.log.Debug().Str("req_id", reqID).
		Int("prompt_len", len(prompt)).Int("content_len", len(content)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("reasoning call complete")

	return content, nil
}
