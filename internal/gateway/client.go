package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultTimeout    = 30 * time.Second
	defaultMaxTokens  = 4096
	defaultRetries    = 3
	defaultRetryDelay = 1500 * time.Millisecond
)

// SentinelQuery is returned by Generate when every model and retry attempt
// has failed. Callers must treat it as a non-fatal, always-incorrect result.
const SentinelQuery = "SELECT * FROM error"

// Client communicates with an OpenAI-compatible API over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewClient creates a Client targeting the given base URL with the given API key.
// An empty baseURL selects the public OpenAI endpoint.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		retryDelay: defaultRetryDelay,
	}
}

// GenerateRequest describes one logical completion request.
type GenerateRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	// Retries is the per-model attempt budget. Zero means the default (3).
	Retries int
	// RetryDelay is the base backoff; attempt n sleeps RetryDelay * 1.5^n.
	// Zero means the default (1.5s).
	RetryDelay time.Duration
	// FallbackModels are tried in order after Model; duplicates are skipped.
	FallbackModels []string
}

// chatRequest is the JSON body for POST /chat/completions.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Generate runs the model cascade for a single prompt and returns the
// completion text plus a best-effort cost estimate in USD.
//
// It never returns an error for transport-level failures: after exhausting
// every model and retry it returns SentinelQuery with zero cost. Failure
// classification feeds logging only, never control flow.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, float64) {
	retries := req.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	delay := req.RetryDelay
	if delay <= 0 {
		delay = c.retryDelay
	}

	models := cascade(req.Model, req.FallbackModels)

	var lastErr error
	for mi, model := range models {
		for attempt := 0; attempt < retries; attempt++ {
			text, cost, err := c.complete(ctx, model, req.Prompt, req.Temperature)
			if err == nil {
				return strings.TrimSpace(text), cost
			}

			lastErr = err
			c.logger.Warn("completion attempt failed",
				"model", model,
				"attempt", attempt+1,
				"retries", retries,
				"kind", Classify(err),
			)

			finalAttempt := mi == len(models)-1 && attempt == retries-1
			if !finalAttempt && !sleepBackoff(ctx, delay, attempt) {
				c.logger.Error("completion abandoned", "model", model, "kind", Classify(lastErr))
				return SentinelQuery, 0
			}
		}
	}

	if lastErr != nil {
		c.logger.Error("completion failed on all models", "kind", Classify(lastErr), "error", lastErr)
	}
	return SentinelQuery, 0
}

func (c *Client) complete(ctx context.Context, model, prompt string, temperature float64) (string, float64, error) {
	body := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   defaultMaxTokens,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("completion: empty choices")
	}
	return resp.Choices[0].Message.Content, estimateCost(model, resp.Usage), nil
}

// embedRequest is the JSON body for POST /embeddings.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedTexts returns one embedding vector per input text, following the same
// retry discipline as Generate. On total failure it returns an empty slice;
// callers must degrade to their lexical fallback.
func (c *Client) EmbedTexts(ctx context.Context, model string, texts []string) [][]float64 {
	if len(texts) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < defaultRetries; attempt++ {
		var resp embedResponse
		err := c.post(ctx, "/embeddings", embedRequest{Model: model, Input: texts}, &resp)
		if err == nil {
			vecs := make([][]float64, len(resp.Data))
			for i, d := range resp.Data {
				vecs[i] = d.Embedding
			}
			return vecs
		}

		lastErr = err
		c.logger.Warn("embedding attempt failed",
			"model", model,
			"attempt", attempt+1,
			"kind", Classify(err),
		)
		if attempt < defaultRetries-1 && !sleepBackoff(ctx, c.retryDelay, attempt) {
			break
		}
	}

	c.logger.Error("embedding failed on all attempts", "kind", Classify(lastErr), "error", lastErr)
	return [][]float64{}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// cascade returns primary followed by fallbacks with duplicates removed,
// preserving order.
func cascade(primary string, fallbacks []string) []string {
	models := []string{primary}
	for _, m := range fallbacks {
		dup := false
		for _, seen := range models {
			if seen == m {
				dup = true
				break
			}
		}
		if !dup {
			models = append(models, m)
		}
	}
	return models
}

// sleepBackoff waits delay * 1.5^attempt or until ctx is done.
// Returns false when the context was cancelled.
func sleepBackoff(ctx context.Context, delay time.Duration, attempt int) bool {
	d := time.Duration(float64(delay) * math.Pow(1.5, float64(attempt)))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
