package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func completionJSON(content string, promptTokens, completionTokens int) []byte {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

func fastRequest(model string, fallbacks ...string) GenerateRequest {
	return GenerateRequest{
		Prompt:         "SELECT something",
		Model:          model,
		Retries:        2,
		RetryDelay:     time.Millisecond,
		FallbackModels: fallbacks,
	}
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Write(completionJSON("```sql\nSELECT 1\n```", 100, 10))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	text, cost := c.Generate(context.Background(), fastRequest("gpt-4o-mini"))

	if text != "```sql\nSELECT 1\n```" {
		t.Errorf("text = %q, want the fenced query", text)
	}
	if cost <= 0 {
		t.Errorf("cost = %f, want > 0 for a known model", cost)
	}
}

func TestGenerate_SentinelAfterExhaustion(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	text, cost := c.Generate(context.Background(), fastRequest("gpt-4o-mini", "gpt-4o"))

	if text != SentinelQuery {
		t.Errorf("text = %q, want sentinel %q", text, SentinelQuery)
	}
	if cost != 0 {
		t.Errorf("cost = %f, want 0", cost)
	}
	// 2 models x 2 attempts.
	if requests != 4 {
		t.Errorf("requests = %d, want 4", requests)
	}
}

func TestGenerate_FallbackModel(t *testing.T) {
	var modelsSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		modelsSeen = append(modelsSeen, req.Model)
		if req.Model == "primary" {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		w.Write(completionJSON("SELECT 2", 10, 5))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	text, _ := c.Generate(context.Background(), fastRequest("primary", "backup"))

	if text != "SELECT 2" {
		t.Fatalf("text = %q, want %q", text, "SELECT 2")
	}
	// Both attempts on primary, then first attempt on backup succeeds.
	want := []string{"primary", "primary", "backup"}
	if len(modelsSeen) != len(want) {
		t.Fatalf("saw %d requests %v, want %d", len(modelsSeen), modelsSeen, len(want))
	}
	for i, m := range want {
		if modelsSeen[i] != m {
			t.Errorf("request %d model = %q, want %q", i, modelsSeen[i], m)
		}
	}
}

func TestGenerate_SkipsDuplicateFallbacks(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	c.Generate(context.Background(), fastRequest("gpt-4o", "gpt-4o", "gpt-4o"))

	// One distinct model, two attempts.
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "test-key")
	req := fastRequest("gpt-4o-mini")
	req.RetryDelay = time.Hour // Backoff must not block on a cancelled context.

	done := make(chan string, 1)
	go func() {
		text, _ := c.Generate(ctx, req)
		done <- text
	}()

	select {
	case text := <-done:
		if text != SentinelQuery {
			t.Errorf("text = %q, want sentinel", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Generate blocked on backoff after context cancellation")
	}
}

func TestEmbedTexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"embedding": []float64{0.1, 0.2, 0.3}}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	vecs := c.EmbedTexts(context.Background(), "text-embedding-ada-002", []string{"a", "b"})

	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if len(vecs[0]) != 3 || vecs[0][1] != 0.2 {
		t.Errorf("vecs[0] = %v, want [0.1 0.2 0.3]", vecs[0])
	}
}

func TestEmbedTexts_EmptyOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	c.retryDelay = time.Millisecond

	vecs := c.EmbedTexts(context.Background(), "text-embedding-ada-002", []string{"a"})

	if vecs == nil || len(vecs) != 0 {
		t.Errorf("vecs = %v, want empty non-nil slice", vecs)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want FailureKind
	}{
		{"unexpected status 502: upstream exploded", FailureBadGateway},
		{"service reported Bad Gateway", FailureBadGateway},
		{"unexpected status 429: too many requests", FailureRateLimit},
		{"rate limit reached for org", FailureRateLimit},
		{"context deadline exceeded", FailureTimeout},
		{"dial tcp: i/o timeout", FailureTimeout},
		{"read: connection reset by peer", FailureConnectionReset},
		{"remote error: tls: handshake failure", FailureTLS},
		{"unexpected status 401: invalid api key", FailureUnauthorized},
		{"the model 'gpt-9' was not found", FailureModelNotFound},
		{"something else entirely", FailureOther},
	}

	for _, tt := range tests {
		if got := Classify(errors.New(tt.msg)); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	if c := estimateCost("mystery-model", usage{PromptTokens: 1000, CompletionTokens: 1000}); c != 0 {
		t.Errorf("cost = %f, want 0 for unknown model", c)
	}
}
