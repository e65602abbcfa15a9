package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ysnrfd/render/llm"
)

func TestChatSendsSamplingParameters(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", time.Second)
	res, err := c.Chat(context.Background(), llm.Request{
		Model:       "gemma-3",
		Messages:    []llm.Message{{Role: "user", Content: "hello"}},
		Temperature: 0.7,
		TopP:        0.95,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "hi" {
		t.Fatalf("Chat() text = %q, want %q", res.Text, "hi")
	}
	if got.Model != "gemma-3" || got.Temperature != 0.7 || got.TopP != 0.95 {
		t.Fatalf("request mismatch: %+v", got)
	}
	if res.Usage.TotalTokens != 3 {
		t.Fatalf("usage total = %d, want 3", res.Usage.TotalTokens)
	}
}

func TestChatTimeoutIsDistinguishable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Chat(ctx, llm.Request{Model: "m", Messages: []llm.Message{{Role: "user", Content: "x"}}})
	if err == nil {
		t.Fatalf("Chat() expected timeout error")
	}
	if !llm.IsTimeout(err) {
		t.Fatalf("IsTimeout(%v) = false, want true", err)
	}
}

func TestChatSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	_, err := c.Chat(context.Background(), llm.Request{Model: "m", Messages: []llm.Message{{Role: "user", Content: "x"}}})
	if err == nil {
		t.Fatalf("Chat() expected API error")
	}
	if llm.IsTimeout(err) {
		t.Fatalf("rate limit should not classify as timeout: %v", err)
	}
}
