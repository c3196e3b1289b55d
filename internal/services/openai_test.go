package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestOpenAI(url string, maxRetries int) *OpenAITranslator {
	return &OpenAITranslator{
		client:      &http.Client{Timeout: 5 * time.Second},
		endpoint:    url,
		apiKey:      "secret",
		model:       "test-model",
		temperature: 0.3,
		maxRetries:  maxRetries,
		backoff:     time.Millisecond,
	}
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func TestOpenAITranslate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		chatReply(w, "```markdown\n# Bonjour\n```")
	}))
	defer srv.Close()

	tr := newTestOpenAI(srv.URL, 0)
	out, err := tr.Translate(context.Background(), "# Hello", "French")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != "# Bonjour" {
		t.Errorf("Translate() = %q, want %q", out, "# Bonjour")
	}

	if got.Model != "test-model" || got.Temperature != 0.3 || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || !strings.Contains(got.Messages[0].Content, "to French.") {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "# Hello" {
		t.Errorf("user message = %+v", got.Messages[1])
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		case 2:
			http.Error(w, "slow down", http.StatusTooManyRequests)
		default:
			chatReply(w, "ok")
		}
	}))
	defer srv.Close()

	out, err := newTestOpenAI(srv.URL, 2).Translate(context.Background(), "hello", "German")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != "ok" || calls.Load() != 3 {
		t.Errorf("Translate() = %q after %d calls, want ok after 3", out, calls.Load())
	}
}

func TestOpenAIGivesUp(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retries   int
		wantCalls int32
	}{
		{"client error is not retried", http.StatusBadRequest, 3, 1},
		{"server error exhausts retries", http.StatusInternalServerError, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestOpenAI(srv.URL, tt.retries).Translate(context.Background(), "hello", "German")
			if err == nil {
				t.Fatal("expected error")
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestExtractChatContent(t *testing.T) {
	if _, err := extractChatContent([]byte(`{"error":{"message":"model not loaded"}}`)); err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("expected API error, got %v", err)
	}
	if _, err := extractChatContent([]byte(`{"choices":[]}`)); err == nil {
		t.Error("expected error for empty choices")
	}
	if _, err := extractChatContent([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	got, err := extractChatContent([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	if err != nil || got != "hi" {
		t.Errorf("extractChatContent() = %q, %v", got, err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"id":"zeta"},{"id":"alpha"},{"id":""},{"id":"mid"}]}`))
	}))
	defer srv.Close()

	got, err := newTestOpenAI(srv.URL, 0).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if want := []string{"alpha", "mid", "zeta"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListModels() = %v, want %v", got, want)
	}
}

func TestListModelsErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrModelsNotFound},
		{http.StatusInternalServerError, nil},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "x", tt.status)
			}))
			defer srv.Close()

			_, err := newTestOpenAI(srv.URL, 0).ListModels(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
