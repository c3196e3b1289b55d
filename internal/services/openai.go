package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Lllllllleong/docflow/internal/config"
	"github.com/Lllllllleong/docflow/internal/gcp"
)

var (
	// ErrUnauthorized is returned when the endpoint rejects the API key.
	ErrUnauthorized = errors.New("invalid API key")
	// ErrModelsNotFound is returned when the endpoint has no model listing.
	ErrModelsNotFound = errors.New("models endpoint not found")
)

// OpenAITranslator translates through an OpenAI-compatible chat/completions API.
type OpenAITranslator struct {
	client      *http.Client
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxRetries  int
	prompt      string
	chunkChars  int
	backoff     time.Duration
}

// NewOpenAITranslator builds a translator from the openai section of cfg.
func NewOpenAITranslator(cfg *config.Config) *OpenAITranslator {
	return &OpenAITranslator{
		client:      &http.Client{Timeout: cfg.OpenAI.Timeout},
		endpoint:    strings.TrimRight(cfg.OpenAI.Endpoint, "/"),
		apiKey:      cfg.OpenAI.APIKey,
		model:       cfg.OpenAI.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.OpenAI.MaxRetries,
		prompt:      cfg.Prompt,
		chunkChars:  cfg.ChunkChars,
		backoff:     time.Second,
	}
}

// Translate returns text translated into language.
func (t *OpenAITranslator) Translate(ctx context.Context, text, language string) (string, error) {
	systemPrompt := gcp.TranslationPrompt(t.prompt, language)
	return translateChunks(ctx, text, t.chunkChars, func(ctx context.Context, chunk string) (string, error) {
		return t.complete(ctx, systemPrompt, chunk)
	})
}

func buildChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}
	return json.Marshal(req)
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func extractChatContent(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response has no choices: %s", truncate(string(body), 500))
	}
	return resp.Choices[0].Message.Content, nil
}

// complete posts one chat request, retrying network errors, 429 and 5xx
// responses with exponential backoff.
func (t *OpenAITranslator) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := buildChatRequest(t.model, systemPrompt, userPrompt, t.temperature)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	endpoint := t.endpoint + "/chat/completions"

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+t.apiKey)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if attempt < t.maxRetries {
				if err := t.wait(ctx, attempt); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("API request failed: %w", err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt < t.maxRetries {
				slog.WarnContext(ctx, "Chat completion failed; retrying.", "status", resp.StatusCode, "attempt", attempt+1, "maxRetries", t.maxRetries)
				if err := t.wait(ctx, attempt); err != nil {
					return "", err
				}
				continue
			}
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}
		return extractChatContent(respBody)
	}

	return "", fmt.Errorf("exhausted all %d retries", t.maxRetries)
}

func (t *OpenAITranslator) wait(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * t.backoff
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// ListModels returns the sorted model ids served by the endpoint.
func (t *OpenAITranslator) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w at %s", ErrModelsNotFound, t.endpoint)
	default:
		return nil, fmt.Errorf("failed to fetch models: %d - %s", resp.StatusCode, truncate(string(body), 500))
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("invalid models response: %w", err)
	}
	ids := make([]string, 0, len(listing.Data))
	for _, m := range listing.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
