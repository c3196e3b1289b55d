package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/docflow/internal/markdown"
)

// ErrRefusal is returned when a model answers with a refusal instead of content.
var ErrRefusal = errors.New("model response indicates refusal")

// contentGenerator is the part of *genai.GenerativeModel the services use.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

var refusalPhrases = []string{
	"i am unable to",
	"i'm unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"i can't assist",
	"as a large language model",
	"as an ai language model",
}

// refusalWindow bounds how much of a long answer is searched for refusal
// phrases, so documents that merely quote one are not rejected.
const refusalWindow = 400

// checkRefusal fails fast on an LLM refusal.
func checkRefusal(content string) error {
	lower := strings.ToLower(strings.TrimSpace(content))
	if len(lower) > refusalWindow {
		lower = lower[:refusalWindow]
	}
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return fmt.Errorf("%w: %q", ErrRefusal, phrase)
		}
	}
	return nil
}

// translateChunks runs complete over each chunk of text in order and joins
// the answers. Fences the model wraps around an answer are removed.
func translateChunks(ctx context.Context, text string, chunkChars int, complete func(ctx context.Context, chunk string) (string, error)) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	chunks := markdown.Chunk(text, chunkChars)
	out := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		answer, err := complete(ctx, chunk)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		answer = markdown.Unfence(answer)
		if err := checkRefusal(answer); err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if answer == "" {
			return "", fmt.Errorf("chunk %d/%d: model returned an empty translation", i+1, len(chunks))
		}
		out = append(out, answer)
	}
	return strings.Join(out, "\n\n"), nil
}
