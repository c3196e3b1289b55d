package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/docflow/internal/gcp"
)

// VertexTranslator translates markdown with a Gemini model, one chunk per call.
type VertexTranslator struct {
	model      func(systemPrompt string) contentGenerator
	prompt     string
	chunkChars int
}

// NewVertexTranslator builds a translator over the Vertex client.
// prompt may be empty to use the built-in template.
func NewVertexTranslator(vertexClient *gcp.VertexClient, prompt string, chunkChars int) *VertexTranslator {
	return &VertexTranslator{
		model: func(systemPrompt string) contentGenerator {
			return vertexClient.TranslationModel(systemPrompt)
		},
		prompt:     prompt,
		chunkChars: chunkChars,
	}
}

// Translate returns text translated into language.
func (t *VertexTranslator) Translate(ctx context.Context, text, language string) (string, error) {
	model := t.model(gcp.TranslationPrompt(t.prompt, language))

	return translateChunks(ctx, text, t.chunkChars, func(ctx context.Context, chunk string) (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(chunk))
		if err != nil {
			return "", fmt.Errorf("failed to generate translation from gemini: %w", err)
		}
		out, textParts := gcp.ResponseText(resp)
		if textParts > 1 {
			slog.DebugContext(ctx, "Gemini response contained multiple text parts; they have been concatenated.", "language", language, "textParts", textParts)
		}
		return out, nil
	})
}
