package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/docflow/internal/gcp"
	"github.com/Lllllllleong/docflow/internal/markdown"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// pageSeparator is placed between aggregated pages.
const pageSeparator = "\n\n---\n\n"

// Extractor converts a PDF into markdown: pdfcpu validates and splits it into
// single pages, Gemini transcribes each page, and the pages are aggregated
// (and optionally cleaned up) into one document.
type Extractor struct {
	pageModel   contentGenerator
	cleaner     contentGenerator // nil disables the cleanup pass
	concurrency int
}

// NewExtractor builds an Extractor over the Vertex page and cleaner models.
func NewExtractor(vertexClient *gcp.VertexClient, clean bool, concurrency int) *Extractor {
	e := &Extractor{
		pageModel:   vertexClient.PageModel,
		concurrency: concurrency,
	}
	if clean {
		e.cleaner = vertexClient.CleanerModel
	}
	if e.concurrency <= 0 {
		e.concurrency = 5
	}
	return e
}

// Extract returns the markdown transcription of a PDF.
func (e *Extractor) Extract(ctx context.Context, content []byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "docflow-extract-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePdfPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(sourcePdfPath, content, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp file at %s: %w", sourcePdfPath, err)
	}

	optimizedPdfPath := filepath.Join(tempDir, "optimized.pdf")
	if err := optimizePDF(sourcePdfPath, optimizedPdfPath); err != nil {
		return "", fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(optimizedPdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}
	if err := api.SplitFile(optimizedPdfPath, tempDir, 1, nil); err != nil {
		return "", fmt.Errorf("failed to split PDF: %w", err)
	}
	slog.DebugContext(ctx, "PDF optimized and split locally.", "pageCount", pageCount)

	pages, err := e.transcribePages(ctx, optimizedPdfPath, pageCount)
	if err != nil {
		return "", err
	}

	aggregated := aggregatePages(pages)
	if e.cleaner == nil || pageCount == 1 {
		return aggregated, nil
	}

	cleaned, err := e.clean(ctx, aggregated)
	if err != nil {
		// The uncleaned aggregate is still a faithful transcription.
		slog.WarnContext(ctx, "Markdown cleanup failed; using aggregated pages.", "error", err, "pageCount", pageCount)
		return aggregated, nil
	}
	return cleaned, nil
}

// transcribePages sends every split page to the page model with bounded
// concurrency. The result is indexed by page number, so order is preserved.
func (e *Extractor) transcribePages(ctx context.Context, optimizedPdfPath string, pageCount int) ([]string, error) {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)

	splitFileBase := strings.TrimSuffix(optimizedPdfPath, filepath.Ext(optimizedPdfPath))
	pages := make([]string, pageCount)

	for i := 1; i <= pageCount; i++ {
		pageNumber := i
		localSplitFilePath := fmt.Sprintf("%s_%d.pdf", splitFileBase, pageNumber)

		eg.Go(func() error {
			data, err := os.ReadFile(localSplitFilePath)
			if err != nil {
				return fmt.Errorf("page %d: could not read split page: %w", pageNumber, err)
			}
			md, err := e.transcribePage(gctx, data)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageNumber, err)
			}
			pages[pageNumber-1] = md
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// transcribePage asks the page model for the markdown of a single-page PDF.
func (e *Extractor) transcribePage(ctx context.Context, pdf []byte) (string, error) {
	resp, err := e.pageModel.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: pdf},
		genai.Text(gcp.PageUserPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text, textParts := gcp.ResponseText(resp)
	if textParts > 1 {
		slog.DebugContext(ctx, "Gemini response contained multiple text parts; they have been concatenated.", "textParts", textParts)
	}
	md := markdown.Unfence(text)
	if err := checkRefusal(md); err != nil {
		return "", err
	}
	return md, nil
}

func (e *Extractor) clean(ctx context.Context, aggregated string) (string, error) {
	resp, err := e.cleaner.GenerateContent(ctx, genai.Text(gcp.CleanerUserPrompt), genai.Text(aggregated))
	if err != nil {
		return "", fmt.Errorf("failed to generate cleaned content from gemini: %w", err)
	}
	text, _ := gcp.ResponseText(resp)
	cleaned := markdown.Unfence(text)
	if err := checkRefusal(cleaned); err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", fmt.Errorf("cleanup returned no content")
	}
	return cleaned, nil
}

// aggregatePages joins non-empty pages with a separator.
func aggregatePages(pages []string) string {
	var kept []string
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, pageSeparator)
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
