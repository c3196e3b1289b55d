package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Page Extraction Model Prompts ---
const PageSystemPrompt = "You are a document parser. Your task is to parse the content of a PDF document page and transcribe it into markdown format. Accuracy, detail, and information preservation are of utmost importance."
const PageUserPrompt = `You will be provided with a single page of a PDF document.

Follow these instructions to parse the page and transcribe its content into markdown format:

Text: Parse all text content directly into markdown text. Keep the original language; do not translate.
Headings: Use markdown headings that reflect the document's heading hierarchy.
Lists: Parse all lists into markdown lists, maintaining the original structure and formatting.
Images: Replace each image with a descriptive text that accurately describes the image's content.
Tables: Parse all tables into markdown tables. If a table contains merged cells, normalize the table by copying the content from the parent cells into the normalized child cells.
Headers and Footers: Ignore irrelevant content in the header and footer, such as page numbers or the publisher's logo.

Return ONLY the markdown content. Do not include any preamble.`

// --- Cleaner Model Prompts ---
const CleanerSystemPrompt = "You are an expert Markdown editor. Your task is to clean, refine, and consolidate a single Markdown file that was created by merging multiple pages. Your goal is to make it a single, cohesive, and perfectly formatted document."
const CleanerUserPrompt = `Follow these instructions to clean, refine, and consolidate the Markdown file:

1.  **Merge Broken Tables**: Identify table headers and content that are separated by page breaks or separators and merge them into a single, correctly formatted Markdown table.
2.  **Smooth Formatting**: Ensure consistent heading levels, list formatting, and code blocks. Remove awkward line breaks in the middle of sentences that were caused by page breaks.
3.  **Remove Artifacts**: Delete any repeated page numbers or page separators (e.g., a line of '---') that are not part of the content's structure.

Do not translate. Attempt to preserve as much information as possible. Only remove sections if you are absolutely certain it is noise.

Return ONLY the final, cleaned Markdown content. Do not include any preambles like "Here is the cleaned markdown".`

// --- Translation Model Prompt ---
// TranslationPromptTemplate uses {language} as the placeholder for the target language.
const TranslationPromptTemplate = `You are a professional translator. Your task is to translate the provided markdown text to {language}.

IMPORTANT INSTRUCTIONS:
1. Translate all text content to {language} while preserving the original markdown formatting
2. DO NOT translate or modify:
   - Code blocks (text within ` + "```" + ` or ` + "```" + `language blocks) and inline code spans
   - URLs (http://, https://, www., etc.)
   - File paths and technical identifiers
   - Markdown syntax (**, *, #, [], (), etc.)
   - Numbers, dates, and technical measurements
3. Preserve all markdown structure including headers, lists, tables, links, and code blocks
4. Maintain the same markdown formatting as the original
5. Only translate the actual text content, not the markdown syntax
6. If a word or phrase is already in {language} or is a proper noun, leave it unchanged
7. CRITICAL: For tables, maintain the exact table structure:
   - Keep the same number of columns and rows
   - Preserve table headers and cell alignment
   - Maintain pipe characters (|) and table separators (---)
   - Only translate the text content within table cells, not the table structure

Return only the translated markdown content without any additional explanations or comments.`

// TranslationPrompt renders a prompt template for a target language.
// An empty template selects TranslationPromptTemplate.
func TranslationPrompt(template, language string) string {
	if template == "" {
		template = TranslationPromptTemplate
	}
	return strings.ReplaceAll(template, "{language}", language)
}

var blockNone = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
}

// VertexClient holds the pre-configured generative models for the translator.
type VertexClient struct {
	PageModel    *genai.GenerativeModel
	CleanerModel *genai.GenerativeModel
	baseClient   *genai.Client
	modelName    string
	temperature  float32
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string, temperature float64) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the page extraction model ---
	pageModel := baseClient.GenerativeModel(modelName)
	pageModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(PageSystemPrompt)},
	}
	pageModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	pageModel.SafetySettings = blockNone

	// --- Configure the cleaner model ---
	cleanerModel := baseClient.GenerativeModel(modelName)
	cleanerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(CleanerSystemPrompt)},
	}
	cleanerModel.SafetySettings = blockNone

	return &VertexClient{
		PageModel:    pageModel,
		CleanerModel: cleanerModel,
		baseClient:   baseClient,
		modelName:    modelName,
		temperature:  float32(temperature),
	}, nil
}

// TranslationModel returns a model handle carrying systemPrompt.
// The prompt names the target language, so a fresh handle is built per call.
func (c *VertexClient) TranslationModel(systemPrompt string) *genai.GenerativeModel {
	model := c.baseClient.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	model.SafetySettings = blockNone
	return model
}

// ResponseText concatenates the text parts of the first candidate.
// It also returns how many text parts were found.
func ResponseText(resp *genai.GenerateContentResponse) (string, int) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", 0
	}

	var content strings.Builder
	var textParts int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
			textParts++
		}
	}
	return content.String(), textParts
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
