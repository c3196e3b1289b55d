// Package config loads translator settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at the YAML overlay.
const FileEnv = "DOCFLOW_CONFIG"

// DefaultLanguages is offered when LANGUAGES is not configured.
var DefaultLanguages = []string{
	"English", "Spanish", "French", "German", "Italian",
	"Portuguese", "Russian", "Chinese", "Japanese", "Korean",
	"Arabic", "Hindi", "Dutch", "Swedish", "Norwegian",
}

// Translator provider names.
const (
	ProviderVertex = "vertex"
	ProviderOpenAI = "openai"
)

// OpenAIConfig configures an OpenAI-compatible chat/completions endpoint.
type OpenAIConfig struct {
	Endpoint   string        `yaml:"endpoint,omitempty"`
	APIKey     string        `yaml:"api_key,omitempty"`
	Model      string        `yaml:"model,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
}

// Config holds all configuration for the translator services.
type Config struct {
	ProjectID      string `yaml:"project_id,omitempty"`
	VertexAIRegion string `yaml:"vertex_ai_region,omitempty"`

	SourceBucket string   `yaml:"source_bucket,omitempty"`
	OutputBucket string   `yaml:"output_bucket,omitempty"`
	Languages    []string `yaml:"languages,omitempty"`
	OutputFormat string   `yaml:"output_format,omitempty"`

	TranslatorProvider string       `yaml:"translator_provider,omitempty"`
	VertexModel        string       `yaml:"vertex_model,omitempty"`
	OpenAI             OpenAIConfig `yaml:"openai,omitempty"`
	Temperature        float64      `yaml:"temperature,omitempty"`
	ChunkChars         int          `yaml:"chunk_chars,omitempty"`
	// Prompt overrides the translation system prompt; "{language}" is substituted.
	Prompt string `yaml:"prompt,omitempty"`

	CleanMarkdown      bool `yaml:"clean_markdown"`
	ExtractConcurrency int  `yaml:"extract_concurrency,omitempty"`

	PresignTTL       time.Duration `yaml:"presign_ttl,omitempty"`
	RunsCollection   string        `yaml:"runs_collection,omitempty"`
	WorkflowID       string        `yaml:"workflow_id,omitempty"`
	WorkflowLocation string        `yaml:"workflow_location,omitempty"`
	PDFFont          string        `yaml:"pdf_font,omitempty"`
	PDFFontFile      string        `yaml:"pdf_font_file,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VertexAIRegion:     "us-central1",
		Languages:          append([]string(nil), DefaultLanguages...),
		OutputFormat:       "pdf",
		TranslatorProvider: ProviderVertex,
		VertexModel:        "gemini-1.5-pro",
		OpenAI: OpenAIConfig{
			Endpoint:   "https://ai.nutanix.com/api/v1",
			Model:      "vllm-llama-3-1",
			Timeout:    5 * time.Minute,
			MaxRetries: 2,
		},
		Temperature:        0.3,
		ChunkChars:         12000,
		CleanMarkdown:      true,
		ExtractConcurrency: 5,
		PresignTTL:         time.Hour,
		RunsCollection:     "translation-runs",
		WorkflowLocation:   "us-central1",
		PDFFont:            "Helvetica",
	}
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Load builds the configuration: defaults, then the YAML file named by
// DOCFLOW_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := GetEnv(FileEnv, ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("PROJECT_ID", &c.ProjectID)
	setString("VERTEX_AI_REGION", &c.VertexAIRegion)
	setString("SOURCE_BUCKET", &c.SourceBucket)
	setString("OUTPUT_BUCKET", &c.OutputBucket)
	setString("OUTPUT_FORMAT", &c.OutputFormat)
	setString("TRANSLATOR_PROVIDER", &c.TranslatorProvider)
	setString("VERTEX_MODEL", &c.VertexModel)
	setString("API_ENDPOINT", &c.OpenAI.Endpoint)
	setString("API_KEY", &c.OpenAI.APIKey)
	setString("MODEL_NAME", &c.OpenAI.Model)
	setString("TRANSLATE_PROMPT", &c.Prompt)
	setString("RUNS_COLLECTION", &c.RunsCollection)
	setString("WORKFLOW_ID", &c.WorkflowID)
	setString("WORKFLOW_LOCATION", &c.WorkflowLocation)
	setString("PDF_FONT", &c.PDFFont)
	setString("PDF_FONT_FILE", &c.PDFFontFile)

	if v, ok := os.LookupEnv("LANGUAGES"); ok {
		if langs := ParseLanguages(v); len(langs) > 0 {
			c.Languages = langs
		}
	}

	var err error
	if v, ok := os.LookupEnv("TEMPERATURE"); ok {
		if c.Temperature, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("TEMPERATURE: %w", err)
		}
	}
	if v, ok := os.LookupEnv("TRANSLATE_CHUNK_CHARS"); ok {
		if c.ChunkChars, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("TRANSLATE_CHUNK_CHARS: %w", err)
		}
	}
	if v, ok := os.LookupEnv("EXTRACT_CONCURRENCY"); ok {
		if c.ExtractConcurrency, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("EXTRACT_CONCURRENCY: %w", err)
		}
	}
	if v, ok := os.LookupEnv("API_MAX_RETRIES"); ok {
		if c.OpenAI.MaxRetries, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("API_MAX_RETRIES: %w", err)
		}
	}
	if v, ok := os.LookupEnv("CLEAN_MARKDOWN"); ok {
		if c.CleanMarkdown, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("CLEAN_MARKDOWN: %w", err)
		}
	}
	if v, ok := os.LookupEnv("PRESIGN_TTL"); ok {
		if c.PresignTTL, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("PRESIGN_TTL: %w", err)
		}
	}
	if v, ok := os.LookupEnv("API_TIMEOUT"); ok {
		if c.OpenAI.Timeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("API_TIMEOUT: %w", err)
		}
	}

	// Tolerate endpoints pasted with the completions path.
	c.OpenAI.Endpoint = strings.TrimSuffix(strings.TrimRight(c.OpenAI.Endpoint, "/"), "/chat/completions")
	return nil
}

// ParseLanguages splits a comma-separated language list, dropping blanks.
func ParseLanguages(s string) []string {
	var out []string
	for _, lang := range strings.Split(s, ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			out = append(out, lang)
		}
	}
	return out
}

// Validate checks the settings every translator entry point requires.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	switch c.TranslatorProvider {
	case ProviderVertex:
	case ProviderOpenAI:
		if c.OpenAI.Endpoint == "" || c.OpenAI.Model == "" {
			return fmt.Errorf("API_ENDPOINT and MODEL_NAME must be set for the openai provider")
		}
	default:
		return fmt.Errorf("unknown TRANSLATOR_PROVIDER %q", c.TranslatorProvider)
	}
	switch c.OutputFormat {
	case "pdf", "markdown", "md":
	default:
		return fmt.Errorf("unknown OUTPUT_FORMAT %q", c.OutputFormat)
	}
	if c.ChunkChars < 0 {
		return fmt.Errorf("TRANSLATE_CHUNK_CHARS must not be negative")
	}
	return nil
}
