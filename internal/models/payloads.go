package models

import "time"

// These structs define the JSON payloads for HTTP requests and responses
// of the translator Cloud Functions.

// BatchTranslateRequest is the input for the batch-translator function.
// It is the complete, immutable description of one run.
type BatchTranslateRequest struct {
	SourceBucket string   `json:"sourceBucket"`
	OutputBucket string   `json:"outputBucket"`
	Documents    []string `json:"documents"`
	// All selects every PDF in the source bucket; Documents is ignored.
	All       bool     `json:"all,omitempty"`
	Languages []string `json:"languages"`
	// OutputFormat overrides the configured format ("pdf" or "markdown").
	OutputFormat string `json:"outputFormat,omitempty"`
}

// ArtifactLink is a produced artifact plus a presigned download link.
type ArtifactLink struct {
	Artifact
	URL string `json:"url,omitempty"`
}

// BatchTranslateResponse is the output of the batch-translator function.
type BatchTranslateResponse struct {
	Status    string         `json:"status"`
	RunID     string         `json:"runId"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Artifacts []ArtifactLink `json:"artifacts"`
	Failures  []Failure      `json:"failures"`
}

// ListDocumentsRequest is the input for the document-lister function.
type ListDocumentsRequest struct {
	Bucket string `json:"bucket"`
}

// DocumentEntry is one listed PDF.
type DocumentEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	URL          string    `json:"url,omitempty"`
}

// ListDocumentsResponse is the output of the document-lister function.
type ListDocumentsResponse struct {
	Status    string          `json:"status"`
	Bucket    string          `json:"bucket"`
	Documents []DocumentEntry `json:"documents"`
	Languages []string        `json:"languages"`
}
