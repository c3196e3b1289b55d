package models

import (
	"fmt"
	"time"
)

// Document is a source object as listed from the Document Source.
// It is never mutated after listing.
type Document struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Task is one (document, target language) unit of translation work.
type Task struct {
	Document Document
	Language string
}

func (t Task) String() string {
	return fmt.Sprintf("%s[%s]", t.Document.Key, t.Language)
}

// Stage names the pipeline step a Task failed in.
type Stage string

const (
	StageDownload    Stage = "download"
	StageExtract     Stage = "extract"
	StageTranslate   Stage = "translate"
	StageReconstruct Stage = "reconstruct"
	StageUpload      Stage = "upload"
)

// TaskStatus is the outcome of a Task.
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Artifact is a translated document written to the sink.
type Artifact struct {
	Bucket   string `json:"bucket" firestore:"bucket"`
	Key      string `json:"key" firestore:"key"`
	Document string `json:"document" firestore:"document"`
	Language string `json:"language" firestore:"language"`
}

// TaskResult is the single outcome recorded for a Task.
// Stage and Reason are set only for failures; Artifact only for successes.
type TaskResult struct {
	Task     Task
	Status   TaskStatus
	Stage    Stage
	Reason   string
	Artifact *Artifact
}

// OutputFormat describes what the Reconstructor produces.
type OutputFormat struct {
	Name        string
	Extension   string
	ContentType string
}

var (
	FormatPDF      = OutputFormat{Name: "pdf", Extension: ".pdf", ContentType: "application/pdf"}
	FormatMarkdown = OutputFormat{Name: "markdown", Extension: ".md", ContentType: "text/markdown"}
)

// ParseOutputFormat resolves a configured format name.
func ParseOutputFormat(name string) (OutputFormat, error) {
	switch name {
	case "", FormatPDF.Name:
		return FormatPDF, nil
	case FormatMarkdown.Name, "md":
		return FormatMarkdown, nil
	}
	return OutputFormat{}, fmt.Errorf("unknown output format %q", name)
}
