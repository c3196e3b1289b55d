// Package pipeline drives a multi-document, multi-language translation batch.
//
// Every (document, language) Task resolves to exactly one TaskResult.
// Download and extraction failures fail all languages of the document at
// once; translation, reconstruction and upload failures are isolated to a
// single Task. Execution is sequential and nothing is retried here.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Lllllllleong/docflow/internal/models"
)

// ProgressFunc is called after every Task resolution.
type ProgressFunc func(p models.Progress, result models.TaskResult)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress registers a callback for live progress reporting.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRunID sets the identifier stamped on the BatchRun.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// Pipeline sequences download, extract, translate, reconstruct and upload.
type Pipeline struct {
	source        Source
	extractor     Extractor
	translator    Translator
	reconstructor Reconstructor
	sink          Sink

	onProgress ProgressFunc
	logger     *slog.Logger
	runID      string
}

// New creates a Pipeline over the given collaborators.
func New(source Source, extractor Extractor, translator Translator, reconstructor Reconstructor, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:        source,
		extractor:     extractor,
		translator:    translator,
		reconstructor: reconstructor,
		sink:          sink,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every Task of documents × languages and returns the final tally.
// It never returns an error: each failure is recorded on its Task.
// A cancelled ctx resolves the remaining Tasks as failed at the stage they
// would have entered next.
func (p *Pipeline) Run(ctx context.Context, documents []models.Document, languages []string) *models.BatchRun {
	run := &models.BatchRun{
		ID:        p.runID,
		Total:     len(documents) * len(languages),
		StartedAt: time.Now(),
	}
	logCtx := p.logger.With("runId", p.runID)

	if run.Total == 0 {
		run.FinishedAt = run.StartedAt
		logCtx.Info("Nothing to translate.", "documents", len(documents), "languages", len(languages))
		return run
	}

	logCtx.Info("Starting batch.", "documents", len(documents), "languages", len(languages), "totalTasks", run.Total)
	for _, doc := range documents {
		p.processDocument(ctx, logCtx.With("document", doc.Key), run, doc, languages)
	}
	run.FinishedAt = time.Now()

	logCtx.Info("Batch complete.",
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"duration", run.FinishedAt.Sub(run.StartedAt).String(),
	)
	return run
}

func (p *Pipeline) processDocument(ctx context.Context, logCtx *slog.Logger, run *models.BatchRun, doc models.Document, languages []string) {
	if err := ctx.Err(); err != nil {
		p.failDocument(logCtx, run, doc, languages, models.StageDownload, err)
		return
	}

	content, err := p.source.Get(ctx, doc.Key)
	if err != nil {
		p.failDocument(logCtx, run, doc, languages, models.StageDownload, err)
		return
	}

	markdown, err := p.extractor.Extract(ctx, content)
	if err != nil {
		p.failDocument(logCtx, run, doc, languages, models.StageExtract, err)
		return
	}
	logCtx.Info("Document extracted.", "bytes", len(content), "markdownChars", len(markdown))

	for _, lang := range languages {
		task := models.Task{Document: doc, Language: lang}
		if err := ctx.Err(); err != nil {
			p.resolve(logCtx, run, failed(task, models.StageTranslate, err))
			continue
		}
		p.resolve(logCtx, run, p.processTask(ctx, task, markdown))
	}
}

func (p *Pipeline) processTask(ctx context.Context, task models.Task, markdown string) models.TaskResult {
	translated, err := p.translator.Translate(ctx, markdown, task.Language)
	if err != nil {
		return failed(task, models.StageTranslate, err)
	}

	content, err := p.reconstructor.Reconstruct(ctx, translated)
	if err != nil {
		return failed(task, models.StageReconstruct, err)
	}

	format := p.reconstructor.Format()
	key := DeriveKey(task.Document.Key, task.Language, format.Extension)
	written, err := p.sink.Put(ctx, key, content, format.ContentType)
	if err != nil {
		return failed(task, models.StageUpload, err)
	}
	if written == "" {
		written = key
	}

	artifact := &models.Artifact{
		Key:      written,
		Document: task.Document.Key,
		Language: task.Language,
	}
	if bn, ok := p.sink.(BucketNamer); ok {
		artifact.Bucket = bn.BucketName()
	}
	return models.TaskResult{Task: task, Status: models.TaskSucceeded, Artifact: artifact}
}

// failDocument resolves every language of doc with the same document-level failure.
func (p *Pipeline) failDocument(logCtx *slog.Logger, run *models.BatchRun, doc models.Document, languages []string, stage models.Stage, err error) {
	logCtx.Error("Document failed; skipping all languages.", "stage", stage, "error", err, "languages", len(languages))
	for _, lang := range languages {
		p.resolve(logCtx, run, failed(models.Task{Document: doc, Language: lang}, stage, err))
	}
}

func (p *Pipeline) resolve(logCtx *slog.Logger, run *models.BatchRun, res models.TaskResult) {
	run.Results = append(run.Results, res)
	run.Completed++
	switch res.Status {
	case models.TaskSucceeded:
		run.Succeeded++
		run.Artifacts = append(run.Artifacts, *res.Artifact)
		logCtx.Info("Task succeeded.", "language", res.Task.Language, "key", res.Artifact.Key, "progress", run.Progress())
	default:
		run.Failed++
		if res.Stage != models.StageDownload && res.Stage != models.StageExtract {
			logCtx.Error("Task failed.", "language", res.Task.Language, "stage", res.Stage, "reason", res.Reason)
		}
	}
	if p.onProgress != nil {
		p.onProgress(run.Snapshot(), res)
	}
}

func failed(task models.Task, stage models.Stage, err error) models.TaskResult {
	reason := err.Error()
	var se *StageError
	if errors.As(err, &se) {
		reason = se.Reason()
	}
	return models.TaskResult{Task: task, Status: models.TaskFailed, Stage: stage, Reason: reason}
}
