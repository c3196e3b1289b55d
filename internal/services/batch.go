package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docflow/internal/config"
	"github.com/Lllllllleong/docflow/internal/gcp"
	"github.com/Lllllllleong/docflow/internal/models"
	"github.com/Lllllllleong/docflow/internal/pipeline"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRequest marks requests rejected before any work starts.
var ErrInvalidRequest = errors.New("invalid request")

// BatchFunction holds the dependencies for running translation batches.
type BatchFunction struct {
	storageClient *storage.Client
	vertexClient  *gcp.VertexClient
	recorder      *gcp.RunRecorder
	workflow      *gcp.WorkflowTrigger
	extractor     pipeline.Extractor
	translator    pipeline.Translator
	pdf           *PDFReconstructor
	config        config.Config

	onProgress pipeline.ProgressFunc
}

// NewBatch loads the configuration and creates a BatchFunction.
func NewBatch(ctx context.Context) (*BatchFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewBatchFromConfig(ctx, cfg)
}

// NewBatchFromConfig creates a BatchFunction with clients for cfg.
// Run reporting and the workflow hand-off are only wired when configured.
func NewBatchFromConfig(ctx context.Context, cfg *config.Config) (*BatchFunction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.VertexModel, cfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	f := &BatchFunction{
		storageClient: storageClient,
		vertexClient:  vertexClient,
		extractor:     NewExtractor(vertexClient, cfg.CleanMarkdown, cfg.ExtractConcurrency),
		config:        *cfg,
	}
	if f.pdf, err = NewPDFReconstructor(cfg.PDFFont, cfg.PDFFontFile); err != nil {
		return nil, fmt.Errorf("failed to set up PDF rendering: %w", err)
	}
	if cfg.TranslatorProvider == config.ProviderOpenAI {
		f.translator = NewOpenAITranslator(cfg)
	} else {
		f.translator = NewVertexTranslator(vertexClient, cfg.Prompt, cfg.ChunkChars)
	}

	if cfg.RunsCollection != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		f.recorder = gcp.NewRunRecorder(firestoreClient, cfg.RunsCollection)
	}
	if cfg.WorkflowID != "" {
		f.workflow, err = gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Batch translator initialized.",
		"provider", cfg.TranslatorProvider,
		"outputFormat", cfg.OutputFormat,
		"pdfFont", f.pdf.font,
		"runsCollection", cfg.RunsCollection,
		"workflowId", cfg.WorkflowID,
	)
	return f, nil
}

// OnProgress registers an extra callback invoked after every Task resolution.
func (f *BatchFunction) OnProgress(fn pipeline.ProgressFunc) {
	f.onProgress = fn
}

// Config returns the effective configuration.
func (f *BatchFunction) Config() config.Config {
	return f.config
}

// StorageClient exposes the shared storage client.
func (f *BatchFunction) StorageClient() *storage.Client {
	return f.storageClient
}

// normalizeRequest fills defaults from cfg, trims and dedupes keys and
// languages, and resolves the output format.
func normalizeRequest(req *models.BatchTranslateRequest, cfg *config.Config) (*models.BatchTranslateRequest, models.OutputFormat, error) {
	if req == nil {
		return nil, models.OutputFormat{}, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	out := *req
	if out.SourceBucket == "" {
		out.SourceBucket = cfg.SourceBucket
	}
	if out.SourceBucket == "" {
		return nil, models.OutputFormat{}, fmt.Errorf("%w: sourceBucket is required", ErrInvalidRequest)
	}
	if out.OutputBucket == "" {
		out.OutputBucket = cfg.OutputBucket
	}
	if out.OutputBucket == "" {
		out.OutputBucket = out.SourceBucket
	}
	if out.OutputFormat == "" {
		out.OutputFormat = cfg.OutputFormat
	}
	format, err := models.ParseOutputFormat(strings.ToLower(out.OutputFormat))
	if err != nil {
		return nil, models.OutputFormat{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	out.Documents = dedupe(out.Documents)
	out.Languages = dedupe(out.Languages)
	return &out, format, nil
}

// dedupe trims values and drops blanks and repeats, keeping first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

type documentLister interface {
	List(ctx context.Context) ([]models.Document, error)
}

// resolveDocuments returns the documents a request selects. With All set the
// bucket listing is the selection. Otherwise the listing only supplies
// metadata; keys it does not contain are kept and will fail at download.
func resolveDocuments(ctx context.Context, logCtx *slog.Logger, source documentLister, req *models.BatchTranslateRequest) ([]models.Document, error) {
	if req.All {
		docs, err := source.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list source documents: %w", err)
		}
		return docs, nil
	}
	if len(req.Documents) == 0 {
		return nil, nil
	}

	listed, err := source.List(ctx)
	if err != nil {
		logCtx.Warn("Could not list source bucket; using requested keys as-is.", "error", err)
	}
	byKey := make(map[string]models.Document, len(listed))
	for _, d := range listed {
		byKey[d.Key] = d
	}

	docs := make([]models.Document, 0, len(req.Documents))
	for _, key := range req.Documents {
		if d, ok := byKey[key]; ok {
			docs = append(docs, d)
			continue
		}
		docs = append(docs, models.Document{Key: key})
	}
	return docs, nil
}

func (f *BatchFunction) reconstructor(format models.OutputFormat) pipeline.Reconstructor {
	if format == models.FormatMarkdown {
		return MarkdownReconstructor{}
	}
	return f.pdf
}

// Process runs one batch to completion and reports its outcome.
// Errors are returned only for requests rejected before the run starts;
// Task failures are part of the response.
func (f *BatchFunction) Process(ctx context.Context, req *models.BatchTranslateRequest) (*models.BatchTranslateResponse, error) {
	req, format, err := normalizeRequest(req, &f.config)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	bucketLog := slog.With("sourceBucket", req.SourceBucket, "outputBucket", req.OutputBucket)
	logCtx := bucketLog.With("runId", runID)

	source := gcp.NewBucket(f.storageClient, req.SourceBucket)
	sink := gcp.NewBucket(f.storageClient, req.OutputBucket)

	documents, err := resolveDocuments(ctx, logCtx, source, req)
	if err != nil {
		logCtx.Error("Failed to resolve documents", "error", err)
		return nil, err
	}
	logCtx.Info("Processing batch request.", "documents", len(documents), "languages", req.Languages, "format", format.Name)

	f.recordStart(ctx, logCtx, runID, req, documents)

	p := pipeline.New(source, f.extractor, f.translator, f.reconstructor(format), sink,
		pipeline.WithRunID(runID),
		pipeline.WithLogger(bucketLog),
		pipeline.WithProgress(func(progress models.Progress, result models.TaskResult) {
			f.recordProgress(ctx, logCtx, progress)
			if f.onProgress != nil {
				f.onProgress(progress, result)
			}
		}),
	)
	run := p.Run(ctx, documents, req.Languages)

	status := models.RunStatusCompleted
	if ctx.Err() != nil {
		status = models.RunStatusCancelled
	}
	// The run must be reported even if the caller has gone away.
	finishCtx := context.WithoutCancel(ctx)
	f.recordFinish(finishCtx, logCtx, run, status)

	links := presignArtifacts(finishCtx, sink, run.Artifacts, f.config.PresignTTL)
	f.handOff(finishCtx, logCtx, run, req.OutputBucket)

	return buildResponse(run, status, links), nil
}

func (f *BatchFunction) recordStart(ctx context.Context, logCtx *slog.Logger, runID string, req *models.BatchTranslateRequest, documents []models.Document) {
	if f.recorder == nil {
		return
	}
	keys := make([]string, len(documents))
	for i, d := range documents {
		keys[i] = d.Key
	}
	rec := models.RunRecord{
		RunID:        runID,
		SourceBucket: req.SourceBucket,
		OutputBucket: req.OutputBucket,
		Documents:    keys,
		Languages:    req.Languages,
		Total:        len(documents) * len(req.Languages),
		Progress:     0,
		CreatedAt:    time.Now(),
	}
	if err := f.recorder.Start(ctx, rec); err != nil {
		logCtx.Warn("Could not record run start.", "error", err)
	}
}

func (f *BatchFunction) recordProgress(ctx context.Context, logCtx *slog.Logger, p models.Progress) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.Progress(context.WithoutCancel(ctx), p); err != nil {
		logCtx.Warn("Could not record run progress.", "error", err, "completed", p.Completed)
	}
}

func (f *BatchFunction) recordFinish(ctx context.Context, logCtx *slog.Logger, run *models.BatchRun, status string) {
	if f.recorder == nil {
		return
	}
	if err := f.recorder.Finish(ctx, run, status); err != nil {
		logCtx.Warn("Could not record run result.", "error", err)
	}
}

// runCompleted is the argument passed to the downstream workflow.
type runCompleted struct {
	RunID        string            `json:"runId"`
	OutputBucket string            `json:"outputBucket"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	Artifacts    []models.Artifact `json:"artifacts"`
	Failures     []models.Failure  `json:"failures"`
}

func (f *BatchFunction) handOff(ctx context.Context, logCtx *slog.Logger, run *models.BatchRun, outputBucket string) {
	if f.workflow == nil || len(run.Artifacts) == 0 {
		return
	}
	payload := runCompleted{
		RunID:        run.ID,
		OutputBucket: outputBucket,
		Succeeded:    run.Succeeded,
		Failed:       run.Failed,
		Artifacts:    run.Artifacts,
		Failures:     run.FailureRecords(),
	}
	execName, err := f.workflow.Trigger(ctx, payload)
	if err != nil {
		logCtx.Error("Failed to hand off run to workflow", "error", err)
		return
	}
	logCtx.Info("Hand-off to workflow complete.", "executionId", execName)
}

type presigner interface {
	Presign(ctx context.Context, key string, ttl time.Duration) string
}

// presignArtifacts attaches a download link to every artifact, keeping order.
func presignArtifacts(ctx context.Context, p presigner, artifacts []models.Artifact, ttl time.Duration) []models.ArtifactLink {
	links := make([]models.ArtifactLink, len(artifacts))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i, a := range artifacts {
		eg.Go(func() error {
			links[i] = models.ArtifactLink{Artifact: a, URL: p.Presign(gctx, a.Key, ttl)}
			return nil
		})
	}
	_ = eg.Wait()
	return links
}

func buildResponse(run *models.BatchRun, status string, links []models.ArtifactLink) *models.BatchTranslateResponse {
	if links == nil {
		links = []models.ArtifactLink{}
	}
	return &models.BatchTranslateResponse{
		Status:    status,
		RunID:     run.ID,
		Total:     run.Total,
		Succeeded: run.Succeeded,
		Failed:    run.Failed,
		Artifacts: links,
		Failures:  run.FailureRecords(),
	}
}

// Close releases every client held by the function.
func (f *BatchFunction) Close() error {
	var errs []error
	if f.recorder != nil {
		errs = append(errs, f.recorder.Close())
	}
	if f.workflow != nil {
		errs = append(errs, f.workflow.Close())
	}
	errs = append(errs, f.vertexClient.Close(), f.storageClient.Close())
	return errors.Join(errs...)
}
