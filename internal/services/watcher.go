package services

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/docflow/internal/gcp"
	"github.com/Lllllllleong/docflow/internal/models"
)

// GCSEvent is the payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// IsDerivedArtifact reports whether key looks like an output of a run
// (<base>_<language>.<ext>) for one of languages.
func IsDerivedArtifact(key string, languages []string) bool {
	base := strings.TrimSuffix(key, path.Ext(key))
	for _, lang := range languages {
		if lang != "" && strings.HasSuffix(base, "_"+lang) {
			return true
		}
	}
	return false
}

// HandleUpload translates a newly uploaded PDF into every configured
// language. Non-PDF objects and previously produced artifacts are ignored,
// so an output bucket equal to the source bucket does not loop.
func (f *BatchFunction) HandleUpload(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if !gcp.IsPDF(e.Name) {
		logCtx.Info("Object is not a PDF. Skipping.")
		return nil
	}
	if IsDerivedArtifact(e.Name, f.config.Languages) {
		logCtx.Info("Object is a translated artifact. Skipping.")
		return nil
	}

	logCtx.Info("Processing new GCS object.", "languages", f.config.Languages)
	res, err := f.Process(ctx, &models.BatchTranslateRequest{
		SourceBucket: e.Bucket,
		OutputBucket: f.config.OutputBucket,
		Documents:    []string{e.Name},
		Languages:    f.config.Languages,
	})
	if err != nil {
		logCtx.Error("Failed to process uploaded object", "error", err)
		return err
	}
	logCtx.Info("Upload processed.", "runId", res.RunID, "succeeded", res.Succeeded, "failed", res.Failed)
	return nil
}
