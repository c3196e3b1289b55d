package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docflow/internal/config"
	"github.com/Lllllllleong/docflow/internal/gcp"
	"github.com/Lllllllleong/docflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// documentBucket lists a bucket and signs download links for its objects.
type documentBucket interface {
	documentLister
	presigner
}

// ListerFunction serves document listings. It only needs Cloud Storage, so
// neither PROJECT_ID nor the model clients are required.
type ListerFunction struct {
	storageClient *storage.Client
	config        config.Config
	open          func(bucket string) documentBucket
}

// NewLister loads the configuration and creates a ListerFunction.
func NewLister(ctx context.Context) (*ListerFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	slog.Info("Document lister initialized.", "sourceBucket", cfg.SourceBucket)
	return NewListerFromClient(storageClient, cfg), nil
}

// NewListerFromClient creates a ListerFunction over an existing client.
func NewListerFromClient(client *storage.Client, cfg *config.Config) *ListerFunction {
	return &ListerFunction{
		storageClient: client,
		config:        *cfg,
		open: func(bucket string) documentBucket {
			return gcp.NewBucket(client, bucket)
		},
	}
}

// ListDocuments lists the PDFs of a bucket with download links, plus the
// languages offered for translation.
func (f *ListerFunction) ListDocuments(ctx context.Context, req *models.ListDocumentsRequest) (*models.ListDocumentsResponse, error) {
	bucket := req.Bucket
	if bucket == "" {
		bucket = f.config.SourceBucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidRequest)
	}

	source := f.open(bucket)
	docs, err := source.List(ctx)
	if err != nil {
		return nil, err
	}
	return &models.ListDocumentsResponse{
		Status:    "success",
		Bucket:    bucket,
		Documents: documentEntries(ctx, source, docs, f.config.PresignTTL),
		Languages: f.config.Languages,
	}, nil
}

func documentEntries(ctx context.Context, p presigner, docs []models.Document, ttl time.Duration) []models.DocumentEntry {
	entries := make([]models.DocumentEntry, len(docs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i, d := range docs {
		eg.Go(func() error {
			entries[i] = models.DocumentEntry{
				Key:          d.Key,
				Size:         d.Size,
				LastModified: d.LastModified,
				URL:          p.Presign(gctx, d.Key, ttl),
			}
			return nil
		})
	}
	_ = eg.Wait()
	return entries
}

// Close releases the storage client.
func (f *ListerFunction) Close() error {
	return f.storageClient.Close()
}
