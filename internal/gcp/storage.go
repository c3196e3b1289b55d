package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docflow/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

var (
	// ErrNotFound is returned when an object or bucket does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrAccessDenied is returned when the caller lacks permission.
	ErrAccessDenied = errors.New("access denied")
)

// Bucket is a GCS bucket used as document source and artifact sink.
type Bucket struct {
	client *storage.Client
	name   string
}

// NewBucket wraps a bucket of an existing storage client.
func NewBucket(client *storage.Client, name string) *Bucket {
	return &Bucket{client: client, name: name}
}

// BucketName returns the bucket name.
func (b *Bucket) BucketName() string { return b.name }

// IsPDF reports whether an object key names a PDF document.
func IsPDF(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), ".pdf")
}

// List returns every PDF object in the bucket, sorted by key.
func (b *Bucket) List(ctx context.Context) ([]models.Document, error) {
	it := b.client.Bucket(b.name).Objects(ctx, nil)

	var docs []models.Document
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in gs://%s: %w", b.name, classify(err))
		}
		if !IsPDF(attrs.Name) {
			continue
		}
		docs = append(docs, models.Document{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Get downloads the full content of an object.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := b.client.Bucket(b.name).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", b.name, key, classify(err))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", b.name, key, classify(err))
	}
	return data, nil
}

// Put writes content to key, replacing any existing object.
func (b *Bucket) Put(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	writer := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write gs://%s/%s: %w", b.name, key, classify(err))
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS write for gs://%s/%s: %w", b.name, key, classify(err))
	}
	return key, nil
}

// Presign returns a V4 signed GET URL valid for ttl, or "" if signing fails.
func (b *Bucket) Presign(ctx context.Context, key string, ttl time.Duration) string {
	url, err := b.client.Bucket(b.name).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		slog.WarnContext(ctx, "Could not presign object.", "gcsBucket", b.name, "gcsObject", key, "error", err)
		return ""
	}
	return url
}

// URI returns the gs:// form of key.
func (b *Bucket) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", b.name, key)
}

// classify maps storage errors onto ErrNotFound / ErrAccessDenied while
// keeping the original error in the chain.
func classify(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}
	return err
}

// ListBuckets returns the names of the project's buckets, sorted.
func ListBuckets(ctx context.Context, client *storage.Client, projectID string) ([]string, error) {
	it := client.Buckets(ctx, projectID)

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list buckets for project %s: %w", projectID, classify(err))
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}
