package pipeline

import (
	"context"

	"github.com/Lllllllleong/docflow/internal/models"
)

// Source fetches the raw content of a listed document.
type Source interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Extractor turns a source document into markdown text.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (string, error)
}

// Translator maps markdown text into the target language, leaving markup intact.
type Translator interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// Reconstructor renders translated markdown back into an output document.
type Reconstructor interface {
	Reconstruct(ctx context.Context, text string) ([]byte, error)
	Format() models.OutputFormat
}

// Sink stores produced artifacts and returns the key written.
type Sink interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
}

// BucketNamer is implemented by sinks that know their bucket name,
// so artifacts can carry a full storage location.
type BucketNamer interface {
	BucketName() string
}
