package ingest

import (
	"context"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/repository/catalog"
)

// Documents is the storage contract for document records.
type Documents interface {
	Save(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, id string) (*domain.Document, error)
	GetByHash(ctx context.Context, hash string) (*domain.Document, error)
	ClaimHash(ctx context.Context, hash, docID string) (claimed bool, holderID string, err error)
	ReleaseHash(ctx context.Context, hash string) error
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]*domain.Document, error)
	Count(ctx context.Context) (int, error)
}

// Catalog resolves named entities with case-insensitive get-or-create.
type Catalog interface {
	GetOrCreate(ctx context.Context, kind catalog.Kind, name string) (catalog.Entity, error)
	Get(ctx context.Context, kind catalog.Kind, id string) (catalog.Entity, error)
	List(ctx context.Context, kind catalog.Kind) ([]catalog.Entity, error)
}

// AuditLog appends and purges processing log entries.
type AuditLog interface {
	Append(ctx context.Context, entry *domain.ProcessingLog) error
	DeleteForDocument(ctx context.Context, docID string) error
}

// VectorIndex is the similarity index lifecycle the pipeline drives.
type VectorIndex interface {
	Upsert(ctx context.Context, docID, text string, vector []float32, meta domain.VectorMetadata) error
	Delete(ctx context.Context, docID string) error
	Count(ctx context.Context) (int, error)
}

// TextExtractor is the OCR-engine contract.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (text string, pages int, err error)
}

// AIProvider extracts metadata and embeds text. A nil provider means AI
// features are not configured; the pipeline marks those stages skipped.
type AIProvider interface {
	ExtractMetadata(ctx context.Context, filename, text string, knownTypes, knownCorrespondents []string) (domain.ExtractedMetadata, error)
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
