package search

import (
	"context"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/repository/catalog"
)

// Documents is the relational-store surface the search engine reads from.
type Documents interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filters domain.SearchFilters, offset, limit int) ([]*domain.Document, int, error)
	FetchByIDs(ctx context.Context, ids []string) ([]*domain.Document, error)
	SearchText(ctx context.Context, variants []string, filters domain.SearchFilters, offset, limit int) ([]*domain.Document, int, error)
	All(ctx context.Context) ([]*domain.Document, error)
}

// Catalog lists named entities for suggestion lookups.
type Catalog interface {
	List(ctx context.Context, kind catalog.Kind) ([]catalog.Entity, error)
}

// VectorIndex runs nearest-neighbour queries against the similarity index.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.VectorHit, error)
}

// AIProvider covers the AI calls the engine issues. A nil provider disables
// semantic search and answer generation; full-text search keeps working.
type AIProvider interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	Answer(ctx context.Context, question string, docs []domain.ContextDocument) (string, error)
}
