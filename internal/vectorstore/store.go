// Package vectorstore wraps the FT.SEARCH HNSW index that holds document
// embeddings. The index is created lazily on first use so the service starts
// even when the database comes up later.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dockeep/dockeep/internal/db"
	"github.com/dockeep/dockeep/internal/domain"
)

// store is the consumer interface for the similarity index (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Config holds index parameters.
type Config struct {
	IndexName       string
	KeyPrefix       string // e.g. "dk:"
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Store is the vector store adapter.
type Store struct {
	store store
	cfg   Config

	mu    sync.Mutex
	ready bool
}

// New creates the adapter. The index itself is created on first operation.
func New(s store, cfg Config) *Store {
	return &Store{store: s, cfg: cfg}
}

func (s *Store) key(docID string) string { return s.cfg.KeyPrefix + "vec:" + docID }

var returnFields = []string{"doc_id", "text", "title", "correspondent", "doc_type", "tax_relevant", "created_at"}

func (s *Store) definition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     s.cfg.IndexName,
		Prefixes: []string{s.cfg.KeyPrefix + "vec:"},
		Fields: []db.IndexField{
			{Name: "doc_id", Type: db.IndexFieldTag},
			{Name: "correspondent", Type: db.IndexFieldTag},
			{Name: "doc_type", Type: db.IndexFieldTag},
			{Name: "tax_relevant", Type: db.IndexFieldTag},
			{Name: "text", Type: db.IndexFieldText},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorDim:         s.cfg.Dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           s.cfg.HNSWM,
				VectorEFConstruct: s.cfg.HNSWEFConstruct,
			},
		},
	}
}

// ensureReady creates the index once. Concurrent creation races are resolved
// by tolerating ErrIndexExists.
func (s *Store) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.store.IndexExists(ctx, s.cfg.IndexName)
	if err != nil {
		return errors.Join(domain.ErrVectorStoreUnavailable, err)
	}
	if !exists {
		if err := s.store.CreateIndex(ctx, s.definition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return errors.Join(domain.ErrVectorStoreUnavailable, err)
		}
	}
	s.ready = true
	return nil
}

// Upsert writes or replaces the embedding entry for a document.
func (s *Store) Upsert(ctx context.Context, docID, text string, vector []float32, meta domain.VectorMetadata) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	if len(vector) != s.cfg.Dimensions {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(vector), s.cfg.Dimensions)
	}

	fields := map[string]string{
		"doc_id":        docID,
		"text":          text,
		"vector":        vectorToBytes(vector),
		"title":         meta.Title,
		"correspondent": meta.Correspondent,
		"doc_type":      meta.DocType,
		"tax_relevant":  boolTag(meta.TaxRelevant),
		"created_at":    meta.CreatedAt,
	}
	if err := s.store.HSet(ctx, s.key(docID), fields); err != nil {
		return errors.Join(domain.ErrVectorStoreUnavailable, err)
	}
	return nil
}

// Delete removes a document's embedding entry. Missing entries are not an
// error: deletion is called on cleanup paths where the entry may never have
// been written.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.store.Del(ctx, s.key(docID)); err != nil {
		return errors.Join(domain.ErrVectorStoreUnavailable, err)
	}
	return nil
}

// Query runs a KNN search and returns hits ordered by descending similarity.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]domain.VectorHit, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	result, err := s.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.cfg.IndexName,
		Vector:       vector,
		K:            k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, errors.Join(domain.ErrVectorStoreUnavailable, err)
	}

	hits := make([]domain.VectorHit, 0, len(result.Entries))
	for _, e := range result.Entries {
		docID := e.Fields["doc_id"]
		if docID == "" {
			docID = strings.TrimPrefix(e.Key, s.cfg.KeyPrefix+"vec:")
		}
		hits = append(hits, domain.VectorHit{
			DocumentID: docID,
			Text:       e.Fields["text"],
			Score:      e.Score,
			Metadata: domain.VectorMetadata{
				DocumentID:    docID,
				Title:         e.Fields["title"],
				Correspondent: e.Fields["correspondent"],
				DocType:       e.Fields["doc_type"],
				TaxRelevant:   e.Fields["tax_relevant"] == "1",
				CreatedAt:     e.Fields["created_at"],
			},
		})
	}
	return hits, nil
}

// Count returns the number of indexed entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ensureReady(ctx); err != nil {
		return 0, err
	}
	n, err := s.store.SearchCount(ctx, s.cfg.IndexName, "*")
	if err != nil {
		return 0, errors.Join(domain.ErrVectorStoreUnavailable, err)
	}
	return n, nil
}

// Reset drops the index and all entries, then recreates the index.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	if err := s.store.DropIndex(ctx, s.cfg.IndexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return errors.Join(domain.ErrVectorStoreUnavailable, err)
	}

	keys, err := s.store.Scan(ctx, s.cfg.KeyPrefix+"vec:*")
	if err != nil {
		return errors.Join(domain.ErrVectorStoreUnavailable, err)
	}
	for _, k := range keys {
		if err := s.store.Del(ctx, k); err != nil {
			return errors.Join(domain.ErrVectorStoreUnavailable, err)
		}
	}

	return s.ensureReady(ctx)
}

func boolTag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
