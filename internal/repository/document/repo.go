// Package document persists document records as Redis hashes. The content
// hash claim (SETNX) gives the dedup lookup its uniqueness guarantee.
package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dockeep/dockeep/internal/db"
	"github.com/dockeep/dockeep/internal/domain"
)

// store is the consumer interface for documents (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, val int64) (int64, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// Repo implements the document repository over Redis hashes.
type Repo struct {
	store  store
	prefix string
}

// New creates a document repository. prefix namespaces all keys (e.g. "dk:").
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) docKey(id string) string    { return r.prefix + "doc:" + id }
func (r *Repo) hashKey(hash string) string { return r.prefix + "hash:" + hash }

// Save writes the full document record.
func (r *Repo) Save(ctx context.Context, doc *domain.Document) error {
	if err := r.store.HSet(ctx, r.docKey(doc.ID), buildHashFields(doc)); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (*domain.Document, error) {
	m, err := r.store.HGetAll(ctx, r.docKey(id))
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, domain.ErrDocumentNotFound
	}
	return parseHashFields(m), nil
}

// GetByHash returns the document owning the given content hash.
func (r *Repo) GetByHash(ctx context.Context, hash string) (*domain.Document, error) {
	id, err := r.store.Get(ctx, r.hashKey(hash))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get hash claim %s: %w", hash, err)
	}
	return r.Get(ctx, string(id))
}

// ClaimHash atomically claims a content hash for docID. When the hash is
// already held, the holder's document ID is returned instead.
func (r *Repo) ClaimHash(ctx context.Context, hash, docID string) (claimed bool, holderID string, err error) {
	ok, err := r.store.SetNX(ctx, r.hashKey(hash), []byte(docID))
	if err != nil {
		return false, "", fmt.Errorf("claim hash %s: %w", hash, err)
	}
	if ok {
		return true, docID, nil
	}
	holder, err := r.store.Get(ctx, r.hashKey(hash))
	if err != nil {
		// Claim released between SETNX and GET; treat as lost race.
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("read hash claim %s: %w", hash, err)
	}
	return false, string(holder), nil
}

// ReleaseHash frees a content hash claim.
func (r *Repo) ReleaseHash(ctx context.Context, hash string) error {
	if err := r.store.Del(ctx, r.hashKey(hash)); err != nil {
		return fmt.Errorf("release hash %s: %w", hash, err)
	}
	return nil
}

// Delete removes a document record. The hash claim is released separately.
func (r *Repo) Delete(ctx context.Context, id string) error {
	exists, err := r.store.Exists(ctx, r.docKey(id))
	if err != nil {
		return fmt.Errorf("check exists %s: %w", id, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}
	if err := r.store.Del(ctx, r.docKey(id)); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// List returns documents matching the filters, newest first.
func (r *Repo) List(ctx context.Context, filters domain.SearchFilters, offset, limit int) ([]*domain.Document, int, error) {
	docs, err := r.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	matched := docs[:0]
	for _, d := range docs {
		if filters.Matches(d) {
			matched = append(matched, d)
		}
	}
	sortByRecency(matched)

	return paginate(matched, offset, limit), len(matched), nil
}

// FetchByIDs returns the documents for the given IDs preserving input order.
// Missing IDs are skipped.
func (r *Repo) FetchByIDs(ctx context.Context, ids []string) ([]*domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch documents: %w", err)
	}
	docs := make([]*domain.Document, 0, len(ids))
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		docs = append(docs, parseHashFields(m))
	}
	return docs, nil
}

// SearchText returns documents where any variant occurs in the title,
// summary, full text or filename, newest first. Matching is case-insensitive
// substring; typo tolerance comes from the variant list itself.
func (r *Repo) SearchText(
	ctx context.Context, variants []string, filters domain.SearchFilters, offset, limit int,
) ([]*domain.Document, int, error) {
	lowered := make([]string, 0, len(variants))
	for _, v := range variants {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			lowered = append(lowered, v)
		}
	}
	if len(lowered) == 0 {
		return nil, 0, nil
	}

	docs, err := r.loadAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	matched := docs[:0]
	for _, d := range docs {
		if !filters.Matches(d) {
			continue
		}
		if matchesAnyVariant(d, lowered) {
			matched = append(matched, d)
		}
	}
	sortByRecency(matched)

	return paginate(matched, offset, limit), len(matched), nil
}

// IncrementViewCount bumps the view counter and stamps the view time.
func (r *Repo) IncrementViewCount(ctx context.Context, id string) error {
	key := r.docKey(id)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", id, err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}
	if _, err := r.store.HIncrBy(ctx, key, "view_count", 1); err != nil {
		return fmt.Errorf("increment view count %s: %w", id, err)
	}
	now := time.Now().UTC().Format(timeLayout)
	if err := r.store.HSet(ctx, key, map[string]string{"last_viewed": now}); err != nil {
		return fmt.Errorf("stamp last viewed %s: %w", id, err)
	}
	return nil
}

// Count returns the number of document records.
func (r *Repo) Count(ctx context.Context) (int, error) {
	keys, err := r.store.Scan(ctx, r.docKey("*"))
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return len(keys), nil
}

// All returns every document record, unsorted.
func (r *Repo) All(ctx context.Context) ([]*domain.Document, error) {
	return r.loadAll(ctx)
}

func (r *Repo) loadAll(ctx context.Context) ([]*domain.Document, error) {
	keys, err := r.store.Scan(ctx, r.docKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	docs := make([]*domain.Document, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		docs = append(docs, parseHashFields(m))
	}
	return docs, nil
}

func matchesAnyVariant(d *domain.Document, lowered []string) bool {
	haystacks := []string{
		strings.ToLower(d.Title),
		strings.ToLower(d.Summary),
		strings.ToLower(d.FullText),
		strings.ToLower(d.Filename),
		strings.ToLower(d.OriginalFilename),
	}
	for _, v := range lowered {
		for _, h := range haystacks {
			if h != "" && strings.Contains(h, v) {
				return true
			}
		}
	}
	return false
}

func sortByRecency(docs []*domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

func paginate(docs []*domain.Document, offset, limit int) []*domain.Document {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return nil
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end]
}
