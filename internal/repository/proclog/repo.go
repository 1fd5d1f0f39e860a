// Package proclog stores the append-only processing audit trail as Redis
// lists, one global list plus one per document.
package proclog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dockeep/dockeep/internal/domain"
)

// maxEntries caps each list; older entries are trimmed away.
const maxEntries = 1000

// store is the consumer interface for log lists (ISP).
type store interface {
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	Del(ctx context.Context, key string) error
}

// Repo implements the processing log repository.
type Repo struct {
	store  store
	prefix string
}

// New creates a processing log repository. prefix namespaces all keys.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) globalKey() string          { return r.prefix + "log:all" }
func (r *Repo) docKey(docID string) string { return r.prefix + "log:doc:" + docID }

type entryDTO struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id,omitempty"`
	Operation  string `json:"operation"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// Append records a log entry. Logging failures must never abort the pipeline,
// so callers typically ignore the returned error after logging it.
func (r *Repo) Append(ctx context.Context, entry *domain.ProcessingLog) error {
	data, err := json.Marshal(entryDTO{
		ID:         entry.ID,
		DocumentID: entry.DocumentID,
		Operation:  entry.Operation,
		Status:     string(entry.Status),
		Message:    entry.Message,
		CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	keys := []string{r.globalKey()}
	if entry.DocumentID != "" {
		keys = append(keys, r.docKey(entry.DocumentID))
	}
	for _, key := range keys {
		if err := r.store.LPush(ctx, key, string(data)); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		if err := r.store.LTrim(ctx, key, 0, maxEntries-1); err != nil {
			return fmt.Errorf("trim log: %w", err)
		}
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]*domain.ProcessingLog, error) {
	return r.fetch(ctx, r.globalKey(), limit)
}

// ForDocument returns the newest entries for one document, most recent first.
func (r *Repo) ForDocument(ctx context.Context, docID string, limit int) ([]*domain.ProcessingLog, error) {
	return r.fetch(ctx, r.docKey(docID), limit)
}

// DeleteForDocument drops a document's log list. Global entries referencing
// the document are retained until they age out of the capped list.
func (r *Repo) DeleteForDocument(ctx context.Context, docID string) error {
	if err := r.store.Del(ctx, r.docKey(docID)); err != nil {
		return fmt.Errorf("delete document log: %w", err)
	}
	return nil
}

// Count returns the number of retained global entries.
func (r *Repo) Count(ctx context.Context) (int64, error) {
	n, err := r.store.LLen(ctx, r.globalKey())
	if err != nil {
		return 0, fmt.Errorf("count log: %w", err)
	}
	return n, nil
}

func (r *Repo) fetch(ctx context.Context, key string, limit int) ([]*domain.ProcessingLog, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := r.store.LRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	out := make([]*domain.ProcessingLog, 0, len(raw))
	for _, item := range raw {
		var dto entryDTO
		if err := json.Unmarshal([]byte(item), &dto); err != nil {
			continue
		}
		created, _ := time.Parse(time.RFC3339Nano, dto.CreatedAt)
		out = append(out, &domain.ProcessingLog{
			ID:         dto.ID,
			DocumentID: dto.DocumentID,
			Operation:  dto.Operation,
			Status:     domain.LogStatus(dto.Status),
			Message:    dto.Message,
			CreatedAt:  created,
		})
	}
	return out, nil
}
