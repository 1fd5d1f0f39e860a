// Package catalog persists the named entities documents reference:
// correspondents, document types and tags. Get-or-create is race-safe via a
// SETNX claim on the lowercased name.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dockeep/dockeep/internal/db"
	"github.com/dockeep/dockeep/internal/domain"
)

// Kind selects the entity family.
type Kind string

const (
	// KindCorrespondent is the sender/issuer of a document.
	KindCorrespondent Kind = "corr"
	// KindDocType classifies a document.
	KindDocType Kind = "dtype"
	// KindTag is a free-form label.
	KindTag Kind = "tag"
)

// Entity is the stored shape shared by all three families.
type Entity struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// store is the consumer interface for catalog entities (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// Repo implements the catalog repository over Redis hashes.
type Repo struct {
	store  store
	prefix string
}

// New creates a catalog repository. prefix namespaces all keys (e.g. "dk:").
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) entityKey(kind Kind, id string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, kind, id)
}

func (r *Repo) nameKey(kind Kind, name string) string {
	return fmt.Sprintf("%s%s:name:%s", r.prefix, kind, strings.ToLower(strings.TrimSpace(name)))
}

// GetOrCreate returns the entity with the given name, creating it when
// absent. Lookup is case-insensitive; the stored name keeps the case of the
// first writer.
func (r *Repo) GetOrCreate(ctx context.Context, kind Kind, name string) (Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entity{}, fmt.Errorf("%w: empty name", domain.ErrEntityNotFound)
	}

	id := uuid.NewString()
	claimed, err := r.store.SetNX(ctx, r.nameKey(kind, name), []byte(id))
	if err != nil {
		return Entity{}, fmt.Errorf("claim name %q: %w", name, err)
	}

	if !claimed {
		holder, err := r.store.Get(ctx, r.nameKey(kind, name))
		if err != nil {
			return Entity{}, fmt.Errorf("read name claim %q: %w", name, err)
		}
		return r.Get(ctx, kind, string(holder))
	}

	e := Entity{ID: id, Name: name, CreatedAt: time.Now().UTC()}
	if err := r.store.HSet(ctx, r.entityKey(kind, id), buildFields(e)); err != nil {
		return Entity{}, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return e, nil
}

// Get returns an entity by ID.
func (r *Repo) Get(ctx context.Context, kind Kind, id string) (Entity, error) {
	m, err := r.store.HGetAll(ctx, r.entityKey(kind, id))
	if err != nil {
		return Entity{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	if len(m) == 0 {
		return Entity{}, domain.ErrEntityNotFound
	}
	return parseFields(m), nil
}

// FindByName returns the entity with the given name, case-insensitive.
func (r *Repo) FindByName(ctx context.Context, kind Kind, name string) (Entity, error) {
	holder, err := r.store.Get(ctx, r.nameKey(kind, name))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Entity{}, domain.ErrEntityNotFound
		}
		return Entity{}, fmt.Errorf("find %s %q: %w", kind, name, err)
	}
	return r.Get(ctx, kind, string(holder))
}

// List returns all entities of a kind sorted by name.
func (r *Repo) List(ctx context.Context, kind Kind) ([]Entity, error) {
	keys, err := r.store.Scan(ctx, r.entityKey(kind, "*"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}

	// Name claim keys share the prefix; skip them.
	entityKeys := keys[:0]
	namePrefix := fmt.Sprintf("%s%s:name:", r.prefix, kind)
	for _, k := range keys {
		if !strings.HasPrefix(k, namePrefix) {
			entityKeys = append(entityKeys, k)
		}
	}
	if len(entityKeys) == 0 {
		return nil, nil
	}

	maps, err := r.store.HGetAllMulti(ctx, entityKeys)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}

	out := make([]Entity, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		out = append(out, parseFields(m))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Delete removes an entity and its name claim.
func (r *Repo) Delete(ctx context.Context, kind Kind, id string) error {
	e, err := r.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := r.store.Del(ctx, r.nameKey(kind, e.Name)); err != nil {
		return fmt.Errorf("delete name claim %q: %w", e.Name, err)
	}
	if err := r.store.Del(ctx, r.entityKey(kind, id)); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return nil
}

func buildFields(e Entity) map[string]string {
	return map[string]string{
		"id":         e.ID,
		"name":       e.Name,
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseFields(m map[string]string) Entity {
	created, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	return Entity{ID: m["id"], Name: m["name"], CreatedAt: created}
}
