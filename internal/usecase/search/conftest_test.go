package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/repository/catalog"
)

type fakeDocs struct {
	mu   sync.Mutex
	docs []*domain.Document
}

func (f *fakeDocs) add(docs ...*domain.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, docs...)
}

func (f *fakeDocs) Get(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ID == id {
			clone := *d
			return &clone, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}

func (f *fakeDocs) List(_ context.Context, filters domain.SearchFilters, offset, limit int) ([]*domain.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matched := filterAndSort(f.docs, filters)
	return pageOf(matched, offset, limit), len(matched), nil
}

func (f *fakeDocs) FetchByIDs(_ context.Context, ids []string) ([]*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID := make(map[string]*domain.Document, len(f.docs))
	for _, d := range f.docs {
		byID[d.ID] = d
	}
	var out []*domain.Document
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeDocs) SearchText(_ context.Context, variants []string, filters domain.SearchFilters, offset, limit int) ([]*domain.Document, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.Document
	for _, d := range filterAndSort(f.docs, filters) {
		haystack := strings.ToLower(d.Title + " " + d.Summary + " " + d.FullText + " " + d.Filename)
		for _, v := range variants {
			if v != "" && strings.Contains(haystack, strings.ToLower(v)) {
				matched = append(matched, d)
				break
			}
		}
	}
	return pageOf(matched, offset, limit), len(matched), nil
}

func (f *fakeDocs) All(_ context.Context) ([]*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Document, len(f.docs))
	copy(out, f.docs)
	return out, nil
}

func filterAndSort(docs []*domain.Document, filters domain.SearchFilters) []*domain.Document {
	var matched []*domain.Document
	for _, d := range docs {
		if filters.Matches(d) {
			clone := *d
			matched = append(matched, &clone)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return matched
}

func pageOf(docs []*domain.Document, offset, limit int) []*domain.Document {
	if offset >= len(docs) {
		return nil
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end]
}

type fakeCatalog struct {
	entities map[catalog.Kind][]catalog.Entity
}

func (f *fakeCatalog) List(_ context.Context, kind catalog.Kind) ([]catalog.Entity, error) {
	return f.entities[kind], nil
}

// fakeVectors pops one canned response per query; an exhausted queue yields
// empty results.
type fakeVectors struct {
	mu    sync.Mutex
	queue [][]domain.VectorHit
	err   error
	calls int
	lastK int
}

func (f *fakeVectors) Query(_ context.Context, _ []float32, k int) ([]domain.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) == 0 {
		return nil, nil
	}
	hits := f.queue[0]
	f.queue = f.queue[1:]
	return hits, nil
}

func (f *fakeVectors) push(hits ...domain.VectorHit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, hits)
}

type fakeSearchAI struct {
	mu          sync.Mutex
	embedErr    error
	answer      string
	answerErr   error
	embedCalls  int
	answerCalls int
	embedInputs []string
}

func (f *fakeSearchAI) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	f.embedInputs = append(f.embedInputs, text)
	if f.embedErr != nil {
		return domain.EmbeddingResult{}, f.embedErr
	}
	return domain.EmbeddingResult{Embedding: []float32{0.5, 0.5}, TotalTokens: 4}, nil
}

func (f *fakeSearchAI) Answer(_ context.Context, _ string, _ []domain.ContextDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answerCalls++
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return f.answer, nil
}

func (f *fakeSearchAI) setEmbedErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedErr = err
}

func (f *fakeSearchAI) embedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.embedInputs))
	copy(out, f.embedInputs)
	return out
}

type engine struct {
	svc     *Service
	docs    *fakeDocs
	catalog *fakeCatalog
	vectors *fakeVectors
	ai      *fakeSearchAI
}

func newEngine(ai *fakeSearchAI) *engine {
	e := &engine{
		docs:    &fakeDocs{},
		catalog: &fakeCatalog{entities: make(map[catalog.Kind][]catalog.Entity)},
		vectors: &fakeVectors{},
		ai:      ai,
	}
	var provider AIProvider
	if ai != nil {
		provider = ai
	}
	e.svc = New(Config{}, e.docs, e.catalog, e.vectors, provider, zap.NewNop())
	return e
}

func docAt(id, title string, age time.Duration) *domain.Document {
	return &domain.Document{
		ID:        id,
		Filename:  id + ".pdf",
		Title:     title,
		CreatedAt: time.Now().UTC().Add(-age),
	}
}
