package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/repository/catalog"
)

type memDocs struct {
	mu     sync.Mutex
	docs   map[string]*domain.Document
	claims map[string]string // hash -> document ID
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string]*domain.Document), claims: make(map[string]string)}
}

func (m *memDocs) Save(_ context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *memDocs) Get(_ context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	clone := *doc
	return &clone, nil
}

func (m *memDocs) GetByHash(ctx context.Context, hash string) (*domain.Document, error) {
	m.mu.Lock()
	id, ok := m.claims[hash]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return m.Get(ctx, id)
}

func (m *memDocs) ClaimHash(_ context.Context, hash, docID string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, ok := m.claims[hash]; ok {
		return false, holder, nil
	}
	m.claims[hash] = docID
	return true, "", nil
}

func (m *memDocs) ReleaseHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, hash)
	return nil
}

func (m *memDocs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memDocs) All(_ context.Context) ([]*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		clone := *doc
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memDocs) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs), nil
}

type memCatalog struct {
	mu     sync.Mutex
	byName map[string]catalog.Entity // kind/lowername -> entity
	byID   map[string]catalog.Entity // kind/id -> entity
	seq    int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{byName: make(map[string]catalog.Entity), byID: make(map[string]catalog.Entity)}
}

func (m *memCatalog) GetOrCreate(_ context.Context, kind catalog.Kind, name string) (catalog.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(kind) + "/" + strings.ToLower(name)
	if e, ok := m.byName[key]; ok {
		return e, nil
	}
	m.seq++
	e := catalog.Entity{ID: fmt.Sprintf("%s-%d", kind, m.seq), Name: name}
	m.byName[key] = e
	m.byID[string(kind)+"/"+e.ID] = e
	return e, nil
}

func (m *memCatalog) Get(_ context.Context, kind catalog.Kind, id string) (catalog.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byID[string(kind)+"/"+id]; ok {
		return e, nil
	}
	return catalog.Entity{}, domain.ErrEntityNotFound
}

func (m *memCatalog) List(_ context.Context, kind catalog.Kind) ([]catalog.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Entity
	for key, e := range m.byID {
		if strings.HasPrefix(key, string(kind)+"/") {
			out = append(out, e)
		}
	}
	return out, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []*domain.ProcessingLog
}

func (m *memAudit) Append(_ context.Context, entry *domain.ProcessingLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) DeleteForDocument(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.DocumentID != docID {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *memAudit) forDocument(docID string) []*domain.ProcessingLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ProcessingLog
	for _, e := range m.entries {
		if e.DocumentID == docID {
			out = append(out, e)
		}
	}
	return out
}

type vectorEntry struct {
	text   string
	vector []float32
	meta   domain.VectorMetadata
}

type memVectors struct {
	mu      sync.Mutex
	entries map[string]vectorEntry
}

func newMemVectors() *memVectors {
	return &memVectors{entries: make(map[string]vectorEntry)}
}

func (m *memVectors) Upsert(_ context.Context, docID, text string, vector []float32, meta domain.VectorMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[docID] = vectorEntry{text: text, vector: vector, meta: meta}
	return nil
}

func (m *memVectors) Delete(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, docID)
	return nil
}

func (m *memVectors) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *memVectors) get(docID string) (vectorEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[docID]
	return e, ok
}

type fakeExtractor struct {
	mu    sync.Mutex
	text  string
	pages int
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", 0, f.err
	}
	return f.text, f.pages, nil
}

type fakeAI struct {
	mu         sync.Mutex
	meta       domain.ExtractedMetadata
	metaErr    error
	embedErr   error
	metaCalls  int
	embedCalls int
}

func (f *fakeAI) ExtractMetadata(_ context.Context, _, _ string, _, _ []string) (domain.ExtractedMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	if f.metaErr != nil {
		return domain.ExtractedMetadata{}, f.metaErr
	}
	return f.meta, nil
}

func (f *fakeAI) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return domain.EmbeddingResult{}, f.embedErr
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}, TotalTokens: 12}, nil
}

func (f *fakeAI) setMetaErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaErr = err
}

// fixture bundles the pipeline with its fakes and temp directories.
type fixture struct {
	svc       *Service
	docs      *memDocs
	catalog   *memCatalog
	audit     *memAudit
	vectors   *memVectors
	extractor *fakeExtractor
	ai        *fakeAI
	staging   string
	archive   string
	dupdir    string
}

func newFixture(t *testing.T, ai *fakeAI) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		docs:      newMemDocs(),
		catalog:   newMemCatalog(),
		audit:     &memAudit{},
		vectors:   newMemVectors(),
		extractor: &fakeExtractor{text: "Invoice #42 from Acme Corp dated 2024-03-01", pages: 1},
		ai:        ai,
		staging:   root + "/staging",
		archive:   root + "/archive",
		dupdir:    root + "/duplicates",
	}

	cfg := Config{
		ArchiveDir:        f.archive,
		DuplicatesDir:     f.dupdir,
		MaxFileSizeBytes:  1 << 20,
		AllowedExtensions: []string{"pdf", "txt"},
	}
	var provider AIProvider
	if ai != nil {
		provider = ai
	}
	f.svc = New(cfg, f.docs, f.catalog, f.audit, f.vectors, f.extractor, provider, zap.NewNop())
	return f
}
