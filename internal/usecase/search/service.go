package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/fuzzy"
	"github.com/dockeep/dockeep/internal/metrics"
	"github.com/dockeep/dockeep/internal/repository/catalog"
)

// sentinelQuery is embedded as a last resort to retrieve whatever the index
// holds when both the composite and the raw query come back empty.
const sentinelQuery = "document"

const (
	maxSuggestions          = 5
	suggestionVariantLimit  = 10
	recommendationTextLimit = 1000
	defaultRecommendations  = 5
)

// Canned answers for the cases where no generation call can or should be made.
const (
	answerNoProvider = "AI service is not available. Configure an API key to use question answering."
	answerNoMatches  = "I couldn't find any relevant documents to answer your question."
	answerNoText     = "The relevant documents don't contain enough text to answer your question."
	answerFailed     = "I couldn't generate an answer right now. Please try again later."
)

// Config bounds the retrieval engine.
type Config struct {
	DefaultPageSize     int
	MaxPageSize         int
	VectorLimit         int
	MaxQueryVariants    int
	MaxFullTextVariants int
	Budget              time.Duration
	BreakerThreshold    int
	BreakerCooldown     time.Duration
	MaxRAGDocuments     int
}

// Request is one search invocation.
type Request struct {
	Query   string
	Filters domain.SearchFilters
	Offset  int
	Limit   int
}

// Result is a ranked page of documents plus the strategy that produced it.
// Callers can surface "degraded" when full-text served a query that normally
// goes through the vector index.
type Result struct {
	Documents  []*domain.Document
	TotalCount int
	Strategy   domain.SearchStrategy
}

// RAGRequest asks a natural-language question over the archive. Explicit
// DocumentIDs bypass retrieval; otherwise the question itself is searched.
type RAGRequest struct {
	Question     string
	Filters      domain.SearchFilters
	DocumentIDs  []string
	MaxDocuments int
}

// RAGResult is a generated answer with its source documents.
type RAGResult struct {
	Answer     string
	Sources    []*domain.Document
	Confidence float64
}

// Suggestions groups completion candidates per entity category.
type Suggestions struct {
	Correspondents []string
	DocTypes       []string
	Tags           []string
	Titles         []string
}

// Service is the hybrid retrieval engine: semantic search over the vector
// index with a full-text fallback, plus question answering and suggestions.
// One instance is constructed at process start and shared.
type Service struct {
	cfg     Config
	docs    Documents
	catalog Catalog
	vectors VectorIndex
	ai      AIProvider // nil when not configured
	breaker *breaker
	logger  *zap.Logger
}

// New creates the engine. Zero config fields fall back to working defaults.
func New(cfg Config, docs Documents, cat Catalog, vectors VectorIndex, ai AIProvider, logger *zap.Logger) *Service {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.VectorLimit <= 0 {
		cfg.VectorLimit = 100
	}
	if cfg.MaxQueryVariants <= 0 {
		cfg.MaxQueryVariants = 5
	}
	if cfg.MaxFullTextVariants <= 0 {
		cfg.MaxFullTextVariants = 20
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 45 * time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 5 * time.Minute
	}
	if cfg.MaxRAGDocuments <= 0 {
		cfg.MaxRAGDocuments = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		docs:    docs,
		catalog: cat,
		vectors: vectors,
		ai:      ai,
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:  logger,
	}
}

// Search returns a ranked page of documents. An empty query lists by recency;
// otherwise the semantic chain runs first and full-text serves as fallback.
// No-results is not an error: the result set is simply empty.
func (s *Service) Search(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.search(ctx, req)
	if err == nil {
		strategy := string(res.Strategy)
		metrics.SearchesTotal.WithLabelValues(strategy).Inc()
		metrics.SearchDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (s *Service) search(ctx context.Context, req Request) (*Result, error) {
	offset, limit := s.clampPage(req.Offset, req.Limit)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		docs, total, err := s.docs.List(ctx, req.Filters, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		return &Result{Documents: docs, TotalCount: total, Strategy: domain.StrategyNone}, nil
	}

	hits := s.semanticSearch(ctx, query)
	if len(hits) > 0 {
		result, err := s.resolveHits(ctx, hits, query, req.Filters, offset, limit)
		if err != nil {
			return nil, err
		}
		if result.TotalCount > 0 {
			return result, nil
		}
		// Every semantic hit was filtered out or has no record anymore.
	}

	variants := fullTextVariants(query, s.cfg.MaxFullTextVariants)
	docs, total, err := s.docs.SearchText(ctx, variants, req.Filters, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	s.logger.Debug("full-text search served query",
		zap.String("query", query), zap.Int("variants", len(variants)), zap.Int("total", total))
	return &Result{Documents: docs, TotalCount: total, Strategy: domain.StrategyFullText}, nil
}

// semanticSearch runs the embedding fallback chain: composite query with
// typo variants, then the raw query, then a generic sentinel. The first
// non-empty result wins. Returns nil when the provider is missing, the
// circuit is open, the budget is exhausted or every attempt fails.
func (s *Service) semanticSearch(ctx context.Context, query string) []domain.VectorHit {
	if s.ai == nil {
		return nil
	}
	if s.breaker.Open() {
		s.logger.Warn("semantic search suspended, circuit open",
			zap.Duration("remaining", s.breaker.Remaining()))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	variants := searchVariants(query, s.cfg.MaxQueryVariants)
	composite := enhanceQuery(query) + " " + strings.Join(variants, " ")

	var collected []domain.VectorHit
	for _, attempt := range []string{composite, query, sentinelQuery} {
		if len(collected) > 0 {
			break
		}
		if ctx.Err() != nil {
			s.logger.Warn("semantic search budget exhausted", zap.String("query", query))
			break
		}
		hits, err := s.knn(ctx, attempt)
		if err != nil {
			if errors.Is(err, domain.ErrProviderTimeout) || errors.Is(err, domain.ErrProviderUnavailable) ||
				ctx.Err() != nil {
				s.logger.Warn("semantic search abandoned", zap.String("query", query), zap.Error(err))
				return nil
			}
			s.logger.Warn("semantic attempt failed", zap.Error(err))
			continue
		}
		collected = append(collected, hits...)
	}
	return dedupeHits(collected)
}

// knn embeds text and queries the vector index. Embedding outcomes feed the
// circuit breaker; vector store trouble does not, it is not an AI failure.
func (s *Service) knn(ctx context.Context, text string) ([]domain.VectorHit, error) {
	res, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.Query(ctx, res, s.cfg.VectorLimit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return hits, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	res, err := s.ai.Embed(ctx, text)
	if err != nil {
		s.breaker.Failure()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.breaker.Success()
	return res.Embedding, nil
}

// resolveHits re-ranks vector hits, loads their records in rank order and
// applies filters and pagination in memory.
func (s *Service) resolveHits(
	ctx context.Context, hits []domain.VectorHit, query string,
	filters domain.SearchFilters, offset, limit int,
) (*Result, error) {
	candidates := make([]fuzzy.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = fuzzy.Candidate{ID: h.DocumentID, Title: h.Metadata.Title, Text: h.Text, Score: h.Score}
	}
	ranked := fuzzy.Rank(candidates, query)

	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}
	docs, err := s.docs.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch search results: %w", err)
	}

	matched := docs[:0]
	for _, d := range docs {
		if filters.Matches(d) {
			matched = append(matched, d)
		}
	}
	return &Result{
		Documents:  paginate(matched, offset, limit),
		TotalCount: len(matched),
		Strategy:   domain.StrategySemantic,
	}, nil
}

// RAGAnswer answers a question from retrieved document context. Unanswerable
// situations return a canned answer with confidence 0 rather than an error;
// provider failures feed the circuit breaker.
func (s *Service) RAGAnswer(ctx context.Context, req RAGRequest) (*RAGResult, error) {
	if s.ai == nil {
		metrics.RAGAnswersTotal.WithLabelValues("no_provider").Inc()
		return &RAGResult{Answer: answerNoProvider}, nil
	}
	if s.breaker.Open() {
		metrics.RAGAnswersTotal.WithLabelValues("circuit_open").Inc()
		remaining := int(s.breaker.Remaining().Seconds())
		return &RAGResult{
			Answer: fmt.Sprintf(
				"AI service is temporarily disabled due to repeated failures. Please try again in %d seconds.",
				remaining),
		}, nil
	}

	maxDocs := req.MaxDocuments
	if maxDocs <= 0 {
		maxDocs = s.cfg.MaxRAGDocuments
	}

	sources, err := s.ragSources(ctx, req, maxDocs)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		metrics.RAGAnswersTotal.WithLabelValues("no_documents").Inc()
		return &RAGResult{Answer: answerNoMatches}, nil
	}

	var contextDocs []domain.ContextDocument
	for _, doc := range sources {
		text := doc.FullText
		if text == "" {
			text = doc.Summary
		}
		if text == "" {
			continue
		}
		title := doc.Title
		if title == "" {
			title = doc.Filename
		}
		contextDocs = append(contextDocs, domain.ContextDocument{ID: doc.ID, Title: title, Text: text})
	}
	if len(contextDocs) == 0 {
		metrics.RAGAnswersTotal.WithLabelValues("no_text").Inc()
		return &RAGResult{Answer: answerNoText, Sources: sources}, nil
	}

	answer, err := s.ai.Answer(ctx, req.Question, contextDocs)
	if err != nil {
		s.breaker.Failure()
		metrics.RAGAnswersTotal.WithLabelValues("failed").Inc()
		s.logger.Error("answer generation failed", zap.Error(err))
		return &RAGResult{Answer: answerFailed}, nil
	}
	s.breaker.Success()
	metrics.RAGAnswersTotal.WithLabelValues("answered").Inc()

	return &RAGResult{
		Answer:     answer,
		Sources:    sources,
		Confidence: min(1.0, float64(len(contextDocs))/float64(maxDocs)),
	}, nil
}

func (s *Service) ragSources(ctx context.Context, req RAGRequest, maxDocs int) ([]*domain.Document, error) {
	if len(req.DocumentIDs) > 0 {
		docs, err := s.docs.FetchByIDs(ctx, req.DocumentIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch context documents: %w", err)
		}
		return docs, nil
	}
	result, err := s.Search(ctx, Request{Query: req.Question, Filters: req.Filters, Limit: maxDocs})
	if err != nil {
		return nil, err
	}
	return result.Documents, nil
}

// SuggestFor returns completion candidates for a partial query, up to five
// per category. Queries shorter than two characters return nothing.
func (s *Service) SuggestFor(ctx context.Context, partial string) (*Suggestions, error) {
	out := &Suggestions{}
	partial = strings.TrimSpace(partial)
	if len([]rune(partial)) < 2 {
		return out, nil
	}
	variants := searchVariants(partial, suggestionVariantLimit)

	for _, c := range []struct {
		kind catalog.Kind
		dst  *[]string
	}{
		{catalog.KindCorrespondent, &out.Correspondents},
		{catalog.KindDocType, &out.DocTypes},
		{catalog.KindTag, &out.Tags},
	} {
		entities, err := s.catalog.List(ctx, c.kind)
		if err != nil {
			return nil, fmt.Errorf("list %s suggestions: %w", c.kind, err)
		}
		names := make([]string, len(entities))
		for i, e := range entities {
			names[i] = e.Name
		}
		*c.dst = matchNames(names, variants)
	}

	docs, err := s.docs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list title suggestions: %w", err)
	}
	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Title != "" {
			titles = append(titles, d.Title)
		}
	}
	out.Titles = matchNames(titles, variants)

	return out, nil
}

// Recommendations returns documents similar to the given one, excluding it,
// ordered by vector similarity. Without a provider or source text the list
// is empty.
func (s *Service) Recommendations(ctx context.Context, documentID string, limit int) ([]*domain.Document, error) {
	if s.ai == nil {
		return nil, nil
	}
	if s.breaker.Open() {
		return nil, domain.ErrCircuitOpen
	}
	if limit <= 0 {
		limit = defaultRecommendations
	}

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load source document: %w", err)
	}
	text := doc.Summary
	if text == "" {
		text = truncateRunes(doc.FullText, recommendationTextLimit)
	}
	if text == "" {
		return nil, nil
	}

	vector, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.Query(ctx, vector, limit+1)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	ids := make([]string, 0, limit)
	for _, h := range hits {
		if h.DocumentID == documentID {
			continue
		}
		ids = append(ids, h.DocumentID)
		if len(ids) >= limit {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	docs, err := s.docs.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch recommendations: %w", err)
	}
	return docs, nil
}

func (s *Service) clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return offset, limit
}

// dedupeHits collapses duplicate document IDs keeping the best score and
// returns the hits sorted by descending score.
func dedupeHits(hits []domain.VectorHit) []domain.VectorHit {
	if len(hits) == 0 {
		return nil
	}
	best := make(map[string]domain.VectorHit, len(hits))
	order := make([]string, 0, len(hits))
	for _, h := range hits {
		prev, seen := best[h.DocumentID]
		if !seen {
			order = append(order, h.DocumentID)
			best[h.DocumentID] = h
		} else if h.Score > prev.Score {
			best[h.DocumentID] = h
		}
	}
	out := make([]domain.VectorHit, len(order))
	for i, id := range order {
		out[i] = best[id]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// matchNames returns up to five names fuzzy-containing any variant, in input
// order.
func matchNames(names, variants []string) []string {
	var out []string
	for _, name := range names {
		for _, v := range variants {
			if fuzzy.FuzzyContains(name, v, 0.8) {
				out = append(out, name)
				break
			}
		}
		if len(out) >= maxSuggestions {
			break
		}
	}
	return out
}

func paginate(docs []*domain.Document, offset, limit int) []*domain.Document {
	if offset >= len(docs) {
		return nil
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end]
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
