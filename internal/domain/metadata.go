package domain

// ExtractedMetadata is the schema-validated result of the AI metadata stage.
type ExtractedMetadata struct {
	Title             string
	DocumentType      string
	Date              string // YYYY-MM-DD or empty when the model gave none
	CorrespondentName string
	TagNames          []string
	TaxRelevant       bool
	Summary           string
}

// EmbeddingResult is the output of an embedding call.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// ContextDocument is one retrieved document handed to the AI collaborator as
// grounding for a generated answer.
type ContextDocument struct {
	ID    string
	Title string
	Text  string
}

// VectorMetadata is the denormalized snapshot stored alongside an embedding.
// It mirrors the fields the search engine may filter on.
type VectorMetadata struct {
	DocumentID    string
	Title         string
	Correspondent string
	DocType       string
	TaxRelevant   bool
	CreatedAt     string // RFC 3339
}

// VectorHit is one scored result from the similarity index.
type VectorHit struct {
	DocumentID string
	Text       string
	Score      float64 // monotonic similarity, higher is more similar, >= 0
	Metadata   VectorMetadata
}

// SearchStrategy identifies which retrieval path produced a result set. The
// caller can surface "degraded" when full-text served a query that normally
// goes through the vector index.
type SearchStrategy string

const (
	// StrategyNone means no query text was given; plain filtered listing.
	StrategyNone SearchStrategy = "none"
	// StrategySemantic means the vector index produced the ranking.
	StrategySemantic SearchStrategy = "semantic"
	// StrategyFullText means the relational fallback produced the results.
	StrategyFullText SearchStrategy = "fulltext"
)
