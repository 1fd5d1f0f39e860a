package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// Filter is an optional FT.SEARCH pre-filter expression; empty matches all.
	Filter       string
	Vector       []float32
	K            int
	ReturnFields []string
	RawScores    bool // return __vector_score as-is instead of converting to similarity
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
