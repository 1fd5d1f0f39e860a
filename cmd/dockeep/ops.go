package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
	ingestuc "github.com/dockeep/dockeep/internal/usecase/ingest"
	searchuc "github.com/dockeep/dockeep/internal/usecase/search"
	"github.com/dockeep/dockeep/internal/watcher"
)

// debugRoutes mounts operator-facing endpoints for poking the archive from
// the ops listener. This is not the product API; responses are compact
// summaries meant for curl and dashboards.
func debugRoutes(engine *searchuc.Service, pipeline *ingestuc.Service, watch *watcher.Watcher, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Get("/search", handleDebugSearch(engine, logger))
	r.Get("/suggest", handleDebugSuggest(engine, logger))
	r.Post("/ask", handleDebugAsk(engine, logger))
	r.Get("/similar/{id}", handleDebugSimilar(engine, logger))
	r.Get("/stats", handleDebugStats(pipeline, watch, logger))
	return r
}

// docSummary is the wire shape for one document in debug responses.
type docSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Filename string `json:"filename"`
	Summary  string `json:"summary,omitempty"`
}

func summarize(docs []*domain.Document) []docSummary {
	out := make([]docSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, docSummary{ID: d.ID, Title: d.Title, Filename: d.Filename, Summary: d.Summary})
	}
	return out
}

func handleDebugSearch(engine *searchuc.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		result, err := engine.Search(r.Context(), searchuc.Request{
			Query:  q.Get("q"),
			Offset: intParam(q.Get("offset")),
			Limit:  intParam(q.Get("limit")),
		})
		if err != nil {
			writeDebugError(w, logger, "search", err)
			return
		}
		writeJSON(w, map[string]any{
			"total":     result.TotalCount,
			"strategy":  string(result.Strategy),
			"documents": summarize(result.Documents),
		})
	}
}

func handleDebugSuggest(engine *searchuc.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := engine.SuggestFor(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeDebugError(w, logger, "suggest", err)
			return
		}
		writeJSON(w, map[string]any{
			"correspondents": s.Correspondents,
			"doc_types":      s.DocTypes,
			"tags":           s.Tags,
			"titles":         s.Titles,
		})
	}
}

func handleDebugAsk(engine *searchuc.Service, logger *zap.Logger) http.HandlerFunc {
	type askRequest struct {
		Question     string   `json:"question"`
		DocumentIDs  []string `json:"document_ids"`
		MaxDocuments int      `json:"max_documents"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		result, err := engine.RAGAnswer(r.Context(), searchuc.RAGRequest{
			Question:     req.Question,
			DocumentIDs:  req.DocumentIDs,
			MaxDocuments: req.MaxDocuments,
		})
		if err != nil {
			writeDebugError(w, logger, "ask", err)
			return
		}
		writeJSON(w, map[string]any{
			"answer":     result.Answer,
			"confidence": result.Confidence,
			"sources":    summarize(result.Sources),
		})
	}
}

func handleDebugSimilar(engine *searchuc.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := engine.Recommendations(r.Context(), chi.URLParam(r, "id"), intParam(r.URL.Query().Get("limit")))
		if err != nil {
			writeDebugError(w, logger, "similar", err)
			return
		}
		writeJSON(w, map[string]any{"documents": summarize(docs)})
	}
}

func handleDebugStats(pipeline *ingestuc.Service, watch *watcher.Watcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := pipeline.Stats(r.Context())
		if err != nil {
			writeDebugError(w, logger, "stats", err)
			return
		}
		status := watch.Status()
		writeJSON(w, map[string]any{
			"documents":       stats.Documents,
			"vectors":         stats.Vectors,
			"watcher_running": status.Running,
			"staging_dir":     status.StagingDir,
			"active_workers":  status.ActiveWorkers,
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeDebugError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	logger.Warn("debug endpoint failed", zap.String("op", op), zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
