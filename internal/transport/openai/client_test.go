package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/retry"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(&Config{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		ChatModel:      "test-chat",
		EmbeddingModel: "test-embed",
		Dimensions:     4,
		MaxConcurrent:  2,
		Retry:          retry.Policy{MaxAttempts: 1},
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-chat",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func TestExtractMetadata(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err == nil && len(req.Messages) == 2 {
			gotPrompt = req.Messages[1].Content
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse(`{
			"title": "2025-01-15_rechnung_AcmeCorp_Stromrechnung_Januar_2025",
			"document_type": "Rechnung",
			"date": "2025-01-15",
			"sender": "AcmeCorp",
			"tax_relevant": true,
			"tags": ["Strom", "Rechnung", "strom"],
			"summary": "Stromrechnung für Januar."
		}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	meta, err := c.ExtractMetadata(context.Background(), "scan001.pdf", "Stromrechnung Januar 2025",
		[]string{"rechnung", "vertrag", "sonstiges"}, []string{"AcmeCorp"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if meta.Title != "2025-01-15_rechnung_AcmeCorp_Stromrechnung_Januar_2025" {
		t.Errorf("title = %q", meta.Title)
	}
	if meta.DocumentType != "rechnung" {
		t.Errorf("document type = %q, want lowercased", meta.DocumentType)
	}
	if meta.Date != "2025-01-15" {
		t.Errorf("date = %q", meta.Date)
	}
	if !meta.TaxRelevant {
		t.Error("tax_relevant not carried over")
	}
	// Case-insensitive tag dedupe.
	if len(meta.TagNames) != 2 {
		t.Errorf("tags = %v, want 2 after dedupe", meta.TagNames)
	}
	if !strings.Contains(gotPrompt, "scan001.pdf") {
		t.Error("prompt does not mention the filename")
	}
	if !strings.Contains(gotPrompt, "rechnung, vertrag, sonstiges") {
		t.Error("prompt does not list known document types")
	}
}

func TestExtractMetadata_FencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("```json\n{\"title\": \"T\", \"document_type\": \"vertrag\", \"date\": null, \"sender\": \"S\", \"tax_relevant\": false, \"tags\": [], \"summary\": \"\"}\n```"))
	}))
	defer server.Close()

	meta, err := testClient(t, server.URL).ExtractMetadata(context.Background(), "a.pdf", "text", nil, nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if meta.Title != "T" || meta.DocumentType != "vertrag" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestSanitizeMetadata_Defaults(t *testing.T) {
	bad := "not-a-date"
	meta := sanitizeMetadata(metadataDTO{Date: &bad, Tags: []string{"  ", "Steuer"}}, "inbox/Vertrag 2024.pdf")

	if meta.Title != "Vertrag 2024" {
		t.Errorf("title fallback = %q, want filename stem", meta.Title)
	}
	if meta.DocumentType != "sonstiges" {
		t.Errorf("document type = %q, want sonstiges", meta.DocumentType)
	}
	if meta.Date != "" {
		t.Errorf("invalid date kept: %q", meta.Date)
	}
	if len(meta.TagNames) != 1 || meta.TagNames[0] != "Steuer" {
		t.Errorf("tags = %v", meta.TagNames)
	}
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3, 0.4}},
			},
			"usage": map[string]any{"prompt_tokens": 7, "total_tokens": 7},
		})
	}))
	defer server.Close()

	result, err := testClient(t, server.URL).Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(result.Embedding) != 4 {
		t.Fatalf("dimensions = %d, want 4", len(result.Embedding))
	}
	if result.TotalTokens != 7 {
		t.Errorf("total tokens = %d, want 7", result.TotalTokens)
	}
}

func TestEmbed_ProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "rate_limit_error"},
		})
	}))
	defer server.Close()

	_, err := testClient(t, server.URL).Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestAnswer_CitesDocuments(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err == nil && len(req.Messages) == 2 {
			gotPrompt = req.Messages[1].Content
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("Die Rechnung stammt von AcmeCorp ([Doc1])."))
	}))
	defer server.Close()

	answer, err := testClient(t, server.URL).Answer(context.Background(), "Von wem ist die Rechnung?",
		[]domain.ContextDocument{
			{ID: "doc-1", Title: "Rechnung Januar", Text: "Rechnung von AcmeCorp"},
			{ID: "doc-2", Title: "Vertrag", Text: "Mietvertrag"},
		})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(answer, "[Doc1]") {
		t.Errorf("answer lacks citation: %q", answer)
	}
	if !strings.Contains(gotPrompt, "[Doc1: Rechnung Januar]") || !strings.Contains(gotPrompt, "[Doc2: Vertrag]") {
		t.Errorf("prompt lacks numbered context blocks")
	}
	if !strings.Contains(gotPrompt, "ID: doc-1") {
		t.Error("prompt lacks document ID reference")
	}
}

func TestCall_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.5}},
			},
			"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer server.Close()

	c, err := New(&Config{
		APIKey:         "test-key",
		BaseURL:        server.URL,
		EmbeddingModel: "test-embed",
		MaxConcurrent:  1,
		Retry:          retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("embed after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCall_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
		})
	}))
	defer server.Close()

	c, err := New(&Config{
		APIKey:         "bad-key",
		BaseURL:        server.URL,
		EmbeddingModel: "test-embed",
		MaxConcurrent:  1,
		Retry:          retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	_, err = c.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 for a 401", calls.Load())
	}
}
