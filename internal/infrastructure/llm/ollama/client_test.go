package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

func TestGeneratorBuildsContextPrompt(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", nil)
	gen := NewGenerator(client)
	_, err := gen.GenerateAnswer(context.Background(), "question?",
		map[string]string{"period": "month"},
		[]domain.FusedResult{{RetrievalResult: domain.RetrievalResult{Name: "Alpha", Description: "entity text"}, FusedScore: 0.03}})
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if !strings.Contains(capturedPrompt, "question?") || !strings.Contains(capturedPrompt, "entity text") {
		t.Fatalf("unexpected prompt: %s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "period: month") {
		t.Fatalf("collected values missing from prompt: %s", capturedPrompt)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", nil)
	embedder := NewEmbedder(client)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("5xx must be wrapped as temporary: %v", err)
	}
}

func TestExtractorParsesModelJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"{\"value\":\"march\",\"found\":true}"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", nil)
	extractor := NewExtractor(client)
	value, ok, err := extractor.ExtractValue(context.Background(),
		domain.ConditionNode{Name: "period"}, "report for march", "")
	if err != nil {
		t.Fatalf("ExtractValue() error = %v", err)
	}
	if !ok || value != "march" {
		t.Fatalf("got %q ok=%v", value, ok)
	}
}

func TestExtractorNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"{\"found\":false}"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", nil)
	extractor := NewExtractor(client)
	_, ok, err := extractor.ExtractValue(context.Background(),
		domain.ConditionNode{Name: "period"}, "no period here", "")
	if err != nil {
		t.Fatalf("ExtractValue() error = %v", err)
	}
	if ok {
		t.Fatalf("found=false must report no value")
	}
}
