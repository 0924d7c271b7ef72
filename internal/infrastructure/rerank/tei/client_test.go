package tei

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRerankRestoresInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Query string   `json:"query"`
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Query == "" || len(req.Texts) != 3 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// Sorted by score, indices point back at the inputs.
		_, _ = w.Write([]byte(`[{"index":2,"score":0.9},{"index":0,"score":0.5},{"index":1,"score":0.1}]`))
	}))
	defer server.Close()

	client := New(server.URL)
	scores, err := client.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	want := []float64{0.5, 0.1, 0.9}
	for i := range want {
		if scores[i] != want[i] {
			t.Fatalf("scores = %v, want %v", scores, want)
		}
	}
}

func TestRerankRejectsOutOfRangeIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"index":5,"score":0.9}]`))
	}))
	defer server.Close()

	client := New(server.URL)
	if _, err := client.Rerank(context.Background(), "q", []string{"a"}); err == nil {
		t.Fatalf("expected error for bad index")
	}
}

func TestRerankIncludesBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Rerank(context.Background(), "q", []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestRerankEmptyInput(t *testing.T) {
	client := New("http://unused")
	scores, err := client.Rerank(context.Background(), "q", nil)
	if err != nil || scores != nil {
		t.Fatalf("empty input must short-circuit: %v, %v", scores, err)
	}
}
