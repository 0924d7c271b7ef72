package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

func TestUpsertEntitiesEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/entities":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/entities/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "entities")
	entities := []domain.RetrievalResult{{ID: "e1", Name: "Alpha"}, {ID: "e2", Name: "Beta"}}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.UpsertEntities(context.Background(), entities, vectors, "ds1"); err != nil {
		t.Fatalf("first UpsertEntities() error = %v", err)
	}
	if err := client.UpsertEntities(context.Background(), entities, vectors, "ds1"); err != nil {
		t.Fatalf("second UpsertEntities() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestSearchFiltersByDatasetAndMapsPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/entities/points/search" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, hasFilter := req["filter"]; !hasFilter {
			http.Error(w, "missing dataset filter", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.93,"payload":{"entity_id":"e1","entity_type":"Company","name":"Alpha","description":"desc","dataset_id":"ds1"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "entities")
	results, err := client.Search(context.Background(), []float32{0.1, 0.2}, 5, "ds1")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	got := results[0]
	if got.ID != "e1" || got.Type != "Company" || got.Score != 0.93 {
		t.Fatalf("payload mapping wrong: %+v", got)
	}
	if got.Source != domain.SourceVector {
		t.Fatalf("source = %s", got.Source)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/entities" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "entities")
	err := client.UpsertEntities(context.Background(), []domain.RetrievalResult{{ID: "e1"}}, [][]float32{{0.1}}, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
