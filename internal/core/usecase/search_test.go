package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeVectorIndex struct {
	results []domain.RetrievalResult
	err     error
	delay   time.Duration
}

func (f *fakeVectorIndex) Search(ctx context.Context, vector []float32, limit int, datasetID string) ([]domain.RetrievalResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

type fakeEntityGraph struct {
	results []domain.RetrievalResult
	graph   *domain.GraphData
	err     error
}

func (f *fakeEntityGraph) SearchEntities(ctx context.Context, query, datasetID string, limit int) ([]domain.RetrievalResult, error) {
	return f.results, f.err
}

func (f *fakeEntityGraph) Neighborhood(ctx context.Context, entityID string, depth, limit int) (*domain.GraphData, error) {
	if f.graph == nil {
		return nil, errors.New("no graph")
	}
	return f.graph, nil
}

type fakeReranker struct {
	scores []float64
	err    error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.scores) != len(texts) {
		return nil, errors.New("score count mismatch")
	}
	return f.scores, nil
}

func newTestSearch(vec *fakeVectorIndex, graph *fakeEntityGraph, rr *fakeReranker) *SearchService {
	var reranker *fakeReranker
	if rr != nil {
		reranker = rr
	}
	svc := NewSearchService(&fakeEmbedder{vector: []float32{0.1}}, vec, graph, nil, nil, SearchConfig{}, nil)
	if reranker != nil {
		svc.reranker = reranker
	}
	return svc
}

func TestSearchHybridMergesTracks(t *testing.T) {
	vec := &fakeVectorIndex{results: []domain.RetrievalResult{rr("A"), rr("B"), rr("C")}}
	graph := &fakeEntityGraph{results: []domain.RetrievalResult{rr("B"), rr("A"), rr("D")}}
	svc := newTestSearch(vec, graph, nil)

	out, err := svc.Search(context.Background(), domain.SearchRequest{Query: "q", Mode: domain.SearchModeHybrid, TopK: 10})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	wantOrder := []string{"A", "B", "D", "C"}
	for i, id := range wantOrder {
		if out.Results[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, out.Results[i].ID, id)
		}
	}
	if out.TotalCount != 4 {
		t.Fatalf("total_count = %d, want 4", out.TotalCount)
	}
}

func TestSearchDegradesWhenTrackFails(t *testing.T) {
	vec := &fakeVectorIndex{err: errors.New("qdrant down")}
	graph := &fakeEntityGraph{results: []domain.RetrievalResult{rr("G1"), rr("G2")}}
	svc := newTestSearch(vec, graph, nil)

	out, err := svc.Search(context.Background(), domain.SearchRequest{Query: "q", Mode: domain.SearchModeHybrid})
	if err != nil {
		t.Fatalf("degraded search must not fail: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected graph-only results, got %d", len(out.Results))
	}
	if out.Results[0].ID != "G1" {
		t.Fatalf("graph order lost: %s", out.Results[0].ID)
	}
}

func TestSearchDegradesOnTrackTimeout(t *testing.T) {
	vec := &fakeVectorIndex{
		results: []domain.RetrievalResult{rr("SLOW")},
		delay:   200 * time.Millisecond,
	}
	graph := &fakeEntityGraph{results: []domain.RetrievalResult{rr("FAST")}}
	svc := NewSearchService(&fakeEmbedder{vector: []float32{0.1}}, vec, graph, nil, nil,
		SearchConfig{VectorTimeout: 20 * time.Millisecond}, nil)

	out, err := svc.Search(context.Background(), domain.SearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("timed-out track must not fail the call: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].ID != "FAST" {
		t.Fatalf("expected only fast-track result, got %+v", out.Results)
	}
}

func TestSearchRerankReordersHead(t *testing.T) {
	vec := &fakeVectorIndex{results: []domain.RetrievalResult{rr("A"), rr("B")}}
	graph := &fakeEntityGraph{}
	// Fused order is A then B; rerank scores flip it.
	svc := newTestSearch(vec, graph, &fakeReranker{scores: []float64{0.1, 0.9}})

	out, err := svc.Search(context.Background(), domain.SearchRequest{Query: "q", Rerank: true})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if out.Results[0].ID != "B" || out.Results[1].ID != "A" {
		t.Fatalf("rerank did not reorder: %s, %s", out.Results[0].ID, out.Results[1].ID)
	}
	if out.Results[0].FusedRank != 1 || out.Results[1].FusedRank != 2 {
		t.Fatalf("ranks not renumbered after rerank")
	}
}

func TestSearchRerankFailureKeepsFusedOrder(t *testing.T) {
	vec := &fakeVectorIndex{results: []domain.RetrievalResult{rr("A"), rr("B")}}
	graph := &fakeEntityGraph{}
	svc := newTestSearch(vec, graph, &fakeReranker{err: errors.New("tei down")})

	out, err := svc.Search(context.Background(), domain.SearchRequest{Query: "q", Rerank: true})
	if err != nil {
		t.Fatalf("rerank failure must not fail the call: %v", err)
	}
	if out.Results[0].ID != "A" || out.Results[1].ID != "B" {
		t.Fatalf("fused order lost on rerank failure")
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := newTestSearch(&fakeVectorIndex{}, &fakeEntityGraph{}, nil)
	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: "   "}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestSearchDeterministicAcrossRuns(t *testing.T) {
	vec := &fakeVectorIndex{results: []domain.RetrievalResult{rr("A"), rr("B"), rr("C")}}
	graph := &fakeEntityGraph{results: []domain.RetrievalResult{rr("C"), rr("B"), rr("A")}}
	svc := newTestSearch(vec, graph, nil)

	var first []string
	for run := 0; run < 10; run++ {
		out, err := svc.Search(context.Background(), domain.SearchRequest{Query: "q"})
		if err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
		ids := make([]string, len(out.Results))
		for i, res := range out.Results {
			ids[i] = res.ID
		}
		if run == 0 {
			first = ids
			continue
		}
		for i := range ids {
			if ids[i] != first[i] {
				t.Fatalf("run %d diverged at %d: %v vs %v", run, i, ids, first)
			}
		}
	}
}

func TestSearchIncludeGraphExpandsTopResult(t *testing.T) {
	vec := &fakeVectorIndex{results: []domain.RetrievalResult{rr("A")}}
	graph := &fakeEntityGraph{
		results: []domain.RetrievalResult{rr("A")},
		graph: &domain.GraphData{
			Nodes: []domain.GraphNode{{ID: "A"}, {ID: "X"}},
			Edges: []domain.GraphEdge{{Source: "A", Target: "X", Type: "RELATES"}},
		},
	}
	svc := newTestSearch(vec, graph, nil)

	out, err := svc.Search(context.Background(), domain.SearchRequest{Query: "q", IncludeGraph: true})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if out.Graph == nil || len(out.Graph.Nodes) != 2 {
		t.Fatalf("expected neighborhood graph in response")
	}
}
