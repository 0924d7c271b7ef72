package usecase

import (
	"math"
	"testing"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

func rr(id string) domain.RetrievalResult {
	return domain.RetrievalResult{ID: id, Name: id}
}

func TestFuseRRFOrderAndScores(t *testing.T) {
	tracks := map[domain.ResultSource][]domain.RetrievalResult{
		domain.SourceVector: {rr("A"), rr("B"), rr("C")},
		domain.SourceGraph:  {rr("B"), rr("A"), rr("D")},
	}

	fused := fuseRRF(tracks, 60)

	wantOrder := []string{"A", "B", "D", "C"}
	if len(fused) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(fused), len(wantOrder))
	}
	for i, id := range wantOrder {
		if fused[i].ID != id {
			t.Fatalf("position %d: got %q, want %q", i, fused[i].ID, id)
		}
		if fused[i].FusedRank != i+1 {
			t.Fatalf("position %d: fused_rank %d, want %d", i, fused[i].FusedRank, i+1)
		}
	}

	wantScores := map[string]float64{
		"A": 1.0/61 + 1.0/62,
		"B": 1.0/62 + 1.0/61,
		"C": 1.0 / 63,
		"D": 1.0 / 62,
	}
	for _, res := range fused {
		if math.Abs(res.FusedScore-wantScores[res.ID]) > 1e-12 {
			t.Fatalf("%s: fused score %v, want %v", res.ID, res.FusedScore, wantScores[res.ID])
		}
	}

	// A and B tie exactly; id ascending puts A first.
	if fused[0].ID != "A" || fused[1].ID != "B" {
		t.Fatalf("tie broken wrong: %s before %s", fused[0].ID, fused[1].ID)
	}
}

func TestFuseRRFSourcesAccumulate(t *testing.T) {
	tracks := map[domain.ResultSource][]domain.RetrievalResult{
		domain.SourceVector: {rr("A")},
		domain.SourceGraph:  {rr("A"), rr("B")},
	}

	fused := fuseRRF(tracks, 60)

	if fused[0].ID != "A" {
		t.Fatalf("expected A first, got %s", fused[0].ID)
	}
	if len(fused[0].Sources) != 2 {
		t.Fatalf("A should carry both sources, got %v", fused[0].Sources)
	}
	if fused[0].Source != domain.SourceHybrid {
		t.Fatalf("A source = %s, want hybrid", fused[0].Source)
	}
	if fused[1].Source == domain.SourceHybrid {
		t.Fatalf("B should keep its single source")
	}
}

func TestFuseRRFEmptyTracks(t *testing.T) {
	fused := fuseRRF(map[domain.ResultSource][]domain.RetrievalResult{}, 60)
	if len(fused) != 0 {
		t.Fatalf("expected no results, got %d", len(fused))
	}

	fused = fuseRRF(map[domain.ResultSource][]domain.RetrievalResult{
		domain.SourceVector: {rr("X")},
	}, 60)
	if len(fused) != 1 || fused[0].ID != "X" {
		t.Fatalf("single-track fusion broken: %+v", fused)
	}
}
