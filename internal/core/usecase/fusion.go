package usecase

import (
	"sort"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

const defaultRRFK = 60

// fuseRRF merges ranked tracks with reciprocal rank fusion. Each track
// contributes 1/(k+rank) per result, ranks are 1-based, and a result found
// by several tracks accumulates the contributions. Ties on fused score are
// broken by id ascending so the output is stable across runs.
func fuseRRF(tracks map[domain.ResultSource][]domain.RetrievalResult, k int) []domain.FusedResult {
	if k <= 0 {
		k = defaultRRFK
	}

	fused := make(map[string]*domain.FusedResult)
	sources := []domain.ResultSource{domain.SourceVector, domain.SourceGraph}
	for _, src := range sources {
		for rank, res := range tracks[src] {
			entry, ok := fused[res.ID]
			if !ok {
				entry = &domain.FusedResult{RetrievalResult: res}
				fused[res.ID] = entry
			} else if entry.Description == "" && res.Description != "" {
				entry.Description = res.Description
			}
			entry.FusedScore += 1.0 / float64(k+rank+1)
			entry.Sources = append(entry.Sources, src)
		}
	}

	out := make([]domain.FusedResult, 0, len(fused))
	for _, entry := range fused {
		out = append(out, *entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].FusedRank = i + 1
		if len(out[i].Sources) > 1 {
			out[i].Source = domain.SourceHybrid
		}
	}
	return out
}
