package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
	"github.com/kirillkom/graphrag-dialogue/internal/core/ports"
)

const (
	defaultTopK       = 10
	oversampleFactor  = 3
	rerankCandidates  = 20
	defaultGraphDepth = 2
	neighborhoodLimit = 50
)

// TrackObserver receives retrieval telemetry. Implementations must be
// cheap; it is called on the hot path.
type TrackObserver interface {
	ObserveTrack(source domain.ResultSource, elapsed time.Duration, degraded bool)
	ObserveFusion(resultCount int)
}

type SearchConfig struct {
	VectorTimeout time.Duration
	GraphTimeout  time.Duration
	RerankTimeout time.Duration
	RRFK          int
}

func (c *SearchConfig) normalize() {
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = 5 * time.Second
	}
	if c.GraphTimeout <= 0 {
		c.GraphTimeout = 5 * time.Second
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = 5 * time.Second
	}
	if c.RRFK <= 0 {
		c.RRFK = defaultRRFK
	}
}

// SearchService runs the two retrieval tracks concurrently, fuses them and
// optionally reranks the head of the fused list. A failed or slow track
// degrades to empty instead of failing the call.
type SearchService struct {
	embedder ports.Embedder
	vectors  ports.VectorIndex
	entities ports.EntityGraph
	reranker ports.Reranker
	observer TrackObserver
	cfg      SearchConfig
	logger   *slog.Logger
}

func NewSearchService(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	entities ports.EntityGraph,
	reranker ports.Reranker,
	observer TrackObserver,
	cfg SearchConfig,
	logger *slog.Logger,
) *SearchService {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		embedder: embedder,
		vectors:  vectors,
		entities: entities,
		reranker: reranker,
		observer: observer,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) (*domain.RankedResultSet, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", errors.New("empty query"))
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.Mode == "" {
		req.Mode = domain.SearchModeHybrid
	}

	started := time.Now()
	fetchLimit := req.TopK * oversampleFactor

	tracks := s.runTracks(ctx, req, fetchLimit)
	fused := fuseRRF(tracks, s.cfg.RRFK)
	if s.observer != nil {
		s.observer.ObserveFusion(len(fused))
	}

	if req.Rerank && s.reranker != nil && len(fused) > 1 {
		fused = s.rerank(ctx, req.Query, fused)
	}

	total := len(fused)
	if len(fused) > req.TopK {
		fused = fused[:req.TopK]
	}

	out := &domain.RankedResultSet{
		Query:      req.Query,
		Mode:       req.Mode,
		Results:    fused,
		TotalCount: total,
	}
	if req.IncludeGraph && len(fused) > 0 {
		out.Graph = s.subgraph(ctx, req, fused)
	}
	out.ProcessingTimeMS = float64(time.Since(started)) / float64(time.Millisecond)
	return out, nil
}

// runTracks fans out to the enabled tracks and collects whatever finishes
// within its own deadline. A track that errors or times out contributes an
// empty list.
func (s *SearchService) runTracks(ctx context.Context, req domain.SearchRequest, limit int) map[domain.ResultSource][]domain.RetrievalResult {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		tracks = make(map[domain.ResultSource][]domain.RetrievalResult, 2)
	)

	collect := func(src domain.ResultSource, timeout time.Duration, run func(context.Context) ([]domain.RetrievalResult, error)) {
		defer wg.Done()
		trackCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		trackStart := time.Now()
		results, err := run(trackCtx)
		elapsed := time.Since(trackStart)
		degraded := err != nil
		if s.observer != nil {
			s.observer.ObserveTrack(src, elapsed, degraded)
		}
		if err != nil {
			s.logger.Warn("retrieval track degraded",
				slog.String("track", string(src)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()))
			return
		}
		mu.Lock()
		tracks[src] = results
		mu.Unlock()
	}

	if req.Mode == domain.SearchModeHybrid || req.Mode == domain.SearchModeVector {
		wg.Add(1)
		go collect(domain.SourceVector, s.cfg.VectorTimeout, func(trackCtx context.Context) ([]domain.RetrievalResult, error) {
			vector, err := s.embedder.EmbedQuery(trackCtx, req.Query)
			if err != nil {
				return nil, err
			}
			return s.vectors.Search(trackCtx, vector, limit, req.DatasetID)
		})
	}
	if req.Mode == domain.SearchModeHybrid || req.Mode == domain.SearchModeGraph {
		wg.Add(1)
		go collect(domain.SourceGraph, s.cfg.GraphTimeout, func(trackCtx context.Context) ([]domain.RetrievalResult, error) {
			return s.entities.SearchEntities(trackCtx, req.Query, req.DatasetID, limit)
		})
	}
	wg.Wait()
	return tracks
}

// rerank re-scores the head of the fused list with the cross encoder. Only
// results with text to score are sent; the untouched tail keeps its fused
// order behind the reranked head. Any rerank failure keeps fused order.
func (s *SearchService) rerank(ctx context.Context, query string, fused []domain.FusedResult) []domain.FusedResult {
	head := fused
	if len(head) > rerankCandidates {
		head = head[:rerankCandidates]
	}
	texts := make([]string, len(head))
	for i, res := range head {
		text := res.Description
		if text == "" {
			text = res.Name
		}
		texts[i] = text
	}

	rerankCtx, cancel := context.WithTimeout(ctx, s.cfg.RerankTimeout)
	defer cancel()

	scores, err := s.reranker.Rerank(rerankCtx, query, texts)
	if err != nil || len(scores) != len(head) {
		if err != nil {
			s.logger.Warn("rerank skipped", slog.String("error", err.Error()))
		}
		return fused
	}

	reranked := make([]domain.FusedResult, len(head))
	copy(reranked, head)
	for i := range reranked {
		reranked[i].Score = scores[i]
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].Score != reranked[j].Score {
			return reranked[i].Score > reranked[j].Score
		}
		return reranked[i].ID < reranked[j].ID
	})

	out := append(reranked, fused[len(head):]...)
	for i := range out {
		out[i].FusedRank = i + 1
	}
	return out
}

// subgraph expands the neighborhood around the top result. Expansion is
// best effort; failures just drop the graph from the response.
func (s *SearchService) subgraph(ctx context.Context, req domain.SearchRequest, fused []domain.FusedResult) *domain.GraphData {
	depth := req.MaxGraphDepth
	if depth <= 0 {
		depth = defaultGraphDepth
	}
	graphCtx, cancel := context.WithTimeout(ctx, s.cfg.GraphTimeout)
	defer cancel()

	graph, err := s.entities.Neighborhood(graphCtx, fused[0].ID, depth, neighborhoodLimit)
	if err != nil {
		s.logger.Warn("subgraph expansion failed",
			slog.String("entity_id", fused[0].ID),
			slog.String("error", err.Error()))
		return nil
	}
	return graph
}
