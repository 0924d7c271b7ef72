package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
	"github.com/kirillkom/graphrag-dialogue/internal/core/ports"
)

// FlowCache holds the published flow snapshot behind an atomic pointer.
// Reads are lock free; a conversation turn resolves the snapshot once and
// uses it for the whole turn even if a newer version lands mid-turn.
type FlowCache struct {
	repo   ports.FlowRepository
	logger *slog.Logger

	current atomic.Pointer[domain.FlowSnapshot]
	reload  sync.Mutex
}

func NewFlowCache(repo ports.FlowRepository, logger *slog.Logger) *FlowCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowCache{repo: repo, logger: logger}
}

// Current returns the latest published snapshot, nil before the first load.
func (c *FlowCache) Current() *domain.FlowSnapshot {
	return c.current.Load()
}

// Reload fetches the graph, validates it and swaps it in under the given
// version. Stale reloads (version at or below the installed one) are
// dropped so out-of-order event delivery cannot roll the cache back. A
// graph that fails validation leaves the previous snapshot serving.
func (c *FlowCache) Reload(ctx context.Context, version int64) error {
	c.reload.Lock()
	defer c.reload.Unlock()

	if installed := c.current.Load(); installed != nil && version <= installed.Version() {
		c.logger.Debug("flow reload skipped",
			slog.Int64("version", version),
			slog.Int64("installed", installed.Version()))
		return nil
	}

	graph, err := c.repo.LoadGraph(ctx, "")
	if err != nil {
		return domain.WrapError(domain.ErrBackendUnavailable, "flow reload", err)
	}
	snap, err := domain.NewFlowSnapshot(version, graph)
	if err != nil {
		return err
	}

	c.current.Store(snap)
	c.logger.Info("flow snapshot installed",
		slog.Int64("version", version),
		slog.Int("intents", len(snap.ActiveIntents())))
	return nil
}

// NextVersion returns the version a fresh publish should carry.
func (c *FlowCache) NextVersion() int64 {
	if installed := c.current.Load(); installed != nil {
		return installed.Version() + 1
	}
	return 1
}
