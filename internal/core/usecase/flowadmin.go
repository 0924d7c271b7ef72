package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
	"github.com/kirillkom/graphrag-dialogue/internal/core/ports"
)

// FlowAdminService exposes graph authoring plus publish. Node and edge
// writes go straight to the repository and stay invisible to running
// conversations until Publish validates and swaps a new snapshot.
type FlowAdminService struct {
	ports.FlowRepository

	cache  *FlowCache
	bus    ports.FlowEventBus
	logger *slog.Logger
}

func NewFlowAdminService(repo ports.FlowRepository, cache *FlowCache, bus ports.FlowEventBus, logger *slog.Logger) *FlowAdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowAdminService{FlowRepository: repo, cache: cache, bus: bus, logger: logger}
}

// Publish builds a snapshot from the stored graph and, if it validates,
// installs it locally and announces the version on the event bus. A graph
// that fails validation changes nothing.
func (s *FlowAdminService) Publish(ctx context.Context) (int64, error) {
	version := s.cache.NextVersion()
	if err := s.cache.Reload(ctx, version); err != nil {
		return 0, err
	}
	if s.bus != nil {
		if err := s.bus.PublishFlowUpdated(ctx, version); err != nil {
			// The local snapshot is already serving; peers catch up on
			// their next event or restart.
			s.logger.Warn("flow publish event not delivered",
				slog.Int64("version", version),
				slog.String("error", err.Error()))
		}
	}
	s.logger.Info("flow published", slog.Int64("version", version))
	return version, nil
}

func (s *FlowAdminService) CurrentSnapshot() *domain.FlowSnapshot {
	return s.cache.Current()
}
