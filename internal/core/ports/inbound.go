package ports

import (
	"context"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// ConversationService drives a session one turn at a time.
type ConversationService interface {
	Advance(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error)
	GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error)
	ResetSession(ctx context.Context, sessionID string) (*domain.SessionState, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, limit int) ([]string, error)
}

// SearchService exposes retrieval directly, outside any dialogue.
type SearchService interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.RankedResultSet, error)
}

// FlowAdminService mutates the authored flow graph and publishes snapshots.
type FlowAdminService interface {
	FlowRepository
	Publish(ctx context.Context) (int64, error)
	CurrentSnapshot() *domain.FlowSnapshot
}
