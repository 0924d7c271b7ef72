package ports

import (
	"context"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// FlowRepository persists the authored flow graph. Written only by the
// external flow-authoring tool through the admin endpoints.
type FlowRepository interface {
	UpsertIntent(ctx context.Context, intent domain.IntentNode) error
	GetIntent(ctx context.Context, id string) (*domain.IntentNode, error)
	ListIntents(ctx context.Context, activeOnly bool) ([]domain.IntentNode, error)
	DeleteIntent(ctx context.Context, id string) error

	UpsertCondition(ctx context.Context, condition domain.ConditionNode) error
	GetCondition(ctx context.Context, id string) (*domain.ConditionNode, error)
	DeleteCondition(ctx context.Context, id string) error

	UpsertAction(ctx context.Context, action domain.ActionNode) error
	GetAction(ctx context.Context, id string) (*domain.ActionNode, error)
	DeleteAction(ctx context.Context, id string) error

	UpsertResponse(ctx context.Context, response domain.ResponseNode) error
	DeleteResponse(ctx context.Context, id string) error

	UpsertEdge(ctx context.Context, edge domain.FlowEdge) error
	DeleteEdge(ctx context.Context, id string) error

	// LoadGraph returns the whole graph, or the subgraph reachable from one
	// intent when intentID is non-empty.
	LoadGraph(ctx context.Context, intentID string) (domain.FlowGraph, error)

	// DynamicOptions runs an authored read query to resolve live option
	// lists for a condition.
	DynamicOptions(ctx context.Context, query string, params map[string]any) ([]domain.Option, error)
}

// SessionRepository is a plain KV store for session state with TTL expiry.
// Expired entries behave exactly like missing ones.
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*domain.SessionState, error)
	Save(ctx context.Context, state *domain.SessionState) error
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context, limit int) ([]string, error)
}

// Embedder builds a vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs similarity search over the external vector store.
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, limit int, datasetID string) ([]domain.RetrievalResult, error)
}

// EntityGraph is the relationship-graph track: entry-entity resolution plus
// bounded-depth traversal.
type EntityGraph interface {
	SearchEntities(ctx context.Context, query, datasetID string, limit int) ([]domain.RetrievalResult, error)
	Neighborhood(ctx context.Context, entityID string, depth, limit int) (*domain.GraphData, error)
}

// Reranker re-scores (query, candidate text) pairs with a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]float64, error)
}

// AnswerGenerator creates the final user-facing answer from collected
// values and retrieved context.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, collected map[string]string, results []domain.FusedResult) (string, error)
}

// ValueExtractor fills auto_extract conditions silently from the user
// message and document context. ok=false means extraction failed and the
// interpreter should prompt instead.
type ValueExtractor interface {
	ExtractValue(ctx context.Context, condition domain.ConditionNode, message, documentContext string) (value string, ok bool, err error)
}

// IntentMatcher is the pluggable intent-scoring strategy.
type IntentMatcher interface {
	Match(message string, intents []domain.IntentNode) (domain.IntentNode, float64, bool)
}

// APICaller dispatches api_call actions to external systems.
type APICaller interface {
	Call(ctx context.Context, config map[string]any, values map[string]string) (string, error)
}

// FlowEventBus broadcasts flow publish events so every process swaps in the
// new snapshot.
type FlowEventBus interface {
	PublishFlowUpdated(ctx context.Context, version int64) error
	SubscribeFlowUpdated(ctx context.Context, handler func(context.Context, int64) error) error
}
