package neo4j

import (
	"context"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// Client wraps the bolt driver with eager query execution and startup
// index bootstrap. Flow authoring and entity retrieval share one driver.
type Client struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

func NewClient(ctx context.Context, uri, username, password string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "neo4j connect", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "neo4j connectivity", err)
	}
	return &Client{driver: driver, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "neo4j query", err)
	}
	return result, nil
}

// EnsureIndexes creates the lookup indexes. Failures are logged and
// skipped; the index usually already exists.
func (c *Client) EnsureIndexes(ctx context.Context) {
	queries := []string{
		"CREATE INDEX flow_intent_id IF NOT EXISTS FOR (n:FlowIntent) ON (n.id)",
		"CREATE INDEX flow_condition_id IF NOT EXISTS FOR (n:FlowCondition) ON (n.id)",
		"CREATE INDEX flow_action_id IF NOT EXISTS FOR (n:FlowAction) ON (n.id)",
		"CREATE INDEX flow_response_id IF NOT EXISTS FOR (n:FlowResponse) ON (n.id)",
		"CREATE INDEX entity_id IF NOT EXISTS FOR (n:Entity) ON (n.id)",
		"CREATE INDEX entity_dataset IF NOT EXISTS FOR (n:Entity) ON (n.dataset_id)",
		"CREATE FULLTEXT INDEX entity_text IF NOT EXISTS FOR (n:Entity) ON EACH [n.name, n.description]",
	}
	for _, q := range queries {
		if _, err := c.run(ctx, q, nil); err != nil {
			c.logger.Warn("index bootstrap skipped",
				slog.String("query", q),
				slog.String("error", err.Error()))
		}
	}
}
