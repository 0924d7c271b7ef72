package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/config"
	"github.com/kirillkom/graphrag-dialogue/internal/core/ports"
	"github.com/kirillkom/graphrag-dialogue/internal/core/usecase"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/apicall"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kirillkom/graphrag-dialogue/internal/infrastructure/queue/nats"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/rerank/tei"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/resilience"
	redisstore "github.com/kirillkom/graphrag-dialogue/internal/infrastructure/session/redis"
	"github.com/kirillkom/graphrag-dialogue/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/graphrag-dialogue/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.ServerMetrics

	Conversations ports.ConversationService
	Search        ports.SearchService
	FlowAdmin     ports.FlowAdminService
	FlowCache     *usecase.FlowCache
	Bus           ports.FlowEventBus

	RedisPing func(ctx context.Context) error
	GraphPing func(ctx context.Context) error

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig()).WithLogger(logger)

	graphClient, err := neo4j.NewClient(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
	if err != nil {
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}
	graphClient.EnsureIndexes(ctx)
	flowStore := neo4j.NewFlowStore(graphClient)
	entityStore := neo4j.NewEntityStore(graphClient)

	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
	sessionStore := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redisstore.WithTTL(sessionTTL))

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	extractor := ollama.NewExtractor(ollamaClient)

	var reranker ports.Reranker
	if cfg.RerankURL != "" {
		reranker = tei.New(cfg.RerankURL).WithExecutor(executor)
	}

	bus, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		graphClient.Close(ctx)
		_ = sessionStore.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	serverMetrics := metrics.NewServerMetrics("graphrag-dialogue")

	flowCache := usecase.NewFlowCache(flowStore, logger)

	searchService := usecase.NewSearchService(
		embedder,
		vectorIndex,
		entityStore,
		reranker,
		serverMetrics,
		usecase.SearchConfig{
			VectorTimeout: time.Duration(cfg.SearchVectorTimeoutMS) * time.Millisecond,
			GraphTimeout:  time.Duration(cfg.SearchGraphTimeoutMS) * time.Millisecond,
			RerankTimeout: time.Duration(cfg.SearchRerankTimeoutMS) * time.Millisecond,
			RRFK:          cfg.FusionRRFK,
		},
		logger,
	)

	dialogueService := usecase.NewDialogueService(
		sessionStore,
		flowCache,
		flowStore,
		searchService,
		usecase.NewKeywordIntentMatcher(cfg.IntentMatchThreshold),
		extractor,
		generator,
		apicall.New(executor),
		serverMetrics,
		usecase.DialogueConfig{SessionTTL: sessionTTL},
		logger,
	)

	flowAdmin := usecase.NewFlowAdminService(flowStore, flowCache, bus, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: serverMetrics,

		Conversations: dialogueService,
		Search:        searchService,
		FlowAdmin:     flowAdmin,
		FlowCache:     flowCache,
		Bus:           bus,

		RedisPing: sessionStore.Ping,
		GraphPing: graphClient.Ping,

		closeFn: func() {
			bus.Close()
			_ = sessionStore.Close()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = graphClient.Close(closeCtx)
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
