// Command server boots the compliance-rag streaming query pipeline: it
// wires every adapter as a process-wide singleton and serves the HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trpc-group/compliance-rag/citation"
	"github.com/trpc-group/compliance-rag/config"
	"github.com/trpc-group/compliance-rag/embedding"
	embopenai "github.com/trpc-group/compliance-rag/embedding/openai"
	"github.com/trpc-group/compliance-rag/graphengine"
	graphneo4j "github.com/trpc-group/compliance-rag/graphengine/neo4j"
	"github.com/trpc-group/compliance-rag/intent"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/llm/anthropic"
	"github.com/trpc-group/compliance-rag/llm/openai"
	"github.com/trpc-group/compliance-rag/localcache"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/orchestrator"
	"github.com/trpc-group/compliance-rag/prompt"
	graphretriever "github.com/trpc-group/compliance-rag/retriever/graph"
	textretriever "github.com/trpc-group/compliance-rag/retriever/text"
	"github.com/trpc-group/compliance-rag/server/httpapi"
	"github.com/trpc-group/compliance-rag/session"
	sessioncache "github.com/trpc-group/compliance-rag/session/cache"
	sessionrowstore "github.com/trpc-group/compliance-rag/session/rowstore"
	sessiontextindex "github.com/trpc-group/compliance-rag/session/textindex"
	"github.com/trpc-group/compliance-rag/storage/elasticsearch"
	"github.com/trpc-group/compliance-rag/storage/mysql"
	storageredis "github.com/trpc-group/compliance-rag/storage/redis"
	"github.com/trpc-group/compliance-rag/textindex"
	textindexes "github.com/trpc-group/compliance-rag/textindex/elasticsearch"
)

// embeddingCacheCapacity and embeddingCacheTTL bound the in-process
// cache-aside layer in front of the embedding provider: the same batch of
// texts (e.g. a repeated question, or a retry after a transient failure)
// skips the round trip within the TTL window.
const (
	embeddingCacheCapacity = 1024
	embeddingCacheTTL      = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: load failed: %v", err)
	}
	log.Configure(log.Settings{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.FilePath,
		Rotation:  cfg.Logging.Rotation,
		Retention: cfg.Logging.Retention,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	answerModel := buildModel(cfg, cfg.Scenes.ChatGeneration)
	intentModel := buildModel(cfg, cfg.Scenes.IntentRecognition)
	queryModel := buildModel(cfg, cfg.Scenes.QueryGeneration)
	summaryModel := buildModel(cfg, cfg.Scenes.SummaryGeneration)
	citationModel := buildModel(cfg, cfg.Scenes.CitationMatching)
	routerModel := buildModel(cfg, cfg.Scenes.Router)

	rawEmbedder := embopenai.New(
		embopenai.WithAPIKey(cfg.LLM.APIKey),
		embopenai.WithBaseURL(cfg.LLM.BaseURL),
	)
	embedCache := localcache.New(embeddingCacheCapacity, embeddingCacheTTL)
	embedder := embedding.NewCached(rawEmbedder, embedCache)

	esClient, err := elasticsearch.NewClient(&elasticsearch.Config{
		Addresses: cfg.ES.Addresses,
		Username:  cfg.ES.Username,
		Password:  cfg.ES.Password,
	})
	if err != nil {
		log.Fatalf("elasticsearch: client init failed: %v", err)
	}
	textAdapter := textindexes.New(esClient)

	var graphAdapter graphengine.Adapter = disabledGraphAdapter{}
	var neo4jAdapter *graphneo4j.Adapter
	if cfg.Flags.Neo4jEnabled {
		neo4jAdapter, err = graphneo4j.New(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password)
		if err != nil {
			log.Fatalf("neo4j: client init failed: %v", err)
		}
		graphAdapter = neo4jAdapter
	}

	mysqlClient, err := mysql.DefaultClientBuilder(ctx, mysql.WithDSN(cfg.MySQL.DSN))
	if err != nil {
		log.Fatalf("mysql: client init failed: %v", err)
	}

	sessionService, pingRedis := buildSessionService(cfg, mysqlClient, textAdapter)

	textRetriever := textretriever.New(textAdapter, embedder, cfg.ES.KnowledgeIndex)
	graphRetr := graphretriever.New(
		intentModel, queryModel, summaryModel, textAdapter, graphAdapter,
		cfg.ES.CypherIndex, cfg.Prompt.IntentPrompt, cfg.Prompt.QueryGenerationPrompt, cfg.Prompt.SummaryPrompt,
	)
	router := intent.New(routerModel, cfg.Prompt.RouterPrompt, cfg.Scenes.Router.Temperature, cfg.Scenes.Router.MaxTokens)
	promptBuilder := prompt.New(cfg.Prompt.SystemPrompt)
	citationMatcher := citation.New(citationModel)

	orch := orchestrator.New(
		router, graphRetr, textRetriever, promptBuilder, answerModel, citationMatcher, sessionService,
		orchestrator.WithAnswerParams(cfg.Scenes.ChatGeneration.Temperature, cfg.Scenes.ChatGeneration.MaxTokens),
	)

	checks := []httpapi.HealthCheck{
		{Name: "mysql", Check: func(ctx context.Context) error {
			return mysqlClient.Query(ctx, func(rows *sql.Rows) error { return nil }, "SELECT 1")
		}},
		{Name: "elasticsearch", Check: esClient.Ping},
	}
	if neo4jAdapter != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "neo4j", Check: func(ctx context.Context) error {
			_, err := neo4jAdapter.Execute(ctx, "RETURN 1", nil)
			return err
		}})
	}
	if pingRedis != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Check: pingRedis})
	}

	server := httpapi.New(orch, sessionService, checks...)

	httpServer := &http.Server{
		Addr:    ":8080",
		Handler: server.Router(),
	}

	go func() {
		log.Infof("server: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: listen failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server: graceful shutdown failed: %v", err)
	}
	if neo4jAdapter != nil {
		if err := neo4jAdapter.Close(shutdownCtx); err != nil {
			log.Errorf("neo4j: close failed: %v", err)
		}
	}
	if err := mysqlClient.Close(); err != nil {
		log.Errorf("mysql: close failed: %v", err)
	}
}

func buildModel(cfg *config.Config, scene config.ScenarioLLM) llm.Model {
	name := scene.Model
	if name == "" {
		name = cfg.LLM.ModelName
	}
	if cfg.LLM.Provider == "anthropic" {
		return anthropic.New(name, anthropic.WithAPIKey(cfg.LLM.APIKey))
	}
	return openai.New(name, openai.WithAPIKey(cfg.LLM.APIKey), openai.WithBaseURL(cfg.LLM.BaseURL))
}

// buildSessionService wires the three-tier session store. It returns the
// service and, when the Redis cache tier is enabled, a health-check ping
// function for it; otherwise the ping func is nil.
func buildSessionService(cfg *config.Config, mysqlClient mysql.Client, textAdapter textindex.Adapter) (session.Service, func(context.Context) error) {
	rows := sessionrowstore.New(mysqlClient)
	text := sessiontextindex.New(textAdapter, cfg.ES.ConversationIndex)

	if !cfg.Flags.RedisEnabled {
		return session.NewService(newNoopCache(), rows, text), nil
	}

	redisClient, err := storageredis.DefaultClientBuilder(storageredis.WithClientBuilderURL(cfg.Redis.URL))
	if err != nil {
		log.Fatalf("redis: client init failed: %v", err)
	}
	cache := sessioncache.New(redisClient)
	return session.NewService(cache, rows, text), cache.Ping
}

// disabledGraphAdapter substitutes for the Neo4j adapter when the graph
// engine flag is off; the graph retriever's existing failure-handling
// degrades gracefully around its error rather than panicking on a nil
// interface.
type disabledGraphAdapter struct{}

func (disabledGraphAdapter) Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error) {
	return nil, errors.New("graph engine disabled")
}

var _ embedding.Embedder = (*embopenai.Embedder)(nil)

// noopCache is used when the Redis cache tier is disabled via config; the
// service then always falls through to the row store / text index. It
// still hands out real per-session sequence numbers from an in-process
// counter, since AppendMessage persists Order into the text index
// regardless of whether the cache tier itself is live.
type noopCache struct {
	orderMu sync.Mutex
	orders  map[string]int
}

func newNoopCache() *noopCache {
	return &noopCache{orders: map[string]int{}}
}

func (c *noopCache) NextOrder(ctx context.Context, userID, sessionID string) (int, error) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()
	key := userID + ":" + sessionID
	n := c.orders[key]
	c.orders[key] = n + 1
	return n, nil
}

func (*noopCache) PutSession(ctx context.Context, userID, sessionID, name string, createdAt time.Time) error {
	return nil
}
func (*noopCache) RemoveSession(ctx context.Context, userID, sessionID string) error { return nil }
func (*noopCache) Sessions(ctx context.Context, userID string) (map[string]session.Session, bool, error) {
	return nil, false, nil
}
func (*noopCache) AppendMessage(ctx context.Context, msg session.Message) error { return nil }
func (*noopCache) Messages(ctx context.Context, userID, sessionID string) ([]session.Message, bool, error) {
	return nil, false, nil
}
func (*noopCache) ReplaceMessages(ctx context.Context, userID, sessionID string, messages []session.Message) error {
	return nil
}
func (*noopCache) DeleteMessages(ctx context.Context, userID, sessionID string) error { return nil }
