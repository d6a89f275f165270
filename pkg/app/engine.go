package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/dyike/agenttrader/config"
	"github.com/dyike/agenttrader/internal/agents"
	"github.com/dyike/agenttrader/internal/dataflows"
	"github.com/dyike/agenttrader/internal/graph"
	"github.com/dyike/agenttrader/internal/llm"
	"github.com/dyike/agenttrader/internal/memory"
	"github.com/dyike/agenttrader/internal/service"
	"github.com/dyike/agenttrader/internal/storage"
	"github.com/dyike/agenttrader/internal/tools"
	"github.com/dyike/agenttrader/pkg/sqlite"
	"github.com/kataras/golog"
	"github.com/redis/go-redis/v9"
)

const (
	cacheTTL           = 24 * time.Hour
	hashEmbeddingDim   = 256
	redisCacheKeyspace = "agenttrader:cache:"
)

// Engine is one fully wired analysis stack built from a config snapshot.
type Engine struct {
	Config   config.Config
	BuiltAt  time.Time
	Version  uint64
	Analyzer *service.Analyzer
	Graph    *graph.TradingAgentsGraph
	// Usage totals every run of this engine.
	Usage    *agents.Usage
}

var engineSeq atomic.Uint64

// Close waits for the engine's in-flight runs and releases its resources.
func (e *Engine) Close() error {
	if e == nil || e.Analyzer == nil {
		return nil
	}
	return e.Analyzer.Close()
}

func BuildEngine(cfg config.Config) (engine *Engine, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Debug {
		golog.SetLevel("debug")
	} else {
		golog.SetLevel("info")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	var closers []func() error
	defer func() {
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
		}
	}()

	models, err := llm.NewModels(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	toolkit, cacheCloser, err := buildToolkit(&cfg)
	if err != nil {
		return nil, err
	}
	if cacheCloser != nil {
		closers = append(closers, cacheCloser)
	}
	gateway, err := tools.NewGateway(ctx, toolkit.Tools()...)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	closers = append(closers, db.Close)

	store, err := storage.NewStore(ctx, db)
	if err != nil {
		return nil, err
	}
	embedder, err := buildEmbedder(&cfg)
	if err != nil {
		return nil, err
	}
	bank, err := memory.NewBank(ctx, db, embedder)
	if err != nil {
		return nil, err
	}

	usage := &agents.Usage{}
	roster := &agents.Roster{
		Quick:     models.Quick,
		Deep:      models.Deep,
		Tools:     gateway,
		Memories:  bank,
		Callbacks: []callbacks.Handler{agents.NewLogHandler(usage)},
	}
	tg, err := graph.NewTradingAgentsGraph(ctx, &cfg, roster)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithStore(store),
		service.WithResultsDir(cfg.ResultsDir),
		service.WithReflection(agents.NewReflector(roster), bank),
	}
	for _, fn := range closers {
		opts = append(opts, service.WithCloser(fn))
	}

	engine = &Engine{
		Config:   cfg,
		BuiltAt:  time.Now(),
		Version:  engineSeq.Add(1),
		Analyzer: service.NewAnalyzer(tg, opts...),
		Graph:    tg,
		Usage:    usage,
	}
	golog.Infof("engine v%d built (provider=%s, market data=%s, online tools=%t)",
		engine.Version, cfg.LLMProvider, cfg.MarketDataProvider, cfg.OnlineTools)
	return engine, nil
}

func buildToolkit(cfg *config.Config) (*tools.Toolkit, func() error, error) {
	tk := &tools.Toolkit{
		Online:         cfg.OnlineTools,
		FallbackSearch: dataflows.NewGoogleNewsClient(),
	}

	switch cfg.MarketDataProvider {
	case config.MarketDataLongport:
		lp, err := dataflows.NewLongportClient(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken)
		if err != nil {
			return nil, nil, fmt.Errorf("longport: %w", err)
		}
		tk.Prices = lp
	default:
		tk.Prices = dataflows.NewYahooFinanceClient()
	}

	if cfg.FinnhubAPIKey != "" {
		tk.News = dataflows.NewFinnhubClient(cfg.FinnhubAPIKey)
	} else {
		golog.Warn("FINNHUB_API_KEY not set, company news is unavailable")
	}
	if cfg.TavilyAPIKey != "" {
		tk.Search = dataflows.NewTavilyClient(cfg.TavilyAPIKey)
	}

	if !cfg.CacheEnabled {
		return tk, nil, nil
	}
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		tk.Cache = dataflows.NewRedisCache(client,
			dataflows.WithRedisPrefix(redisCacheKeyspace),
			dataflows.WithRedisTTL(cacheTTL))
		return tk, client.Close, nil
	default:
		tk.Cache = dataflows.NewFileCache(cfg.DataCacheDir, cacheTTL)
		return tk, nil, nil
	}
}

func buildEmbedder(cfg *config.Config) (memory.Embedder, error) {
	if cfg.LLMProvider == config.ProviderOpenAI && cfg.OpenAIAPIKey != "" {
		return memory.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.BackendURL, cfg.EmbeddingModel)
	}
	golog.Infof("memory: using local hash embeddings")
	return memory.NewHashEmbedder(hashEmbeddingDim), nil
}
