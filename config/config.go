package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"

	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"

	MarketDataYahoo    = "yahoo"
	MarketDataLongport = "longport"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	ResultsDir   string `json:"results_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`

	LLMProvider          string `json:"llm_provider"`
	DeepThinkLLM         string `json:"deep_think_llm"`
	QuickThinkLLM        string `json:"quick_think_llm"`
	BackendURL           string `json:"backend_url"`
	EmbeddingModel       string `json:"embedding_model"`
	MaxDebateRounds      int    `json:"max_debate_rounds"`
	MaxRiskDiscussRounds int    `json:"max_risk_rounds"`
	MaxRecurLimit        int    `json:"max_recursion_limit"`
	OnlineTools          bool   `json:"online_tools"`
	Debug                bool   `json:"debug"`

	MarketDataProvider string `json:"market_data_provider"`
	CacheEnabled       bool   `json:"cache_enabled"`
	CacheBackend       string `json:"cache_backend"`
	RedisAddr          string `json:"redis_addr"`

	HTTPAddr string `json:"http_addr"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port"`

	// Secrets are read from the environment only and never written to the config file.
	OpenAIAPIKey        string `json:"-"`
	DeepSeekAPIKey      string `json:"-"`
	FinnhubAPIKey       string `json:"-"`
	TavilyAPIKey        string `json:"-"`
	LongportAppKey      string `json:"-"`
	LongportAppSecret   string `json:"-"`
	LongportAccessToken string `json:"-"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(currentDir)
}

func DefaultConfigWithRoot(root string) *Config {
	cfg := &Config{
		ProjectDir:   root,
		ResultsDir:   filepath.Join(root, "results"),
		DataDir:      filepath.Join(root, "data"),
		DataCacheDir: filepath.Join(root, "data", "cache"),
		DBPath:       filepath.Join(root, "data", "agenttrader.db"),

		LLMProvider:    ProviderOpenAI,
		DeepThinkLLM:   "gpt-4o",
		QuickThinkLLM:  "gpt-4o-mini",
		BackendURL:     "https://api.openai.com/v1",
		EmbeddingModel: "text-embedding-3-small",

		MaxDebateRounds:      2,
		MaxRiskDiscussRounds: 1,
		MaxRecurLimit:        100,
		OnlineTools:          true,
		Debug:                false,

		MarketDataProvider: MarketDataYahoo,
		CacheEnabled:       true,
		CacheBackend:       CacheBackendFile,
		RedisAddr:          "localhost:6379",

		HTTPAddr: ":8000",

		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("DEEP_THINK_LLM"); val != "" {
		c.DeepThinkLLM = val
	}
	if val := os.Getenv("QUICK_THINK_LLM"); val != "" {
		c.QuickThinkLLM = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("EMBEDDING_MODEL"); val != "" {
		c.EmbeddingModel = val
	}

	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("CACHE_BACKEND"); val != "" {
		c.CacheBackend = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.RedisAddr = val
	}
	if val := os.Getenv("MARKET_DATA_PROVIDER"); val != "" {
		c.MarketDataProvider = val
	}

	if val := os.Getenv("ONLINE_TOOLS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.OnlineTools = enabled
		}
	}

	if val := os.Getenv("MAX_DEBATE_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxDebateRounds = v
		}
	}
	if val := os.Getenv("MAX_RISK_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxRiskDiscussRounds = v
		}
	}
	if val := os.Getenv("MAX_RECURSION_LIMIT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxRecurLimit = v
		}
	}
	if val := os.Getenv("HTTP_ADDR"); val != "" {
		c.HTTPAddr = val
	}

	if val := os.Getenv("AGENTTRADER_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}

	c.LoadSecrets()
}

// LoadSecrets fills the credential fields from the environment.
func (c *Config) LoadSecrets() {
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	c.FinnhubAPIKey = os.Getenv("FINNHUB_API_KEY")
	c.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	c.LongportAppKey = os.Getenv("LONGPORT_APP_KEY")
	c.LongportAppSecret = os.Getenv("LONGPORT_APP_SECRET")
	c.LongportAccessToken = os.Getenv("LONGPORT_ACCESS_TOKEN")
}

// LLMAPIKey returns the credential for the configured provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == ProviderDeepSeek {
		return c.DeepSeekAPIKey
	}
	return c.OpenAIAPIKey
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderDeepSeek:
	default:
		return fmt.Errorf("unsupported llm_provider %q", c.LLMProvider)
	}
	if strings.TrimSpace(c.QuickThinkLLM) == "" || strings.TrimSpace(c.DeepThinkLLM) == "" {
		return fmt.Errorf("quick_think_llm and deep_think_llm are required")
	}
	if c.MaxDebateRounds < 1 {
		return fmt.Errorf("max_debate_rounds must be at least 1, got %d", c.MaxDebateRounds)
	}
	if c.MaxRiskDiscussRounds < 1 {
		return fmt.Errorf("max_risk_rounds must be at least 1, got %d", c.MaxRiskDiscussRounds)
	}
	if c.MaxRecurLimit < 1 {
		return fmt.Errorf("max_recursion_limit must be positive, got %d", c.MaxRecurLimit)
	}
	switch c.CacheBackend {
	case CacheBackendFile, CacheBackendRedis:
	default:
		return fmt.Errorf("unsupported cache_backend %q", c.CacheBackend)
	}
	if c.CacheBackend == CacheBackendRedis && strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("redis_addr is required for the redis cache backend")
	}
	switch c.MarketDataProvider {
	case MarketDataYahoo, MarketDataLongport:
	default:
		return fmt.Errorf("unsupported market_data_provider %q", c.MarketDataProvider)
	}
	if strings.TrimSpace(c.DataCacheDir) == "" {
		return fmt.Errorf("data_cache_dir is required")
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, c.DataCacheDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
