package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/dyike/agenttrader/config"
	"github.com/kataras/golog"
)

const (
	deepSeekBaseURL      = "https://api.deepseek.com/v1"
	deepSeekQuickDefault = "deepseek-chat"
	deepSeekDeepDefault  = "deepseek-reasoner"
	defaultOpenAIURL     = "https://api.openai.com/v1"
)

var ErrMissingAPIKey = errors.New("llm API key is not set")

// Models holds the two model tiers. Quick models drive the analysts and the
// debaters; deep models drive the research manager and the risk judge.
type Models struct {
	Quick model.ToolCallingChatModel
	Deep  model.BaseChatModel
}

// NewModels builds both tiers for the configured provider. It fails when the
// provider credential is missing so a misconfigured server never starts.
func NewModels(ctx context.Context, cfg *config.Config) (*Models, error) {
	apiKey := cfg.LLMAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, cfg.LLMProvider)
	}

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		quick, err := newOpenAIModel(ctx, cfg.BackendURL, apiKey, cfg.QuickThinkLLM)
		if err != nil {
			return nil, fmt.Errorf("quick model: %w", err)
		}
		deep, err := newOpenAIModel(ctx, cfg.BackendURL, apiKey, cfg.DeepThinkLLM)
		if err != nil {
			return nil, fmt.Errorf("deep model: %w", err)
		}
		golog.Infof("llm: openai quick=%s deep=%s", cfg.QuickThinkLLM, cfg.DeepThinkLLM)
		return &Models{Quick: quick, Deep: deep}, nil

	case config.ProviderDeepSeek:
		baseURL := deepSeekURL(cfg.BackendURL)
		quickName := modelOrDefault(cfg.QuickThinkLLM, deepSeekQuickDefault)
		deepName := modelOrDefault(cfg.DeepThinkLLM, deepSeekDeepDefault)

		// deepseek serves an OpenAI compatible API for tool calling
		quick, err := newOpenAIModel(ctx, baseURL, apiKey, quickName)
		if err != nil {
			return nil, fmt.Errorf("quick model: %w", err)
		}
		deep, err := deepseek.NewChatModel(ctx, deepSeekConfig(baseURL, apiKey, deepName))
		if err != nil {
			return nil, fmt.Errorf("deep model: %w", err)
		}
		golog.Infof("llm: deepseek quick=%s deep=%s", quickName, deepName)
		return &Models{Quick: quick, Deep: deep}, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}
}

func newOpenAIModel(ctx context.Context, baseURL, apiKey, name string) (*openai.ChatModel, error) {
	maxTokens := 8192
	temperature := float32(0.1)
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       name,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
}

// deepSeekURL keeps a custom backend_url and replaces the OpenAI default.
func deepSeekURL(backendURL string) string {
	if backendURL == "" || backendURL == defaultOpenAIURL {
		return deepSeekBaseURL
	}
	return backendURL
}

func deepSeekConfig(baseURL, apiKey, name string) *deepseek.ChatModelConfig {
	return &deepseek.ChatModelConfig{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     name,
		MaxTokens: 8192,
	}
}

// modelOrDefault swaps the OpenAI default names for the provider's own.
func modelOrDefault(name, fallback string) string {
	if name == "" || strings.HasPrefix(name, "gpt-") {
		return fallback
	}
	return name
}
