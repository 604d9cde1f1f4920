package llm

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/genledger/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.uber.org/zap"
)

// New builds the Generator named by cfg. It never fails: a disabled or
// misconfigured backend yields Disabled and a logged warning, so the service
// still starts and answers with fallback text.
func New(ctx context.Context, cfg config.LLM, logger *zap.Logger) Generator {
	if !cfg.Enabled {
		logger.Info("text generation disabled (llm.enabled=false)")
		return Disabled{}
	}

	g, err := build(ctx, cfg)
	if err != nil {
		logger.Warn("text generation backend unavailable; responses will carry fallback text",
			zap.String("provider", cfg.Provider),
			zap.Error(err),
		)
		return Disabled{}
	}

	logger.Info("text generation backend ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)
	return g
}

func build(ctx context.Context, cfg config.LLM) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no API key configured (set GEMINI_API_KEY or llm.api_key)")
		}
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
		if cfg.MaxTokens > 0 {
			opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
		}
		return NewLangChainGenerator(model, opts...), nil

	case config.ProviderOpenAI:
		// Self-hosted OpenAI-compatible servers often need no key.
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("no API key configured (set llm.api_key or llm.base_url)")
		}
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
