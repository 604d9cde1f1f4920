package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LangChainGenerator adapts any langchaingo model to Generator.
type LangChainGenerator struct {
	model llms.Model
	opts  []llms.CallOption
}

// NewLangChainGenerator wraps model. opts are applied to every call.
func NewLangChainGenerator(model llms.Model, opts ...llms.CallOption) *LangChainGenerator {
	return &LangChainGenerator{model: model, opts: opts}
}

// Generate implements Generator.
func (g *LangChainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, g.opts...)
	if err != nil {
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
