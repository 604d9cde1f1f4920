// Package llm is the boundary to the external text-generation backend.
//
// Every backend satisfies Generator and reports failure as an ordinary error.
// Deciding what to show the client when generation fails is left to the
// caller.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrDisabled is returned by Disabled: the backend is switched off or
	// failed to initialize at startup.
	ErrDisabled = errors.New("text generation backend is not configured")

	// ErrEmptyResponse is returned when the backend answers with no text.
	ErrEmptyResponse = errors.New("text generation backend returned an empty response")
)

// Generator produces text for a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Disabled is the Generator used when no backend is available.
type Disabled struct{}

// Generate always returns ErrDisabled.
func (Disabled) Generate(context.Context, string) (string, error) {
	return "", ErrDisabled
}

// IsDisabled reports whether g is the Disabled generator.
func IsDisabled(g Generator) bool {
	_, ok := g.(Disabled)
	return ok
}
