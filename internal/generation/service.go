// Package generation turns client requests into generated, digested and
// ledger-recorded responses.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/genledger/internal/config"
	"github.com/jmerrifield20/genledger/internal/digest"
	"github.com/jmerrifield20/genledger/internal/ledger"
	"github.com/jmerrifield20/genledger/internal/llm"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/jmerrifield20/genledger/internal/generation"

// Response field names, one per kind.
const (
	FieldSummary          = "summary"
	FieldAnswer           = "answer"
	FieldLearningPath     = "learning_path"
	FieldVerificationHash = "verification_hash"
)

// Result is the outcome of one generation request.
type Result struct {
	Kind  ledger.Kind
	Field string
	Text  string

	// Digest is the hex SHA-256 of the canonical payload {Field: Text}.
	Digest string
	Entry  *ledger.Entry

	// Degraded is true when Text is fallback text rather than generated output.
	Degraded bool
}

// Payload returns the hashed part of the response.
func (r *Result) Payload() map[string]any {
	return map[string]any{r.Field: r.Text}
}

// Response returns the payload with the verification hash attached, as sent
// to clients.
func (r *Result) Response() map[string]any {
	return map[string]any{r.Field: r.Text, FieldVerificationHash: r.Digest}
}

// MetricsRecorder is an optional callback invoked once per completed request.
type MetricsRecorder func(kind ledger.Kind, degraded bool, backendLatency time.Duration)

// Config controls generation behavior.
type Config struct {
	Timeout         time.Duration
	SummaryStrategy string
	ChunkSize       int
	ChunkOverlap    int
	MapConcurrency  int
}

// ConfigFrom extracts the generation settings from the LLM configuration.
func ConfigFrom(c config.LLM) Config {
	return Config{
		Timeout:         c.Timeout,
		SummaryStrategy: c.SummaryStrategy,
		ChunkSize:       c.ChunkSize,
		ChunkOverlap:    c.ChunkOverlap,
		MapConcurrency:  c.MapConcurrency,
	}
}

// Service orchestrates generation, digesting and ledger recording.
type Service struct {
	gen       llm.Generator
	store     ledger.Store
	splitter  textsplitter.TextSplitter
	cfg       Config
	onMetrics MetricsRecorder
	logger    *zap.Logger
}

// NewService creates a Service. Zero values in cfg take the defaults from
// config.Defaults.
func NewService(gen llm.Generator, store ledger.Store, cfg Config, logger *zap.Logger) *Service {
	d := ConfigFrom(config.Defaults().LLM)
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.SummaryStrategy == "" {
		cfg.SummaryStrategy = d.SummaryStrategy
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = d.ChunkSize
		cfg.ChunkOverlap = d.ChunkOverlap
	}
	if cfg.MapConcurrency <= 0 {
		cfg.MapConcurrency = d.MapConcurrency
	}
	if gen == nil {
		gen = llm.Disabled{}
	}

	return &Service{
		gen:   gen,
		store: store,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		cfg:    cfg,
		logger: logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// Summarize summarizes text.
func (s *Service) Summarize(ctx context.Context, text string) (*Result, error) {
	if isBlank(text) {
		return nil, &ValidationError{Message: "No text provided"}
	}
	return s.complete(ctx, ledger.KindSummarization, FieldSummary, FallbackSummarize,
		func(ctx context.Context) (string, error) {
			return s.summarize(ctx, text)
		})
}

// Answer answers question using only the supplied context.
func (s *Service) Answer(ctx context.Context, contextText, question string) (*Result, error) {
	if isBlank(contextText) || isBlank(question) {
		return nil, &ValidationError{Message: "Context and question are required"}
	}
	return s.complete(ctx, ledger.KindQA, FieldAnswer, FallbackAnswer,
		func(ctx context.Context) (string, error) {
			prompt, err := llm.AnswerPrompt(contextText, question)
			if err != nil {
				return "", err
			}
			return s.gen.Generate(ctx, prompt)
		})
}

// LearningPath produces a markdown learning path for topic.
func (s *Service) LearningPath(ctx context.Context, topic string) (*Result, error) {
	if isBlank(topic) {
		return nil, &ValidationError{Message: "No topic provided"}
	}
	return s.complete(ctx, ledger.KindLearningPath, FieldLearningPath, FallbackLearningPath,
		func(ctx context.Context) (string, error) {
			prompt, err := llm.LearningPathPrompt(topic)
			if err != nil {
				return "", err
			}
			return s.gen.Generate(ctx, prompt)
		})
}

// complete runs produce, substitutes fallback text on failure, then digests
// and records the payload. The ledger is written only once the payload is
// final.
func (s *Service) complete(
	ctx context.Context,
	kind ledger.Kind,
	field, failureText string,
	produce func(context.Context) (string, error),
) (*Result, error) {
	// Work continues if the client disconnects.
	ctx = context.WithoutCancel(ctx)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "generation."+string(kind))
	defer span.End()

	start := time.Now()
	text, degraded := s.generate(ctx, kind, failureText, produce)
	latency := time.Since(start)

	res := &Result{Kind: kind, Field: field, Text: text, Degraded: degraded}
	span.SetAttributes(attribute.Bool("generation.degraded", degraded))

	canonical, err := digest.Canonicalize(res.Payload())
	if err != nil {
		span.SetStatus(codes.Error, "digest failed")
		return nil, fmt.Errorf("digest %s payload: %w", kind, err)
	}
	res.Digest = digest.Sum(canonical)
	span.SetAttributes(attribute.String("generation.digest", res.Digest))

	entry, err := s.store.Record(ctx, res.Digest, kind, digest.Preview(canonical))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger record failed")
		return nil, fmt.Errorf("record %s: %w", kind, err)
	}
	res.Entry = entry

	if s.onMetrics != nil {
		s.onMetrics(kind, degraded, latency)
	}
	s.logger.Info("generation recorded",
		zap.String("kind", string(kind)),
		zap.String("digest", res.Digest),
		zap.Bool("degraded", degraded),
		zap.Duration("backend_latency", latency),
	)
	return res, nil
}

// generate calls produce under the configured timeout. The boolean result
// is true when the returned text is a fallback.
func (s *Service) generate(
	ctx context.Context,
	kind ledger.Kind,
	failureText string,
	produce func(context.Context) (string, error),
) (string, bool) {
	if llm.IsDisabled(s.gen) {
		return FallbackDisabled, true
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.generate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := produce(ctx)
		done <- outcome{text: text, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		// The backend may not honor cancellation; stop waiting for it.
		out = outcome{err: ctx.Err()}
	}

	if out.err == nil && isBlank(out.text) {
		out.err = llm.ErrEmptyResponse
	}
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, "generation failed")
		s.logger.Warn("text generation failed; returning fallback text",
			zap.String("kind", string(kind)),
			zap.Error(out.err),
		)
		if errors.Is(out.err, llm.ErrDisabled) {
			return FallbackDisabled, true
		}
		return failureText, true
	}
	return strings.TrimSpace(out.text), false
}

// summarize splits text into chunks. With the first_chunk strategy only the
// first chunk is summarized; map_reduce summarizes every chunk and then
// merges the partial summaries.
func (s *Service) summarize(ctx context.Context, text string) (string, error) {
	chunks, err := s.splitter.SplitText(text)
	if err != nil {
		return "", fmt.Errorf("split text: %w", err)
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}

	if s.cfg.SummaryStrategy != config.StrategyMapReduce || len(chunks) == 1 {
		return s.summarizeChunk(ctx, chunks[0])
	}

	partials := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MapConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := s.summarizeChunk(gctx, chunk)
			if err != nil {
				return fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
			}
			partials[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	prompt, err := llm.CombinePrompt(strings.Join(partials, "\n\n"))
	if err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, prompt)
}

func (s *Service) summarizeChunk(ctx context.Context, chunk string) (string, error) {
	prompt, err := llm.SummarizePrompt(chunk)
	if err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, prompt)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
