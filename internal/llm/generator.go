package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kalambet/uniguide/internal/engine"
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EngineGenerator sends each prompt as a single user message to a chat model.
// Calls are throttled by a token bucket and retried with exponential backoff
// while the backend reports itself unavailable.
type EngineGenerator struct {
	engine      engine.Engine
	model       string
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// GeneratorOption configures an EngineGenerator.
type GeneratorOption func(*EngineGenerator)

// WithRateLimit caps generation calls at rps per second with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) GeneratorOption {
	return func(g *EngineGenerator) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxAttempts sets how many times an unavailable backend is tried.
func WithMaxAttempts(n int) GeneratorOption {
	return func(g *EngineGenerator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first retry delay; it doubles on each retry.
func WithBaseDelay(d time.Duration) GeneratorOption {
	return func(g *EngineGenerator) { g.baseDelay = d }
}

// WithLogger sets the generator's logger.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *EngineGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator returns a Generator backed by e. A nil engine yields a
// generator that always fails with ErrGenerationUnavailable.
func NewGenerator(e engine.Engine, model string, opts ...GeneratorOption) Generator {
	if e == nil {
		return Unavailable{}
	}
	g := &EngineGenerator{
		engine:      e,
		model:       model,
		maxAttempts: 2,
		baseDelay:   500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *EngineGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var out string
	err := retryWithBackoff(ctx, g.maxAttempts, g.baseDelay, func() error {
		reply, err := g.engine.Chat(ctx, g.model, []engine.Message{{Role: "user", Content: prompt}})
		if err != nil {
			return err
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return errEmptyReply
		}
		out = reply
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		g.logger.Warn("generation failed", "model", g.model, "error", err)
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return out, nil
}

var errEmptyReply = errors.New("model returned an empty reply")

// Unavailable is the Generator used when no backend is configured.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string) (string, error) {
	return "", ErrGenerationUnavailable
}

// retryWithBackoff runs op up to maxAttempts times while it fails with
// engine.ErrUnavailable, sleeping baseDelay*2^(n-1) between attempts.
func retryWithBackoff(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == maxAttempts || !errors.Is(err, engine.ErrUnavailable) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
