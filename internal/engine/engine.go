package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks failures caused by an unreachable or misbehaving
// inference backend. Callers degrade to canned answers instead of failing.
var ErrUnavailable = errors.New("inference backend unavailable")

// Engine abstracts an inference backend (Ollama or any OpenAI-compatible
// server). Generation, translation and embedding go through this interface
// instead of a concrete client.
type Engine interface {
	// Chat sends messages to model and returns the assistant's reply.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// Name identifies the backend in logs and status output.
	Name() string
}

// ModelPuller is implemented by backends that can download missing models.
type ModelPuller interface {
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// unavailable wraps err with ErrUnavailable unless the caller gave up.
func unavailable(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
