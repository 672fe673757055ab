// Package router picks the answering strategy for a chat request.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/composer"
	"github.com/kalambet/uniguide/internal/storage"
)

// FollowUpCount is how many suggestions are attached when a strategy
// supplies none.
const FollowUpCount = 3

const recordTimeout = 5 * time.Second

// StructuredAttempt answers from the relational table or misses.
type StructuredAttempt interface {
	Attempt(ctx context.Context, query, lang string) answer.Result
}

// SemanticAttempt always answers, falling back to canned text.
type SemanticAttempt interface {
	Attempt(ctx context.Context, query, lang string, history []answer.Turn) answer.Envelope
}

// TurnRecorder persists the exchange after each request.
type TurnRecorder interface {
	AppendTurns(ctx context.Context, turns ...storage.Turn) error
}

// HistorySource supplies earlier turns when a request carries none.
type HistorySource interface {
	RecentTurns(ctx context.Context, role string, limit int) ([]storage.Turn, error)
}

// Router tries the structured strategy first and the semantic one second.
type Router struct {
	structured StructuredAttempt
	semantic   SemanticAttempt
	sampler    *answer.Sampler
	recorder   TurnRecorder
	history    HistorySource
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithRecorder stores every answered exchange.
func WithRecorder(r TurnRecorder) Option {
	return func(rt *Router) { rt.recorder = r }
}

// WithHistory makes requests without history use the last
// composer.DefaultHistoryTurns stored user questions instead.
func WithHistory(h HistorySource) Option {
	return func(rt *Router) { rt.history = h }
}

// WithSampler replaces the follow-up sampler.
func WithSampler(s *answer.Sampler) Option {
	return func(rt *Router) {
		if s != nil {
			rt.sampler = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Router) {
		if l != nil {
			rt.logger = l
		}
	}
}

// New returns a Router. structured may be nil, in which case every request
// goes straight to the semantic strategy.
func New(structured StructuredAttempt, semantic SemanticAttempt, opts ...Option) *Router {
	rt := &Router{
		structured: structured,
		semantic:   semantic,
		sampler:    answer.NewSampler(answer.FollowUpPool(), nil),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(rt)
	}
	return rt
}

// Handle answers req. It never returns an error: an unexpected failure
// becomes the outer failure envelope, the only one with Success false.
func (rt *Router) Handle(ctx context.Context, req answer.Request) (env answer.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprint(r)
			rt.logger.Error("chat request failed", "panic", detail)
			env = answer.OuterFailure(detail)
		}
		if env.FollowUps == nil {
			env.FollowUps = []string{}
		}
	}()

	lang := req.Lang()
	history := req.History
	if len(history) == 0 {
		history = rt.storedHistory(ctx)
	}
	env = rt.answer(ctx, req.Message, lang, history)
	if len(env.FollowUps) == 0 {
		env.FollowUps = rt.sampler.Sample(FollowUpCount)
	}
	rt.record(ctx, req.Message, env.Text)
	return env
}

func (rt *Router) answer(ctx context.Context, query, lang string, history []answer.Turn) answer.Envelope {
	if rt.structured != nil {
		switch res := rt.structured.Attempt(ctx, query, lang).(type) {
		case answer.Hit:
			rt.logger.Debug("answered from table")
			return res.Envelope
		case answer.Miss:
			rt.logger.Debug("falling back to semantic", "reason", res.Reason)
		}
	}
	return rt.semantic.Attempt(ctx, query, lang, history)
}

func (rt *Router) storedHistory(ctx context.Context) []answer.Turn {
	if rt.history == nil {
		return nil
	}
	stored, err := rt.history.RecentTurns(ctx, answer.RoleUser, composer.DefaultHistoryTurns)
	if err != nil {
		rt.logger.Warn("loading conversation history", "error", err)
		return nil
	}
	turns := make([]answer.Turn, 0, len(stored))
	for _, t := range stored {
		turns = append(turns, answer.Turn{Role: t.Role, Content: t.Content, Timestamp: t.CreatedAt})
	}
	return turns
}

func (rt *Router) record(ctx context.Context, question, reply string) {
	if rt.recorder == nil || strings.TrimSpace(question) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := rt.recorder.AppendTurns(ctx,
		storage.Turn{Role: answer.RoleUser, Content: question},
		storage.Turn{Role: answer.RoleAssistant, Content: reply},
	)
	if err != nil {
		rt.logger.Warn("recording conversation", "error", err)
	}
}
