// Package semantic answers questions by retrieval-augmented generation over
// the document index. It always produces an envelope.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/composer"
	"github.com/kalambet/uniguide/internal/llm"
	"github.com/kalambet/uniguide/internal/retrieval"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 3

// Retriever finds the chunks nearest to a query.
type Retriever interface {
	Ready() bool
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ScoredChunk, error)
}

// Strategy is the retrieval-augmented answering path.
type Strategy struct {
	retriever Retriever
	gen       llm.Generator
	tr        llm.Translator
	composer  *composer.Composer
	topK      int
	logger    *slog.Logger
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithTopK sets how many chunks are retrieved. Values <= 0 are ignored.
func WithTopK(k int) Option {
	return func(s *Strategy) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithComposer replaces the default prompt composer.
func WithComposer(c *composer.Composer) Option {
	return func(s *Strategy) {
		if c != nil {
			s.composer = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Strategy) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Strategy.
func New(r Retriever, gen llm.Generator, tr llm.Translator, opts ...Option) *Strategy {
	s := &Strategy{
		retriever: r,
		gen:       gen,
		tr:        tr,
		composer:  composer.New(0),
		topK:      DefaultTopK,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Attempt answers query from the retrieved context. Without an index it
// returns guidance; when anything between embedding and generation fails it
// returns an apology, except that an unavailable generator yields the
// fallback guidance text. A failed back-translation yields the English
// answer. Follow-ups are left for the router to sample.
func (s *Strategy) Attempt(ctx context.Context, query, lang string, history []answer.Turn) (env answer.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("semantic attempt panicked", "panic", fmt.Sprint(r))
			env = answer.Apology()
		}
	}()

	if !s.retriever.Ready() {
		return answer.Guidance()
	}

	english := query
	if llm.NeedsTranslation(lang) {
		t, err := s.tr.Translate(ctx, query, lang, answer.DefaultLanguage)
		if err != nil {
			s.logger.Warn("translating query", "lang", lang, "error", err)
			return answer.Apology()
		}
		english = t
	}

	chunks, err := s.retriever.Retrieve(ctx, english, s.topK)
	switch {
	case errors.Is(err, retrieval.ErrIndexUnavailable):
		return answer.Guidance()
	case errors.Is(err, retrieval.ErrDimensionMismatch):
		s.logger.Error("query embedding does not match index", "error", err)
		return answer.Apology()
	case err != nil:
		s.logger.Warn("retrieving context", "error", err)
		return answer.Apology()
	}

	prompt := s.composer.Compose(english, chunks, history)
	text, err := s.gen.Generate(ctx, prompt)
	switch {
	case errors.Is(err, llm.ErrGenerationUnavailable):
		// Canned guidance goes through back-translation like a real answer.
		s.logger.Warn("generation unavailable, using fallback text", "error", err)
		text = answer.GenerationFallbackText
	case err != nil:
		s.logger.Warn("generating answer", "error", err)
		return answer.Apology()
	}
	text = strings.TrimSpace(text)

	if llm.NeedsTranslation(lang) {
		t, err := s.tr.Translate(ctx, text, answer.DefaultLanguage, lang)
		if err != nil {
			s.logger.Warn("translating answer, returning English", "lang", lang, "error", err)
		} else {
			text = t
		}
	}

	s.logger.Debug("semantic answer", "chunks", len(chunks))
	return answer.Envelope{Success: true, Text: text}
}
