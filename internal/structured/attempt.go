package structured

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/llm"
	"github.com/kalambet/uniguide/internal/storage"
)

// QueryRunner executes a validated statement without write access.
type QueryRunner interface {
	QueryReadOnly(ctx context.Context, stmt string) (storage.Table, error)
}

var errNoRows = errors.New("query returned no rows")

// Strategy answers questions that map onto the universities table.
type Strategy struct {
	gen    llm.Generator
	tr     llm.Translator
	db     QueryRunner
	logger *slog.Logger
}

// New returns a Strategy. A nil logger uses slog.Default.
func New(gen llm.Generator, tr llm.Translator, db QueryRunner, logger *slog.Logger) *Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{gen: gen, tr: tr, db: db, logger: logger}
}

// Attempt tries to answer query, written in lang, from the table. Every
// failure, including a model refusal or an empty result, is a Miss.
func (s *Strategy) Attempt(ctx context.Context, query, lang string) (res answer.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = answer.MissBecause("panic", fmt.Errorf("%v", r))
		}
		if m, ok := res.(answer.Miss); ok {
			s.logger.Debug("structured attempt missed", "reason", m.Reason)
		}
	}()

	english := query
	if llm.NeedsTranslation(lang) {
		t, err := s.tr.Translate(ctx, query, lang, answer.DefaultLanguage)
		if err != nil {
			return answer.MissBecause("translate query", err)
		}
		english = t
	}

	raw, err := s.gen.Generate(ctx, BuildPrompt(english))
	if err != nil {
		return answer.MissBecause("generate statement", err)
	}

	stmt := Normalize(raw)
	if err := Validate(stmt); err != nil {
		return answer.MissBecause("validate statement", err)
	}

	table, err := s.db.QueryReadOnly(ctx, stmt)
	if err != nil {
		return answer.MissBecause("execute statement", err)
	}
	if len(table.Rows) == 0 {
		return answer.MissBecause("execute statement", errNoRows)
	}

	text := FormatTable(table)
	if llm.NeedsTranslation(lang) {
		t, err := s.tr.Translate(ctx, text, answer.DefaultLanguage, lang)
		if err != nil {
			return answer.MissBecause("translate answer", err)
		}
		text = t
	}

	s.logger.Debug("structured answer", "statement", stmt, "rows", len(table.Rows))
	return answer.Hit{Envelope: answer.Envelope{Success: true, Text: text}}
}
