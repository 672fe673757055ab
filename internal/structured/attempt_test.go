package structured

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/llm"
	"github.com/kalambet/uniguide/internal/storage"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

type tagTranslator struct {
	err   error
	calls []string
}

func (tr *tagTranslator) Translate(_ context.Context, text, src, dst string) (string, error) {
	tr.calls = append(tr.calls, src+">"+dst)
	if tr.err != nil {
		return "", tr.err
	}
	if dst == "en" {
		return "What is the tuition at MIT?", nil
	}
	return "[" + dst + "] " + text, nil
}

type recordingRunner struct {
	table storage.Table
	err   error
	stmts []string
}

func (r *recordingRunner) QueryReadOnly(_ context.Context, stmt string) (storage.Table, error) {
	r.stmts = append(r.stmts, stmt)
	return r.table, r.err
}

func seededStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.InsertRecords(context.Background(), []storage.Record{
		{University: "MIT", Program: "Computer Science", Tuition: 57340, Location: "Cambridge MA", VisaService: "F-1 Visa Support"},
		{University: "Stanford", Program: "Physics", Tuition: 56169, Location: "Stanford CA", VisaService: "F-1 Visa Support"},
	})
	require.NoError(t, err)
	return s
}

func TestAttemptAnswersFromTable(t *testing.T) {
	store := seededStore(t)
	gen := &scriptedGenerator{reply: "```sql\nSELECT tuition FROM universities WHERE university = 'MIT';\n```"}
	s := New(gen, llm.Disabled{}, store, nil)

	res := s.Attempt(context.Background(), "What is the tuition at MIT?", "en")

	hit, ok := res.(answer.Hit)
	require.True(t, ok, "got %#v", res)
	assert.True(t, hit.Envelope.Success)
	assert.Equal(t, "57340", hit.Envelope.Text)
	assert.Empty(t, hit.Envelope.FollowUps)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "User query: What is the tuition at MIT?")
}

func TestAttemptNeverRunsDestructiveStatement(t *testing.T) {
	store := seededStore(t)
	gen := &scriptedGenerator{reply: "DROP TABLE universities;"}
	s := New(gen, llm.Disabled{}, store, nil)

	res := s.Attempt(context.Background(), "delete everything", "en")

	miss, ok := res.(answer.Miss)
	require.True(t, ok)
	assert.ErrorIs(t, miss.Reason, answer.ErrStrategyMiss)
	assert.ErrorIs(t, miss.Reason, ErrValidationRejected)

	n, err := store.CountRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAttemptMisses(t *testing.T) {
	tests := []struct {
		name   string
		gen    *scriptedGenerator
		runner *recordingRunner
		ran    bool
	}{
		{
			name:   "refusal",
			gen:    &scriptedGenerator{reply: RefusalSentinel},
			runner: &recordingRunner{},
		},
		{
			name:   "generator down",
			gen:    &scriptedGenerator{err: llm.ErrGenerationUnavailable},
			runner: &recordingRunner{},
		},
		{
			name:   "execution error",
			gen:    &scriptedGenerator{reply: "SELECT nope FROM universities"},
			runner: &recordingRunner{err: errors.New("no such column: nope")},
			ran:    true,
		},
		{
			name:   "zero rows",
			gen:    &scriptedGenerator{reply: "SELECT tuition FROM universities WHERE university = 'Nowhere'"},
			runner: &recordingRunner{table: storage.Table{Columns: []string{"tuition"}}},
			ran:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.gen, llm.Disabled{}, tt.runner, nil)
			res := s.Attempt(context.Background(), "question", "en")

			miss, ok := res.(answer.Miss)
			require.True(t, ok, "got %#v", res)
			assert.ErrorIs(t, miss.Reason, answer.ErrStrategyMiss)
			assert.Equal(t, tt.ran, len(tt.runner.stmts) > 0)
		})
	}
}

func TestAttemptTranslatesBothWays(t *testing.T) {
	gen := &scriptedGenerator{reply: "SELECT tuition FROM universities WHERE university = 'MIT'"}
	tr := &tagTranslator{}
	runner := &recordingRunner{table: storage.Table{Columns: []string{"tuition"}, Rows: [][]any{{int64(57340)}}}}
	s := New(gen, tr, runner, nil)

	res := s.Attempt(context.Background(), "¿Cuál es la matrícula del MIT?", "es")

	hit, ok := res.(answer.Hit)
	require.True(t, ok)
	assert.Equal(t, "[es] 57340", hit.Envelope.Text)
	assert.Equal(t, []string{"es>en", "en>es"}, tr.calls)
	assert.True(t, strings.Contains(gen.prompts[0], "User query: What is the tuition at MIT?"))
}

func TestAttemptTranslationFailureIsMiss(t *testing.T) {
	gen := &scriptedGenerator{reply: "SELECT 1"}
	s := New(gen, &tagTranslator{err: llm.ErrTranslationUnavailable}, &recordingRunner{}, nil)

	res := s.Attempt(context.Background(), "hola", "es")

	_, ok := res.(answer.Miss)
	assert.True(t, ok)
	assert.Empty(t, gen.prompts)
}

func TestAttemptRecoversPanic(t *testing.T) {
	s := New(&scriptedGenerator{reply: "SELECT tuition FROM universities"}, llm.Disabled{}, nil, nil)

	res := s.Attempt(context.Background(), "question", "en")

	miss, ok := res.(answer.Miss)
	require.True(t, ok)
	assert.ErrorIs(t, miss.Reason, answer.ErrStrategyMiss)
}
