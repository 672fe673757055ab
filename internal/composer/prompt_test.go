package composer

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/retrieval"
)

func scored(texts ...string) []retrieval.ScoredChunk {
	out := make([]retrieval.ScoredChunk, len(texts))
	for i, t := range texts {
		out[i] = retrieval.ScoredChunk{
			Chunk:    retrieval.Chunk{ID: i, Text: t, SourceDocID: "university_info.txt"},
			Distance: float32(i),
		}
	}
	return out
}

func TestRetrievedContext_NearestFirst(t *testing.T) {
	c := New(4000)
	got := c.RetrievedContext(scored("F-1 visas need an I-20.", "MIT is in Cambridge.", "Stanford offers Physics."))

	want := "F-1 visas need an I-20.\n\nMIT is in Cambridge.\n\nStanford offers Physics."
	if got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
}

func TestRetrievedContext_Empty(t *testing.T) {
	c := New(4000)
	if got := c.RetrievedContext(nil); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
	if got := c.RetrievedContext(scored("  ", "")); got != "" {
		t.Errorf("blank chunks should be skipped, got %q", got)
	}
}

func TestRetrievedContext_OverBudgetKeepsAllChunks(t *testing.T) {
	var logs bytes.Buffer
	c := New(0)
	c.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	chunks := scored(
		strings.Repeat("a", 5000),
		strings.Repeat("b", 5000),
		strings.Repeat("c", 5000),
	)
	got := c.RetrievedContext(chunks)

	parts := strings.Split(got, "\n\n")
	if len(parts) != 3 {
		t.Fatalf("chunks in context = %d, want 3", len(parts))
	}
	for i, want := range []string{"a", "b", "c"} {
		if parts[i] != strings.Repeat(want, 5000) {
			t.Errorf("part %d is not the %q chunk", i, want)
		}
	}
	if !strings.Contains(logs.String(), "retrieved context exceeds budget") {
		t.Errorf("expected a budget warning, got logs %q", logs.String())
	}
}

func TestRetrievedContext_BudgetForChunkSize(t *testing.T) {
	var logs bytes.Buffer
	c := New(BudgetFor(6000, 3))
	c.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	got := c.RetrievedContext(scored(strings.Repeat("x", 6000), strings.Repeat("y", 6000), strings.Repeat("z", 6000)))
	if n := strings.Count(got, "\n\n") + 1; n != 3 {
		t.Errorf("chunks in context = %d, want 3", n)
	}
	if logs.Len() != 0 {
		t.Errorf("no warning expected within budget, got %q", logs.String())
	}
}

func TestHistoryContext_LastUserTurns(t *testing.T) {
	turns := []answer.Turn{
		{Role: answer.RoleUser, Content: "q1"},
		{Role: answer.RoleAssistant, Content: "a1"},
		{Role: answer.RoleUser, Content: "q2"},
		{Role: answer.RoleAssistant, Content: "a2"},
		{Role: answer.RoleUser, Content: "q3"},
		{Role: answer.RoleUser, Content: "q4"},
		{Role: answer.RoleAssistant, Content: "a4"},
	}

	got := HistoryContext(turns, 3)
	want := "Previous Q: q2\nPrevious Q: q3\nPrevious Q: q4"
	if got != want {
		t.Errorf("history = %q, want %q", got, want)
	}
}

func TestHistoryContext_NoUserTurns(t *testing.T) {
	turns := []answer.Turn{{Role: answer.RoleAssistant, Content: "hello"}}
	if got := HistoryContext(turns, 3); got != "" {
		t.Errorf("expected empty history, got %q", got)
	}
	if got := HistoryContext(nil, 3); got != "" {
		t.Errorf("expected empty history, got %q", got)
	}
}

func TestPrompt_WithHistory(t *testing.T) {
	p := Prompt("Previous Q: q1", "MIT is in Cambridge.", " Where is MIT? ")

	if !strings.Contains(p, "Context: Previous Q: q1\n\nMIT is in Cambridge.\n\nQuestion: Where is MIT?\n") {
		t.Errorf("unexpected prompt layout:\n%s", p)
	}
	if !strings.Contains(p, "If the answer isn't in the context, provide general guidance") {
		t.Error("prompt must allow falling back to general guidance")
	}
	if !strings.HasSuffix(p, "Answer:") {
		t.Error("prompt should end with the answer cue")
	}
}

func TestPrompt_WithoutHistory(t *testing.T) {
	p := Prompt("", "ctx", "q")
	if !strings.Contains(p, "Context: ctx\n\nQuestion: q") {
		t.Errorf("unexpected prompt layout:\n%s", p)
	}
}

func TestCompose(t *testing.T) {
	c := New(4000)
	history := []answer.Turn{{Role: answer.RoleUser, Content: "Tell me about MIT"}}

	p := c.Compose("What about visas?", scored("F-1 Visa Support is offered."), history)

	for _, want := range []string{"Previous Q: Tell me about MIT", "F-1 Visa Support is offered.", "Question: What about visas?"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
