// Package composer assembles the grounded-generation prompt from retrieved
// chunks, recent questions and the user query.
package composer

import (
	"log/slog"
	"strings"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/retrieval"
)

const (
	defaultMaxContextTokens = 3000

	// DefaultHistoryTurns is how many earlier user questions are carried
	// into the prompt.
	DefaultHistoryTurns = 3
)

const promptTemplate = `You are a helpful university and visa information assistant. Provide a concise and informative answer based on the context provided. If the answer isn't in the context, provide general guidance about university admissions and visa processes.

Context: {context}

Question: {question}

Instructions:
- Be helpful and informative
- If specific information isn't available, provide general guidance
- Keep responses concise but comprehensive
- Focus on university admissions, programs, and visa requirements

Answer:`

// Composer builds prompts. MaxContextTokens is the expected size of the
// retrieved context; exceeding it is logged, never truncated.
type Composer struct {
	MaxContextTokens int
	HistoryTurns     int
	Logger           *slog.Logger
}

// New creates a Composer with the given token budget for retrieved context.
// If maxContextTokens <= 0, the default (3000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{
		MaxContextTokens: maxContextTokens,
		HistoryTurns:     DefaultHistoryTurns,
		Logger:           slog.Default(),
	}
}

// BudgetFor returns a context budget that holds k chunks of chunkSize
// characters under the EstimateTokens heuristic.
func BudgetFor(chunkSize, k int) int {
	return chunkSize * k
}

// Compose returns the full prompt for question given the retrieved chunks
// (nearest first) and the conversation so far.
func (c *Composer) Compose(question string, chunks []retrieval.ScoredChunk, history []answer.Turn) string {
	n := c.HistoryTurns
	if n <= 0 {
		n = DefaultHistoryTurns
	}
	return Prompt(HistoryContext(history, n), c.RetrievedContext(chunks), question)
}

// RetrievedContext joins chunk texts with a blank line, in the order given.
// Every chunk is kept; a context larger than MaxContextTokens is only
// reported.
func (c *Composer) RetrievedContext(chunks []retrieval.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		text := strings.TrimSpace(ch.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	out := strings.Join(parts, "\n\n")

	if tokens := EstimateTokens(out); c.MaxContextTokens > 0 && tokens > c.MaxContextTokens {
		logger := c.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("retrieved context exceeds budget",
			"tokens", tokens, "budget", c.MaxContextTokens, "chunks", len(parts))
	}
	return out
}

// HistoryContext renders up to n of the most recent user turns as
// "Previous Q: <content>" lines, oldest first. Assistant turns are ignored.
func HistoryContext(turns []answer.Turn, n int) string {
	if n <= 0 {
		return ""
	}
	var picked []string
	for i := len(turns) - 1; i >= 0 && len(picked) < n; i-- {
		t := turns[i]
		if t.Role != answer.RoleUser {
			continue
		}
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		picked = append(picked, "Previous Q: "+content)
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return strings.Join(picked, "\n")
}

// Prompt fills the answer template. History, when present, precedes the
// retrieved context separated by a blank line.
func Prompt(history, context, question string) string {
	full := context
	if history != "" {
		full = history + "\n\n" + context
	}
	r := strings.NewReplacer("{context}", full, "{question}", strings.TrimSpace(question))
	return r.Replace(promptTemplate)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
