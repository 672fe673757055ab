//go:build integration

package retrieval

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/uniguide/internal/engine"
)

// setupIntegrationEmbedder builds an embedder backed by a running Ollama
// instance. It skips the test if Ollama is not available.
func setupIntegrationEmbedder(t *testing.T) *Embedder {
	t.Helper()

	eng := engine.NewOllamaEngine("http://localhost:11434")
	if !eng.IsRunning(context.Background()) {
		t.Skip("Ollama is not running, skipping integration test")
	}
	return NewEmbedder(eng, "nomic-embed-text", 0)
}

func TestIntegration_RetrieveRelevantChunk(t *testing.T) {
	embedder := setupIntegrationEmbedder(t)
	ctx := context.Background()

	texts := []string{
		"MIT charges 57340 dollars in annual tuition for Computer Science.",
		"Students need an I-20 form to apply for an F-1 visa.",
		"The campus cafeteria serves vegetarian meals every day.",
	}
	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{Text: text, SourceDocID: "university_info.txt"}
	}
	x, err := Build(chunks, vecs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "uniguide.idx")
	if err := x.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var h Holder
	if err := h.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	r := NewRetriever(embedder, &h)
	got, err := r.Retrieve(ctx, "What documents do I need for a student visa?", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0].Text, "F-1") {
		t.Errorf("expected the visa chunk, got %+v", got)
	}
}
