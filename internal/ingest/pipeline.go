package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/uniguide/internal/chunker"
	"github.com/kalambet/uniguide/internal/corpus"
	"github.com/kalambet/uniguide/internal/retrieval"
)

// Report summarizes a reindex run.
type Report struct {
	ChunkCount     int `json:"chunks"`
	DocumentCount  int `json:"documents"`
	FilesProcessed int `json:"files"`
}

// Message is the human-readable outcome of a corpus reindex.
func (r Report) Message() string {
	if r.ChunkCount == 0 {
		return "No text data found for indexing"
	}
	return fmt.Sprintf("Successfully indexed %d chunks from %d files", r.ChunkCount, r.DocumentCount)
}

// BatchEmbedder embeds texts, returning one vector per text in order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentSource supplies the corpus documents and the number of files read.
type DocumentSource interface {
	Load(ctx context.Context) ([]corpus.Document, int, error)
}

// Pipeline rebuilds the semantic index from documents. Runs are serialized;
// the serving index is swapped only after the new one has been persisted.
type Pipeline struct {
	chunker   *chunker.Chunker
	embedder  BatchEmbedder
	holder    *retrieval.Holder
	indexPath string
	source    DocumentSource
	logger    *slog.Logger

	mu sync.Mutex
}

// NewPipeline creates a Pipeline writing the index to indexPath and
// publishing it through holder.
func NewPipeline(c *chunker.Chunker, e BatchEmbedder, holder *retrieval.Holder, indexPath string, source DocumentSource) *Pipeline {
	return &Pipeline{
		chunker:   c,
		embedder:  e,
		holder:    holder,
		indexPath: indexPath,
		source:    source,
		logger:    slog.Default(),
	}
}

// Reindex chunks docs, embeds every chunk and replaces the index. Without
// any non-empty document it removes the index and reports zero counts.
func (p *Pipeline) Reindex(ctx context.Context, docs []corpus.Document) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reindexLocked(ctx, docs)
}

func (p *Pipeline) reindexLocked(ctx context.Context, docs []corpus.Document) (Report, error) {
	start := time.Now()

	var chunks []retrieval.Chunk
	var report Report
	for _, doc := range docs {
		parts := p.chunker.Split(doc.Text)
		if len(parts) == 0 {
			continue
		}
		report.DocumentCount++
		for _, part := range parts {
			chunks = append(chunks, retrieval.Chunk{ID: len(chunks), Text: part, SourceDocID: doc.ID})
		}
	}

	if len(chunks) == 0 {
		if err := retrieval.RemoveFile(p.indexPath); err != nil {
			return Report{}, err
		}
		p.holder.Clear()
		p.logger.Info("corpus empty, index removed")
		return Report{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Report{}, fmt.Errorf("embedding chunks: %w", err)
	}

	idx, err := retrieval.Build(chunks, vectors)
	if err != nil {
		return Report{}, err
	}
	if err := idx.Save(p.indexPath); err != nil {
		return Report{}, fmt.Errorf("saving index: %w", err)
	}
	p.holder.Swap(idx)

	report.ChunkCount = len(chunks)
	p.logger.Info("index rebuilt",
		"chunks", report.ChunkCount,
		"documents", report.DocumentCount,
		"dimension", idx.Dimension(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return report, nil
}

// ReindexCorpus loads the corpus and rebuilds the index from it.
func (p *Pipeline) ReindexCorpus(ctx context.Context) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	docs, files, err := p.source.Load(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("loading corpus: %w", err)
	}
	report, err := p.reindexLocked(ctx, docs)
	if err != nil {
		return Report{}, err
	}
	report.FilesProcessed = files
	return report, nil
}

// Clear removes the persisted index and stops serving it.
func (p *Pipeline) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := retrieval.RemoveFile(p.indexPath); err != nil {
		return err
	}
	p.holder.Clear()
	return nil
}
