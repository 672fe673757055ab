package retrieval

import (
	"context"
	"fmt"
)

// ScoredChunk is a retrieved chunk with its distance from the query.
type ScoredChunk struct {
	Chunk
	Distance float32
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder *Embedder
	holder   *Holder
}

// NewRetriever creates a Retriever over the index published by holder.
func NewRetriever(embedder *Embedder, holder *Holder) *Retriever {
	return &Retriever{embedder: embedder, holder: holder}
}

// Ready reports whether a non-empty index is loaded.
func (r *Retriever) Ready() bool {
	return r.holder.Ready()
}

// Retrieve embeds the query and returns the topK nearest chunks, nearest
// first. It fails with ErrIndexUnavailable when no index is loaded.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	// Pin one index for the whole call; a concurrent reindex may swap it.
	x := r.holder.Current()
	if x.Len() == 0 {
		return nil, ErrIndexUnavailable
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := x.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	out := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		c, ok := x.Chunk(h.ChunkID)
		if !ok {
			return nil, fmt.Errorf("search returned chunk %d outside index of %d rows", h.ChunkID, x.Len())
		}
		out = append(out, ScoredChunk{Chunk: c, Distance: h.Distance})
	}
	return out, nil
}
