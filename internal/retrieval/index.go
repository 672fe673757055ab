package retrieval

import (
	"container/heap"
	"fmt"
	"math"
)

// Chunk is a segment of a source document. ID is the chunk's position in
// the index and the only key joining it to its vector.
type Chunk struct {
	ID          int
	Text        string
	SourceDocID string
}

// Neighbor is a search hit.
type Neighbor struct {
	ChunkID  int
	Distance float32
}

// Index is an immutable exact nearest-neighbor index under Euclidean
// distance. Row i holds Chunk i and its vector; the two are never stored
// apart.
type Index struct {
	dim     int
	chunks  []Chunk
	vectors [][]float32
}

// Build creates an Index from chunks and their vectors, paired by position.
// Chunk IDs are rewritten to positions. Every vector must have the same
// non-zero length.
func Build(chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("building index: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	x := &Index{
		chunks:  make([]Chunk, len(chunks)),
		vectors: make([][]float32, len(vectors)),
	}
	for i, v := range vectors {
		if i == 0 {
			if len(v) == 0 {
				return nil, fmt.Errorf("building index: vector 0 is empty")
			}
			x.dim = len(v)
		}
		if len(v) != x.dim {
			return nil, fmt.Errorf("building index: vector %d has %d dimensions, want %d: %w",
				i, len(v), x.dim, ErrDimensionMismatch)
		}
		vec := make([]float32, len(v))
		copy(vec, v)
		x.vectors[i] = vec

		c := chunks[i]
		c.ID = i
		x.chunks[i] = c
	}
	return x, nil
}

// Len returns the number of rows.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.chunks)
}

// Dimension returns the vector length, 0 for an empty index.
func (x *Index) Dimension() int {
	if x == nil {
		return 0
	}
	return x.dim
}

// Chunk returns the chunk at position id.
func (x *Index) Chunk(id int) (Chunk, bool) {
	if x == nil || id < 0 || id >= len(x.chunks) {
		return Chunk{}, false
	}
	return x.chunks[id], true
}

// Search returns up to k nearest rows ordered by ascending distance, ties
// broken by ascending chunk ID. An empty index yields no results.
func (x *Index) Search(query []float32, k int) ([]Neighbor, error) {
	if x.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(query), x.dim, ErrDimensionMismatch)
	}

	h := &candidateHeap{}
	for id, v := range x.vectors {
		c := candidate{id: id, dist: squaredL2(query, v)}
		if h.Len() < k {
			heap.Push(h, c)
		} else if c.closerThan((*h)[0]) {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}

	out := make([]Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		c := heap.Pop(h).(candidate)
		out[i] = Neighbor{ChunkID: c.id, Distance: float32(math.Sqrt(c.dist))}
	}
	return out, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

type candidate struct {
	id   int
	dist float64
}

func (c candidate) closerThan(o candidate) bool {
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	return c.id < o.id
}

// candidateHeap keeps the worst retained candidate at the root.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[j].closerThan(h[i]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
