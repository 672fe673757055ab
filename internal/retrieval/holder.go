package retrieval

import (
	"errors"
	"sync/atomic"
)

// Holder publishes the index used for serving. Reindexing builds and
// persists a complete Index before swapping it in; searches in flight keep
// the Index they started with.
type Holder struct {
	current atomic.Pointer[Index]
}

// Current returns the serving index, or nil.
func (h *Holder) Current() *Index {
	return h.current.Load()
}

// Ready reports whether a non-empty index is being served.
func (h *Holder) Ready() bool {
	return h.current.Load().Len() > 0
}

// Swap installs x and returns the previous index.
func (h *Holder) Swap(x *Index) *Index {
	return h.current.Swap(x)
}

// Clear stops serving any index.
func (h *Holder) Clear() {
	h.current.Store(nil)
}

// LoadFile loads the index at path and serves it. A missing file clears the
// holder and is not an error.
func (h *Holder) LoadFile(path string) error {
	x, err := Load(path)
	if errors.Is(err, ErrNoIndex) {
		h.Clear()
		return nil
	}
	if err != nil {
		return err
	}
	h.Swap(x)
	return nil
}
