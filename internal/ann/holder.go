package ann

import (
	"sync/atomic"
)

// Holder carries the currently loaded index and allows hot-swapping it while
// searches are in flight. The zero value holds no index; searches against an
// empty Holder return no matches so retrieval degrades to lexical-only until
// an index is built and loaded.
type Holder struct {
	current atomic.Pointer[Flat]
}

// Swap installs f as the current index. A nil f unloads the index.
func (h *Holder) Swap(f *Flat) {
	h.current.Store(f)
}

// Loaded reports whether an index is currently installed.
func (h *Holder) Loaded() bool {
	return h.current.Load() != nil
}

// Search queries the current index. With no index loaded it returns
// (nil, nil): absence of an artifact is a degraded mode, not an error.
func (h *Holder) Search(query []float32, model string, k int) ([]Match, error) {
	f := h.current.Load()
	if f == nil {
		return nil, nil
	}
	return f.Search(query, model, k)
}
