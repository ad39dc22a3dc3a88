// Package bruteforce implements exact top-k nearest-neighbor search via a
// bounded max-heap. It serves as the recall oracle in tests and as the
// fallback path for metadata-filtered queries.
package bruteforce

import (
	"container/heap"

	"github.com/jefflaplante/vecdb/internal/dist"
	"github.com/jefflaplante/vecdb/store"
)

// Result is a single scored hit, lower Distance is closer.
type Result struct {
	Slot     int
	Distance float32
}

// resultHeap is a max-heap on Distance so the worst candidate sits at the
// root and can be evicted in O(log k) when a better one arrives.
type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Filter reports whether a slot's metadata satisfies a predicate. The
// collection facade supplies one for filtered queries; Search passes nil
// for an unfiltered scan.
type Filter func(meta map[string]string) bool

// Search walks every alive slot in s, scores it against q under metric, and
// returns the k closest sorted ascending by distance. If filter is
// non-nil, only slots whose metadata satisfies it are considered.
func Search(s *store.Store, metric dist.Metric, q []float32, k int, filter Filter) []Result {
	if k <= 0 || len(q) != s.Dim() {
		return nil
	}

	h := &resultHeap{}
	n := s.Size()
	for i := 0; i < n; i++ {
		v := s.GetPtr(i)
		if v == nil {
			continue
		}
		if filter != nil {
			meta, _ := s.MetadataAt(i)
			if !filter(meta) {
				continue
			}
		}
		d := dist.Distance(metric, q, v)
		if h.Len() < k {
			heap.Push(h, Result{Slot: i, Distance: d})
		} else if d < (*h)[0].Distance {
			heap.Pop(h)
			heap.Push(h, Result{Slot: i, Distance: d})
		}
	}

	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Result)
	}
	return out
}
