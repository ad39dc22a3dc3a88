package hnsw

// cand is a scored slot used by both the candidate and result heaps during
// layer search.
type cand struct {
	slot int
	dist float32
}

// minCandHeap pops the nearest candidate first; used to drive best-first
// expansion.
type minCandHeap []cand

func (h minCandHeap) Len() int            { return len(h) }
func (h minCandHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minCandHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minCandHeap) Push(x interface{}) { *h = append(*h, x.(cand)) }
func (h *minCandHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxCandHeap keeps the current worst-of-the-best at the root so it can be
// evicted in O(log ef) when a closer candidate arrives.
type maxCandHeap []cand

func (h maxCandHeap) Len() int            { return len(h) }
func (h maxCandHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxCandHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxCandHeap) Push(x interface{}) { *h = append(*h, x.(cand)) }
func (h *maxCandHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
