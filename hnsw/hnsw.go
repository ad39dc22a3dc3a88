// Package hnsw implements the hierarchical navigable small-world graph: a
// layered proximity index built over the stable slot indices of a
// store.Store. Construction uses greedy descent plus a bounded best-first
// layer search; search funnels the same way down to layer 0.
package hnsw

import (
	"container/heap"
	"math"
	"sort"
	"sync"

	"github.com/jefflaplante/vecdb/internal/dist"
	"github.com/jefflaplante/vecdb/internal/visited"
	"github.com/jefflaplante/vecdb/store"
)

// Result is a single scored hit, lower Distance is closer.
type Result struct {
	Slot     int
	Distance float32
}

// node is the per-slot graph record. Level -1 means the slot has never been
// inserted into the graph (including a tombstoned slot, since the graph is
// always rebuilt from scratch against the current alive set).
type node struct {
	level int
	links [][]int // links[l] is the neighbor list at layer l, l in [0, level]
}

// HNSW is a proximity graph over a store.Store's slots. It is built with
// Insert calls during a single construction pass and is not safe for
// concurrent mutation; concurrent Search calls are safe as long as nothing
// is inserting.
type HNSW struct {
	store  *store.Store
	metric dist.Metric
	params Params

	nodes      []node
	entryPoint int
	hasEntry   bool
	maxLevel   int

	rng *lcg
	vis sync.Pool // of *visited.Set, one per in-flight layer search
}

// New returns an empty graph over s, scored with metric, using params.
func New(s *store.Store, metric dist.Metric, params Params) *HNSW {
	params = params.withDefaults()
	return &HNSW{
		store:      s,
		metric:     metric,
		params:     params,
		entryPoint: 0,
		maxLevel:   -1,
		rng:        newLCG(params.Seed),
		vis:        sync.Pool{New: func() any { return visited.New() }},
	}
}

func (h *HNSW) distTo(slot int, q []float32) float32 {
	v := h.store.GetPtr(slot)
	if v == nil {
		return float32(math.Inf(1))
	}
	return dist.Distance(h.metric, q, v)
}

func (h *HNSW) pairDist(a, b int) float32 {
	va := h.store.GetPtr(a)
	vb := h.store.GetPtr(b)
	if va == nil || vb == nil {
		return float32(math.Inf(1))
	}
	return dist.Distance(h.metric, va, vb)
}

func (h *HNSW) ensureNodeCapacity(slot int) {
	for len(h.nodes) <= slot {
		h.nodes = append(h.nodes, node{level: -1})
	}
}

func (h *HNSW) nodeLevel(slot int) int {
	if slot < 0 || slot >= len(h.nodes) {
		return -1
	}
	return h.nodes[slot].level
}

// searchLevel runs best-first search at layer l starting from entry,
// maintaining a candidate min-heap and a bounded (size <= ef) result
// max-heap, and returns the results sorted ascending by distance.
func (h *HNSW) searchLevel(q []float32, entry int, level int, ef int) []Result {
	if ef <= 0 || !h.store.IsAlive(entry) {
		return nil
	}

	vis := h.vis.Get().(*visited.Set)
	defer h.vis.Put(vis)
	vis.Start(h.store.Size())

	entryDist := h.distTo(entry, q)
	candidates := &minCandHeap{{slot: entry, dist: entryDist}}
	results := &maxCandHeap{{slot: entry, dist: entryDist}}
	vis.Set(entry)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(cand)
		if results.Len() > 0 && c.dist > (*results)[0].dist {
			break
		}
		if c.slot >= len(h.nodes) {
			continue
		}
		n := h.nodes[c.slot]
		if n.level < level {
			continue
		}
		for _, nb := range n.links[level] {
			if !h.store.IsAlive(nb) {
				continue
			}
			if vis.TestAndSet(nb) {
				continue
			}
			d := h.distTo(nb, q)
			if results.Len() < ef {
				heap.Push(candidates, cand{slot: nb, dist: d})
				heap.Push(results, cand{slot: nb, dist: d})
			} else if d < (*results)[0].dist {
				heap.Push(candidates, cand{slot: nb, dist: d})
				heap.Pop(results)
				heap.Push(results, cand{slot: nb, dist: d})
			}
		}
	}

	out := make([]Result, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		c := heap.Pop(results).(cand)
		out[i] = Result{Slot: c.slot, Distance: c.dist}
	}
	return out
}

// greedyDescent narrows to a single nearest entry point at layer l via an
// ef=1 layer search, falling back to entry if the layer search finds
// nothing (a dead or otherwise unreachable entry point).
func (h *HNSW) greedyDescent(q []float32, entry int, level int) int {
	r := h.searchLevel(q, entry, level, 1)
	if len(r) == 0 {
		return entry
	}
	return r[0].Slot
}

// Insert adds slot into the graph. It is a no-op if the slot is not
// currently alive in the backing store.
func (h *HNSW) Insert(slot int) {
	if !h.store.IsAlive(slot) {
		return
	}
	h.ensureNodeCapacity(slot)

	level := randomLevel(h.rng, h.params.LevelMult)
	links := make([][]int, level+1)
	for l := range links {
		links[l] = nil
	}

	if !h.hasEntry {
		h.nodes[slot] = node{level: level, links: links}
		h.entryPoint = slot
		h.maxLevel = level
		h.hasEntry = true
		return
	}

	v := h.store.GetPtr(slot)
	h.nodes[slot] = node{level: level, links: links}

	ep := h.entryPoint
	for l := h.maxLevel; l >= level+1; l-- {
		ep = h.greedyDescent(v, ep, l)
	}

	top := level
	if h.maxLevel < top {
		top = h.maxLevel
	}
	for l := top; l >= 0; l-- {
		candidates := h.searchLevel(v, ep, l, h.params.EfConstruction)
		candidates = removeSlot(candidates, slot)
		if len(candidates) > 0 {
			ep = candidates[0].Slot
		}

		selected := h.selectNeighbors(slot, candidates, h.params.maxDegree(l))
		for _, n := range selected {
			if h.nodeLevel(n.Slot) >= l {
				h.connectBidirectional(slot, n.Slot, l)
			}
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = slot
	}
}

func removeSlot(results []Result, slot int) []Result {
	out := results[:0]
	for _, r := range results {
		if r.Slot != slot {
			out = append(out, r)
		}
	}
	return out
}

// selectNeighbors applies the diversity heuristic (with its fill step) or
// the plain nearest-M selector to an ascending-by-distance-to-base
// candidate list, per params.UseDiversity.
func (h *HNSW) selectNeighbors(base int, candidates []Result, m int) []Result {
	if !h.params.UseDiversity {
		return nearestM(candidates, m)
	}
	return h.selectDiverse(base, candidates, m)
}

func nearestM(candidates []Result, m int) []Result {
	if len(candidates) <= m {
		return candidates
	}
	return candidates[:m]
}

func (h *HNSW) selectDiverse(base int, candidates []Result, m int) []Result {
	selected := make([]Result, 0, m)
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		ok := true
		for _, s := range selected {
			if h.pairDist(c.Slot, base) >= h.pairDist(c.Slot, s.Slot) {
				ok = false
				break
			}
		}
		if ok {
			selected = append(selected, c)
		}
	}
	if len(selected) >= m {
		return selected
	}

	chosen := make(map[int]bool, len(selected))
	for _, s := range selected {
		chosen[s.Slot] = true
	}
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		if c.Slot == base || chosen[c.Slot] {
			continue
		}
		selected = append(selected, c)
		chosen[c.Slot] = true
	}
	return selected
}

// connectBidirectional adds the undirected edge (a,b) at level l, then
// prunes both endpoints back under their degree cap.
func (h *HNSW) connectBidirectional(a, b int, level int) {
	h.nodes[a].links[level] = append(h.nodes[a].links[level], b)
	h.nodes[b].links[level] = append(h.nodes[b].links[level], a)
	h.pruneNeighbors(a, level)
	h.pruneNeighbors(b, level)
}

// pruneNeighbors re-selects node's neighbor list at level down to the
// degree cap, if it currently exceeds it.
func (h *HNSW) pruneNeighbors(slot int, level int) {
	n := &h.nodes[slot]
	maxDeg := h.params.maxDegree(level)
	links := n.links[level]
	if len(links) <= maxDeg {
		return
	}

	candidates := make([]Result, len(links))
	for i, nb := range links {
		candidates[i] = Result{Slot: nb, Distance: h.pairDist(slot, nb)}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })

	kept := h.selectNeighbors(slot, candidates, maxDeg)
	out := make([]int, len(kept))
	for i, k := range kept {
		out[i] = k.Slot
	}
	n.links[level] = out
}

// Search runs an approximate k-NN query. It returns an empty result set if
// the graph has no entry point, k is 0, or q has the wrong dimension.
func (h *HNSW) Search(q []float32, k int, efSearch int) []Result {
	if k <= 0 || !h.hasEntry || len(q) != h.store.Dim() {
		return nil
	}

	ep := h.entryPoint
	for l := h.maxLevel; l >= 1; l-- {
		ep = h.greedyDescent(q, ep, l)
	}

	ef := efSearch
	if ef < k {
		ef = k
	}
	results := h.searchLevel(q, ep, 0, ef)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Len returns the number of slots known to the graph (including tombstoned
// and never-inserted ones, up to the highest slot seen).
func (h *HNSW) Len() int { return len(h.nodes) }
