package hnsw

import (
	"fmt"
	"sort"
	"testing"

	"github.com/jefflaplante/vecdb/bruteforce"
	"github.com/jefflaplante/vecdb/internal/dist"
	"github.com/jefflaplante/vecdb/store"
)

// detLCG is a small deterministic generator independent of the package's
// own lcg, used only to synthesize reproducible test datasets.
type detLCG struct{ state uint32 }

func (r *detLCG) next() uint32 {
	r.state = r.state*1664525 + 1013904223
	return r.state
}

func (r *detLCG) float32() float32 {
	return float32(r.next()>>8) / float32(1<<24)
}

func buildDataset(n, dim int, seed uint32) (ids []string, vecs [][]float32) {
	r := &detLCG{state: seed}
	ids = make([]string, n)
	vecs = make([][]float32, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("v%d", i)
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = r.float32()*2 - 1
		}
		vecs[i] = v
	}
	return ids, vecs
}

func buildGraph(ids []string, vecs [][]float32, dim int, params Params) (*store.Store, *HNSW) {
	s := store.New(dim)
	h := New(s, dist.L2, params)
	for i := range ids {
		slot, err := s.Upsert(ids[i], vecs[i], nil)
		if err != nil {
			panic(err)
		}
		h.Insert(slot)
	}
	return s, h
}

func TestInsertSingleNodeBecomesEntry(t *testing.T) {
	s := store.New(2)
	h := New(s, dist.L2, DefaultParams())
	slot, _ := s.Upsert("a", []float32{1, 2}, nil)
	h.Insert(slot)

	if !h.hasEntry || h.entryPoint != slot {
		t.Fatalf("expected slot %d to become entry point", slot)
	}
}

func TestSearchEmptyGraphReturnsEmpty(t *testing.T) {
	s := store.New(2)
	h := New(s, dist.L2, DefaultParams())
	if got := h.Search([]float32{1, 2}, 5, 50); len(got) != 0 {
		t.Fatalf("expected empty result on empty graph, got %v", got)
	}
}

func TestSearchReturnsAscendingSortedResults(t *testing.T) {
	ids, vecs := buildDataset(200, 8, 42)
	_, h := buildGraph(ids, vecs, 8, DefaultParams())

	got := h.Search(vecs[0], 10, 100)
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Fatalf("results not sorted ascending: %v", got)
		}
	}
}

func TestDeterminismSameSeedSameGraph(t *testing.T) {
	ids, vecs := buildDataset(300, 8, 7)
	params := Params{M: 16, M0: 32, EfConstruction: 100, UseDiversity: true, Seed: 123, LevelMult: 1.0}

	_, h1 := buildGraph(ids, vecs, 8, params)
	_, h2 := buildGraph(ids, vecs, 8, params)

	if h1.maxLevel != h2.maxLevel || h1.entryPoint != h2.entryPoint {
		t.Fatalf("graphs diverge: maxLevel %d/%d entry %d/%d", h1.maxLevel, h2.maxLevel, h1.entryPoint, h2.entryPoint)
	}
	if len(h1.nodes) != len(h2.nodes) {
		t.Fatalf("node count diverges: %d vs %d", len(h1.nodes), len(h2.nodes))
	}
	for i := range h1.nodes {
		a, b := h1.nodes[i], h2.nodes[i]
		if a.level != b.level {
			t.Fatalf("slot %d level diverges: %d vs %d", i, a.level, b.level)
		}
		for l := 0; l <= a.level; l++ {
			la, lb := append([]int(nil), a.links[l]...), append([]int(nil), b.links[l]...)
			sort.Ints(la)
			sort.Ints(lb)
			if fmt.Sprint(la) != fmt.Sprint(lb) {
				t.Fatalf("slot %d layer %d adjacency diverges: %v vs %v", i, l, la, lb)
			}
		}
	}
}

func TestRecallAtTenMeetsThreshold(t *testing.T) {
	const n = 2000
	const dim = 16
	ids, vecs := buildDataset(n, dim, 999)

	params := Params{M: 16, M0: 32, EfConstruction: 100, UseDiversity: true, Seed: 123, LevelMult: 1.0}
	s, h := buildGraph(ids, vecs, dim, params)

	qr := &detLCG{state: 31337}
	const numQueries = 30
	const k = 10
	const efSearch = 200

	var totalRecall float64
	for q := 0; q < numQueries; q++ {
		query := make([]float32, dim)
		for d := 0; d < dim; d++ {
			query[d] = qr.float32()*2 - 1
		}

		approx := h.Search(query, k, efSearch)
		exact := bruteforce.Search(s, dist.L2, query, k, nil)

		exactSet := make(map[int]bool, len(exact))
		for _, r := range exact {
			exactSet[r.Slot] = true
		}
		hits := 0
		for _, r := range approx {
			if exactSet[r.Slot] {
				hits++
			}
		}
		totalRecall += float64(hits) / float64(len(exact))
	}

	avgRecall := totalRecall / float64(numQueries)
	if avgRecall < 0.90 {
		t.Fatalf("average recall@10 = %.4f, want >= 0.90", avgRecall)
	}
}

func TestGraphStructuralInvariantOnImport(t *testing.T) {
	ids, vecs := buildDataset(150, 8, 55)
	s, h := buildGraph(ids, vecs, 8, DefaultParams())

	exp := h.Export()
	imported, err := Import(s, dist.L2, DefaultParams(), exp, s.Size())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	for i, n := range imported.nodes {
		for l := 0; l <= n.level; l++ {
			for _, nb := range n.links[l] {
				if imported.nodeLevel(nb) < l {
					t.Fatalf("slot %d layer %d neighbor %d has level %d < %d", i, l, nb, imported.nodeLevel(nb), l)
				}
			}
		}
	}
}

func TestImportRejectsWrongNodeCount(t *testing.T) {
	ids, vecs := buildDataset(10, 4, 1)
	s, h := buildGraph(ids, vecs, 4, DefaultParams())
	exp := h.Export()

	if _, err := Import(s, dist.L2, DefaultParams(), exp, s.Size()+1); err == nil {
		t.Fatalf("expected error on node-count mismatch")
	}
}

func TestDegreeCapRespected(t *testing.T) {
	ids, vecs := buildDataset(500, 8, 17)
	params := DefaultParams()
	_, h := buildGraph(ids, vecs, 8, params)

	for i, n := range h.nodes {
		for l := 0; l <= n.level; l++ {
			max := params.maxDegree(l)
			if len(n.links[l]) > max {
				t.Fatalf("slot %d layer %d degree %d exceeds max %d", i, l, len(n.links[l]), max)
			}
		}
	}
}
