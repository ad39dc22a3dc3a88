package vecdb

import (
	"path/filepath"
	"testing"

	"github.com/jefflaplante/vecdb/internal/dist"
)

func approxEqual32(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "col")
	params := HNSWParams{M: 16, M0: 32, EfConstruction: 100, UseDiversity: true, Seed: 123, LevelMult: 1.0}

	c, err := Create(dir, Options{Dim: 4, Metric: L2, HNSWParams: params})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Upsert("u1", []float32{1, 0, 0, 0}, nil)
	c.Upsert("u2", []float32{0, 1, 0, 0}, nil)
	c.Upsert("u3", []float32{0, 0, 1, 0}, nil)
	c.Upsert("u4", []float32{0, 0, 0, 1}, nil)

	if err := c.BuildIndex(); err != nil {
		t.Fatalf("build index: %v", err)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	query := []float32{0.9, 0.1, 0, 0}
	got, err := reopened.Search(query, 3, 50)
	if err != nil {
		t.Fatalf("search after reopen: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected results")
	}
	if got[0].ID != "u1" {
		t.Fatalf("top-1 id = %q, want u1", got[0].ID)
	}
	if !approxEqual32(got[0].Distance, 0.02, 1e-6) {
		t.Fatalf("top-1 distance = %v, want 0.02", got[0].Distance)
	}
}

func TestTombstoneRevival(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, Options{Dim: 2, Metric: L2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	slot0, err := c.Upsert("u1", []float32{1, 2}, nil)
	if err != nil {
		t.Fatalf("upsert u1: %v", err)
	}
	if _, err := c.Upsert("u2", []float32{3, 4}, nil); err != nil {
		t.Fatalf("upsert u2: %v", err)
	}

	if !c.Remove("u1") {
		t.Fatalf("remove u1 should return true")
	}
	if c.Contains("u1") {
		t.Fatalf("u1 should not be contained after removal")
	}

	revivedSlot, err := c.Upsert("u1", []float32{9, 9}, nil)
	if err != nil {
		t.Fatalf("revive u1: %v", err)
	}
	if revivedSlot != slot0 {
		t.Fatalf("revived slot = %d, want original slot %d", revivedSlot, slot0)
	}
}

func TestSearchWithoutIndexFails(t *testing.T) {
	dir := t.TempDir()
	c, _ := Create(dir, Options{Dim: 2, Metric: L2})
	c.Upsert("a", []float32{1, 1}, nil)

	_, err := c.Search([]float32{1, 1}, 1, 10)
	if err == nil {
		t.Fatalf("expected IndexNotReady error")
	}
	if !Is(err, KindIndexNotReady) {
		t.Fatalf("expected KindIndexNotReady, got %v", err)
	}
}

func TestFilteredSearchWorksWithoutIndex(t *testing.T) {
	dir := t.TempDir()
	c, _ := Create(dir, Options{Dim: 2, Metric: L2})

	for i := 0; i < 10; i++ {
		cluster := "1"
		if i%2 == 1 {
			cluster = "2"
		}
		id := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}[i]
		c.Upsert(id, []float32{float32(i), float32(i)}, map[string]string{"cluster": cluster})
	}

	got, err := c.SearchFiltered([]float32{0, 0}, 100, 10, &MetadataFilter{Key: "cluster", Value: "2"})
	if err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len(got) = %d, want 5", len(got))
	}
	for _, r := range got {
		if r.Metadata["cluster"] != "2" {
			t.Fatalf("result %v does not match filter", r)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Fatalf("filtered results not sorted ascending: %v", got)
		}
	}
}

func TestMutationDropsIndex(t *testing.T) {
	dir := t.TempDir()
	c, _ := Create(dir, Options{Dim: 2, Metric: L2})
	c.Upsert("a", []float32{1, 1}, nil)
	c.BuildIndex()

	if _, err := c.Search([]float32{1, 1}, 1, 10); err != nil {
		t.Fatalf("search before mutation: %v", err)
	}

	c.Upsert("b", []float32{2, 2}, nil)
	if _, err := c.Search([]float32{1, 1}, 1, 10); err == nil {
		t.Fatalf("expected index to be dropped after upsert")
	}
}

func TestCosineEquivalenceOnNormalizedVectors(t *testing.T) {
	dir := t.TempDir()
	c, _ := Create(dir, Options{Dim: 3, Metric: Cosine, HNSWParams: DefaultHNSWParams()})

	raw := map[string][]float32{
		"a": {3, 0, 0},
		"b": {0, 4, 0},
		"c": {1, 1, 1},
	}
	for id, v := range raw {
		normalized := append([]float32(nil), v...)
		dist.NormalizeInplace(normalized)
		c.Upsert(id, normalized, nil)
	}
	c.BuildIndex()

	query := append([]float32(nil), []float32{2, 1, 0}...)
	dist.NormalizeInplace(query)

	cosineResults, err := c.Search(query, 3, 50)
	if err != nil {
		t.Fatalf("cosine search: %v", err)
	}

	l2Col, _ := Create(t.TempDir(), Options{Dim: 3, Metric: L2, HNSWParams: DefaultHNSWParams()})
	for id, v := range raw {
		normalized := append([]float32(nil), v...)
		dist.NormalizeInplace(normalized)
		l2Col.Upsert(id, normalized, nil)
	}
	l2Col.BuildIndex()
	l2Results, err := l2Col.Search(query, 3, 50)
	if err != nil {
		t.Fatalf("l2 search: %v", err)
	}

	if len(cosineResults) != len(l2Results) {
		t.Fatalf("result count mismatch: %d vs %d", len(cosineResults), len(l2Results))
	}
	for i := range cosineResults {
		if cosineResults[i].ID != l2Results[i].ID {
			t.Fatalf("order mismatch at %d: %q vs %q", i, cosineResults[i].ID, l2Results[i].ID)
		}
	}
}

func TestCreateRejectsZeroDim(t *testing.T) {
	if _, err := Create(t.TempDir(), Options{Dim: 0}); err == nil {
		t.Fatalf("expected error for dim=0")
	}
}
