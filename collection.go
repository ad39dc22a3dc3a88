// Package vecdb is a single-node, in-memory vector search engine: a
// tombstone-stable vector store backed by an HNSW proximity graph, with
// snapshot persistence to a local directory.
package vecdb

import (
	"os"
	"sync"

	"github.com/jefflaplante/vecdb/bruteforce"
	"github.com/jefflaplante/vecdb/hnsw"
	"github.com/jefflaplante/vecdb/snapshot"
	"github.com/jefflaplante/vecdb/store"
)

// HNSWParams configures graph construction; see hnsw.Params for field docs.
type HNSWParams = hnsw.Params

// DefaultHNSWParams returns the construction defaults (M=16, M0=32,
// ef_construction=100, diversity on, level_mult=1.0).
func DefaultHNSWParams() HNSWParams { return hnsw.DefaultParams() }

// Options configures a newly created collection.
type Options struct {
	Dim        int
	Metric     Metric
	HNSWParams HNSWParams
}

// Result is a single scored hit from Search, enriched with the id and
// metadata stored at the winning slot.
type Result struct {
	ID       string
	Slot     int
	Distance float32
	Metadata map[string]string
}

// MetadataFilter restricts a search to slots whose metadata has Key mapped
// to Value. A nil filter means unfiltered.
type MetadataFilter struct {
	Key   string
	Value string
}

func (f *MetadataFilter) matches(meta map[string]string) bool {
	if f == nil {
		return true
	}
	return meta[f.Key] == f.Value
}

// Collection is the public facade: a single shared/exclusive lock guards a
// store and an optional graph. Readers (Search) take the shared lock;
// writers (Upsert, Remove, BuildIndex, Save, Load, the Set* methods) take
// the exclusive lock.
type Collection struct {
	mu sync.RWMutex

	dir        string
	dim        int
	metric     Metric
	hnswParams HNSWParams

	store *store.Store
	index *hnsw.HNSW
}

// Create makes dir if absent, writes the manifest immediately, and returns
// a collection with an empty store and no index.
func Create(dir string, opts Options) (*Collection, error) {
	if opts.Dim <= 0 {
		return nil, wrapErr("Create", KindValidation, ErrDimMismatch)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapErr("Create", KindIO, err)
	}

	params := opts.HNSWParams.WithDefaults()
	c := &Collection{
		dir:        dir,
		dim:        opts.Dim,
		metric:     opts.Metric,
		hnswParams: params,
		store:      store.New(opts.Dim),
	}
	if err := c.writeManifest(); err != nil {
		return nil, wrapErr("Create", KindIO, err)
	}
	return c, nil
}

// Open reads the manifest, rebuilds the store from disk, and reattaches
// the graph iff hnsw.bin is present.
func Open(dir string) (*Collection, error) {
	c := &Collection{dir: dir}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dim returns the collection's fixed vector dimension.
func (c *Collection) Dim() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dim
}

// Metric returns the collection's current distance metric.
func (c *Collection) Metric() Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metric
}

// Size returns the total slot count, including tombstoned slots.
func (c *Collection) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Size()
}

// AliveCount returns the number of currently live slots.
func (c *Collection) AliveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.AliveCount()
}

// Contains reports whether id currently maps to a live slot.
func (c *Collection) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Contains(id)
}

// Upsert writes vec under id, reviving a tombstoned slot or overwriting a
// live one in place, and drops any built index. Returns the assigned slot.
func (c *Collection) Upsert(id string, vec []float32, meta map[string]string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, err := c.store.Upsert(id, vec, meta)
	if err != nil {
		return 0, wrapErr("Upsert", storeErrKind(err), err)
	}
	c.index = nil
	return slot, nil
}

// Remove tombstones id's slot. It returns false, not an error, if id is
// absent or already dead; on success it drops any built index.
func (c *Collection) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.store.Remove(id)
	if ok {
		c.index = nil
	}
	return ok
}

// SetMetric changes the distance metric and drops any built index.
func (c *Collection) SetMetric(m Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metric = m
	c.index = nil
}

// SetHNSWParams changes the graph construction parameters and drops any
// built index.
func (c *Collection) SetHNSWParams(p HNSWParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hnswParams = p.WithDefaults()
	c.index = nil
}

// BuildIndex allocates a fresh graph with the current parameters and
// inserts every alive slot in slot order.
func (c *Collection) BuildIndex() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := hnsw.New(c.store, c.metric, c.hnswParams)
	n := c.store.Size()
	for i := 0; i < n; i++ {
		idx.Insert(i)
	}
	c.index = idx
	return nil
}

// Search runs an unfiltered approximate k-NN query against the built
// index. It fails with KindIndexNotReady if no index has been built.
func (c *Collection) Search(q []float32, k, ef int) ([]Result, error) {
	return c.search(q, k, ef, nil)
}

// SearchFiltered restricts the query to slots whose metadata satisfies
// filter. This path performs an exact scan and does not require a built
// index, even when one exists.
func (c *Collection) SearchFiltered(q []float32, k, ef int, filter *MetadataFilter) ([]Result, error) {
	return c.search(q, k, ef, filter)
}

func (c *Collection) search(q []float32, k, ef int, filter *MetadataFilter) ([]Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(q) != c.dim {
		return nil, wrapErr("Search", KindValidation, ErrDimMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	if filter != nil {
		hits := bruteforce.Search(c.store, c.metric, q, k, filter.matches)
		return c.toResults(hits), nil
	}

	if c.index == nil {
		return nil, wrapErr("Search", KindIndexNotReady, ErrIndexNotReady)
	}
	hits := c.index.Search(q, k, ef)
	return c.toResultsHNSW(hits), nil
}

func (c *Collection) toResults(hits []bruteforce.Result) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		id, _ := c.store.IDAt(h.Slot)
		meta, _ := c.store.MetadataAt(h.Slot)
		out[i] = Result{ID: id, Slot: h.Slot, Distance: h.Distance, Metadata: meta}
	}
	return out
}

func (c *Collection) toResultsHNSW(hits []hnsw.Result) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		id, _ := c.store.IDAt(h.Slot)
		meta, _ := c.store.MetadataAt(h.Slot)
		out[i] = Result{ID: id, Slot: h.Slot, Distance: h.Distance, Metadata: meta}
	}
	return out
}

// Save re-writes the manifest and store artifacts, and writes the graph if
// one is built, else removes any stale graph file.
func (c *Collection) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save()
}

func (c *Collection) save() error {
	if err := c.writeManifest(); err != nil {
		return wrapErr("Save", KindIO, err)
	}
	dim, vectors, alive, ids, meta := c.store.Snapshot()
	if err := snapshot.WriteStore(c.dir, len(alive), dim, vectors, alive, ids, meta); err != nil {
		return wrapErr("Save", KindIO, err)
	}
	if c.index != nil {
		if err := snapshot.WriteGraph(c.dir, c.store.Size(), c.index.Export()); err != nil {
			return wrapErr("Save", KindIO, err)
		}
	} else if err := snapshot.RemoveGraph(c.dir); err != nil {
		return wrapErr("Save", KindIO, err)
	}
	return nil
}

// Load reloads the store and graph from disk, replacing in-memory state.
func (c *Collection) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *Collection) load() error {
	m, err := snapshot.ReadManifest(c.dir)
	if err != nil {
		return wrapErr("Load", KindNotFound, err)
	}
	c.dim = m.Dim
	c.metric = m.Metric
	c.hnswParams = HNSWParams{
		M: m.HNSW.M, M0: m.HNSW.M0, EfConstruction: m.HNSW.EfConstruction,
		UseDiversity: m.HNSW.UseDiversity, Seed: m.HNSW.Seed, LevelMult: m.HNSW.LevelMult,
	}.WithDefaults()
	c.store = store.New(m.Dim)

	n, dim, vectors, alive, ids, meta, err := snapshot.ReadStore(c.dir)
	if err != nil {
		return wrapErr("Load", KindCorruptedState, err)
	}
	if err := c.store.LoadFromDisk(n, dim, vectors, alive, ids, meta); err != nil {
		return wrapErr("Load", KindCorruptedState, err)
	}

	c.index = nil
	if snapshot.GraphExists(c.dir) {
		exp, err := snapshot.ReadGraph(c.dir, n)
		if err != nil {
			return wrapErr("Load", KindCorruptedState, err)
		}
		idx, err := hnsw.Import(c.store, c.metric, c.hnswParams, exp, n)
		if err != nil {
			return wrapErr("Load", KindCorruptedState, err)
		}
		c.index = idx
	}
	return nil
}

func (c *Collection) writeManifest() error {
	return snapshot.WriteManifest(c.dir, snapshot.Manifest{
		Dim:    c.dim,
		Metric: c.metric,
		HNSW: snapshot.HNSWParams{
			M: c.hnswParams.M, M0: c.hnswParams.M0, EfConstruction: c.hnswParams.EfConstruction,
			UseDiversity: c.hnswParams.UseDiversity, Seed: c.hnswParams.Seed, LevelMult: c.hnswParams.LevelMult,
		},
	})
}

func storeErrKind(err error) Kind {
	se, ok := err.(*store.Error)
	if !ok {
		return KindInternal
	}
	switch se.Kind {
	case store.ErrDimMismatch:
		return KindValidation
	case store.ErrEmptyID:
		return KindValidation
	case store.ErrDuplicateID:
		return KindConflict
	case store.ErrSizeMismatch:
		return KindCorruptedState
	case store.ErrIndexOutOfRange:
		return KindNotFound
	default:
		return KindInternal
	}
}

