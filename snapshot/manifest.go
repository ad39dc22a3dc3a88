// Package snapshot implements the on-disk layout: a JSON manifest plus
// binary artifacts for the vector store and, optionally, the HNSW graph.
// Save and Load treat the directory's contents as a coherent unit.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jefflaplante/vecdb/internal/dist"
)

const manifestVersion = 1

// HNSWParams mirrors the manifest's hnsw.* fields under their manifest JSON
// key names.
type HNSWParams struct {
	M              int     `json:"M"`
	M0             int     `json:"M0"`
	EfConstruction int     `json:"ef_construction"`
	UseDiversity   bool    `json:"use_diversity"`
	Seed           uint32  `json:"seed"`
	LevelMult      float32 `json:"level_mult"`
}

// Manifest is the parsed form of manifest.json.
type Manifest struct {
	Version int
	Dim     int
	Metric  dist.Metric
	HNSW    HNSWParams
}

type manifestWire struct {
	Version int        `json:"version"`
	Dim     int        `json:"dim"`
	Metric  string     `json:"metric"`
	HNSW    HNSWParams `json:"hnsw"`
}

// WriteManifest writes manifest.json atomically (write-temp-then-rename).
// A hand-rolled tolerant parser is permitted by the format's own contract,
// but Go's encoding/json already tolerates unknown keys and is the
// idiomatic choice here.
func WriteManifest(dir string, m Manifest) error {
	wire := manifestWire{
		Version: manifestVersion,
		Dim:     m.Dim,
		Metric:  m.Metric.String(),
		HNSW:    m.HNSW,
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: encode manifest: %w", err)
	}
	return atomicWriteFile(filepath.Join(dir, "manifest.json"), data)
}

// ReadManifest reads and parses manifest.json. dim == 0 is fatal per the
// format's documented contract; unrecognized metric strings fall back to
// L2 rather than failing the load.
func ReadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, "manifest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("snapshot: read manifest: %w", err)
	}
	var wire manifestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Manifest{}, fmt.Errorf("snapshot: parse manifest: %w", err)
	}
	if wire.Dim == 0 {
		return Manifest{}, fmt.Errorf("snapshot: manifest has dim=0")
	}
	return Manifest{
		Version: wire.Version,
		Dim:     wire.Dim,
		Metric:  dist.ParseMetric(wire.Metric),
		HNSW:    wire.HNSW,
	}, nil
}
