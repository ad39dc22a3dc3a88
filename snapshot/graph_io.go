package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jefflaplante/vecdb/hnsw"
)

var hnswMagic = [8]byte{'H', 'N', 'S', 'W', 'v', '1', 0, 0}

func graphPath(dir string) string { return filepath.Join(dir, "hnsw.bin") }

// WriteGraph persists an HNSW export. N must equal the store's slot count;
// the caller is responsible for that invariant.
func WriteGraph(dir string, n int, exp hnsw.Export) error {
	buf := new(bytes.Buffer)
	buf.Write(hnswMagic[:])
	binary.Write(buf, binary.LittleEndian, uint64(n))
	binary.Write(buf, binary.LittleEndian, int32(exp.MaxLevel))
	binary.Write(buf, binary.LittleEndian, uint64(exp.EntryPoint))
	if exp.HasEntry {
		binary.Write(buf, binary.LittleEndian, uint32(1))
	} else {
		binary.Write(buf, binary.LittleEndian, uint32(0))
	}

	for _, node := range exp.Nodes {
		binary.Write(buf, binary.LittleEndian, int32(node.Level))
		if node.Level < 0 {
			continue
		}
		for l := 0; l <= node.Level; l++ {
			links := node.Links[l]
			binary.Write(buf, binary.LittleEndian, uint32(len(links)))
			for _, nb := range links {
				binary.Write(buf, binary.LittleEndian, uint32(nb))
			}
		}
	}
	return atomicWriteFile(graphPath(dir), buf.Bytes())
}

// RemoveGraph deletes a stale graph file, tolerating its absence.
func RemoveGraph(dir string) error {
	err := os.Remove(graphPath(dir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot: remove hnsw.bin: %w", err)
	}
	return nil
}

// GraphExists reports whether a graph file is present in dir.
func GraphExists(dir string) bool {
	_, err := os.Stat(graphPath(dir))
	return err == nil
}

// ReadGraph loads and validates an HNSW export against the expected slot
// count n.
func ReadGraph(dir string, n int) (hnsw.Export, error) {
	data, err := os.ReadFile(graphPath(dir))
	if err != nil {
		return hnsw.Export{}, fmt.Errorf("snapshot: read hnsw.bin: %w", err)
	}
	r := bytes.NewReader(data)

	var magic [8]byte
	if _, err := r.Read(magic[:]); err != nil || magic != hnswMagic {
		return hnsw.Export{}, fmt.Errorf("snapshot: hnsw.bin: bad magic")
	}

	var nu uint64
	var maxLevel int32
	var entryPoint uint64
	var hasEntry uint32
	binary.Read(r, binary.LittleEndian, &nu)
	binary.Read(r, binary.LittleEndian, &maxLevel)
	binary.Read(r, binary.LittleEndian, &entryPoint)
	binary.Read(r, binary.LittleEndian, &hasEntry)

	if int(nu) != n {
		return hnsw.Export{}, fmt.Errorf("snapshot: hnsw.bin: N=%d, want %d", nu, n)
	}

	nodes := make([]hnsw.ExportNode, n)
	for i := 0; i < n; i++ {
		var level int32
		if err := binary.Read(r, binary.LittleEndian, &level); err != nil {
			return hnsw.Export{}, fmt.Errorf("snapshot: hnsw.bin: truncated at node %d", i)
		}
		if level < 0 {
			nodes[i] = hnsw.ExportNode{Level: -1}
			continue
		}
		links := make([][]int, level+1)
		for l := int32(0); l <= level; l++ {
			var degree uint32
			if err := binary.Read(r, binary.LittleEndian, &degree); err != nil {
				return hnsw.Export{}, fmt.Errorf("snapshot: hnsw.bin: truncated degree at node %d layer %d", i, l)
			}
			ls := make([]int, degree)
			for j := uint32(0); j < degree; j++ {
				var nb uint32
				if err := binary.Read(r, binary.LittleEndian, &nb); err != nil {
					return hnsw.Export{}, fmt.Errorf("snapshot: hnsw.bin: truncated neighbor at node %d layer %d", i, l)
				}
				ls[j] = int(nb)
			}
			links[l] = ls
		}
		nodes[i] = hnsw.ExportNode{Level: int(level), Links: links}
	}

	return hnsw.Export{
		EntryPoint: int(entryPoint),
		HasEntry:   hasEntry != 0,
		MaxLevel:   int(maxLevel),
		Nodes:      nodes,
	}, nil
}
