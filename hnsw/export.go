package hnsw

import (
	"fmt"

	"github.com/jefflaplante/vecdb/internal/dist"
	"github.com/jefflaplante/vecdb/store"
)

// ExportNode is the graph-only serializable form of a single slot's record.
// Level -1 means the slot has no presence in the graph.
type ExportNode struct {
	Level int
	Links [][]int
}

// Export is the graph-only serializable form consumed by the snapshot
// writer. Node count must equal the store's slot count.
type Export struct {
	EntryPoint int
	HasEntry   bool
	MaxLevel   int
	Nodes      []ExportNode
}

// Export snapshots the graph structure for persistence.
func (h *HNSW) Export() Export {
	nodes := make([]ExportNode, h.store.Size())
	for i := range nodes {
		if i >= len(h.nodes) || h.nodes[i].level < 0 {
			nodes[i] = ExportNode{Level: -1}
			continue
		}
		n := h.nodes[i]
		links := make([][]int, len(n.links))
		for l, ls := range n.links {
			links[l] = append([]int(nil), ls...)
		}
		nodes[i] = ExportNode{Level: n.level, Links: links}
	}
	return Export{
		EntryPoint: h.entryPoint,
		HasEntry:   h.hasEntry,
		MaxLevel:   h.maxLevel,
		Nodes:      nodes,
	}
}

// Import rebuilds the graph structure from an Export. storeSize must equal
// the current store's slot count; every present node's link-vector count
// must equal level+1. Either mismatch is a corrupted-state error.
func Import(s *store.Store, metric dist.Metric, params Params, exp Export, storeSize int) (*HNSW, error) {
	if len(exp.Nodes) != storeSize {
		return nil, fmt.Errorf("hnsw: import: node count %d, want store size %d", len(exp.Nodes), storeSize)
	}
	h := New(s, metric, params)
	h.entryPoint = exp.EntryPoint
	h.hasEntry = exp.HasEntry
	h.maxLevel = exp.MaxLevel
	h.nodes = make([]node, len(exp.Nodes))
	for i, en := range exp.Nodes {
		if en.Level < 0 {
			h.nodes[i] = node{level: -1}
			continue
		}
		if len(en.Links) != en.Level+1 {
			return nil, fmt.Errorf("hnsw: import: slot %d has %d link vectors, want %d", i, len(en.Links), en.Level+1)
		}
		for l := 0; l <= en.Level; l++ {
			for _, nb := range en.Links[l] {
				if nl := importLevelOf(exp.Nodes, nb); nl < l {
					return nil, fmt.Errorf("hnsw: import: slot %d links to slot %d at layer %d but slot %d has level %d", i, nb, l, nb, nl)
				}
			}
		}
		links := make([][]int, len(en.Links))
		for l, ls := range en.Links {
			links[l] = append([]int(nil), ls...)
		}
		h.nodes[i] = node{level: en.Level, links: links}
	}
	return h, nil
}

func importLevelOf(nodes []ExportNode, slot int) int {
	if slot < 0 || slot >= len(nodes) {
		return -1
	}
	return nodes[slot].Level
}
