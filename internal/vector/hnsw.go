package vector

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
)

// HNSWConfig tunes the hierarchical navigable small world graph.
type HNSWConfig struct {
	// M is the maximum number of links per node on upper layers; layer 0 allows 2*M.
	M int `yaml:"m"`
	// EfConstruction is the candidate list size while inserting.
	EfConstruction int `yaml:"ef_construction"`
	// EfSearch is the candidate list size while searching; raised to k when smaller.
	EfSearch int `yaml:"ef_search"`
}

// withDefaults fills zero fields with the engine defaults (m=16, ef_construction=200, ef_search=100).
func (c HNSWConfig) withDefaults() HNSWConfig {
	if c.M < 2 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 100
	}
	return c
}

func (c HNSWConfig) maxLinks(layer int) int {
	if layer == 0 {
		return 2 * c.M
	}
	return c.M
}

type candidate struct {
	node uint32
	dist float64
}

// nearestFirst is a min-heap on distance.
type nearestFirst []candidate

func (h nearestFirst) Len() int           { return len(h) }
func (h nearestFirst) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h nearestFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nearestFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *nearestFirst) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// farthestFirst is a max-heap on distance.
type farthestFirst []candidate

func (h farthestFirst) Len() int           { return len(h) }
func (h farthestFirst) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h farthestFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *farthestFirst) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *farthestFirst) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

type graphNode struct {
	id     string
	vector []float32
	links  [][]uint32 // links[layer]
	// inbound counts, per source slot, the layers on which that source links here.
	// Links are not symmetric after pruning, so removal needs this reverse view.
	inbound map[uint32]int
}

// HNSWIndex is a graph-based approximate nearest-neighbor index using cosine distance.
// Search results are approximate: recall depends on EfSearch, and equal-score order is unspecified.
type HNSWIndex struct {
	cfg        HNSWConfig
	dimensions int
	nodes      []*graphNode // slot -> node; nil marks a free slot
	slots      map[string]uint32
	free       []uint32
	entry      int64 // -1 when empty
	topLayer   int
	levelMul   float64
	mu         sync.RWMutex
}

// NewHNSWIndex creates an empty HNSW index for vectors of the given dimension.
func NewHNSWIndex(dimensions int, cfg HNSWConfig) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	cfg = cfg.withDefaults()
	return &HNSWIndex{
		cfg:        cfg,
		dimensions: dimensions,
		slots:      make(map[string]uint32),
		entry:      -1,
		levelMul:   1 / math.Log(float64(cfg.M)),
	}, nil
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Size returns the number of vectors in the index.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.slots)
}

// Close is a no-op; the graph lives in memory.
func (h *HNSWIndex) Close() error {
	return nil
}

// Add inserts vectors, replacing existing entries with the same ID.
func (h *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for _, vec := range vectors {
		if len(vec) != h.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), h.dimensions)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.insertLocked(id, vectors[i])
	}
	return nil
}

// Remove deletes vectors by ID. Unknown IDs are ignored.
func (h *HNSWIndex) Remove(ctx context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if slot, ok := h.slots[id]; ok {
			h.removeLocked(slot)
		}
	}
	return nil
}

// Search returns up to k approximate nearest neighbors by descending cosine similarity.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dimensions)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || h.entry < 0 {
		return nil, nil
	}
	ef := h.cfg.EfSearch
	if ef < k {
		ef = k
	}
	cur := h.greedyDescent(query, uint32(h.entry), h.topLayer, 0)
	found := h.searchLayer(query, []uint32{cur}, ef, 0)
	sort.Slice(found, func(i, j int) bool { return found[i].dist < found[j].dist })
	if len(found) > k {
		found = found[:k]
	}
	results := make([]*VectorResult, len(found))
	for i, c := range found {
		results[i] = &VectorResult{ID: h.nodes[c.node].id, Score: 1 - c.dist}
	}
	return results, nil
}

func (h *HNSWIndex) insertLocked(id string, vector []float32) {
	if slot, ok := h.slots[id]; ok {
		h.removeLocked(slot)
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var slot uint32
	if n := len(h.free); n > 0 {
		slot = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		slot = uint32(len(h.nodes))
		h.nodes = append(h.nodes, nil)
	}
	level := h.randomLevel()
	node := &graphNode{id: id, vector: vec, links: make([][]uint32, level+1), inbound: make(map[uint32]int)}
	h.nodes[slot] = node
	h.slots[id] = slot

	if h.entry < 0 {
		h.entry = int64(slot)
		h.topLayer = level
		return
	}

	cur := h.greedyDescent(vec, uint32(h.entry), h.topLayer, level+1)
	entryPoints := []uint32{cur}
	for layer := min(level, h.topLayer); layer >= 0; layer-- {
		found := h.searchLayer(vec, entryPoints, h.cfg.EfConstruction, layer)
		limit := h.cfg.maxLinks(layer)
		h.setLinks(slot, layer, h.closest(vec, found, limit))
		for _, peer := range node.links[layer] {
			pn := h.nodes[peer]
			next := append(pn.links[layer][:len(pn.links[layer]):len(pn.links[layer])], slot)
			if len(next) > limit {
				next = h.prune(pn.vector, next, limit)
			}
			h.setLinks(peer, layer, next)
		}
		entryPoints = entryPoints[:0]
		for _, c := range found {
			entryPoints = append(entryPoints, c.node)
		}
	}
	if level > h.topLayer {
		h.entry = int64(slot)
		h.topLayer = level
	}
}

// greedyDescent walks from fromLayer down to stopLayer (never below layer 1),
// keeping only the single closest node on each layer.
func (h *HNSWIndex) greedyDescent(query []float32, start uint32, fromLayer, stopLayer int) uint32 {
	cur := start
	curDist := CosineDistance(query, h.nodes[cur].vector)
	for layer := fromLayer; layer >= stopLayer && layer > 0; layer-- {
		for improved := true; improved; {
			improved = false
			node := h.nodes[cur]
			if layer >= len(node.links) {
				break
			}
			for _, peer := range node.links[layer] {
				if d := CosineDistance(query, h.nodes[peer].vector); d < curDist {
					cur, curDist, improved = peer, d, true
				}
			}
		}
	}
	return cur
}

// searchLayer is the beam search over one layer; it returns up to ef candidates.
func (h *HNSWIndex) searchLayer(query []float32, entryPoints []uint32, ef, layer int) []candidate {
	visited := make(map[uint32]struct{}, ef*2)
	var frontier nearestFirst
	var best farthestFirst
	for _, ep := range entryPoints {
		if _, seen := visited[ep]; seen || h.nodes[ep] == nil {
			continue
		}
		visited[ep] = struct{}{}
		c := candidate{node: ep, dist: CosineDistance(query, h.nodes[ep].vector)}
		heap.Push(&frontier, c)
		heap.Push(&best, c)
	}
	for frontier.Len() > 0 {
		c := heap.Pop(&frontier).(candidate)
		if best.Len() >= ef && c.dist > best[0].dist {
			break
		}
		node := h.nodes[c.node]
		if layer >= len(node.links) {
			continue
		}
		for _, peer := range node.links[layer] {
			if _, seen := visited[peer]; seen {
				continue
			}
			visited[peer] = struct{}{}
			d := CosineDistance(query, h.nodes[peer].vector)
			if best.Len() < ef || d < best[0].dist {
				heap.Push(&frontier, candidate{node: peer, dist: d})
				heap.Push(&best, candidate{node: peer, dist: d})
				if best.Len() > ef {
					heap.Pop(&best)
				}
			}
		}
	}
	return []candidate(best)
}

func (h *HNSWIndex) closest(query []float32, found []candidate, limit int) []uint32 {
	sorted := make([]candidate, len(found))
	copy(sorted, found)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]uint32, len(sorted))
	for i, c := range sorted {
		out[i] = c.node
	}
	return out
}

func (h *HNSWIndex) prune(base []float32, links []uint32, limit int) []uint32 {
	scored := make([]candidate, 0, len(links))
	for _, l := range links {
		scored = append(scored, candidate{node: l, dist: CosineDistance(base, h.nodes[l].vector)})
	}
	return h.closest(base, scored, limit)
}

// setLinks replaces a node's out-links on one layer and keeps the targets' inbound counts in step.
func (h *HNSWIndex) setLinks(slot uint32, layer int, next []uint32) {
	node := h.nodes[slot]
	for _, to := range node.links[layer] {
		h.unlink(slot, to)
	}
	for _, to := range next {
		h.nodes[to].inbound[slot]++
	}
	node.links[layer] = next
}

func (h *HNSWIndex) unlink(from, to uint32) {
	target := h.nodes[to]
	if target == nil {
		return
	}
	if target.inbound[from]--; target.inbound[from] <= 0 {
		delete(target.inbound, from)
	}
}

// removeLocked detaches a node using its inbound set, so the cost is bounded by its
// in-degree rather than the size of the graph.
func (h *HNSWIndex) removeLocked(slot uint32) {
	node := h.nodes[slot]
	for from := range node.inbound {
		src := h.nodes[from]
		for layer := range src.links {
			src.links[layer] = without(src.links[layer], slot)
		}
	}
	for _, layerLinks := range node.links {
		for _, to := range layerLinks {
			h.unlink(slot, to)
		}
	}
	delete(h.slots, node.id)
	h.nodes[slot] = nil
	h.free = append(h.free, slot)
	if h.entry == int64(slot) {
		h.electEntry()
	}
}

func (h *HNSWIndex) electEntry() {
	h.entry, h.topLayer = -1, 0
	for i, n := range h.nodes {
		if n != nil && (h.entry < 0 || len(n.links)-1 > h.topLayer) {
			h.entry = int64(i)
			h.topLayer = len(n.links) - 1
		}
	}
}

func (h *HNSWIndex) randomLevel() int {
	r := max(rand.Float64(), math.SmallestNonzeroFloat64)
	return min(int(-math.Log(r)*h.levelMul), 16)
}

// without removes every occurrence of v from s in place.
func without(s []uint32, v uint32) []uint32 {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
