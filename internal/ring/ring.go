package ring

import (
	"sort"
	"strconv"
	"sync"

	"github.com/zeebo/xxh3"
)

const defaultVNodes = 128

// Node is a physical replica.
type Node struct {
	ID   string
	Addr string
}

type point struct {
	hash   uint64
	nodeID string
}

// Ring maps document ids to nodes. It is safe for concurrent use.
type Ring struct {
	mu     sync.RWMutex
	vnodes int
	points []point
	nodes  map[string]Node
}

// NewRing creates an empty ring with vnodes points per node.
func NewRing(vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = defaultVNodes
	}
	return &Ring{
		vnodes: vnodes,
		nodes:  make(map[string]Node),
	}
}

// SetNodes replaces the ring membership. The layout depends only on the
// node ids, not on their order.
func (r *Ring) SetNodes(nodes []Node) {
	points := make([]point, 0, len(nodes)*r.vnodes)
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if _, dup := byID[n.ID]; dup {
			continue
		}
		byID[n.ID] = n
		for i := 0; i < r.vnodes; i++ {
			points = append(points, point{
				hash:   xxh3.HashString(n.ID + "#" + strconv.Itoa(i)),
				nodeID: n.ID,
			})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].hash != points[j].hash {
			return points[i].hash < points[j].hash
		}
		return points[i].nodeID < points[j].nodeID
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = points
	r.nodes = byID
}

// Owner returns the first node of the preference list for id.
func (r *Ring) Owner(id string) (Node, bool) {
	list := r.PreferenceList(id, 1)
	if len(list) == 0 {
		return Node{}, false
	}
	return list[0], true
}

// PreferenceList returns up to k distinct nodes responsible for id,
// walking the ring clockwise from the id's hash.
func (r *Ring) PreferenceList(id string, k int) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 || k <= 0 {
		return []Node{}
	}
	if k > len(r.nodes) {
		k = len(r.nodes)
	}

	h := xxh3.HashString(id)
	start := sort.Search(len(r.points), func(i int) bool {
		return r.points[i].hash >= h
	})

	seen := make(map[string]bool, k)
	out := make([]Node, 0, k)
	for i := 0; i < len(r.points) && len(out) < k; i++ {
		p := r.points[(start+i)%len(r.points)]
		if seen[p.nodeID] {
			continue
		}
		seen[p.nodeID] = true
		out = append(out, r.nodes[p.nodeID])
	}
	return out
}

// Nodes returns all nodes sorted by id.
func (r *Ring) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
