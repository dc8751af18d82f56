package ring

import (
	"fmt"
	"testing"
)

func threeNodes() []Node {
	return []Node{
		{ID: "node1", Addr: "127.0.0.1:50051"},
		{ID: "node2", Addr: "127.0.0.1:50052"},
		{ID: "node3", Addr: "127.0.0.1:50053"},
	}
}

func TestRing_Empty(t *testing.T) {
	r := NewRing(0)
	if _, ok := r.Owner("doc"); ok {
		t.Error("Expected no owner on empty ring")
	}
	if list := r.PreferenceList("doc", 3); len(list) != 0 {
		t.Errorf("Expected empty preference list, got %v", list)
	}
}

func TestRing_Determinism(t *testing.T) {
	r1 := NewRing(64)
	r2 := NewRing(64)

	nodes := threeNodes()
	r1.SetNodes(nodes)
	// Order of nodes must not matter.
	r2.SetNodes([]Node{nodes[2], nodes[0], nodes[1]})

	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("doc-%d", i)
		a := r1.PreferenceList(id, 3)
		b := r2.PreferenceList(id, 3)
		for j := range a {
			if a[j].ID != b[j].ID {
				t.Fatalf("Determinism failed for %s: %v vs %v", id, a, b)
			}
		}
	}
}

func TestRing_PreferenceList(t *testing.T) {
	tests := []struct {
		name string
		k    int
		want int
	}{
		{name: "one", k: 1, want: 1},
		{name: "two", k: 2, want: 2},
		{name: "all", k: 3, want: 3},
		{name: "more than nodes", k: 5, want: 3},
		{name: "zero", k: 0, want: 0},
	}

	r := NewRing(32)
	r.SetNodes(threeNodes())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := r.PreferenceList("doc-42", tt.k)
			if len(list) != tt.want {
				t.Fatalf("Expected %d nodes, got %d", tt.want, len(list))
			}
			seen := map[string]bool{}
			for _, n := range list {
				if seen[n.ID] {
					t.Errorf("Duplicate node %s in %v", n.ID, list)
				}
				seen[n.ID] = true
				if n.Addr == "" {
					t.Errorf("Node %s has no address", n.ID)
				}
			}
		})
	}
}

func TestRing_OwnerIsHeadOfPreferenceList(t *testing.T) {
	r := NewRing(32)
	r.SetNodes(threeNodes())

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("doc-%d", i)
		owner, ok := r.Owner(id)
		if !ok {
			t.Fatalf("Expected owner for %s", id)
		}
		if head := r.PreferenceList(id, 3)[0]; head.ID != owner.ID {
			t.Errorf("Owner %s is not head %s for %s", owner.ID, head.ID, id)
		}
	}
}

func TestRing_Distribution(t *testing.T) {
	r := NewRing(128)
	r.SetNodes(threeNodes())

	counts := map[string]int{}
	const total = 3000
	for i := 0; i < total; i++ {
		owner, _ := r.Owner(fmt.Sprintf("doc-%d", i))
		counts[owner.ID]++
	}

	for _, n := range threeNodes() {
		if counts[n.ID] < total/10 {
			t.Errorf("Node %s owns only %d of %d documents", n.ID, counts[n.ID], total)
		}
	}
}

func TestRing_SetNodesReplacesAndDedups(t *testing.T) {
	r := NewRing(16)
	r.SetNodes(threeNodes())
	r.SetNodes([]Node{{ID: "solo", Addr: "a"}, {ID: "solo", Addr: "b"}})

	nodes := r.Nodes()
	if len(nodes) != 1 || nodes[0].ID != "solo" || nodes[0].Addr != "a" {
		t.Errorf("Expected only solo@a, got %v", nodes)
	}
	if owner, _ := r.Owner("anything"); owner.ID != "solo" {
		t.Errorf("Expected solo to own everything, got %s", owner.ID)
	}
}

func TestRing_MinimalMovement(t *testing.T) {
	before := NewRing(64)
	before.SetNodes(threeNodes())
	after := NewRing(64)
	after.SetNodes(append(threeNodes(), Node{ID: "node4", Addr: "127.0.0.1:50054"}))

	moved := 0
	const total = 2000
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("doc-%d", i)
		a, _ := before.Owner(id)
		b, _ := after.Owner(id)
		if a.ID != b.ID {
			if b.ID != "node4" {
				t.Errorf("%s moved from %s to %s instead of the new node", id, a.ID, b.ID)
			}
			moved++
		}
	}
	if moved > total/2 {
		t.Errorf("Too many documents moved: %d of %d", moved, total)
	}
}
