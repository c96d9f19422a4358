package allocator

import (
	"math/rand"
	"sort"
	"testing"
)

// newTestTree builds a size-keyed tree; this is enough to drive the
// generic algorithm without needing the free-block manager's intrusive
// memory layout.
func newTestTree() *rbTree {
	return newRBTree(sizeLinksOf, keyBySize)
}

func TestRBTreeInsertSearch(t *testing.T) {
	tr := newTestTree()

	values := []uintptr{50, 20, 70, 10, 30, 60, 80, 5, 15, 25, 35}
	nodes := make(map[uintptr]*freeBlock)

	for _, v := range values {
		n := &freeBlock{size: v}
		nodes[v] = n

		if got := tr.insert(n); got != n {
			t.Fatalf("insert(%d) returned a different node than expected", v)
		}
	}

	if !tr.check() {
		t.Fatal("tree failed its red-black consistency check after inserts")
	}

	for _, v := range values {
		got := tr.search(v)
		if got != nodes[v] {
			t.Errorf("search(%d) = %v, want %v", v, got, nodes[v])
		}
	}

	if tr.search(999) != nil {
		t.Error("search for an absent key should return nil")
	}
}

func TestRBTreeDuplicateInsertReturnsExisting(t *testing.T) {
	tr := newTestTree()

	first := &freeBlock{size: 42}
	second := &freeBlock{size: 42}

	if tr.insert(first) != first {
		t.Fatal("first insert should return itself")
	}

	if got := tr.insert(second); got != first {
		t.Fatalf("inserting a duplicate key should return the existing node, got %v want %v", got, first)
	}
}

func TestRBTreeCeilFloor(t *testing.T) {
	tr := newTestTree()

	for _, v := range []uintptr{10, 20, 30, 40, 50} {
		tr.insert(&freeBlock{size: v})
	}

	cases := []struct {
		key       uintptr
		wantCeil  uintptr
		wantFloor uintptr
		noCeil    bool
		noFloor   bool
	}{
		{key: 25, wantCeil: 30, wantFloor: 20},
		{key: 10, wantCeil: 10, wantFloor: 10},
		{key: 50, wantCeil: 50, wantFloor: 50},
		{key: 5, wantCeil: 10, noFloor: true},
		{key: 55, noCeil: true, wantFloor: 50},
	}

	for _, c := range cases {
		ceil := tr.ceil(c.key)
		if c.noCeil {
			if ceil != nil {
				t.Errorf("ceil(%d) = %d, want nil", c.key, ceil.size)
			}
		} else if ceil == nil || ceil.size != c.wantCeil {
			t.Errorf("ceil(%d) = %v, want %d", c.key, ceil, c.wantCeil)
		}

		floor := tr.floor(c.key)
		if c.noFloor {
			if floor != nil {
				t.Errorf("floor(%d) = %d, want nil", c.key, floor.size)
			}
		} else if floor == nil || floor.size != c.wantFloor {
			t.Errorf("floor(%d) = %v, want %d", c.key, floor, c.wantFloor)
		}
	}
}

func TestRBTreeOrderedTraversal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	tr := newTestTree()

	var values []uintptr

	seen := map[uintptr]bool{}

	for len(values) < 200 {
		v := uintptr(rng.Intn(10000))
		if seen[v] {
			continue
		}

		seen[v] = true

		values = append(values, v)
		tr.insert(&freeBlock{size: v})
	}

	if !tr.check() {
		t.Fatal("tree failed its consistency check after random inserts")
	}

	sorted := append([]uintptr{}, values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var walked []uintptr
	for n := tr.min(); n != nil; n = tr.next(n) {
		walked = append(walked, n.size)
	}

	if len(walked) != len(sorted) {
		t.Fatalf("walked %d nodes, want %d", len(walked), len(sorted))
	}

	for i := range sorted {
		if walked[i] != sorted[i] {
			t.Fatalf("walked[%d] = %d, want %d", i, walked[i], sorted[i])
		}
	}

	var walkedBack []uintptr
	for n := tr.max(); n != nil; n = tr.prev(n) {
		walkedBack = append(walkedBack, n.size)
	}

	for i := range sorted {
		if walkedBack[i] != sorted[len(sorted)-1-i] {
			t.Fatalf("reverse walk mismatch at %d", i)
		}
	}
}

func TestRBTreeRemoveMaintainsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	tr := newTestTree()

	var nodes []*freeBlock

	seen := map[uintptr]bool{}

	for len(nodes) < 300 {
		v := uintptr(rng.Intn(20000))
		if seen[v] {
			continue
		}

		seen[v] = true
		n := &freeBlock{size: v}
		nodes = append(nodes, n)
		tr.insert(n)
	}

	rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	for i, n := range nodes {
		tr.remove(n)

		if !tr.check() {
			t.Fatalf("tree failed its consistency check after removing %d of %d nodes", i+1, len(nodes))
		}
	}

	if !tr.isEmpty() {
		t.Fatal("tree should be empty after removing every node")
	}
}

func TestRBTreeReplace(t *testing.T) {
	tr := newTestTree()

	for _, v := range []uintptr{10, 20, 30, 40, 50} {
		tr.insert(&freeBlock{size: v})
	}

	victim := tr.search(30)
	if victim == nil {
		t.Fatal("expected to find the node to replace")
	}

	replacement := &freeBlock{size: 30}
	tr.replace(victim, replacement)

	if !tr.check() {
		t.Fatal("tree failed its consistency check after replace")
	}

	if got := tr.search(30); got != replacement {
		t.Fatalf("search(30) after replace = %v, want %v", got, replacement)
	}

	if tr.next(tr.search(20)) != replacement {
		t.Error("in-order successor of 20 should be the replacement node")
	}
}
