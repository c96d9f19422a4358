package allocator

import (
	"testing"
	"unsafe"
)

// testArena backs a freeBlockManager with a large, fixed byte slice so
// tests can exercise alloc/free/grow without going through mapPages.
// Go's current garbage collector never relocates heap-allocated byte
// slices, so treating the slice's backing array as a stable address
// range is safe for test purposes (the same assumption production code
// makes about mmap'd memory, see rbtree.go).
type testArena struct {
	buf   []byte
	start uintptr
}

func newTestArena(size int) *testArena {
	buf := make([]byte, size)
	return &testArena{buf: buf, start: uintptr(unsafe.Pointer(&buf[0]))} //nolint:govet
}

func newTestManager(arenaSize int, blockBits uintptr) (*freeBlockManager, *testArena) {
	arena := newTestArena(arenaSize)
	m := newFreeBlockManager(blockBits, CanaryXOR)

	blocks := uintptr(arenaSize) >> blockBits
	if err := m.free(arena.start, blocks); err != nil {
		panic(err)
	}

	return m, arena
}

func TestFreeBlockManagerAllocFree(t *testing.T) {
	m, _ := newTestManager(1<<20, 8)

	addr, ok := m.alloc(4)
	if !ok {
		t.Fatal("alloc should succeed against a freshly seeded arena")
	}

	if !m.check() {
		t.Fatal("manager failed consistency check after alloc")
	}

	if err := m.free(addr, 4); err != nil {
		t.Fatalf("free failed: %v", err)
	}

	if !m.check() {
		t.Fatal("manager failed consistency check after free")
	}

	if m.contBlockCount() != 1 {
		t.Errorf("contBlockCount() = %d, want 1 (freed region should merge back into the single arena run)", m.contBlockCount())
	}
}

func TestFreeBlockManagerCoalescing(t *testing.T) {
	m, _ := newTestManager(1<<20, 8)

	a, ok := m.alloc(2)
	if !ok {
		t.Fatal("alloc a failed")
	}

	b, ok := m.alloc(2)
	if !ok {
		t.Fatal("alloc b failed")
	}

	c, ok := m.alloc(2)
	if !ok {
		t.Fatal("alloc c failed")
	}

	// Free the middle block first, then its neighbors, in the order that
	// exercises no-neighbor, then successor-only, then both-at-once
	// coalescing.
	if err := m.free(b, 2); err != nil {
		t.Fatal(err)
	}

	if !m.check() {
		t.Fatal("check failed after freeing b")
	}

	if err := m.free(a, 2); err != nil {
		t.Fatal(err)
	}

	if !m.check() {
		t.Fatal("check failed after freeing a")
	}

	if err := m.free(c, 2); err != nil {
		t.Fatal(err)
	}

	if !m.check() {
		t.Fatal("check failed after freeing c")
	}

	if m.contBlockCount() != 1 {
		t.Errorf("contBlockCount() = %d, want 1 after every block merges back together", m.contBlockCount())
	}
}

func TestFreeBlockManagerBestFit(t *testing.T) {
	m, arena := newTestManager(1<<16, 8)

	// Carve the arena into three fixed pieces of different sizes by
	// freeing non-adjacent runs: 2 blocks, 4 blocks, 8 blocks, with gaps
	// reserved (never freed) so they cannot coalesce.
	blockSize := m.blockSize()

	small := arena.start
	medium := arena.start + 8*blockSize
	large := arena.start + 20*blockSize

	m2 := newFreeBlockManager(8, CanaryXOR)

	if err := m2.free(small, 2); err != nil {
		t.Fatal(err)
	}

	if err := m2.free(medium, 4); err != nil {
		t.Fatal(err)
	}

	if err := m2.free(large, 8); err != nil {
		t.Fatal(err)
	}

	addr, ok := m2.alloc(3)
	if !ok {
		t.Fatal("alloc(3) should succeed via the 4-block run")
	}

	if addr != medium {
		t.Errorf("best-fit alloc(3) chose %x, want the 4-block run at %x", addr, medium)
	}

	_ = m
}

func TestFreeBlockManagerAllocAligned(t *testing.T) {
	m, _ := newTestManager(1<<20, 8)

	alignment := uintptr(4096)

	addr, ok := m.allocAligned(alignment, 3)
	if !ok {
		t.Fatal("allocAligned should succeed")
	}

	if addr%alignment != 0 {
		t.Errorf("returned address %x is not aligned to %d", addr, alignment)
	}

	if !m.check() {
		t.Fatal("manager failed consistency check after allocAligned")
	}
}

func TestFreeBlockManagerGrow(t *testing.T) {
	m, _ := newTestManager(1<<20, 8)

	addr, ok := m.alloc(2)
	if !ok {
		t.Fatal("alloc failed")
	}

	if !m.grow(addr, 2, 6) {
		t.Fatal("grow should succeed when the successor run is large enough")
	}

	if !m.check() {
		t.Fatal("manager failed consistency check after grow")
	}

	if err := m.free(addr, 6); err != nil {
		t.Fatal(err)
	}

	if m.contBlockCount() != 1 {
		t.Errorf("contBlockCount() = %d, want 1", m.contBlockCount())
	}
}

func TestFreeBlockManagerSameSizeRing(t *testing.T) {
	m := newFreeBlockManager(8, CanaryXOR)
	arena := newTestArena(1 << 20)

	blockSize := m.blockSize()

	// Free three disjoint, equal-size runs so they collide on the same
	// size-tree key and must thread through the ring.
	starts := []uintptr{
		arena.start,
		arena.start + 4*blockSize,
		arena.start + 8*blockSize,
	}

	for _, s := range starts {
		if err := m.free(s, 2); err != nil {
			t.Fatal(err)
		}
	}

	if !m.check() {
		t.Fatal("manager failed consistency check with a same-size ring present")
	}

	if m.freeCount() != 6 {
		t.Errorf("freeCount() = %d, want 6", m.freeCount())
	}

	// Drain the ring one allocation at a time; each alloc(2) should
	// succeed as long as any ring member remains.
	for i := 0; i < 3; i++ {
		if _, ok := m.alloc(2); !ok {
			t.Fatalf("alloc(2) #%d should succeed while ring members remain", i)
		}

		if !m.check() {
			t.Fatalf("manager failed consistency check after draining ring member %d", i)
		}
	}

	if _, ok := m.alloc(2); ok {
		t.Fatal("alloc(2) should fail once every run has been consumed")
	}
}

func TestFreeBlockManagerAllocLargest(t *testing.T) {
	m, _ := newTestManager(1<<20, 8)

	minBlocks := uintptr(1)

	addr, ok := m.allocLargest(m.blockSize(), &minBlocks)
	if !ok {
		t.Fatal("allocLargest should find the single large arena run")
	}

	if addr == 0 {
		t.Error("allocLargest returned a zero address")
	}

	if !m.check() {
		t.Fatal("manager failed consistency check after allocLargest")
	}
}

func TestFreeBlockManagerAllocExhaustion(t *testing.T) {
	m, _ := newTestManager(1<<12, 8)

	blocks := uintptr(1<<12) >> 8

	if _, ok := m.alloc(blocks + 1); ok {
		t.Fatal("alloc should fail when requesting more blocks than exist")
	}
}
