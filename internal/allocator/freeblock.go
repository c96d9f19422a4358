package allocator

// The free-block manager: the centerpiece of this package. Free memory
// is described by intrusive freeBlock descriptors that live inside the
// free memory itself (no separate bookkeeping allocation), indexed
// simultaneously by start address and by size through two augmented
// red-black trees (rbtree.go). Blocks of equal size collide on the same
// size-tree key; rather than growing the tree with duplicate keys they
// are threaded into a small circular ring hanging off one representative
// tree node (linkBlock/unLinkBlock below), exactly as TreeBlockAllocator
// does it.
//
// This type does no locking of its own - it corresponds to the no-lock
// instantiation of the allocator template. The Heap façade (heap.go)
// holds the single mutex that serializes every call into it.

import (
	"unsafe"

	"github.com/orizon-lang/treealloc/internal/errors"
)

// ringLinks is the circular doubly-linked list connecting free blocks
// that share the same size and therefore the same size-tree key.
type ringLinks struct {
	prev, next *freeBlock
}

// freeBlock is the descriptor written into the first bytes of a free
// region. Its address *is* the region's start address.
type freeBlock struct {
	addrLinks rbLinks
	sizeLinks rbLinks
	ring      ringLinks

	// headNext encodes both a pointer and a one-bit role tag, mirroring
	// EmbeddedFreeBlock::headNext. headNext == 0 means "not part of any
	// ring" (this descriptor sits alone at its size-tree key). A tagged
	// (odd) value means this descriptor is a ring member: the ring's
	// designated head member holds the tagged address of the tree
	// representative, every other member holds the tag bit alone
	// (headNext == 1). An untagged non-zero value means this descriptor
	// *is* the representative and points at the ring's head member.
	headNext uintptr

	size   uintptr
	canary uintptr
}

const canarySeed = ^uintptr(0xBADC0DED)

var canaryShift = uintptr(unsafe.Sizeof(uintptr(0))) * 4

func (b *freeBlock) calcCanary(strength CanaryStrength) uintptr {
	return computeCanary(b.startAddress(), b.size, strength)
}

func (b *freeBlock) applyCanary(strength CanaryStrength) { b.canary = b.calcCanary(strength) }

func (b *freeBlock) checkCanary(strength CanaryStrength) bool {
	return b.canary == b.calcCanary(strength)
}

func (b *freeBlock) startAddress() uintptr { return uintptrFromPtr(b) }

// Augmentation hooks, present for symmetry with the generic ordered
// index but unused: this manager keeps no derived aggregate on internal
// nodes, so every hook is a no-op.
func (b *freeBlock) propagate(stop *freeBlock) {}
func (b *freeBlock) copyInto(dst *freeBlock)   {}
func (b *freeBlock) onRotate(other *freeBlock) {}

func addrLinksOf(n *freeBlock) *rbLinks { return &n.addrLinks }
func sizeLinksOf(n *freeBlock) *rbLinks { return &n.sizeLinks }

func keyByAddr(n *freeBlock) uintptr { return n.startAddress() }
func keyBySize(n *freeBlock) uintptr { return n.size }

// createFreeBlock materializes a descriptor at the given address. The
// caller guarantees [start, start+size) is otherwise unused memory at
// least as large as unsafe.Sizeof(freeBlock{}).
func createFreeBlock(start, size uintptr) *freeBlock {
	b := (*freeBlock)(unsafe.Pointer(start)) //nolint:govet
	b.size = size
	b.headNext = 0

	return b
}

func alignUp(v, multiple uintptr) uintptr {
	mask := multiple - 1
	return (v + mask) & ^mask
}

// freeBlockManager is the dual-indexed free-space tracker (spec §4).
type freeBlockManager struct {
	blockBits uintptr

	addrTree *rbTree
	sizeTree *rbTree

	freeBlocks uintptr // free blocks, in units of 1<<blockBits
	contChunks uintptr // number of disjoint free runs

	canaryStrength CanaryStrength
}

func newFreeBlockManager(blockBits uintptr, strength CanaryStrength) *freeBlockManager {
	return &freeBlockManager{
		blockBits:      blockBits,
		addrTree:       newRBTree(addrLinksOf, keyByAddr),
		sizeTree:       newRBTree(sizeLinksOf, keyBySize),
		canaryStrength: strength,
	}
}

func (m *freeBlockManager) blockSize() uintptr { return uintptr(1) << m.blockBits }

func (m *freeBlockManager) markCanary(b *freeBlock) {
	if m.canaryStrength != CanaryNone {
		b.applyCanary(m.canaryStrength)
	}
}

// linkBlock demotes oldBlock (the previous size-tree representative) to
// a ring member and installs newBlock as the representative in its
// place, per EmbeddedFreeBlock's union-free ring encoding (spec §4.1).
func (m *freeBlockManager) linkBlock(oldBlock, newBlock *freeBlock) {
	ring := oldBlock.headNext
	newBlock.headNext = uintptrFromPtr(oldBlock)
	m.sizeTree.replace(oldBlock, newBlock)

	if ring == 0 {
		oldBlock.headNext = uintptrFromPtr(newBlock) | 1
		oldBlock.ring.prev = oldBlock
		oldBlock.ring.next = oldBlock

		return
	}

	ringHead := ptrFromUintptr(ring &^ 1)
	oldBlock.headNext = uintptrFromPtr(newBlock) | 1
	ringHead.headNext = 1

	oldBlock.ring.prev = ringHead
	oldBlock.ring.next = ringHead.ring.next

	ringHead.ring.next.ring.prev = oldBlock
	ringHead.ring.next = oldBlock
}

// unLinkBlock removes oldBlock from whatever role it currently plays
// (sole node, ring member, or representative) and repairs the
// representative/ring-head invariant.
func (m *freeBlockManager) unLinkBlock(oldBlock *freeBlock) {
	inRing := oldBlock.headNext&1 == 1
	head := ptrFromUintptr(oldBlock.headNext &^ 1)

	switch {
	case inRing && head == nil:
		// A non-head ring member: splice it out; the representative and
		// the ring head are unaffected.
		oldBlock.ring.next.ring.prev = oldBlock.ring.prev
		oldBlock.ring.prev.ring.next = oldBlock.ring.next
	case inRing:
		prev := oldBlock.ring.prev
		if prev == oldBlock {
			head.headNext = 0
		} else {
			prev.headNext = oldBlock.headNext
			head.headNext = uintptrFromPtr(prev)
			oldBlock.ring.next.ring.prev = oldBlock.ring.prev
			oldBlock.ring.prev.ring.next = oldBlock.ring.next
		}
	default:
		ring := ptrFromUintptr(oldBlock.headNext)
		prev := ring.ring.prev

		if prev == ring {
			ring.headNext = 0
		} else {
			prev.headNext = uintptrFromPtr(ring) | 1
			ring.headNext = uintptrFromPtr(prev)
			ring.ring.next.ring.prev = ring.ring.prev
			ring.ring.prev.ring.next = ring.ring.next
		}

		m.sizeTree.replace(oldBlock, ring)
	}
}

func (m *freeBlockManager) removeFromSizeTree(block *freeBlock) {
	if block.headNext != 0 {
		m.unLinkBlock(block)
		block.headNext = 0
	} else {
		m.sizeTree.remove(block)
	}
}

func (m *freeBlockManager) removeBoth(block *freeBlock) {
	m.addrTree.remove(block)
	m.removeFromSizeTree(block)
}

func (m *freeBlockManager) addToSizeTree(block *freeBlock) {
	existing := m.sizeTree.insert(block)
	if existing != block {
		m.linkBlock(existing, block)
	}
}

func (m *freeBlockManager) add(block *freeBlock) {
	m.addrTree.insert(block)
	m.addToSizeTree(block)
}

// doAlignmentSplit carves an aligned chunk of allocSize bytes out of
// outBlock, keeping whatever leading/trailing remainder exists as
// separate free blocks (spec §4.1 doAlignmentSplit).
func (m *freeBlockManager) doAlignmentSplit(outBlock *freeBlock, alignment, allocSize uintptr) uintptr {
	startAddr := outBlock.startAddress()
	blockSize := outBlock.size
	blockEnd := startAddr + blockSize

	alignedChunk := alignUp(startAddr, alignment)

	leadingSize := alignedChunk - startAddr
	leadingBlocks := leadingSize >> m.blockBits

	trailingStart := alignedChunk + allocSize
	trailingSize := blockEnd - trailingStart
	trailingBlocks := trailingSize >> m.blockBits

	if leadingBlocks != 0 {
		m.removeFromSizeTree(outBlock)
		outBlock.size = leadingSize
		m.addToSizeTree(outBlock)
		m.markCanary(outBlock)

		if trailingBlocks != 0 {
			newBlock := createFreeBlock(trailingStart, trailingSize)
			m.add(newBlock)
			m.markCanary(newBlock)
			m.contChunks++
		}

		return alignedChunk
	}

	if trailingBlocks != 0 {
		m.removeFromSizeTree(outBlock)
		newBlock := createFreeBlock(trailingStart, trailingSize)
		m.addrTree.replace(outBlock, newBlock)
		m.addToSizeTree(newBlock)
		m.markCanary(newBlock)
	} else {
		m.removeBoth(outBlock)
		m.contChunks--
	}

	return alignedChunk
}

// alloc finds a best-fit free run of blocks 1<<blockBits units and
// removes it from the free structures (spec §4.1, §4.2).
func (m *freeBlockManager) alloc(blocks uintptr) (uintptr, bool) {
	if blocks == 0 {
		return 0, false
	}

	size := blocks << m.blockBits

	outBlock := m.sizeTree.ceil(size)
	if outBlock == nil {
		return 0, false
	}

	m.freeBlocks -= blocks

	startAddr := outBlock.startAddress()
	blockEnd := startAddr + outBlock.size
	trailingStart := startAddr + size
	trailingSize := blockEnd - trailingStart
	trailingBlocks := trailingSize >> m.blockBits

	if trailingBlocks == 0 {
		m.removeBoth(outBlock)
		m.contChunks--
	} else {
		m.removeFromSizeTree(outBlock)
		newBlock := createFreeBlock(trailingStart, trailingSize)
		m.addrTree.replace(outBlock, newBlock)
		m.addToSizeTree(newBlock)
		m.markCanary(newBlock)
	}

	return startAddr, true
}

// allocAligned finds blocks with a stricter-than-natural alignment,
// over-requesting by alignment/blockSize-1 extra blocks of slack and splitting
// off the unused leading/trailing pieces (spec §4.1, §4.3 edge cases).
func (m *freeBlockManager) allocAligned(alignment, blocks uintptr) (uintptr, bool) {
	if alignment == 0 || (alignment&(alignment-1)) != 0 || blocks == 0 {
		return 0, false
	}

	if alignment <= m.blockSize() {
		return m.alloc(blocks)
	}

	allocSize := blocks << m.blockBits
	extraBlocks := (alignment >> m.blockBits) - 1
	size := (blocks + extraBlocks) << m.blockBits

	outBlock := m.sizeTree.ceil(size)
	if outBlock == nil {
		outBlock = m.sizeTree.ceil(allocSize)
		if outBlock == nil || outBlock.startAddress()%alignment != 0 {
			return 0, false
		}
	}

	m.freeBlocks -= blocks

	out := m.doAlignmentSplit(outBlock, alignment, allocSize)

	return out, true
}

// free returns [start, start+blocks*blockSize) to the pool, coalescing
// with an address-adjacent predecessor and/or successor in O(log N)
// (spec §4.1, §8 scenario 2).
func (m *freeBlockManager) free(start, blocks uintptr) error {
	if start == 0 {
		return errors.NullPointer("freeBlockManager.free")
	}

	if blocks == 0 {
		return errors.InvalidSize(0, "freeBlockManager.free: blocks")
	}

	size := blocks << m.blockBits
	end := start + size

	m.freeBlocks += blocks

	succ := m.addrTree.search(end)

	var pred *freeBlock
	if succ != nil {
		pred = m.addrTree.prev(succ)
	} else {
		pred = m.addrTree.floor(start)
	}

	if pred != nil && pred.startAddress()+pred.size != start {
		pred = nil
	}

	switch {
	case pred != nil && succ != nil:
		m.removeFromSizeTree(pred)
		m.removeBoth(succ)
		pred.size += size + succ.size
		m.addToSizeTree(pred)
		m.contChunks--
		m.markCanary(pred)
	case pred != nil:
		m.removeFromSizeTree(pred)
		pred.size += size
		m.addToSizeTree(pred)
		m.markCanary(pred)
	case succ != nil:
		m.removeFromSizeTree(succ)
		newBlock := createFreeBlock(start, size+succ.size)
		m.addrTree.replace(succ, newBlock)
		m.addToSizeTree(newBlock)
		m.markCanary(newBlock)
	default:
		newBlock := createFreeBlock(start, size)
		m.contChunks++
		m.add(newBlock)
		m.markCanary(newBlock)
	}

	return nil
}

// grow extends an allocation in place by consuming its immediate
// address-adjacent successor, if one exists and is large enough
// (spec §4.1, §9 Open Question "grow return-value/side-effect split").
func (m *freeBlockManager) grow(start, oldBlocks, newBlocks uintptr) bool {
	oldSize := oldBlocks << m.blockBits
	addBlocks := newBlocks - oldBlocks
	additionalSpace := addBlocks << m.blockBits
	end := start + oldSize

	extBlock := m.addrTree.search(end)
	if extBlock == nil || extBlock.size < additionalSpace {
		return false
	}

	diff := extBlock.size - additionalSpace
	if diff > 0 {
		m.removeFromSizeTree(extBlock)
		newBlock := createFreeBlock(end+additionalSpace, diff)
		m.addrTree.replace(extBlock, newBlock)
		m.addToSizeTree(newBlock)
		m.markCanary(newBlock)
	} else {
		m.removeBoth(extBlock)
		m.contChunks--
	}

	m.freeBlocks -= addBlocks

	return true
}

// allocLargest returns the single largest free run, rounded down to
// minAlign and at least *minBlocks, updating *minBlocks to the actual
// size obtained. Used by the heap façade to return whole pages to the OS
// (spec §4.4).
func (m *freeBlockManager) allocLargest(minAlign uintptr, minBlocks *uintptr) (uintptr, bool) {
	minSize := *minBlocks << m.blockBits

	block := m.sizeTree.max()
	if block == nil || block.size < minSize {
		return 0, false
	}

	start := block.startAddress()
	alignStart := alignUp(start, minAlign)
	alignWaste := alignStart - start

	if block.size <= alignWaste {
		return 0, false
	}

	remainSize := (block.size - alignWaste) &^ (minAlign - 1)
	if remainSize < minSize {
		return 0, false
	}

	remainBlocks := remainSize >> m.blockBits
	out := m.doAlignmentSplit(block, minAlign, remainSize)
	*minBlocks = remainBlocks
	m.freeBlocks -= remainBlocks

	return out, true
}

func (m *freeBlockManager) freeCount() uintptr { return m.freeBlocks }
func (m *freeBlockManager) contBlockCount() uintptr { return m.contChunks }

// iterate walks free regions in address order, stopping early if fn
// returns false.
func (m *freeBlockManager) iterate(fn func(start, blocks uintptr) bool) {
	for b := m.addrTree.min(); b != nil; b = m.addrTree.next(b) {
		if !fn(b.startAddress(), b.size>>m.blockBits) {
			break
		}
	}
}

// iterateSizeReverse walks distinct size-tree representatives from
// largest to smallest (ring members are not visited individually).
func (m *freeBlockManager) iterateSizeReverse(fn func(start, blocks uintptr) bool) {
	for b := m.sizeTree.max(); b != nil; b = m.sizeTree.prev(b) {
		if !fn(b.startAddress(), b.size>>m.blockBits) {
			break
		}
	}
}

// benchCleanup discards every free block except the single largest,
// which is kept as the sole free region. Intended for benchmark setup
// between iterations, never for production use.
func (m *freeBlockManager) benchCleanup() {
	var largestStart, largestSize uintptr

	for b := m.addrTree.min(); b != nil; b = m.addrTree.next(b) {
		if b.size > largestSize {
			largestSize = b.size
			largestStart = b.startAddress()
		}
	}

	if largestStart == 0 {
		return
	}

	m.addrTree = newRBTree(addrLinksOf, keyByAddr)
	m.sizeTree = newRBTree(sizeLinksOf, keyBySize)
	m.freeBlocks = 0
	m.contChunks = 0

	_ = m.free(largestStart, largestSize>>m.blockBits)
}

// check verifies both trees' red-black invariants, every ring's uniform
// size, canaries (when enabled), and that freeBlocks/contChunks match
// what the trees actually contain (spec §8 invariants).
func (m *freeBlockManager) check() bool {
	if m.canaryStrength != CanaryNone {
		var walk func(n *freeBlock) bool

		walk = func(n *freeBlock) bool {
			if n == nil {
				return true
			}

			if !n.checkCanary(m.canaryStrength) {
				return false
			}

			return walk(m.addrTree.right(n)) && walk(m.addrTree.left(n))
		}

		if !walk(m.addrTree.root) {
			return false
		}
	}

	if !m.addrTree.check() || !m.sizeTree.check() {
		return false
	}

	var count uintptr

	for b := m.sizeTree.min(); b != nil; b = m.sizeTree.next(b) {
		count += b.size >> m.blockBits

		if b.headNext != 0 {
			size := b.size
			head := ptrFromUintptr(b.headNext)
			ringElem := head

			for {
				if ringElem.size != size {
					return false
				}

				count += ringElem.size >> m.blockBits

				ringElem = ringElem.ring.next
				if ringElem == head {
					break
				}
			}
		}
	}

	if count != m.freeBlocks {
		return false
	}

	var chunks uintptr

	for b := m.addrTree.min(); b != nil; b = m.addrTree.next(b) {
		chunks++

		_ = b
	}

	return chunks == m.contChunks
}
