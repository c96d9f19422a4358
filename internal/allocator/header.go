package allocator

// headerWrapper turns the block-granularity freeBlockManager into a
// byte-granularity allocator by prefixing every allocation with a small
// fixed header that records where the backing blocks actually start and
// how many of them were reserved. This mirrors WrapperAllocator: a thin
// layer, not a second free-space index.

import (
	"unsafe"

	"github.com/orizon-lang/treealloc/internal/errors"
)

// rawBlockAllocator is the block-granularity contract headerWrapper
// needs. *freeBlockManager satisfies it; tests substitute a gomock
// double (see header_test.go) to drive the grow/alloc/free edge cases
// without needing real mmap'd memory.
type rawBlockAllocator interface {
	alloc(blocks uintptr) (uintptr, bool)
	free(start, blocks uintptr) error
	grow(start, oldBlocks, newBlocks uintptr) bool
	getBlockBits() uintptr
}

func (m *freeBlockManager) getBlockBits() uintptr { return m.blockBits }

// memHeader sits immediately before every user pointer. The trailing
// padding word keeps sizeof(memHeader) a multiple of headerAlignment so
// the header itself never straddles a cache-line boundary awkwardly.
type memHeader struct {
	canary uintptr
	start  uintptr
	blocks uintptr
	_      uintptr
}

const headerAlignment = 2 * unsafe.Sizeof(uintptr(0))

func headerSize() uintptr { return unsafe.Sizeof(memHeader{}) }

func headerAt(addr uintptr) *memHeader { return (*memHeader)(unsafe.Pointer(addr)) } //nolint:govet

func (h *memHeader) calcCanary(strength CanaryStrength) uintptr {
	return computeCanary(h.start, h.blocks, strength)
}

func (h *memHeader) applyCanary(strength CanaryStrength) { h.canary = h.calcCanary(strength) }

func (h *memHeader) checkCanary(strength CanaryStrength) bool {
	return h.canary == h.calcCanary(strength)
}

type headerWrapper struct {
	raw            rawBlockAllocator
	canaryStrength CanaryStrength
}

func newHeaderWrapper(raw rawBlockAllocator, strength CanaryStrength) *headerWrapper {
	return &headerWrapper{raw: raw, canaryStrength: strength}
}

func (w *headerWrapper) overhead() uintptr { return headerSize() }

func (w *headerWrapper) blockSize() uintptr { return uintptr(1) << w.raw.getBlockBits() }

func (w *headerWrapper) markCanary(h *memHeader) {
	if w.canaryStrength != CanaryNone {
		h.applyCanary(w.canaryStrength)
	}
}

func (w *headerWrapper) checkHeader(h *memHeader) error {
	if w.canaryStrength != CanaryNone && !h.checkCanary(w.canaryStrength) {
		return errors.PointerArithmetic("allocation header canary mismatch")
	}

	return nil
}

// alloc reserves at least size bytes plus header overhead, rounded up
// to whole blocks, and returns the address just past the header.
func (w *headerWrapper) alloc(size uintptr) (uintptr, bool) {
	if size == 0 {
		return 0, false
	}

	blockBits := w.raw.getBlockBits()
	blockSize := uintptr(1) << blockBits
	nBlocks := alignUp(size+headerSize(), blockSize) >> blockBits

	rawMem, ok := w.raw.alloc(nBlocks)
	if !ok {
		return 0, false
	}

	header := headerAt(rawMem)
	header.start = rawMem
	header.blocks = nBlocks
	w.markCanary(header)

	return rawMem + headerSize(), true
}

// writeAlignedHeader places a header just before alignedChunk such that
// alignedChunk itself satisfies alignment, recording rawMem (the true
// block start) so free/realloc can still hand the whole run back.
func (w *headerWrapper) writeAlignedHeader(alignment, rawMem, size uintptr) uintptr {
	blockBits := w.raw.getBlockBits()
	nBlocks := size >> blockBits

	alignedChunk := alignUp(rawMem+headerSize(), alignment)

	header := headerAt(alignedChunk - headerSize())
	header.start = rawMem
	header.blocks = nBlocks
	w.markCanary(header)

	return alignedChunk
}

// allocAligned reserves size bytes at the given power-of-two alignment,
// over-requesting by alignment-1 bytes of slack for the header to slide
// within (spec §5 edge cases).
func (w *headerWrapper) allocAligned(alignment, size uintptr) (uintptr, bool) {
	if size == 0 || alignment == 0 || (alignment&(alignment-1)) != 0 {
		return 0, false
	}

	if alignment <= headerSize() {
		return w.alloc(size)
	}

	blockBits := w.raw.getBlockBits()
	blockSize := uintptr(1) << blockBits
	nBlocks := alignUp(size+headerSize()+(alignment-1), blockSize) >> blockBits

	chunk, ok := w.raw.alloc(nBlocks)
	if !ok {
		return 0, false
	}

	return w.writeAlignedHeader(alignment, chunk, nBlocks*blockSize), true
}

func copyRaw(dst, src, n uintptr) {
	if n == 0 {
		return
	}

	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n) //nolint:govet
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), n) //nolint:govet
	copy(dstSlice, srcSlice)
}

// realloc grows or shrinks an existing allocation, preferring an
// in-place grow via the block allocator's grow() and only falling back
// to alloc+copy+free when the successor run isn't big enough
// (spec §5, §9 decided Open Question on grow()'s control flow).
func (w *headerWrapper) realloc(ptr, size uintptr) (uintptr, bool, error) {
	if ptr == 0 {
		out, ok := w.alloc(size)
		return out, ok, nil
	}

	if size == 0 {
		return 0, true, w.free(ptr)
	}

	header := headerAt(ptr - headerSize())
	if err := w.checkHeader(header); err != nil {
		return 0, false, err
	}

	blockBits := w.raw.getBlockBits()
	blockSize := uintptr(1) << blockBits

	end := header.start + header.blocks*blockSize
	oldSize := end - ptr

	if size > oldSize {
		additionalBytes := size - oldSize
		additionalBlocks := alignUp(additionalBytes, blockSize) >> blockBits

		if w.raw.grow(header.start, header.blocks, header.blocks+additionalBlocks) {
			header.blocks += additionalBlocks
			w.markCanary(header)

			return ptr, true, nil
		}

		mem, ok := w.alloc(size)
		if !ok {
			return 0, false, nil
		}

		copyRaw(mem, ptr, oldSize)

		if err := w.free(ptr); err != nil {
			return 0, false, err
		}

		return mem, true, nil
	}

	unneededBytes := oldSize - size
	if unneededBytes > blockSize {
		unneededBlocks := unneededBytes >> blockBits
		newEnd := end - unneededBlocks*blockSize

		if err := w.raw.free(newEnd, unneededBlocks); err != nil {
			return 0, false, err
		}

		header.blocks -= unneededBlocks
		w.markCanary(header)
	}

	return ptr, true, nil
}

func (w *headerWrapper) free(ptr uintptr) error {
	if ptr == 0 {
		return errors.NullPointer("headerWrapper.free")
	}

	header := headerAt(ptr - headerSize())
	if err := w.checkHeader(header); err != nil {
		return err
	}

	return w.raw.free(header.start, header.blocks)
}

func (w *headerWrapper) getUserSize(ptr uintptr) (uintptr, error) {
	if ptr == 0 {
		return 0, errors.NullPointer("headerWrapper.getUserSize")
	}

	header := headerAt(ptr - headerSize())
	if err := w.checkHeader(header); err != nil {
		return 0, err
	}

	overheadBytes := ptr - header.start
	totalSize := header.blocks << w.raw.getBlockBits()

	return totalSize - overheadBytes, nil
}
