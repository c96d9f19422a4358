package allocator

// POSIX-style entry points layered over a package-global Heap, in the
// same spirit as malloc.c's posix_memalign/calloc/valloc/pvalloc/
// aligned_alloc wrapping the process's malloc/memalign.

import (
	"unsafe"

	"github.com/orizon-lang/treealloc/internal/errors"
)

// GlobalHeap is the default process-wide heap, created at package init,
// that the package-level convenience functions and POSIX shims operate on.
var GlobalHeap *Heap

// Initialize (re)creates GlobalHeap with the given options, mirroring
// this lineage's Initialize(kind, ...Option) entry point.
func Initialize(opts ...Option) error {
	h, err := NewHeap(opts...)
	if err != nil {
		return err
	}

	GlobalHeap = h

	return nil
}

func init() {
	// A zero-config heap is always available; callers that need custom
	// knobs call Initialize before their first allocation.
	h, err := NewHeap()
	if err != nil {
		panic(err)
	}

	GlobalHeap = h
}

const posixEInval = 22
const posixENoMem = 12

// PosixMemalign mirrors posix_memalign(3): alignment must be a
// power-of-two multiple of sizeof(uintptr); returns a POSIX errno-style
// int rather than a Go error, matching the C shim it's grounded on.
func PosixMemalign(alignment, size uintptr) (unsafe.Pointer, int) {
	if alignment%unsafe.Sizeof(uintptr(0)) != 0 {
		return nil, posixEInval
	}

	if alignment == 0 || (alignment&(alignment-1)) != 0 {
		return nil, posixEInval
	}

	if size == 0 {
		return nil, 0
	}

	out, err := GlobalHeap.AllocAligned(alignment, size)
	if err != nil || out == nil {
		return nil, posixENoMem
	}

	return out, 0
}

// Calloc mirrors calloc(3): nmemb*size is overflow-checked before the
// multiplication is trusted, and the region is zeroed before return.
func Calloc(nmemb, size uintptr) (unsafe.Pointer, error) {
	fullSize := nmemb * size
	if size != 0 && fullSize/size != nmemb {
		return nil, errors.IntegerOverflow("Calloc", nmemb, size)
	}

	out, err := GlobalHeap.Alloc(fullSize)
	if err != nil || out == nil {
		return out, err
	}

	zero := unsafe.Slice((*byte)(out), fullSize)
	for i := range zero {
		zero[i] = 0
	}

	return out, nil
}

// Valloc mirrors valloc(3): page-aligned allocation.
func Valloc(size uintptr) (unsafe.Pointer, error) {
	out, code := PosixMemalign(GlobalHeap.cfg.PageSize, size)
	if code != 0 {
		return nil, errors.InvalidSize(size, "Valloc")
	}

	return out, nil
}

// Pvalloc mirrors pvalloc(3): like Valloc but rounds size up to a whole
// number of pages first.
func Pvalloc(size uintptr) (unsafe.Pointer, error) {
	ps := GlobalHeap.cfg.PageSize

	rem := size % ps

	allocSize := size
	if rem != 0 {
		allocSize = ps + (size - rem)
	}

	out, code := PosixMemalign(ps, allocSize)
	if code != 0 {
		return nil, errors.InvalidSize(size, "Pvalloc")
	}

	return out, nil
}

// AlignedAlloc mirrors aligned_alloc(3): alignment must not exceed size
// and must evenly divide it.
func AlignedAlloc(alignment, size uintptr) (unsafe.Pointer, error) {
	if alignment > size {
		return nil, errors.InvalidSize(alignment, "AlignedAlloc: alignment must not exceed size")
	}

	if size%alignment != 0 {
		return nil, errors.InvalidSize(size, "AlignedAlloc: size must be a multiple of alignment")
	}

	out, code := PosixMemalign(alignment, size)
	if code != 0 {
		return nil, errors.InvalidSize(size, "AlignedAlloc")
	}

	return out, nil
}

// Alloc, Free, Realloc, and GetStats are the package-level convenience
// wrappers over GlobalHeap, matching this lineage's global
// Alloc/Free/Realloc/GetStats functions.

func Alloc(size uintptr) (unsafe.Pointer, error) { return GlobalHeap.Alloc(size) }

func Free(ptr unsafe.Pointer) error { return GlobalHeap.Free(ptr) }

func Realloc(ptr unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	return GlobalHeap.Realloc(ptr, size)
}

func GetStats() (*AllocatorStats, error) { return GlobalHeap.Stats() }
