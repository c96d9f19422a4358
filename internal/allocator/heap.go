package allocator

// Heap is the top-level façade: it owns the single lock every public
// entry point takes, refills the free-block manager from the OS on a
// miss, and releases whole pages back to the OS on free. This mirrors
// the malloc/memalign/free/realloc functions in treealloc.cc, which
// thread the same refill-then-retry and release-after-free logic around
// a raw block allocator and a thin header wrapper.

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/orizon-lang/treealloc/internal/errors"
)

type allocationInfo struct {
	id         uuid.UUID
	size       uintptr
	stackTrace []uintptr
}

// Heap is safe for concurrent use; every exported method that reads or
// changes allocator state takes cfg.Locker for its duration
// (CheckABICompatible touches no such state and takes no lock).
type Heap struct {
	cfg     *Config
	raw     *freeBlockManager
	wrapper *headerWrapper
	guard   reentrancyGuard

	active map[uintptr]*allocationInfo

	stats AllocatorStats
}

// NewHeap constructs an empty heap; no memory is mapped from the OS
// until the first allocation misses.
func NewHeap(opts ...Option) (*Heap, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Locker == nil {
		cfg.Locker = newMutexLocker()
	}

	if cfg.OS == nil {
		cfg.OS = realOS{}
	}

	var probe freeBlock
	if uintptr(1)<<cfg.BlockBits < unsafe.Sizeof(probe) {
		return nil, errors.InvalidSize(uintptr(1)<<cfg.BlockBits,
			fmt.Sprintf("Config.BlockBits: block size must be >= %d bytes", unsafe.Sizeof(probe)))
	}

	raw := newFreeBlockManager(cfg.BlockBits, cfg.CanaryStrength)
	wrapper := newHeaderWrapper(raw, cfg.CanaryStrength)

	h := &Heap{
		cfg:     cfg,
		raw:     raw,
		wrapper: wrapper,
		active:  make(map[uintptr]*allocationInfo),
		stats:   AllocatorStats{BlockSize: uintptr(1) << cfg.BlockBits},
	}

	return h, nil
}

func (h *Heap) lock() {
	if !h.guard.enter() {
		panic(errors.NewStandardError(errors.CategorySystem, "REENTRANT_CALL",
			"Heap entry point called reentrantly from the same goroutine", nil))
	}

	h.cfg.Locker.Lock()
}

func (h *Heap) unlock() {
	h.guard.exit()
	h.cfg.Locker.Unlock()
}

// refill maps at least minSize bytes (rounded up to a page, and to
// MinBlockAlloc) from the OS and seeds them into the free-block
// manager, mirroring the mem_map + blockAllocator.free(pages, ...)
// sequence in malloc()/memalign().
func (h *Heap) refill(minSize uintptr) error {
	allocSize := alignUp(minSize, h.cfg.PageSize)
	if allocSize < h.cfg.MinBlockAlloc {
		allocSize = h.cfg.MinBlockAlloc
	}

	addr, err := h.cfg.OS.mapPages(allocSize)
	if err != nil {
		return err
	}

	blocks := allocSize >> h.raw.blockBits
	if err := h.raw.free(addr, blocks); err != nil {
		return err
	}

	h.stats.MappedBytes += allocSize
	h.stats.RefillCount++

	return h.debugCheck()
}

// release gives whole pages back to the OS after a free, looping
// allocLargest the same way free() does in treealloc.cc.
func (h *Heap) release() error {
	for {
		minBlocks := h.cfg.MinBlockAlloc >> h.raw.blockBits

		addr, ok := h.raw.allocLargest(h.cfg.PageSize, &minBlocks)
		if !ok {
			break
		}

		size := minBlocks << h.raw.blockBits
		if err := h.cfg.OS.unmapPages(addr, size); err != nil {
			return err
		}

		h.stats.MappedBytes -= size
		h.stats.ReleaseCount++
	}

	return h.debugCheck()
}

// reclaimIdleChunks runs the release pass on demand without tearing down
// the Heap value, grounded on TreeBlockAllocator.h's benchCleanup;
// unlike benchCleanup it actually unmaps memory rather than discarding
// bookkeeping, since the OS collaborator must agree about what it thinks
// is mapped. Only page-aligned free runs of at least MinBlockAlloc bytes
// are unmapped; smaller free runs stay with the free-block manager.
func (h *Heap) reclaimIdleChunks() error {
	h.lock()
	defer h.unlock()

	return h.release()
}

// debugCheck runs the free-block manager's consistency checker when
// Config.Debug is set, panicking on the first violation found.
func (h *Heap) debugCheck() error {
	if h.cfg.Debug && !h.raw.check() {
		panic(errors.NewStandardError(errors.CategoryMemory, "CONSISTENCY_VIOLATION",
			"free-block manager failed its internal consistency check", nil))
	}

	return nil
}

func (h *Heap) trackAllocation(addr, size uintptr) {
	info := &allocationInfo{id: uuid.New(), size: size}

	if h.cfg.EnableLeakCheck {
		var pcs [32]uintptr

		n := runtime.Callers(3, pcs[:])
		info.stackTrace = pcs[:n]
	}

	h.active[addr] = info
	h.stats.TotalAllocated += size
	h.stats.ActiveAllocations++
}

func (h *Heap) untrackAllocation(addr uintptr) uintptr {
	info, ok := h.active[addr]
	if !ok {
		return 0
	}

	delete(h.active, addr)
	h.stats.TotalFreed += info.size
	h.stats.ActiveAllocations--

	return info.size
}

// allocLocked is Alloc's body without taking the lock; Realloc's
// ptr==nil case reuses it directly to avoid relocking.
func (h *Heap) allocLocked(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}

	addr, ok := h.wrapper.alloc(size)
	if !ok {
		if err := h.refill(size + h.wrapper.overhead()); err != nil {
			return nil, err
		}

		addr, ok = h.wrapper.alloc(size)
		if !ok {
			return nil, errors.InvalidSize(size, "Heap.Alloc: allocation failed after refill")
		}
	}

	h.trackAllocation(addr, size)

	return unsafe.Pointer(addr), nil //nolint:govet
}

// Alloc reserves size bytes, growing the heap from the OS if the
// current free space can't satisfy the request (spec §5, §8 scenario 1).
func (h *Heap) Alloc(size uintptr) (unsafe.Pointer, error) {
	h.lock()
	defer h.unlock()

	return h.allocLocked(size)
}

// AllocAligned reserves size bytes aligned to a power-of-two boundary
// (spec §5 edge cases).
func (h *Heap) AllocAligned(alignment, size uintptr) (unsafe.Pointer, error) {
	h.lock()
	defer h.unlock()

	if size == 0 {
		return nil, nil
	}

	if alignment == 0 || (alignment&(alignment-1)) != 0 {
		return nil, errors.InvalidSize(alignment, "Heap.AllocAligned: alignment must be a power of two")
	}

	addr, ok := h.wrapper.allocAligned(alignment, size)
	if !ok {
		need := size + h.wrapper.overhead() + (alignment - 1)
		if err := h.refill(need); err != nil {
			return nil, err
		}

		addr, ok = h.wrapper.allocAligned(alignment, size)
		if !ok {
			return nil, errors.InvalidSize(size, "Heap.AllocAligned: allocation failed after refill")
		}
	}

	h.trackAllocation(addr, size)

	return unsafe.Pointer(addr), nil //nolint:govet
}

func (h *Heap) freeLocked(addr uintptr) error {
	if addr == 0 {
		return nil
	}

	h.untrackAllocation(addr)

	if err := h.wrapper.free(addr); err != nil {
		return err
	}

	return h.release()
}

// Free releases an allocation obtained from Alloc/AllocAligned/Realloc.
// A nil pointer is a silent no-op, matching free(NULL) (spec §5).
func (h *Heap) Free(ptr unsafe.Pointer) error {
	h.lock()
	defer h.unlock()

	return h.freeLocked(uintptr(ptr)) //nolint:govet
}

// Realloc resizes an existing allocation, preferring an in-place grow
// and falling back to alloc+copy+free (spec §5, §8 scenario 3).
func (h *Heap) Realloc(ptr unsafe.Pointer, size uintptr) (unsafe.Pointer, error) {
	h.lock()
	defer h.unlock()

	addr := uintptr(ptr) //nolint:govet

	if addr == 0 {
		return h.allocLocked(size)
	}

	if size == 0 {
		return nil, h.freeLocked(addr)
	}

	prev := h.active[addr]

	newAddr, ok, err := h.wrapper.realloc(addr, size)
	if err != nil {
		return nil, err
	}

	if !ok {
		if err := h.refill(size + h.wrapper.overhead()); err != nil {
			return nil, err
		}

		newAddr, ok, err = h.wrapper.realloc(addr, size)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, errors.InvalidSize(size, "Heap.Realloc: allocation failed after refill")
		}
	}

	delete(h.active, addr)

	info := &allocationInfo{id: uuid.New(), size: size}
	if prev != nil {
		info.id = prev.id
	}

	h.active[newAddr] = info
	h.stats.TotalAllocated += size
	h.stats.ActiveAllocations = uintptr(len(h.active))

	return unsafe.Pointer(newAddr), nil //nolint:govet
}

// Stats returns a point-in-time snapshot of the allocator's counters.
func (h *Heap) Stats() (*AllocatorStats, error) {
	h.lock()
	defer h.unlock()

	h.stats.FreeBlocks = h.raw.freeCount()
	h.stats.ContiguousChunks = h.raw.contBlockCount()

	return h.stats.snapshot()
}

// LeakInfo describes one still-outstanding allocation.
type LeakInfo struct {
	ID         uuid.UUID
	Pointer    unsafe.Pointer
	Size       uintptr
	StackTrace []uintptr
}

// CheckLeaks reports every allocation still outstanding. Requires
// WithLeakCheck(true) to have been set; otherwise returns nil.
func (h *Heap) CheckLeaks() []LeakInfo {
	if !h.cfg.EnableLeakCheck {
		return nil
	}

	h.lock()
	defer h.unlock()

	leaks := make([]LeakInfo, 0, len(h.active))
	for addr, info := range h.active {
		leaks = append(leaks, LeakInfo{
			ID:         info.id,
			Pointer:    unsafe.Pointer(addr), //nolint:govet
			Size:       info.size,
			StackTrace: info.stackTrace,
		})
	}

	return leaks
}

// FormatLeaks renders leaks for human consumption.
func FormatLeaks(leaks []LeakInfo) string {
	if len(leaks) == 0 {
		return "No memory leaks detected"
	}

	result := fmt.Sprintf("Detected %d memory leaks:\n", len(leaks))

	for i, leak := range leaks {
		result += fmt.Sprintf("  Leak %d (%s): %d bytes at %p\n", i+1, leak.ID, leak.Size, leak.Pointer)

		if len(leak.StackTrace) > 0 {
			result += "    Stack trace:\n"
			frames := runtime.CallersFrames(leak.StackTrace)

			for {
				frame, more := frames.Next()
				result += fmt.Sprintf("      %s:%d %s\n", frame.File, frame.Line, frame.Function)

				if !more {
					break
				}
			}
		}
	}

	return result
}

// Check runs the free-block manager's internal consistency checker
// (spec §8 invariants); intended for tests and the --check flag of
// cmd/treealloc-bench, not the hot path.
func (h *Heap) Check() bool {
	h.lock()
	defer h.unlock()

	return h.raw.check()
}

// Destroy unmaps every currently-free run of pages this heap obtained
// from the OS. Outstanding allocations are not reclaimed - freeing them
// first is the caller's responsibility, exactly as with any malloc
// implementation at process teardown.
func (h *Heap) Destroy() error {
	h.lock()
	defer h.unlock()

	var regions []mappedRegion

	h.raw.iterate(func(start, blocks uintptr) bool {
		regions = append(regions, mappedRegion{start: start, size: blocks << h.raw.blockBits})
		return true
	})

	for _, r := range regions {
		if err := h.cfg.OS.unmapPages(r.start, r.size); err != nil {
			return err
		}
	}

	return nil
}

type mappedRegion struct {
	start, size uintptr
}

// CheckABICompatible reports whether constraint (a semver constraint
// string, e.g. "^1.0.0") is satisfied by the running build's ABIVersion,
// letting an embedder sharing a dumped heap across builds assert layout
// compatibility before trusting it.
func (h *Heap) CheckABICompatible(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}

	return c.Check(ABIVersion), nil
}

// IterateFree walks free regions in address order, stopping early if fn
// returns false (spec §9 debug iteration).
func (h *Heap) IterateFree(fn func(start, size uintptr) bool) {
	h.lock()
	defer h.unlock()

	h.raw.iterate(func(start, blocks uintptr) bool {
		return fn(start, blocks<<h.raw.blockBits)
	})
}

// IterateSizeReverse walks distinct free-run sizes from largest to
// smallest, stopping early if fn returns false (spec §9 debug iteration).
func (h *Heap) IterateSizeReverse(fn func(start, size uintptr) bool) {
	h.lock()
	defer h.unlock()

	h.raw.iterateSizeReverse(func(start, blocks uintptr) bool {
		return fn(start, blocks<<h.raw.blockBits)
	})
}
