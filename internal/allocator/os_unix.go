//go:build unix

package allocator

// mapPages and unmapPages are the only two points where this package
// talks to the kernel. They mirror mem_map/mem_unmap in treealloc.cc,
// swapping the raw mmap/munmap syscalls for golang.org/x/sys/unix so
// the rest of the package can stay free of cgo.

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/orizon-lang/treealloc/internal/errors"
)

func mapPages(size uintptr) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, errors.NewStandardError(errors.CategorySystem, "MMAP_FAILED", err.Error(),
			map[string]interface{}{"size": size})
	}

	// The returned []byte is deliberately not retained: this region is
	// outside the Go heap and its lifetime is ours to manage via
	// unmapPages, not the garbage collector's.
	return uintptr(unsafe.Pointer(&b[0])), nil
}

func unmapPages(addr, size uintptr) error {
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size) //nolint:govet
	if err := unix.Munmap(b); err != nil {
		return errors.NewStandardError(errors.CategorySystem, "MUNMAP_FAILED", err.Error(),
			map[string]interface{}{"addr": addr, "size": size})
	}

	return nil
}

func pageSize() uintptr { return uintptr(unix.Getpagesize()) }
