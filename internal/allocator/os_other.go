//go:build !unix

package allocator

import "github.com/orizon-lang/treealloc/internal/errors"

// Non-unix platforms (notably windows) need VirtualAlloc/VirtualFree
// instead of mmap/munmap; that backend isn't wired up yet, so refusing
// to map pages here is the honest answer rather than pretending to
// support a platform the OS collaborator was never ported to.

func mapPages(size uintptr) (uintptr, error) {
	return 0, errors.NewStandardError(errors.CategorySystem, "UNSUPPORTED_PLATFORM",
		"page mapping is only implemented for unix targets", map[string]interface{}{"size": size})
}

func unmapPages(addr, size uintptr) error {
	return errors.NewStandardError(errors.CategorySystem, "UNSUPPORTED_PLATFORM",
		"page mapping is only implemented for unix targets", map[string]interface{}{"addr": addr, "size": size})
}

func pageSize() uintptr { return 4096 }
