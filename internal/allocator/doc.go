// Package allocator implements a general-purpose dynamic memory
// allocator: an intrusive, augmented red-black tree indexes free blocks
// by both start address and size, a header wrapper adds byte-granularity
// allocation on top of the tree's block granularity, and a Heap façade
// refills from and releases memory to the OS.
package allocator
