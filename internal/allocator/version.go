package allocator

// ABIVersion identifies the on-disk/in-memory layout this build of the
// allocator uses for its descriptors (freeBlock, memHeader). It has no
// bearing on correctness within a single process; Heap.CheckABICompatible
// checks a semver constraint against it. This package does not save or
// load heap dumps itself.

import "github.com/Masterminds/semver/v3"

const abiVersionString = "1.0.0"

// ABIVersion is parsed once at init time; a malformed constant is a
// programmer error worth failing fast on.
var ABIVersion = semver.MustParse(abiVersionString)
