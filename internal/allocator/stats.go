package allocator

// AllocatorStats mirrors the shape the rest of this lineage's
// allocators expose (TotalAllocated/TotalFreed/ActiveAllocations/...),
// adapted to what a tree block allocator can report.

import (
	"github.com/tiendc/go-deepcopy"
	"gopkg.in/yaml.v3"
)

type AllocatorStats struct {
	TotalAllocated    uintptr `yaml:"total_allocated"`
	TotalFreed        uintptr `yaml:"total_freed"`
	ActiveAllocations uintptr `yaml:"active_allocations"`
	FreeBlocks        uintptr `yaml:"free_blocks"`
	ContiguousChunks  uintptr `yaml:"contiguous_chunks"`
	BlockSize         uintptr `yaml:"block_size"`
	MappedBytes       uintptr `yaml:"mapped_bytes"`
	RefillCount       uintptr `yaml:"refill_count"`
	ReleaseCount      uintptr `yaml:"release_count"`
}

// snapshot returns a deep copy of s so callers can retain it across
// further allocator activity without racing the live counters.
func (s *AllocatorStats) snapshot() (*AllocatorStats, error) {
	out := &AllocatorStats{}
	if err := deepcopy.Copy(out, s); err != nil {
		return nil, err
	}

	return out, nil
}

// DumpYAML renders the stats as YAML, the format cmd/treealloc-bench
// uses for its --dump output.
func (s *AllocatorStats) DumpYAML() (string, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
