package engine

import (
	"fmt"
	"iter"
	"slices"

	"nesram/process"
	"nesram/process/memory_map"
)

// Enumerate refreshes proc's memory map and yields its regions in address
// order.
func Enumerate(proc process.Process) (iter.Seq[memory_map.MemoryMapItem], error) {
	if err := proc.UpdateMemoryMap(); err != nil {
		return nil, fmt.Errorf("enumerating regions: %w", err)
	}

	mm, err := proc.GetMemoryMap()
	if err != nil {
		return nil, fmt.Errorf("enumerating regions: %w", err)
	}

	return slices.Values(mm), nil
}
