// Package candidate narrows a process memory map down to the regions that
// could hold an emulator's RAM array.
package candidate

import (
	"iter"
	"slices"

	"nesram/process/memory_map"
)

const (
	DefaultMinSize = 0x800
	DefaultMaxSize = 0x10000000
)

// Filter keeps private, anonymous, read-write regions within a size range.
type Filter struct {
	MinSize          uint
	MaxSize          uint
	RequirePrivate   bool
	RequireAnonymous bool
}

// Default is the filter used for discovery.
func Default() Filter {
	return Filter{
		MinSize:          DefaultMinSize,
		MaxSize:          DefaultMaxSize,
		RequirePrivate:   true,
		RequireAnonymous: true,
	}
}

// Reason returns why item is rejected, or "" when it is kept.
func (f Filter) Reason(item memory_map.MemoryMapItem) string {
	switch {
	case !item.IsReadable() || !item.IsWritable():
		return "not rw"
	case f.RequirePrivate && !item.IsPrivate():
		return "shared"
	case f.RequireAnonymous && !item.IsAnonymous():
		return "not anonymous"
	case item.Size < f.MinSize:
		return "too small"
	case f.MaxSize > 0 && item.Size > f.MaxSize:
		return "too large"
	}
	return ""
}

func (f Filter) Keep(item memory_map.MemoryMapItem) bool {
	return f.Reason(item) == ""
}

// Apply yields the regions of seq that pass the filter, in order.
func (f Filter) Apply(seq iter.Seq[memory_map.MemoryMapItem]) iter.Seq[memory_map.MemoryMapItem] {
	return func(yield func(memory_map.MemoryMapItem) bool) {
		for item := range seq {
			if !f.Keep(item) {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

// Collect is Apply gathered into a slice.
func (f Filter) Collect(seq iter.Seq[memory_map.MemoryMapItem]) []memory_map.MemoryMapItem {
	return slices.Collect(f.Apply(seq))
}
