//go:build linux

package memory_map

import (
	"fmt"
	"iter"
	"os"
	"slices"
)

// LinuxMemoryMap implements MemoryMap for Linux
type LinuxMemoryMap struct{}

// NewLinuxMemoryMap creates a new LinuxMemoryMap instance
func NewLinuxMemoryMap() *LinuxMemoryMap {
	return &LinuxMemoryMap{}
}

// ReadMemoryMap reads and parses the memory map for a process from /proc/[pid]/maps
func (l *LinuxMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	regions, err := l.Regions(pid)
	if err != nil {
		return nil, err
	}
	return slices.Collect(regions), nil
}

// Regions snapshots /proc/[pid]/maps and returns a sequence that parses it
// on demand.
func (l *LinuxMemoryMap) Regions(pid int) (iter.Seq[MemoryMapItem], error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	return Parse(data), nil
}
