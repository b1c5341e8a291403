package memory_map

import (
	"bufio"
	"bytes"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 // Offset into the backing file
	Device  string // Backing device (major:minor)
	Inode   uint64 // Backing inode, 0 for anonymous memory
	Path    string // Backing path or pseudo name such as [heap], empty for anonymous memory
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.pathOrAnon())
}

// Line formats the item the way /proc/<pid>/maps does.
func (mmItem MemoryMapItem) Line() string {
	dev := mmItem.Device
	if dev == "" {
		dev = "00:00"
	}
	return fmt.Sprintf("%012x-%012x %s %08x %s %d %s",
		mmItem.Address, mmItem.End(), mmItem.Perms, mmItem.Offset, dev, mmItem.Inode, mmItem.Path)
}

func (mmItem MemoryMapItem) pathOrAnon() string {
	if mmItem.Path == "" {
		return "anonymous"
	}
	return mmItem.Path
}

// End returns the first address past the region.
func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

// Contains reports whether [addr, addr+size) lies inside the region.
func (mmItem MemoryMapItem) Contains(addr uint64, size uint64) bool {
	return addr >= mmItem.Address && addr+size <= mmItem.End() && addr+size >= addr
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return IsReadablePerms(mmItem.Perms)
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return IsWritablePerms(mmItem.Perms)
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return IsExecutablePerms(mmItem.Perms)
}

func (mmItem MemoryMapItem) IsPrivate() bool {
	return IsPrivatePerms(mmItem.Perms)
}

// IsAnonymous reports whether the region has no file behind it. The heap and
// named anonymous mappings count; the stack and kernel pseudo mappings do not.
func (mmItem MemoryMapItem) IsAnonymous() bool {
	if mmItem.Inode != 0 {
		return false
	}
	switch {
	case mmItem.Path == "":
		return true
	case mmItem.Path == "[heap]":
		return true
	case strings.HasPrefix(mmItem.Path, "[anon:"):
		return true
	}
	return false
}

// MemoryMap defines the interface for operations related to a process's memory map
type MemoryMap interface {
	// ReadMemoryMap reads and parses the memory map for a process
	ReadMemoryMap(pid int) ([]MemoryMapItem, error)

	// Regions reads the memory map once and yields its items lazily
	Regions(pid int) (iter.Seq[MemoryMapItem], error)
}

func IsReadablePerms(perms string) bool {
	return len(perms) > 0 && perms[0] == 'r'
}

func IsWritablePerms(perms string) bool {
	return len(perms) > 1 && perms[1] == 'w'
}

func IsExecutablePerms(perms string) bool {
	return len(perms) > 2 && perms[2] == 'x'
}

func IsPrivatePerms(perms string) bool {
	return len(perms) > 3 && perms[3] == 'p'
}

// Helper functions for working with memory maps

// IsValidAddress checks if an address is within a mapped region
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	return GetMemoryRegionForAddress(addr, memoryMap) != nil
}

// IsValidAddress2 is IsValidAddress for a map sorted by address.
func IsValidAddress2(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// GetMemoryRegionForAddress returns the memory region containing an address
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	for i := range memoryMap {
		if addr >= memoryMap[i].Address && addr < memoryMap[i].End() {
			return &memoryMap[i]
		}
	}
	return nil
}

// Parse yields the items of a maps file. Malformed lines are skipped.
func Parse(data []byte) iter.Seq[MemoryMapItem] {
	return func(yield func(MemoryMapItem) bool) {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			item, ok := ParseLine(scanner.Text())
			if !ok {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

// ParseLine parses one line of a maps file, e.g.
//
//	55d0c8a4e000-55d0c8a6f000 rw-p 00000000 00:00 0                          [heap]
func ParseLine(line string) (MemoryMapItem, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return MemoryMapItem{}, false
	}

	// Parse address range (e.g., "00400000-0040b000")
	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return MemoryMapItem{}, false
	}

	startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return MemoryMapItem{}, false
	}

	endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil || endAddr < startAddr {
		return MemoryMapItem{}, false
	}

	item := MemoryMapItem{
		Address: startAddr,
		Size:    uint(endAddr - startAddr),
		Perms:   fields[1],
	}

	if len(fields) > 2 {
		item.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
	}
	if len(fields) > 3 {
		item.Device = fields[3]
	}
	if len(fields) > 4 {
		item.Inode, _ = strconv.ParseUint(fields[4], 10, 64)
	}
	if len(fields) > 5 {
		// paths may contain spaces, e.g. "/tmp/a b (deleted)"
		item.Path = strings.Join(fields[5:], " ")
	}

	return item, true
}
