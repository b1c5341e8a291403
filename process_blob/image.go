package process_blob

import (
	"fmt"
	"slices"
	"sync"

	"nesram/process"
	"nesram/process/memory_map"
)

type region struct {
	item memory_map.MemoryMapItem
	data []byte // nil when the region is mapped but its contents were never captured
}

// ProcessImage implements process.Process over memory held in this process:
// a loaded dump, or a synthetic address space built up in tests. Regions can
// be added, re-protected and removed while the image is in use, and the
// whole image can be killed to look like an exited process.
type ProcessImage struct {
	mu        sync.Mutex
	pid       process.ProcessID
	name      string
	startTime int64
	regions   []*region
	tickers   []process.ProcessMemoryAddress
	killed    bool
}

var _ process.Process = (*ProcessImage)(nil)

// NewProcessImage returns an empty image posing as pid. startTime is part of
// the image's identity, see process.Handle.
func NewProcessImage(pid process.ProcessID, name string, startTime int64) *ProcessImage {
	return &ProcessImage{
		pid:       pid,
		name:      name,
		startTime: startTime,
	}
}

// Handle returns the identity of the image.
func (p *ProcessImage) Handle() process.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return process.Handle{
		PID:       p.pid,
		Name:      p.name,
		StartTime: p.startTime,
		Live:      !p.killed,
	}
}

// AddRegion maps item. A nil data allocates item.Size zero bytes, otherwise
// the region size is taken from data.
func (p *ProcessImage) AddRegion(item memory_map.MemoryMapItem, data []byte) []byte {
	if data == nil {
		data = make([]byte, item.Size)
	} else {
		item.Size = uint(len(data))
	}
	p.addRegion(item, data)
	return data
}

// AddUncaptured maps item without backing data. Reads from it fail the way
// a read of an unreadable mapping does.
func (p *ProcessImage) AddUncaptured(item memory_map.MemoryMapItem) {
	p.addRegion(item, nil)
}

func (p *ProcessImage) addRegion(item memory_map.MemoryMapItem, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.regions = append(p.regions, &region{item: item, data: data})
	slices.SortFunc(p.regions, func(a, b *region) int {
		switch {
		case a.item.Address < b.item.Address:
			return -1
		case a.item.Address > b.item.Address:
			return 1
		}
		return 0
	})
}

// SetPerms changes the permissions of the region starting at addr.
func (p *ProcessImage) SetPerms(addr uint64, perms string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.regions {
		if r.item.Address == addr {
			r.item.Perms = perms
			return nil
		}
	}
	return fmt.Errorf("%w: no region starts at 0x%x", process.ErrAddressNotMapped, addr)
}

// RemoveRegion unmaps the region starting at addr.
func (p *ProcessImage) RemoveRegion(addr uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.regions = slices.DeleteFunc(p.regions, func(r *region) bool {
		return r.item.Address == addr
	})
}

// Kill makes the image behave like a process that has exited.
func (p *ProcessImage) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
}

func (p *ProcessImage) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// AddTicker registers a byte that Tick increments, modelling a frame counter.
func (p *ProcessImage) AddTicker(addr process.ProcessMemoryAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers = append(p.tickers, addr)
}

// RemoveTicker stops Tick from advancing addr.
func (p *ProcessImage) RemoveTicker(addr process.ProcessMemoryAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers = slices.DeleteFunc(p.tickers, func(a process.ProcessMemoryAddress) bool {
		return a == addr
	})
}

// Tick advances every registered ticker by one, wrapping at 256.
func (p *ProcessImage) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return
	}
	for _, addr := range p.tickers {
		if r := p.find(uint64(addr)); r != nil && r.data != nil {
			r.data[uint64(addr)-r.item.Address]++
		}
	}
}

// Poke stores data at addr ignoring region permissions.
func (p *ProcessImage) Poke(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.find(uint64(addr))
	if r == nil || r.data == nil {
		return process.ErrAddressNotMapped
	}
	off := uint64(addr) - r.item.Address
	if off+uint64(len(data)) > uint64(len(r.data)) {
		return fmt.Errorf("%w: poke past end of region 0x%x", process.ErrProcessAccess, r.item.Address)
	}
	copy(r.data[off:], data)
	return nil
}

func (p *ProcessImage) find(addr uint64) *region {
	for _, r := range p.regions {
		if r.item.Contains(addr, 1) {
			return r
		}
	}
	return nil
}

// Close is a no-op: the image's memory belongs to whoever built it.
func (p *ProcessImage) Close() error {
	return nil
}

func (p *ProcessImage) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *ProcessImage) UpdateMemoryMap() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return fmt.Errorf("%w: process %d exited", process.ErrProcessUnavailable, p.pid)
	}
	return nil
}

func (p *ProcessImage) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return nil, fmt.Errorf("%w: process %d exited", process.ErrProcessUnavailable, p.pid)
	}

	result := make([]memory_map.MemoryMapItem, 0, len(p.regions))
	for _, r := range p.regions {
		result = append(result, r.item)
	}
	return result, nil
}

func (p *ProcessImage) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.find(uint64(addr))
	return r != nil && r.item.IsReadable()
}

func (p *ProcessImage) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return nil, fmt.Errorf("%w: process %d exited", process.ErrProcessUnavailable, p.pid)
	}

	r := p.find(uint64(addr))
	if r == nil || !r.item.IsReadable() {
		return nil, process.ErrAddressNotMapped
	}
	if r.data == nil {
		return nil, fmt.Errorf("%w: no data captured for region 0x%x", process.ErrProcessAccess, r.item.Address)
	}

	off := uint64(addr) - r.item.Address
	if off+uint64(size) > uint64(len(r.data)) {
		return nil, fmt.Errorf("%w: read of %d bytes at %s runs past region end", process.ErrProcessAccess, size, addr.ToString())
	}

	result := make([]byte, size)
	copy(result, r.data[off:off+uint64(size)])
	return result, nil
}

func (p *ProcessImage) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.killed {
		return fmt.Errorf("%w: process %d exited", process.ErrProcessUnavailable, p.pid)
	}

	r := p.find(uint64(addr))
	if r == nil || !r.item.IsReadable() {
		return process.ErrAddressNotMapped
	}
	if !r.item.IsWritable() {
		return fmt.Errorf("%w: region at %x (%s)", process.ErrRegionNotWritable, r.item.Address, r.item.Perms)
	}
	if r.data == nil {
		return fmt.Errorf("%w: no data captured for region 0x%x", process.ErrProcessAccess, r.item.Address)
	}

	off := uint64(addr) - r.item.Address
	if off+uint64(len(data)) > uint64(len(r.data)) {
		return fmt.Errorf("%w: write of %d bytes at %s runs past region end", process.ErrProcessAccess, len(data), addr.ToString())
	}

	copy(r.data[off:], data)
	return nil
}
