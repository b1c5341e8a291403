package engine

import (
	"time"

	"nesram/process"
	"nesram/process/memory_map"
)

// WindowSize is the size of the NES work RAM.
const WindowSize = 0x800

// State of the reconnection state machine.
type State int

const (
	Disconnected State = iota
	Discovering
	Bound
	Stale
	ProcessLost
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Discovering:
		return "discovering"
	case Bound:
		return "bound"
	case Stale:
		return "stale"
	case ProcessLost:
		return "process_lost"
	}
	return "unknown"
}

// Binding is where the RAM window lives in the target.
type Binding struct {
	Base         process.ProcessMemoryAddress
	Region       memory_map.MemoryMapItem
	Process      process.Handle
	DiscoveredAt time.Time
}

// Address translates a window offset.
func (b Binding) Address(offset int) process.ProcessMemoryAddress {
	return b.Base + process.ProcessMemoryAddress(offset)
}
