package process

import (
	"context"

	"nesram/process/memory_map"
)

// Process is the interface that defines operations for interacting with a system process
type Process interface {
	// Close releases resources held for the process
	Close() error

	// GetPID returns the process ID
	GetPID() ProcessID

	// UpdateMemoryMap refreshes the memory map for the process
	UpdateMemoryMap() error

	// GetMemoryMap returns a copy of the current memory map
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// IsValidAddress checks if the given memory address is valid and readable
	IsValidAddress(addr ProcessMemoryAddress) bool

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error
}

// Locator finds the target process and keeps track of whether a previously
// found incarnation is still the one running.
type Locator interface {
	// Locate returns a handle to the target, or ErrProcessUnavailable.
	Locate(ctx context.Context) (Handle, error)

	// Alive reports whether h still refers to a running process. A PID that
	// now belongs to a different process is not alive.
	Alive(ctx context.Context, h Handle) bool

	// Attach opens h for memory access. The caller owns the returned Process
	// and must Close it.
	Attach(h Handle) (Process, error)
}
