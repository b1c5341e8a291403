// Package process provides interfaces and types for inspecting another
// process's address space.
package process

import "errors"

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrProcessUnavailable is returned when the target process does not exist
	// or cannot be inspected (permission denied).
	ErrProcessUnavailable = errors.New("process unavailable")

	// ErrProcessAccess is returned when a read or write faults inside an
	// otherwise open process, e.g. the process exited between check and access.
	ErrProcessAccess = errors.New("process access error")

	// ErrRegionNotWritable is returned by WriteMemory when the region holding
	// the destination has no write permission.
	ErrRegionNotWritable = errors.New("memory region not writable")
)
