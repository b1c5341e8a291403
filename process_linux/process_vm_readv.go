//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"nesram/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(
	pid process.ProcessID,
	remoteAddr process.ProcessMemoryAddress,
	bytesToRead process.ProcessMemorySize,
) ([]byte, error) {
	localBuf := make([]byte, bytesToRead)
	if bytesToRead == 0 {
		return localBuf, nil
	}

	// Create iovec for local buffer
	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(int(bytesToRead))

	// Create iovec for remote buffer
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  int(bytesToRead),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return nil, classifyErrno("process_vm_readv", errno)
	}

	// a short read means the tail of the range was unmapped under us
	if int(n) != int(bytesToRead) {
		return localBuf[:n], fmt.Errorf("%w: partial read: %d of %d bytes", process.ErrProcessAccess, n, bytesToRead)
	}

	return localBuf, nil
}

// classifyErrno separates "the process is gone or off limits" from faults
// inside a live process.
func classifyErrno(op string, errno unix.Errno) error {
	switch errno {
	case unix.ESRCH, unix.EPERM:
		return fmt.Errorf("%w: %s failed: %w", process.ErrProcessUnavailable, op, errno)
	default:
		return fmt.Errorf("%w: %s failed: %w", process.ErrProcessAccess, op, errno)
	}
}

// ReadMemory reads memory from the process at the specified address
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()
	pid := p.pid
	valid := p.isValidAddressInternal(addr)
	// Release the lock before the system call
	p.mu.Unlock()

	if pid == 0 {
		return nil, process.ErrProcessNotOpen
	}
	if !valid {
		return nil, process.ErrAddressNotMapped
	}

	data, err := process_vm_readv(pid, addr, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read process memory at %s: %w", addr.ToString(), err)
	}

	return data, nil
}
