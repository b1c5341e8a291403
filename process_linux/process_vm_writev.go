//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"nesram/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(
	pid process.ProcessID,
	localBuf []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, error) {
	if len(localBuf) == 0 {
		return 0, nil
	}

	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(len(localBuf))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return 0, classifyErrno("process_vm_writev", errno)
	}

	return int(n), nil
}

// WriteMemory writes data to the process memory at the specified address
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()

	if p.pid == 0 {
		p.mu.Unlock()
		return process.ErrProcessNotOpen
	}

	pid := p.pid

	if !p.isValidAddressInternal(addr) {
		p.mu.Unlock()
		return process.ErrAddressNotMapped
	}

	region, isWritable := p.getMemoryRegionForAddress(addr)

	// Release the lock before the system call
	p.mu.Unlock()

	if region == nil {
		return process.ErrAddressNotMapped
	}

	if !isWritable {
		return fmt.Errorf("%w: region at %x (%s)", process.ErrRegionNotWritable, region.Address, region.Perms)
	}

	// Copy so the caller can reuse data while the syscall runs
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	written, err := process_vm_writev(pid, dataCopy, addr)
	if err != nil {
		return fmt.Errorf("failed to write process memory at %s: %w", addr.ToString(), err)
	}

	if written != len(data) {
		return fmt.Errorf("%w: only wrote %d of %d bytes", process.ErrProcessAccess, written, len(data))
	}

	return nil
}
