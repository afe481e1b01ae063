// Package execmem allocates W^X-disciplined executable memory regions
// for loaded module artifacts: writable-and-private until populated, then
// transitioned to executable-and-read-only before the entry point is ever
// invoked, and zeroed before release.
//
// There is no teacher analogue for this concern: a container runtime
// delegates code execution to the OS image format and never manages raw
// executable pages itself. It is grounded directly on the domain need
// stated by the module ABI, and implemented with golang.org/x/sys/unix,
// the idiomatic low-level mmap/mprotect surface in the Go ecosystem.
package execmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Region is an executable memory region holding one module's code. The
// zero value is not usable; construct with Allocate.
type Region struct {
	data []byte
	// entry is the region's base address, also the module's entry point:
	// offset 0 of the artifact is the entry-point function's first byte.
	entry uintptr
}

// Allocate maps len(code) bytes RW, copies code in, performs an instruction-cache
// sync barrier (a no-op on coherent-I/D-cache platforms, which is what
// the Go runtime targets), then transitions the region to RX. The
// returned Region must not be written to again while loaded.
func Allocate(code []byte) (*Region, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("execmem: empty artifact")
	}

	data, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("execmem: mmap: %w", err)
	}

	copy(data, code)
	syncInstructionCache(data)

	if err := unix.Mprotect(data, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("execmem: mprotect rx: %w", err)
	}

	return &Region{data: data, entry: entryAddr(data)}, nil
}

// EntryPoint returns the address of byte offset 0 of the region, which
// the module ABI treats as the entry-point function.
func (r *Region) EntryPoint() uintptr {
	return r.entry
}

// Size returns the region's length in bytes.
func (r *Region) Size() int {
	return len(r.data)
}

// Free zeroes the region (it may still hold RX pages at this point, so
// zeroing happens under a temporary RW remap) and unmaps it. Free must
// only be called after the module's deinitialize hook has returned.
func (r *Region) Free() error {
	if r.data == nil {
		return nil
	}
	if err := unix.Mprotect(r.data, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("execmem: mprotect rw for zeroing: %w", err)
	}
	for i := range r.data {
		r.data[i] = 0
	}
	err := unix.Munmap(r.data)
	r.data = nil
	r.entry = 0
	if err != nil {
		return fmt.Errorf("execmem: munmap: %w", err)
	}
	return nil
}
