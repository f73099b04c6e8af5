//go:build linux

package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"stivos/kernel/mm"
)

// Arena is an anonymous mapping that stands in for physical memory in the
// range [0, size).
type Arena struct {
	data []byte
}

// NewArena maps size bytes of zeroed memory. Pages are only backed by RAM
// once they are touched.
func NewArena(size uint64) (*Arena, error) {
	if size == 0 {
		return nil, fmt.Errorf("arena size must be greater than 0")
	}

	data, err := unix.Mmap(
		-1,
		0,
		int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE,
	)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	return &Arena{data: data}, nil
}

// DirectMapOffset returns the offset that converts a simulated physical
// address into a pointer inside the arena.
func (a *Arena) DirectMapOffset() uintptr {
	return uintptr(unsafe.Pointer(&a.data[0]))
}

// Pages returns the arena bytes backing count pages starting at addr.
func (a *Arena) Pages(addr mm.PhysAddr, count uint64) []byte {
	return a.data[addr : uint64(addr)+count*uint64(mm.PageSize)]
}

// Close unmaps the arena.
func (a *Arena) Close() error {
	if a.data == nil {
		return nil
	}

	if err := unix.Munmap(a.data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	a.data = nil
	return nil
}
