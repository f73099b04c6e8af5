// Package mm contains the types shared by the kernel memory management code:
// physical addresses, page frames, memory regions and the frame allocator
// registry used by downstream subsystems.
package mm

import "math"

// PhysAddr describes a physical memory address. It is a distinct type so
// physical addresses cannot be mixed up with virtual addresses or bitmap
// indices without an explicit conversion.
type PhysAddr uintptr

// InvalidPhysAddr is returned by page allocators when they fail to reserve
// the requested pages.
const InvalidPhysAddr = PhysAddr(math.MaxUint64)

// Frame returns the Frame that contains this address. Addresses that are not
// page-aligned are rounded down to the frame that contains them.
func (a PhysAddr) Frame() Frame {
	return Frame(a >> PageShift)
}

// IsPageAligned returns true if the address is a multiple of PageSize.
func (a PhysAddr) IsPageAligned() bool {
	return a&PhysAddr(PageSize-1) == 0
}

// AlignDown rounds the address down to the nearest page boundary.
func (a PhysAddr) AlignDown() PhysAddr {
	return a &^ PhysAddr(PageSize-1)
}

// AlignUp rounds the address up to the nearest page boundary.
func (a PhysAddr) AlignUp() PhysAddr {
	return (a + PhysAddr(PageSize-1)) &^ PhysAddr(PageSize-1)
}

// Add returns the address located size bytes after a.
func (a PhysAddr) Add(size Size) PhysAddr {
	return a + PhysAddr(size)
}

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of the first byte in this Frame.
func (f Frame) Address() PhysAddr {
	return PhysAddr(f << PageShift)
}
