package pmm

import (
	"unsafe"

	"stivos/kernel"
	"stivos/kernel/kfmt"
)

// sanityMarker is written to the page allocated by SanityCheck.
const sanityMarker = 0xa5

var (
	errSanityBitmapNotReserved = &kernel.Error{Module: "pmm", Message: "sanity check: bitmap storage marked as free"}
	errSanityAllocNotMarked    = &kernel.Error{Module: "pmm", Message: "sanity check: allocated page not marked as used"}
	errSanityFreeNotCleared    = &kernel.Error{Module: "pmm", Message: "sanity check: freed page still marked as used"}
)

// SanityCheck verifies that the pages hosting the bitmap are reserved and
// performs an allocate/write/free round-trip for a single page. It must be
// called once, right after Init and before the allocator is handed to other
// subsystems. A failed check indicates a bug in the allocator and the caller
// must not continue using it.
func (alloc *BitmapAllocator) SanityCheck() *kernel.Error {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	if err := alloc.sanityCheckLocked(); err != nil {
		kfmt.Printf("[pmm] alloc/free sanity check failed: %s\n", err.Message)
		return err
	}

	kfmt.Printf("[pmm] alloc/free sanity check passed\n")
	return nil
}

func (alloc *BitmapAllocator) sanityCheckLocked() *kernel.Error {
	if !alloc.initialized {
		return errNotInitialized
	}

	bitmapFirst, bitmapEnd := alloc.bitmapFrames()
	for frame := bitmapFirst; frame < bitmapEnd; frame++ {
		if !alloc.bitmap.test(uintptr(frame)) {
			return errSanityBitmapNotReserved
		}
	}

	addr, err := alloc.allocPagesLocked(1)
	if err != nil {
		return err
	}

	*(*byte)(unsafe.Pointer(alloc.virtAddr(addr))) = sanityMarker

	index := uintptr(addr.Frame())
	if !alloc.bitmap.test(index) {
		return errSanityAllocNotMarked
	}

	if err = alloc.freePagesLocked(addr, 1); err != nil {
		return err
	}

	if alloc.bitmap.test(index) {
		return errSanityFreeNotCleared
	}

	return nil
}
