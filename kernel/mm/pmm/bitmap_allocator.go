// Package pmm implements the physical page allocator that the kernel uses
// while it boots.
package pmm

import (
	"stivos/kernel"
	"stivos/kernel/kfmt"
	"stivos/kernel/mm"
	"stivos/kernel/sync"
)

var (
	errAlreadyInitialized = &kernel.Error{Module: "pmm", Message: "allocator already initialized"}
	errNotInitialized     = &kernel.Error{Module: "pmm", Message: "allocator not initialized"}
	errNoUsableMemory     = &kernel.Error{Module: "pmm", Message: "memory map contains no usable regions"}
	errNoBitmapRegion     = &kernel.Error{Module: "pmm", Message: "no usable region large enough to hold the page bitmap"}
	errInvalidPageCount   = &kernel.Error{Module: "pmm", Message: "page count must be at least 1"}
	errOutOfMemory        = &kernel.Error{Module: "pmm", Message: "out of memory"}
	errFrameNotManaged    = &kernel.Error{Module: "pmm", Message: "frame not managed by this allocator"}
)

// BitmapAllocator implements a physical page allocator that tracks the state
// of every page below the highest usable address with a single bitmap.
//
// The bitmap is stored inside the first usable memory region that is large
// enough to hold it and the pages that host it are permanently marked as
// reserved. Allocations use a next-fit strategy: the search for a run of
// free pages starts from the page where the previous allocation started and
// only moves forward. Freeing pages does not move the search cursor back.
//
// The allocator trusts its callers when freeing pages: it does not verify
// that the freed pages were previously returned by AllocPages with the same
// page count, so double-frees go undetected and corrupt the bitmap.
//
// All exported methods are serialized by a spinlock. The zero value is an
// uninitialized allocator; Init must be called exactly once before any other
// method.
type BitmapAllocator struct {
	mutex sync.Spinlock

	bitmap bitmap

	// bitmapAddr is the physical address of the first bitmap byte.
	bitmapAddr mm.PhysAddr

	// bitmapBytes is the size of the bitmap storage in bytes.
	bitmapBytes uintptr

	// bitmapRegion is the index of the memory map region that hosts the
	// bitmap.
	bitmapRegion int

	// bitCount is the number of pages tracked by the bitmap.
	bitCount uintptr

	// searchCursor is the page index where the next allocation search
	// begins. It never decreases.
	searchCursor uintptr

	// freePages tracks the number of clear bits. Double-frees inflate it.
	freePages uintptr

	// directMapOffset is added to a physical address to obtain the
	// virtual address where it can be accessed.
	directMapOffset uintptr

	initialized bool
}

// Stats describes the state of a BitmapAllocator.
type Stats struct {
	// TotalPages is the number of pages tracked by the bitmap, including
	// reserved pages and holes in the memory map.
	TotalPages uintptr

	// FreePages is the number of pages currently available for allocation.
	FreePages uintptr

	BitmapAddr   mm.PhysAddr
	BitmapBytes  uintptr
	SearchCursor uintptr
}

// Init builds the page bitmap from the supplied memory map. The bitmap is
// placed at the start of the first usable region that can hold it. Pages
// that are fully contained in usable regions are marked as free, except
// for the pages that store the bitmap. Everything else, including pages that
// overlap non-usable regions, stays reserved.
//
// directMapOffset is added to physical addresses to obtain the virtual
// address used for accessing them.
//
// Init returns an error if no usable memory is available, if no usable
// region is large enough to host the bitmap or if the allocator has already
// been initialized. None of these errors can be recovered from.
func (alloc *BitmapAllocator) Init(mmap mm.MemoryMap, directMapOffset uintptr) *kernel.Error {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	if alloc.initialized {
		return errAlreadyInitialized
	}

	var (
		highestEnd   mm.PhysAddr
		regionCount  = mmap.RegionCount()
		bitmapRegion = -1
	)

	for index := 0; index < regionCount; index++ {
		if region := mmap.Region(index); region.Type == mm.RegionUsable && region.End() > highestEnd {
			highestEnd = region.End()
		}
	}

	if highestEnd == 0 {
		return errNoUsableMemory
	}

	bitCount := uintptr(highestEnd.AlignUp().Frame())
	bitmapBytes := (bitCount + 7) >> 3

	for index := 0; index < regionCount; index++ {
		if region := mmap.Region(index); region.Type == mm.RegionUsable && region.Length >= mm.Size(bitmapBytes) {
			bitmapRegion = index
			break
		}
	}

	if bitmapRegion == -1 {
		return errNoBitmapRegion
	}

	alloc.directMapOffset = directMapOffset
	alloc.bitmapRegion = bitmapRegion
	alloc.bitmapAddr = mmap.Region(bitmapRegion).Start
	alloc.bitmapBytes = bitmapBytes
	alloc.bitCount = bitCount
	alloc.searchCursor = 0

	// Until proven otherwise, all pages are considered to be in use.
	alloc.bitmap.attach(alloc.virtAddr(alloc.bitmapAddr), bitmapBytes)
	alloc.bitmap.fill(0xff)

	for index := 0; index < regionCount; index++ {
		region := mmap.Region(index)
		if region.Type != mm.RegionUsable {
			continue
		}

		start := region.Start
		if index == bitmapRegion {
			start = start.Add(mm.Size(bitmapBytes))
		}

		// Only pages that are fully contained in the region can be used
		alloc.markFree(start.AlignUp().Frame(), region.End().AlignDown().Frame())
	}

	// Firmware may report usable regions that overlap reserved ones. Run a
	// second pass so reserved regions always win.
	for index := 0; index < regionCount; index++ {
		region := mmap.Region(index)
		if region.Type == mm.RegionUsable || region.Length == 0 {
			continue
		}

		alloc.markReserved(region.Start.AlignDown().Frame(), region.End().AlignUp().Frame())
	}

	alloc.freePages = alloc.bitmap.countClear(bitCount)
	alloc.initialized = true

	kfmt.Printf("[pmm] addressing %d pages (%d MiB)\n", bitCount, uint64(mm.Size(bitCount)*mm.PageSize/mm.Mb))
	kfmt.Printf("[pmm] bitmap: region %d, %d bytes at 0x%x\n", bitmapRegion, bitmapBytes, uint64(alloc.bitmapAddr))
	kfmt.Printf("[pmm] free memory: %d pages (%dKb)\n", alloc.freePages, uint64(mm.Size(alloc.freePages)*mm.PageSize/mm.Kb))

	return nil
}

// bitmapFrames returns the range of frames [first, end) that overlap the
// bitmap storage.
func (alloc *BitmapAllocator) bitmapFrames() (mm.Frame, mm.Frame) {
	return alloc.bitmapAddr.Frame(), alloc.bitmapAddr.Add(mm.Size(alloc.bitmapBytes)).AlignUp().Frame()
}

// markFree marks the frames in [first, end) as free, skipping any frame that
// overlaps the bitmap storage.
func (alloc *BitmapAllocator) markFree(first, end mm.Frame) {
	bitmapFirst, bitmapEnd := alloc.bitmapFrames()

	for frame := first; frame < end; frame++ {
		if frame >= bitmapFirst && frame < bitmapEnd {
			frame = bitmapEnd - 1
			continue
		}

		alloc.bitmap.clear(uintptr(frame))
	}
}

// markReserved marks the frames in [first, end) as used. Frames beyond the
// last tracked page are ignored.
func (alloc *BitmapAllocator) markReserved(first, end mm.Frame) {
	if end > mm.Frame(alloc.bitCount) {
		end = mm.Frame(alloc.bitCount)
	}

	for frame := first; frame < end; frame++ {
		alloc.bitmap.set(uintptr(frame))
	}
}

// virtAddr returns the virtual address that maps to physAddr.
func (alloc *BitmapAllocator) virtAddr(physAddr mm.PhysAddr) uintptr {
	return uintptr(physAddr) + alloc.directMapOffset
}

// AllocPages reserves count physically contiguous pages and returns the
// physical address of the first page.
//
// The search starts at the search cursor and moves towards the end of the
// bitmap; the first run of count free pages is selected and the cursor is
// moved to its first page. AllocPages returns an error if count is zero or
// if no suitable run exists past the cursor. Failed allocations leave the
// allocator state untouched.
func (alloc *BitmapAllocator) AllocPages(count uintptr) (mm.PhysAddr, *kernel.Error) {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	return alloc.allocPagesLocked(count)
}

func (alloc *BitmapAllocator) allocPagesLocked(count uintptr) (mm.PhysAddr, *kernel.Error) {
	switch {
	case !alloc.initialized:
		return mm.InvalidPhysAddr, errNotInitialized
	case count == 0:
		return mm.InvalidPhysAddr, errInvalidPageCount
	case count > alloc.freePages:
		return mm.InvalidPhysAddr, errOutOfMemory
	}

	var run uintptr
	for index := alloc.searchCursor; index < alloc.bitCount; index++ {
		// Skip 8 pages at a time while there is no run in progress
		if run == 0 && alloc.bitmap.byteFull(index) {
			index += 7
			continue
		}

		if alloc.bitmap.test(index) {
			run = 0
			continue
		}

		if run++; run == count {
			start := index + 1 - count
			alloc.searchCursor = start
			alloc.bitmap.setRange(start, count)
			alloc.freePages -= count

			return mm.Frame(start).Address(), nil
		}
	}

	return mm.InvalidPhysAddr, errOutOfMemory
}

// AllocFrame reserves a single page and returns its frame. Its signature
// matches mm.FrameAllocatorFn.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	addr, err := alloc.AllocPages(1)
	if err != nil {
		return mm.InvalidFrame, err
	}

	return addr.Frame(), nil
}

// AllocBytes reserves enough contiguous pages to hold size bytes.
func (alloc *BitmapAllocator) AllocBytes(size mm.Size) (mm.PhysAddr, *kernel.Error) {
	return alloc.AllocPages(size.Pages())
}

// FreePages releases count pages starting at the page that contains addr.
//
// FreePages does not verify that the pages were reserved via AllocPages; it
// only returns an error if the allocator is not initialized, count is zero
// or the range extends past the last tracked page.
func (alloc *BitmapAllocator) FreePages(addr mm.PhysAddr, count uintptr) *kernel.Error {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	return alloc.freePagesLocked(addr, count)
}

func (alloc *BitmapAllocator) freePagesLocked(addr mm.PhysAddr, count uintptr) *kernel.Error {
	first := uintptr(addr.Frame())

	switch {
	case !alloc.initialized:
		return errNotInitialized
	case count == 0:
		return errInvalidPageCount
	case first >= alloc.bitCount || count > alloc.bitCount-first:
		return errFrameNotManaged
	}

	alloc.bitmap.clearRange(first, count)
	alloc.freePages += count
	return nil
}

// FreeFrame releases a single frame.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	if !frame.Valid() {
		return errFrameNotManaged
	}

	return alloc.FreePages(frame.Address(), 1)
}

// IsFree returns true if frame is tracked by the allocator and is currently
// available for allocation.
func (alloc *BitmapAllocator) IsFree(frame mm.Frame) bool {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	return alloc.initialized && uintptr(frame) < alloc.bitCount && !alloc.bitmap.test(uintptr(frame))
}

// Stats returns a snapshot of the allocator state.
func (alloc *BitmapAllocator) Stats() Stats {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	return Stats{
		TotalPages:   alloc.bitCount,
		FreePages:    alloc.freePages,
		BitmapAddr:   alloc.bitmapAddr,
		BitmapBytes:  alloc.bitmapBytes,
		SearchCursor: alloc.searchCursor,
	}
}
