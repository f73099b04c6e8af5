package main

import (
	"fmt"
	"io"

	"stivos/kernel"
	"stivos/kernel/kfmt"
	"stivos/kernel/mm"
	"stivos/kernel/mm/pmm"
)

// allocation is a live allocation created by an alloc step.
type allocation struct {
	addr  mm.PhysAddr
	pages uint64
	tag   byte
}

// Simulator runs scenarios against a BitmapAllocator whose physical memory
// is backed by an Arena.
type Simulator struct {
	Config *Config
	Out    io.Writer
}

// highestUsableEnd returns the end of the highest usable region.
func highestUsableEnd(mmap mm.RegionList) uint64 {
	var end uint64
	for _, region := range mmap {
		if region.Type == mm.RegionUsable && uint64(region.End()) > end {
			end = uint64(region.End())
		}
	}
	return end
}

// setup maps an arena large enough for the scenario memory map, attaches
// the output sink and initializes the allocator. The returned function
// releases the arena and detaches the sink.
func (sim *Simulator) setup(mmap mm.RegionList) (*pmm.BitmapAllocator, *Arena, func(), error) {
	end := uint64(mm.PhysAddr(highestUsableEnd(mmap)).AlignUp())
	if end > sim.Config.MaxArenaSize {
		return nil, nil, nil, fmt.Errorf(
			"memory map ends at 0x%x which exceeds the max arena size (%d bytes)",
			end,
			sim.Config.MaxArenaSize,
		)
	}

	// An empty map is still handed to the allocator so it can report it
	if end == 0 {
		end = uint64(mm.PageSize)
	}

	arena, err := NewArena(end)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating arena: %w", err)
	}

	kfmt.SetOutputSink(sim.Out)
	cleanup := func() {
		kfmt.SetOutputSink(nil)
		_ = arena.Close()
	}

	pmm.PrintMemoryMap(mmap)

	alloc := new(pmm.BitmapAllocator)
	if kerr := alloc.Init(mmap, arena.DirectMapOffset()); kerr != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("initializing allocator: %w", kerr)
	}

	return alloc, arena, cleanup, nil
}

// Layout initializes an allocator for the scenario memory map and reports
// the resulting bitmap placement without running any steps.
func (sim *Simulator) Layout(s *Scenario) error {
	alloc, _, cleanup, err := sim.setup(s.MemoryMap())
	if err != nil {
		return err
	}
	defer cleanup()

	sim.printStats(alloc)
	return nil
}

// Run initializes an allocator for the scenario memory map, runs the sanity
// check and then executes every step in order.
func (sim *Simulator) Run(s *Scenario) error {
	alloc, arena, cleanup, err := sim.setup(s.MemoryMap())
	if err != nil {
		return err
	}
	defer cleanup()

	if kerr := alloc.SanityCheck(); kerr != nil {
		return fmt.Errorf("sanity check: %w", kerr)
	}

	live := make(map[string]allocation)
	for i, step := range s.Steps {
		var kerr *kernel.Error

		switch step.Op {
		case opAlloc:
			var addr mm.PhysAddr
			if addr, kerr = alloc.AllocPages(uintptr(step.Pages)); kerr == nil {
				kfmt.Fprintf(sim.Out, "[pmmsim] step %d: alloc %d pages -> 0x%x\n", i, step.Pages, uint64(addr))

				a := allocation{addr: addr, pages: step.Pages, tag: byte(i + 1)}
				if sim.Config.Touch {
					fillPages(arena.Pages(a.addr, a.pages), a.tag)
				}
				if step.Ref != "" {
					live[step.Ref] = a
				}
			}
		case opFree:
			a := live[step.Ref]
			if kerr = alloc.FreePages(a.addr, uintptr(a.pages)); kerr == nil {
				kfmt.Fprintf(sim.Out, "[pmmsim] step %d: free %d pages at 0x%x\n", i, a.pages, uint64(a.addr))
				delete(live, step.Ref)
			}
		}

		if err := checkStepResult(step, kerr); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		if kerr != nil {
			kfmt.Fprintf(sim.Out, "[pmmsim] step %d: %s failed as expected: %s\n", i, step.Op, kerr.Message)
		}
	}

	if sim.Config.Touch {
		for ref, a := range live {
			if !pagesFilledWith(arena.Pages(a.addr, a.pages), a.tag) {
				return fmt.Errorf("allocation %q at 0x%x was overwritten", ref, uint64(a.addr))
			}
		}
	}

	sim.printStats(alloc)
	return nil
}

func checkStepResult(step Step, kerr *kernel.Error) error {
	switch {
	case kerr == nil && step.ExpectError != "":
		return fmt.Errorf("expected error %q", step.ExpectError)
	case kerr != nil && step.ExpectError == "":
		return fmt.Errorf("%s: %w", step.Op, kerr)
	case kerr != nil && kerr.Message != step.ExpectError:
		return fmt.Errorf("expected error %q; got %q", step.ExpectError, kerr.Message)
	}
	return nil
}

func (sim *Simulator) printStats(alloc *pmm.BitmapAllocator) {
	stats := alloc.Stats()
	kfmt.Fprintf(
		sim.Out,
		"[pmmsim] pages: %d total, %d free; bitmap: %d bytes at 0x%x; search cursor: %d\n",
		stats.TotalPages,
		stats.FreePages,
		stats.BitmapBytes,
		uint64(stats.BitmapAddr),
		stats.SearchCursor,
	)
}

func fillPages(pages []byte, tag byte) {
	for i := range pages {
		pages[i] = tag
	}
}

func pagesFilledWith(pages []byte, tag byte) bool {
	for _, b := range pages {
		if b != tag {
			return false
		}
	}
	return true
}
