package kmain

import (
	"io"

	"stivos/device"
	"stivos/device/serial"
	"stivos/kernel"
	"stivos/kernel/cpu"
	"stivos/kernel/hal/stivale2"
	"stivos/kernel/kfmt"
	"stivos/kernel/mm"
	"stivos/kernel/mm/pmm"
)

// consoleDevice is implemented by drivers that can serve as the kfmt output
// sink.
type consoleDevice interface {
	device.Driver
	io.Writer
}

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// frameAllocator is the physical page allocator used by the rest of
	// the kernel once Kmain registers it.
	frameAllocator pmm.BitmapAllocator

	// The following functions are mocked by tests.
	probeConsoleFn  = func() consoleDevice { return serial.ProbeCOM1() }
	memoryMapFn     = func() mm.MemoryMap { return stivale2.MemoryMap() }
	framebufferFn   = stivale2.GetFramebufferInfo
	panicFn         = kfmt.Panic
	haltFn          = cpu.Halt
	directMapOffset = mm.DirectMapOffset

	consolePrefix = []byte("[serial] ")
	consoleLog    = kfmt.PrefixWriter{Prefix: consolePrefix}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked by the rt0 assembly code with the
// address of the stivale2 structure supplied by the bootloader after the
// bootloader has set up long mode, paging and the higher-half direct map.
//
// Kmain brings up the console, builds the physical page allocator from the
// bootloader memory map, verifies it and registers it as the frame
// allocator. Any error is fatal.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(stivale2InfoPtr uintptr) {
	stivale2.SetInfoPtr(stivale2InfoPtr)

	// Output produced before the console is attached is kept in the kfmt
	// ring buffer and replayed by SetOutputSink.
	if cons := probeConsoleFn(); cons != nil {
		consoleLog.Sink = cons
		if err := cons.DriverInit(&consoleLog); err == nil {
			kfmt.SetOutputSink(cons)
		} else {
			kfmt.Printf("[kmain] console %s unavailable: %s\n", cons.DriverName(), err.Message)
		}
	}

	kfmt.Printf("[kmain] booted by %s\n", stivale2.BootloaderBrand())
	if fb := framebufferFn(); fb != nil {
		kfmt.Printf("[kmain] framebuffer: %dx%d, %d bpp at 0x%x\n", fb.Width, fb.Height, fb.Bpp, fb.Addr)
	}

	mmap := memoryMapFn()
	pmm.PrintMemoryMap(mmap)

	var err *kernel.Error
	if err = frameAllocator.Init(mmap, directMapOffset); err != nil {
		panicFn(err)
		return
	} else if err = frameAllocator.SanityCheck(); err != nil {
		panicFn(err)
		return
	}

	mm.SetFrameAllocator(allocFrameOrPanic)
	kfmt.Printf("[kmain] physical memory allocator ready\n")

	haltFn()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating it as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// allocFrameOrPanic is the frame allocator registered with the mm package.
// Running out of physical memory is fatal, so callers never observe an
// invalid frame.
func allocFrameOrPanic() (mm.Frame, *kernel.Error) {
	frame, err := frameAllocator.AllocFrame()
	if !frame.Valid() {
		panicFn(err)
	}

	return frame, err
}
