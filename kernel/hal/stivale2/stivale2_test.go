package stivale2

import (
	"testing"
	"unsafe"

	"stivos/kernel/mm"
)

func TestMemoryMap(t *testing.T) {
	defer SetInfoPtr(0)
	SetInfoPtr(uintptr(unsafe.Pointer(&fixture.info)))

	mmap := MemoryMap()

	specs := []mm.Region{
		{Start: 0x0, Length: 0x9fc00, Type: mm.RegionUsable},
		{Start: 0x9fc00, Length: 0x400, Type: mm.RegionReserved},
		{Start: 0xf0000, Length: 0x10000, Type: mm.RegionReserved},
		{Start: 0x100000, Length: 0x7ee0000, Type: mm.RegionUsable},
		{Start: 0x7fe0000, Length: 0x20000, Type: mm.RegionBootloaderReclaimable},
		{Start: 0xfffc0000, Length: 0x40000, Type: mm.RegionReserved},
	}

	if exp, got := len(specs), mmap.RegionCount(); got != exp {
		t.Fatalf("expected memory map to contain %d regions; got %d", exp, got)
	}

	// The map must be traversable more than once with identical results
	for pass := 0; pass < 2; pass++ {
		for index, exp := range specs {
			if got := mmap.Region(index); got != exp {
				t.Errorf("[pass %d, region %d] expected region %+v; got %+v", pass, index, exp, got)
			}
		}
	}
}

func TestMemoryMapMissingTag(t *testing.T) {
	defer SetInfoPtr(0)

	var noTags info
	SetInfoPtr(uintptr(unsafe.Pointer(&noTags)))

	if got := MemoryMap().RegionCount(); got != 0 {
		t.Fatalf("expected empty memory map when the tag is missing; got %d regions", got)
	}

	SetInfoPtr(0)
	if got := MemoryMap().RegionCount(); got != 0 {
		t.Fatalf("expected empty memory map without boot info; got %d regions", got)
	}

	var mmap mm.MemoryMap = MemMap{}
	if got := mmap.RegionCount(); got != 0 {
		t.Fatalf("expected zero MemMap to be empty; got %d regions", got)
	}
}

func TestEntryTypeMapping(t *testing.T) {
	specs := []struct {
		raw entryType
		exp mm.RegionType
	}{
		{entryUsable, mm.RegionUsable},
		{entryReserved, mm.RegionReserved},
		{entryACPIReclaimable, mm.RegionACPIReclaimable},
		{entryACPINVS, mm.RegionACPINVS},
		{entryBadMemory, mm.RegionBadMemory},
		{entryBootloaderReclaimable, mm.RegionBootloaderReclaimable},
		{entryKernelAndModules, mm.RegionKernelAndModules},
		{entryFramebuffer, mm.RegionFramebuffer},
		{entryType(0), mm.RegionReserved},
		{entryType(0xbadf00d), mm.RegionReserved},
	}

	for specIndex, spec := range specs {
		if got := spec.raw.regionType(); got != spec.exp {
			t.Errorf("[spec %d] expected entry type 0x%x to map to %s; got %s", specIndex, uint32(spec.raw), spec.exp, got)
		}
	}
}

func TestGetFramebufferInfo(t *testing.T) {
	defer SetInfoPtr(0)
	SetInfoPtr(uintptr(unsafe.Pointer(&fixture.info)))

	fbInfo := GetFramebufferInfo()
	if fbInfo == nil {
		t.Fatal("expected to get framebuffer info")
	}

	if fbInfo.Addr != 0xfd000000 || fbInfo.Width != 1024 || fbInfo.Height != 768 || fbInfo.Pitch != 4096 || fbInfo.Bpp != 32 {
		t.Fatalf("unexpected framebuffer info: %+v", *fbInfo)
	}

	var noTags info
	SetInfoPtr(uintptr(unsafe.Pointer(&noTags)))
	if GetFramebufferInfo() != nil {
		t.Fatal("expected GetFramebufferInfo to return nil when the tag is missing")
	}
}

func TestBootloaderBrand(t *testing.T) {
	defer SetInfoPtr(0)

	SetInfoPtr(0)
	if got := BootloaderBrand(); got != nil {
		t.Fatalf("expected BootloaderBrand to return nil without boot information; got %q", got)
	}

	SetInfoPtr(uintptr(unsafe.Pointer(&fixture.info)))

	if exp, got := "Limine", string(BootloaderBrand()); got != exp {
		t.Fatalf("expected bootloader brand to be %q; got %q", exp, got)
	}

	var full info
	for i := range full.bootloaderBrand {
		full.bootloaderBrand[i] = 'x'
	}
	SetInfoPtr(uintptr(unsafe.Pointer(&full)))

	if exp, got := 64, len(BootloaderBrand()); got != exp {
		t.Fatalf("expected unterminated brand to be %d bytes long; got %d", exp, got)
	}
}

// bootInfoFixture mirrors the layout of the boot information passed by a
// stivale2 bootloader to a qemu guest with 128M RAM. The framebuffer tag
// is linked first so the memory map lookup has to follow the next pointer.
type bootInfoFixture struct {
	info info

	fbTag struct {
		header tagHeader
		fb     FramebufferInfo
	}

	memmap struct {
		tag     memmapTag
		entries [6]memmapEntry
	}
}

var fixture = newBootInfoFixture()

func newBootInfoFixture() *bootInfoFixture {
	f := new(bootInfoFixture)
	copy(f.info.bootloaderBrand[:], "Limine")
	copy(f.info.bootloaderVersion[:], "2.0")

	f.info.tags = uint64(uintptr(unsafe.Pointer(&f.fbTag)))
	f.fbTag.header = tagHeader{id: tagFramebuffer, next: uint64(uintptr(unsafe.Pointer(&f.memmap)))}
	f.fbTag.fb = FramebufferInfo{Addr: 0xfd000000, Width: 1024, Height: 768, Pitch: 4096, Bpp: 32}

	f.memmap.tag = memmapTag{header: tagHeader{id: tagMemoryMap}, entryCount: 6}
	f.memmap.entries = [6]memmapEntry{
		{base: 0x0, length: 0x9fc00, memType: entryUsable},
		{base: 0x9fc00, length: 0x400, memType: entryReserved},
		{base: 0xf0000, length: 0x10000, memType: entryType(0x9999)},
		{base: 0x100000, length: 0x7ee0000, memType: entryUsable},
		{base: 0x7fe0000, length: 0x20000, memType: entryBootloaderReclaimable},
		{base: 0xfffc0000, length: 0x40000, memType: entryReserved},
	}

	return f
}
