// Package stivale2 decodes the boot information structure that a
// stivale2-compliant bootloader passes to the kernel entrypoint.
package stivale2

import (
	"unsafe"

	"stivos/kernel/mm"
)

type tagID uint64

// nolint
const (
	tagMemoryMap   tagID = 0x2187f79e8612de07
	tagFramebuffer tagID = 0x506461d2950408fa
)

// info describes the stivale2 structure header. The bootloader brand and
// version are NUL-terminated ASCII strings.
type info struct {
	bootloaderBrand   [64]byte
	bootloaderVersion [64]byte

	// Address of the first tag or 0 if no tags are present.
	tags uint64
}

// tagHeader describes the header that precedes each tag. Tags form a singly
// linked list terminated by a tag whose next field is 0.
type tagHeader struct {
	id   tagID
	next uint64
}

// memmapTag describes the header for the memory map tag. The tag is followed
// by entryCount memmapEntry values.
type memmapTag struct {
	header     tagHeader
	entryCount uint64
}

// memmapEntry describes a single memory map entry as laid out by the
// bootloader.
type memmapEntry struct {
	base    uint64
	length  uint64
	memType entryType
	unused  uint32
}

// entryType defines the raw memory map entry types used by the protocol.
type entryType uint32

// nolint
const (
	entryUsable                entryType = 1
	entryReserved              entryType = 2
	entryACPIReclaimable       entryType = 3
	entryACPINVS               entryType = 4
	entryBadMemory             entryType = 5
	entryBootloaderReclaimable entryType = 0x1000
	entryKernelAndModules      entryType = 0x1001
	entryFramebuffer           entryType = 0x1002
)

// regionType maps a raw entry type to a mm.RegionType. Unknown entry types
// are reported as reserved.
func (t entryType) regionType() mm.RegionType {
	switch t {
	case entryUsable:
		return mm.RegionUsable
	case entryACPIReclaimable:
		return mm.RegionACPIReclaimable
	case entryACPINVS:
		return mm.RegionACPINVS
	case entryBadMemory:
		return mm.RegionBadMemory
	case entryBootloaderReclaimable:
		return mm.RegionBootloaderReclaimable
	case entryKernelAndModules:
		return mm.RegionKernelAndModules
	case entryFramebuffer:
		return mm.RegionFramebuffer
	default:
		return mm.RegionReserved
	}
}

// FramebufferInfo provides information about the framebuffer initialized by
// the bootloader.
type FramebufferInfo struct {
	// The framebuffer address.
	Addr uint64

	// Width and height in pixels.
	Width, Height uint16

	// Row pitch in bytes.
	Pitch uint16

	// Bits per pixel.
	Bpp uint16

	MemoryModel    uint8
	RedMaskSize    uint8
	RedMaskShift   uint8
	GreenMaskSize  uint8
	GreenMaskShift uint8
	BlueMaskSize   uint8
	BlueMaskShift  uint8
}

var (
	infoData uintptr
)

// SetInfoPtr updates the internal stivale2 structure pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// BootloaderBrand returns the bootloader brand string without its NUL
// terminator. The returned slice aliases the bootloader-provided memory. It
// returns nil if SetInfoPtr has not been called.
func BootloaderBrand() []byte {
	if infoData == 0 {
		return nil
	}

	hdr := (*info)(unsafe.Pointer(infoData))
	for i, ch := range hdr.bootloaderBrand {
		if ch == 0 {
			return hdr.bootloaderBrand[:i]
		}
	}
	return hdr.bootloaderBrand[:]
}

// MemMap implements mm.MemoryMap on top of the memory map tag supplied by the
// bootloader. Its zero value describes an empty memory map.
type MemMap struct {
	tag *memmapTag
}

// MemoryMap returns the memory map reported by the bootloader. If the boot
// information does not contain a memory map tag, the returned map is empty.
func MemoryMap() MemMap {
	return MemMap{tag: (*memmapTag)(unsafe.Pointer(findTagByID(tagMemoryMap)))}
}

// RegionCount implements mm.MemoryMap.
func (m MemMap) RegionCount() int {
	if m.tag == nil {
		return 0
	}
	return int(m.tag.entryCount)
}

// Region implements mm.MemoryMap.
func (m MemMap) Region(index int) mm.Region {
	entry := (*memmapEntry)(unsafe.Pointer(
		uintptr(unsafe.Pointer(m.tag)) + unsafe.Sizeof(memmapTag{}) + uintptr(index)*unsafe.Sizeof(memmapEntry{}),
	))

	return mm.Region{
		Start:  mm.PhysAddr(entry.base),
		Length: mm.Size(entry.length),
		Type:   entry.memType.regionType(),
	}
}

// GetFramebufferInfo returns information about the framebuffer initialized by
// the bootloader. This function returns nil if no framebuffer info is
// available.
func GetFramebufferInfo() *FramebufferInfo {
	tagPtr := findTagByID(tagFramebuffer)
	if tagPtr == 0 {
		return nil
	}

	return (*FramebufferInfo)(unsafe.Pointer(tagPtr + unsafe.Sizeof(tagHeader{})))
}

// findTagByID walks the tag list looking for a tag with the requested id and
// returns its address or 0 if no such tag exists.
func findTagByID(id tagID) uintptr {
	if infoData == 0 {
		return 0
	}

	for tagPtr := uintptr((*info)(unsafe.Pointer(infoData)).tags); tagPtr != 0; {
		hdr := (*tagHeader)(unsafe.Pointer(tagPtr))
		if hdr.id == id {
			return tagPtr
		}
		tagPtr = uintptr(hdr.next)
	}

	return 0
}
