package mm

// RegionType describes how a memory region reported by the bootloader may
// be used.
type RegionType uint8

const (
	// RegionUsable marks memory that is available for general use.
	RegionUsable RegionType = iota

	// RegionReserved marks memory that must not be touched. Any region
	// type that the boot information provider does not recognize is
	// reported as reserved.
	RegionReserved

	// RegionACPIReclaimable holds ACPI tables that can be reused by the OS
	// once they have been parsed.
	RegionACPIReclaimable

	// RegionACPINVS marks memory that must be preserved when hibernating.
	RegionACPINVS

	// RegionBadMemory marks memory that the firmware found to be defective.
	RegionBadMemory

	// RegionBootloaderReclaimable holds bootloader structures (including
	// the memory map itself) that can be reclaimed after boot.
	RegionBootloaderReclaimable

	// RegionKernelAndModules holds the loaded kernel image and modules.
	RegionKernelAndModules

	// RegionFramebuffer holds the framebuffer set up by the bootloader.
	RegionFramebuffer

	regionTypeCount
)

var regionTypeNames = [regionTypeCount]string{
	"usable",
	"reserved",
	"acpi-reclaimable",
	"acpi-nvs",
	"bad-memory",
	"bootloader-reclaimable",
	"kernel-and-modules",
	"framebuffer",
}

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	if t >= regionTypeCount {
		return "unknown"
	}
	return regionTypeNames[t]
}

// ParseRegionType returns the RegionType whose String() value matches name.
func ParseRegionType(name string) (RegionType, bool) {
	for t := RegionType(0); t < regionTypeCount; t++ {
		if regionTypeNames[t] == name {
			return t, true
		}
	}
	return RegionReserved, false
}

// Region describes a physical memory region as reported by the bootloader.
// The region covers the address range [Start, Start+Length).
type Region struct {
	Start  PhysAddr
	Length Size
	Type   RegionType
}

// End returns the first address after the region.
func (r Region) End() PhysAddr {
	return r.Start.Add(r.Length)
}

// MemoryMap is implemented by boot information providers that expose the
// system memory map. Regions are accessed by index so the map can be
// traversed any number of times without allocating memory.
type MemoryMap interface {
	// RegionCount returns the number of regions in the map.
	RegionCount() int

	// Region returns the region at the given index. Index must be in the
	// range [0, RegionCount()).
	Region(index int) Region
}

// RegionList is a MemoryMap backed by a slice of regions.
type RegionList []Region

// RegionCount implements MemoryMap.
func (l RegionList) RegionCount() int { return len(l) }

// Region implements MemoryMap.
func (l RegionList) Region(index int) Region { return l[index] }
