package pmm

import (
	"stivos/kernel/kfmt"
	"stivos/kernel/mm"
)

// PrintMemoryMap prints out the regions of the supplied memory map and the
// total amount of usable memory.
func PrintMemoryMap(mmap mm.MemoryMap) {
	var totalUsable mm.Size

	kfmt.Printf("[pmm] system memory map:\n")
	for index := 0; index < mmap.RegionCount(); index++ {
		region := mmap.Region(index)
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n",
			uint64(region.Start), uint64(region.End()), uint64(region.Length), region.Type.String(),
		)

		if region.Type == mm.RegionUsable {
			totalUsable += region.Length
		}
	}
	kfmt.Printf("[pmm] usable memory: %dKb\n", uint64(totalUsable/mm.Kb))
}
