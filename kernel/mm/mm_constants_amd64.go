package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// DirectMapOffset is the virtual address where the bootloader maps the
	// entire physical address space (higher-half direct map). Physical
	// address p is accessible at virtual address p + DirectMapOffset.
	DirectMapOffset = uintptr(0xffff800000000000)
)
