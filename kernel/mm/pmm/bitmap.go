package pmm

import (
	"math/bits"
	"reflect"
	"unsafe"

	"stivos/kernel"
)

// bitmap tracks the state of physical pages using one bit per page. Bit
// values are stored MSB-first: page i is tracked by bit (7 - i%8) of byte
// i/8. A set bit marks a page as used or reserved; a clear bit marks it as
// free.
//
// bitmap does not check whether an index is in range. Callers ensure that
// index < bitCount; a stray index either trips the Go bounds check (which
// ends up in kfmt.Panic) or touches padding bits in the last byte.
type bitmap struct {
	data    []byte
	dataHdr reflect.SliceHeader
}

// attach overlays the bitmap on top of size bytes starting at the virtual
// address addr.
func (b *bitmap) attach(addr, size uintptr) {
	b.dataHdr.Data = addr
	b.dataHdr.Len = int(size)
	b.dataHdr.Cap = int(size)
	b.data = *(*[]byte)(unsafe.Pointer(&b.dataHdr))
}

// fill sets every byte of the bitmap to value.
func (b *bitmap) fill(value byte) {
	kernel.Memset(b.dataHdr.Data, value, uintptr(b.dataHdr.Len))
}

// bitMask returns the mask that selects the bit for index within its byte.
func bitMask(index uintptr) byte {
	return 0x80 >> (index & 7)
}

// set marks the page at index as used.
func (b *bitmap) set(index uintptr) {
	b.data[index>>3] |= bitMask(index)
}

// clear marks the page at index as free.
func (b *bitmap) clear(index uintptr) {
	b.data[index>>3] &^= bitMask(index)
}

// test returns true if the page at index is marked as used.
func (b *bitmap) test(index uintptr) bool {
	return b.data[index>>3]&bitMask(index) != 0
}

// setRange marks count pages starting at index as used.
func (b *bitmap) setRange(index, count uintptr) {
	for end := index + count; index < end; index++ {
		b.set(index)
	}
}

// clearRange marks count pages starting at index as free.
func (b *bitmap) clearRange(index, count uintptr) {
	for end := index + count; index < end; index++ {
		b.clear(index)
	}
}

// byteFull returns true if index is the first bit of a byte whose pages are
// all marked as used.
func (b *bitmap) byteFull(index uintptr) bool {
	return index&7 == 0 && b.data[index>>3] == 0xff
}

// countClear returns the number of free pages among the first bitCount
// pages.
func (b *bitmap) countClear(bitCount uintptr) uintptr {
	var (
		used      uintptr
		fullBytes = bitCount >> 3
	)

	for i := uintptr(0); i < fullBytes; i++ {
		used += uintptr(bits.OnesCount8(b.data[i]))
	}

	for index := fullBytes << 3; index < bitCount; index++ {
		if b.test(index) {
			used++
		}
	}

	return bitCount - used
}
