package kernel

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// Pad the buffer so we can detect writes past the requested size
	buf := make([]byte, 4096+8)

	for _, size := range []uintptr{0, 1, 3, 32, 4095, 4096} {
		for i := range buf {
			buf[i] = 0x0
		}

		Memset(uintptr(unsafe.Pointer(&buf[0])), 0xff, size)

		for i := uintptr(0); i < size; i++ {
			if buf[i] != 0xff {
				t.Fatalf("[size %d] expected byte %d to be 0xff; got 0x%x", size, i, buf[i])
			}
		}

		for i := size; i < uintptr(len(buf)); i++ {
			if buf[i] != 0 {
				t.Fatalf("[size %d] expected byte %d to be left untouched; got 0x%x", size, i, buf[i])
			}
		}
	}
}
