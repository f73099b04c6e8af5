package mm

import "testing"

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := PhysAddr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestPhysAddrFrame(t *testing.T) {
	specs := []struct {
		input    PhysAddr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
		{0x100000, Frame(256)},
	}

	for specIndex, spec := range specs {
		if got := spec.input.Frame(); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestPhysAddrAlignment(t *testing.T) {
	specs := []struct {
		addr    PhysAddr
		aligned bool
		expUp   PhysAddr
		expDown PhysAddr
	}{
		{0, true, 0, 0},
		{1, false, 0x1000, 0},
		{0xfff, false, 0x1000, 0},
		{0x1000, true, 0x1000, 0x1000},
		{0x100020, false, 0x101000, 0x100000},
		{0x9fc00, false, 0xa0000, 0x9f000},
	}

	for specIndex, spec := range specs {
		if got := spec.addr.IsPageAligned(); got != spec.aligned {
			t.Errorf("[spec %d] expected IsPageAligned() to return %t; got %t", specIndex, spec.aligned, got)
		}

		if got := spec.addr.AlignUp(); got != spec.expUp {
			t.Errorf("[spec %d] expected AlignUp() to return 0x%x; got 0x%x", specIndex, spec.expUp, got)
		}

		if got := spec.addr.AlignDown(); got != spec.expDown {
			t.Errorf("[spec %d] expected AlignDown() to return 0x%x; got 0x%x", specIndex, spec.expDown, got)
		}
	}

	if exp, got := PhysAddr(0x101000), PhysAddr(0x100000).Add(PageSize); got != exp {
		t.Errorf("expected Add() to return 0x%x; got 0x%x", exp, got)
	}
}
