package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		{
			func() { printfn("%t %t", true, false) },
			"true false",
		},
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("'%4s' arg longer than padding", "ABCDE") },
			"'ABCDE' arg longer than padding",
		},
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		{
			func() { printfn("uintptr arg: 0x%16x", uintptr(0x100000)) },
			"uintptr arg: 0x0000000000100000",
		},
		{
			func() { printfn("padded: '%10d'", uint64(123)) },
			"padded: '       123'",
		},
		{
			func() { printfn("zero: %d 0x%x", 0, uint(0)) },
			"zero: 0 0x0",
		},
		{
			func() { printfn("int arg: %d", int64(-9223372036854775808)) },
			"int arg: -9223372036854775808",
		},
		{
			func() { printfn("padded negative: '%5d'", int32(-12)) },
			"padded negative: '  -12'",
		},
		{
			func() { printfn("%d%%", 50) },
			"50%",
		},
		{
			func() { printfn("missing: %d") },
			"missing: (MISSING)",
		},
		{
			func() { printfn("wrong type: %d %t %s", "foo", 1, 2) },
			"wrong type: %!(WRONGTYPE) %!(WRONGTYPE) %!(WRONGTYPE)",
		},
		{
			func() { printfn("no verb: %q", 1) },
			"no verb: %!(NOVERB)%!(EXTRA)",
		},
		{
			func() { printfn("trailing %", 1) },
			"trailing %!(NOVERB)%!(EXTRA)",
		},
		{
			func() { printfn("extra", 1, 2) },
			"extra%!(EXTRA)%!(EXTRA)",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer.rIndex = 0
		earlyPrintBuffer.wIndex = 0
	}()

	outputSink = nil
	earlyPrintBuffer.rIndex = 0
	earlyPrintBuffer.wIndex = 0

	exp := "[pmm] bitmap: 32 bytes\n"
	Printf("[pmm] bitmap: %d bytes\n", 32)

	// Attaching a sink replays the buffered output
	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the attached sink")
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "%s: %d pages", "pmm", uint32(255))

	if exp, got := "pmm: 255 pages", buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}
