// Package serial provides a driver for 16550-compatible UARTs that the
// kernel uses as its console.
package serial

import (
	"io"

	"stivos/device"
	"stivos/kernel"
	"stivos/kernel/cpu"
	"stivos/kernel/kfmt"
)

const (
	// COM1 is the I/O port base of the first serial port.
	COM1 = uint16(0x3f8)

	// BaudRate is the line speed used by the console.
	BaudRate = 115200

	// The UART input clock divided by 16.
	baseClock = 115200

	// Register offsets relative to the port base.
	regData        = 0 // data; divisor low byte when DLAB is set
	regIntEnable   = 1 // interrupt enable; divisor high byte when DLAB is set
	regFIFOControl = 2
	regLineControl = 3
	regModemCtrl   = 4
	regLineStatus  = 5

	lineControlDLAB  = 0x80
	lineControl8N1   = 0x03
	fifoEnableClear  = 0xc7 // enable, clear both FIFOs, 14 byte threshold
	modemCtrlNormal  = 0x0f // DTR, RTS, OUT1, OUT2
	modemCtrlLoop    = 0x1e // RTS, OUT1, OUT2, loopback
	lineStatusTxIdle = 0x20
	loopbackTestByte = 0xae

	// maxTxPolls bounds the number of line status reads while waiting for
	// the transmitter to become ready.
	maxTxPolls = 1 << 16
)

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errLoopbackFailed = &kernel.Error{Module: "serial", Message: "loopback test failed"}
	errNotInitialized = &kernel.Error{Module: "serial", Message: "port not initialized"}
	errTxTimeout      = &kernel.Error{Module: "serial", Message: "timed out waiting for the transmitter"}

	com1 = Port{base: COM1}
)

// Port is a 16550 UART configured for 8N1 at BaudRate. Port implements
// io.Writer and can be used as the kfmt output sink once DriverInit
// succeeds.
type Port struct {
	base        uint16
	initialized bool
}

// DriverName returns the name of this driver.
func (p *Port) DriverName() string {
	return "serial_16550"
}

// DriverVersion returns the version of this driver.
func (p *Port) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit programs the line speed and framing, enables the FIFOs and
// runs a loopback test to make sure the UART is present.
func (p *Port) DriverInit(w io.Writer) *kernel.Error {
	divisor := uint16(baseClock / BaudRate)

	portWriteByteFn(p.base+regIntEnable, 0)
	portWriteByteFn(p.base+regLineControl, lineControlDLAB)
	portWriteByteFn(p.base+regData, uint8(divisor))
	portWriteByteFn(p.base+regIntEnable, uint8(divisor>>8))
	portWriteByteFn(p.base+regLineControl, lineControl8N1)
	portWriteByteFn(p.base+regFIFOControl, fifoEnableClear)

	portWriteByteFn(p.base+regModemCtrl, modemCtrlLoop)
	portWriteByteFn(p.base+regData, loopbackTestByte)
	if portReadByteFn(p.base+regData) != loopbackTestByte {
		return errLoopbackFailed
	}
	portWriteByteFn(p.base+regModemCtrl, modemCtrlNormal)

	p.initialized = true
	kfmt.Fprintf(w, "uart at port 0x%x, %d baud\n", p.base, BaudRate)

	return nil
}

// Write implements io.Writer. Newlines are translated to CRLF sequences.
// The returned count only includes bytes from data.
func (p *Port) Write(data []byte) (int, error) {
	if !p.initialized {
		return 0, errNotInitialized
	}

	for i, b := range data {
		if b == '\n' {
			if err := p.writeByte('\r'); err != nil {
				return i, err
			}
		}

		if err := p.writeByte(b); err != nil {
			return i, err
		}
	}

	return len(data), nil
}

func (p *Port) writeByte(b byte) *kernel.Error {
	for polls := 0; portReadByteFn(p.base+regLineStatus)&lineStatusTxIdle == 0; polls++ {
		if polls == maxTxPolls {
			return errTxTimeout
		}
	}

	portWriteByteFn(p.base+regData, b)
	return nil
}

// ProbeCOM1 returns the driver for the first serial port.
func ProbeCOM1() *Port {
	return &com1
}

var _ device.Driver = (*Port)(nil)
