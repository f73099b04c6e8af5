package kfmt

import (
	"stivos/kernel"
	"stivos/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}

	// panicking is set while the panic banner is being printed. A fault
	// raised by the output sink re-enters Panic which then halts without
	// printing anything.
	panicking bool
)

// Panic prints a banner naming the module that failed and the reason for the
// failure and halts the CPU. Calls to Panic never return. Panic also works as
// a redirection target for calls to panic() (resolved via runtime.gopanic) so
// runtime faults such as out-of-range slice accesses end up here as well;
// those are reported under the "rt" module.
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	if panicking {
		cpuHaltFn()
		return
	}
	panicking = true

	err := panicCause(e)
	Printf("\n*** kernel panic ***\n")
	Printf("module: %s\n", err.Module)
	Printf("reason: %s\n", err.Message)
	Printf("*** system halted ***\n")

	cpuHaltFn()

	// Only reachable when cpuHaltFn is mocked.
	panicking = false
}

// panicCause maps the argument passed to Panic to the error to report.
func panicCause(e interface{}) *kernel.Error {
	switch t := e.(type) {
	case *kernel.Error:
		if t != nil {
			return t
		}
		errRuntimePanic.Message = "unknown cause"
	case string:
		errRuntimePanic.Message = t
	case error:
		errRuntimePanic.Message = t.Error()
	default:
		errRuntimePanic.Message = "unknown cause"
	}

	return errRuntimePanic
}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	Panic(msg)
}
