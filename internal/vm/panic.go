package vm

import (
	"fmt"
	"strings"
)

// PanicCode identifies the type of VM panic.
type PanicCode int

// Stable panic codes - do not change values.
const (
	PanicTypeMismatch      PanicCode = 1003 // VM1003: type mismatch
	PanicOutOfBounds       PanicCode = 1004 // VM1004: out of bounds
	PanicUnknownFunction   PanicCode = 1005 // VM1005: call to an undefined external
	PanicInvalidHandle     PanicCode = 1010 // VM1010: bad pointer
	PanicUseAfterFree      PanicCode = 1011 // VM1011: use after free
	PanicDoubleFree        PanicCode = 1012 // VM1012: double free
	PanicRefcountUnderflow PanicCode = 1013 // VM1013: release of a dead object
	PanicUndefValue        PanicCode = 1014 // VM1014: undef used as an address or callee
	PanicNative            PanicCode = 1020 // VM1020: native function failed
	PanicUnimplemented     PanicCode = 1999 // VM1999: unimplemented opcode
)

// String returns the code as "VM1001" format.
func (c PanicCode) String() string {
	return fmt.Sprintf("VM%d", c)
}

// VMError represents a runtime panic in the VM.
type VMError struct {
	Code    PanicCode
	Message string
	// Backtrace lists function names from innermost to outermost.
	Backtrace []string
}

// Error implements the error interface.
func (p *VMError) Error() string {
	return fmt.Sprintf("panic %s: %s", p.Code, p.Message)
}

// Format renders the panic with its backtrace.
func (p *VMError) Format() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("panic %s: %s\n", p.Code, p.Message))
	if len(p.Backtrace) > 0 {
		sb.WriteString("backtrace:\n")
		for i, fn := range p.Backtrace {
			sb.WriteString(fmt.Sprintf("  %d: %s\n", i, fn))
		}
	}
	return sb.String()
}

// errorBuilder helps construct VMError values.
type errorBuilder struct {
	vm *VM
}

func (eb *errorBuilder) makeError(code PanicCode, msg string) *VMError {
	e := &VMError{Code: code, Message: msg}
	stack := eb.vm.stack
	e.Backtrace = make([]string, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		e.Backtrace[len(stack)-1-i] = stack[i].fn.Name
	}
	return e
}

func (eb *errorBuilder) typeMismatch(what string, got, want any) *VMError {
	return eb.makeError(PanicTypeMismatch, fmt.Sprintf("%s: got %v, want %v", what, got, want))
}

func (eb *errorBuilder) outOfBounds(h Handle, off, n, size int) *VMError {
	return eb.makeError(PanicOutOfBounds, fmt.Sprintf("access of %d bytes at %d in handle %d of %d bytes", n, off, h, size))
}
