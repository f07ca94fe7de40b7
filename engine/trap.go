package engine

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/sys"
)

// TrapCode classifies a Trap.
type TrapCode uint8

const (
	TrapUnknown TrapCode = iota
	TrapUnreachable
	TrapMemoryOutOfBounds
	TrapIntegerDivisionByZero
	TrapIntegerOverflow
	TrapBadConversionToInteger
	TrapStackOverflow
	TrapIndirectCallTypeMismatch
	TrapTableOutOfBounds
	TrapInterrupt
	TrapHostError
	TrapMarshal
	TrapInstantiation
	TrapExit
)

var trapCodeNames = [...]string{
	TrapUnknown:                  "unknown",
	TrapUnreachable:              "unreachable",
	TrapMemoryOutOfBounds:        "memory out of bounds",
	TrapIntegerDivisionByZero:    "integer division by zero",
	TrapIntegerOverflow:          "integer overflow",
	TrapBadConversionToInteger:   "bad conversion to integer",
	TrapStackOverflow:            "stack overflow",
	TrapIndirectCallTypeMismatch: "indirect call type mismatch",
	TrapTableOutOfBounds:         "table out of bounds",
	TrapInterrupt:                "interrupt",
	TrapHostError:                "host error",
	TrapMarshal:                  "marshal",
	TrapInstantiation:            "instantiation",
	TrapExit:                     "exit",
}

func (c TrapCode) String() string {
	if int(c) < len(trapCodeNames) {
		return trapCodeNames[c]
	}
	return "trap(" + strconv.Itoa(int(c)) + ")"
}

// Trap describes the abnormal termination of guest code, of a host
// function it called, or of the marshalling around a call. The receiver of
// a Trap owns it.
type Trap struct {
	cause   error
	message string
	code    TrapCode
}

// NewTrap creates a trap with a host-supplied message.
func NewTrap(message string) *Trap {
	return &Trap{message: message, code: TrapHostError}
}

// AsTrap returns err as a Trap. Errors that are not traps are wrapped with
// code TrapUnknown. It returns nil for a nil error.
func AsTrap(err error) *Trap {
	if err == nil {
		return nil
	}
	var trap *Trap
	if stderrors.As(err, &trap) {
		return trap
	}
	return newTrap(TrapUnknown, err.Error(), err)
}

func newTrap(code TrapCode, message string, cause error) *Trap {
	return &Trap{code: code, message: message, cause: cause}
}

func (t *Trap) Error() string {
	return "trap: " + t.message
}

// Message returns the UTF-8 trap message.
func (t *Trap) Message() string { return t.message }

func (t *Trap) Code() TrapCode { return t.code }

func (t *Trap) Unwrap() error { return t.cause }

// runtimeTraps maps runtime error messages to codes. Order matters where
// one message contains another.
var runtimeTraps = []struct {
	text string
	code TrapCode
}{
	{"unreachable", TrapUnreachable},
	{"out of bounds memory access", TrapMemoryOutOfBounds},
	{"integer divide by zero", TrapIntegerDivisionByZero},
	{"integer overflow", TrapIntegerOverflow},
	{"invalid conversion to integer", TrapBadConversionToInteger},
	{"stack overflow", TrapStackOverflow},
	{"indirect call type mismatch", TrapIndirectCallTypeMismatch},
	{"invalid table access", TrapTableOutOfBounds},
}

// trapFromError turns a runtime failure into a Trap. hostErr is the error
// a host function raised during the call, if any. fallback is used when the
// failure matches no known trap.
func trapFromError(err error, hostErr error, fallback TrapCode) *Trap {
	if err == nil {
		return nil
	}
	var trap *Trap
	if stderrors.As(err, &trap) {
		return trap
	}
	if hostErr != nil {
		if stderrors.As(hostErr, &trap) {
			return trap
		}
		return newTrap(TrapHostError, hostErr.Error(), hostErr)
	}

	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		switch exit.ExitCode() {
		case sys.ExitCodeContextCanceled:
			return newTrap(TrapInterrupt, "interrupted", err)
		case sys.ExitCodeDeadlineExceeded:
			return newTrap(TrapInterrupt, "call deadline exceeded", err)
		}
		return newTrap(TrapExit, "exit status "+strconv.FormatUint(uint64(exit.ExitCode()), 10), err)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return newTrap(TrapInterrupt, "interrupted", err)
	}

	msg := firstLine(err.Error())
	for _, rt := range runtimeTraps {
		if strings.Contains(msg, rt.text) {
			return newTrap(rt.code, msg, err)
		}
	}
	return newTrap(fallback, msg, err)
}

// firstLine strips the stack trace the runtime appends to trap messages.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
