// Package vmerr defines the VM's structured error taxonomy. Every error
// the compiler or interpreter can raise is a *vmerr.Error carrying a
// stable Code, a human message, and — when the offending instruction was
// recorded in the instruction-to-version map — an opaque source position
// supplied by the image's own instruction objects.
package vmerr

import "fmt"

// Code is a stable identifier for a class of VM error, grouped the way
// the teacher groups its own error codes: compile-time failures first,
// then runtime, then resource exhaustion.
type Code string

const (
	EmptyBlock     Code = "V1001" // a block's instrs array is empty
	UnknownOpcode  Code = "V1002" // instruction object names an op the compiler doesn't recognize

	MissingField     Code = "V2001" // get_field, or an inline-cache probe, found no such field
	InvalidFieldName Code = "V2002" // set_field given an identifier that fails validity check
	IndexOutOfBounds Code = "V2003" // string/array index out of range
	ArgCount         Code = "V2004" // call site argument count != callee's num_params
	StackUnderflow   Code = "V2005" // fewer operands present at a call site than num_args
	StackImbalance   Code = "V2006" // stack size differs across a callFun entry/exit
	InvalidCallee    Code = "V2007" // call target is neither an Object nor a HostFn
	MissingExport    Code = "V2008" // callExportFn: package has no such field
	ExportNotFunction Code = "V2009" // callExportFn: named export isn't an Object
	TypeError        Code = "V2010" // a typed pop found the wrong tag on top of stack

	CodeBufferExhausted Code = "V3001" // code heap bump allocator ran past its limit
	StackOverflow       Code = "V3002" // value stack sp reached stackLimit
)

// SourcePos is the opaque per-instruction diagnostic annotation described
// by the spec's source-position interface. The VM core never interprets
// its shape; it only carries it through to error messages via the
// collaborator-supplied Stringer.
type SourcePos interface {
	fmt.Stringer
}

// Error is the VM's error type.
type Error struct {
	Code    Code
	Message string
	Pos     SourcePos // nil when no position could be recovered
	Cause   error
}

func (e *Error) Error() string {
	if e.Pos != nil {
		return fmt.Sprintf("%s - %s: %s", e.Pos.String(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error without a recovered source position; callers that
// have one should set Pos afterward (WithPos) once recovery runs.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithPos attaches a recovered source position, returning the receiver
// for chaining.
func (e *Error) WithPos(pos SourcePos) *Error {
	e.Pos = pos
	return e
}

// WithCause attaches an underlying cause, returning the receiver for
// chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}
