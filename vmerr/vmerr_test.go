package vmerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePos string

func (f fakePos) String() string { return string(f) }

func TestErrorWithoutPos(t *testing.T) {
	err := New(MissingField, "missing field %q", "x")
	require.Equal(t, `V2001: missing field "x"`, err.Error())
}

func TestErrorWithPos(t *testing.T) {
	err := New(ArgCount, "expected 1, got 2").WithPos(fakePos("line 3"))
	require.Equal(t, "line 3 - V2004: expected 1, got 2", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := New(TypeError, "not an int32")
	err := New(MissingField, "x").WithCause(cause)
	require.ErrorIs(t, err, err)
	require.Equal(t, cause, err.Unwrap())
}
