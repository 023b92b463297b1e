package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostFnArities(t *testing.T) {
	h0 := NewHostFn0("zero", func() Value { return Int32(0) })
	require.Equal(t, 0, h0.Arity())
	require.Equal(t, int32(0), h0.Call(nil).AsInt32())

	h2 := NewHostFn2("add", func(a, b Value) Value {
		return Int32(a.AsInt32() + b.AsInt32())
	})
	require.Equal(t, 2, h2.Arity())
	require.Equal(t, int32(7), h2.Call([]Value{Int32(3), Int32(4)}).AsInt32())
}
