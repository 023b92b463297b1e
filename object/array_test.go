package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArrayPushAndIndex(t *testing.T) {
	a := NewArray(0)
	require.Equal(t, 0, a.Len())
	a.Push(Int32(1))
	a.Push(Int32(2))
	require.Equal(t, 2, a.Len())

	v, ok := a.Get(1)
	require.True(t, ok)
	require.Equal(t, int32(2), v.AsInt32())

	_, ok = a.Get(5)
	require.False(t, ok)
}

func TestArraySetOutOfBounds(t *testing.T) {
	a := NewArray(0)
	require.False(t, a.Set(0, Int32(1)))
	a.Push(Int32(9))
	require.True(t, a.Set(0, Int32(1)))
	v, _ := a.Get(0)
	require.Equal(t, int32(1), v.AsInt32())
}

func TestNewArrayPreSizesWithUndef(t *testing.T) {
	a := NewArray(3)
	require.Equal(t, 3, a.Len())
	v, ok := a.Get(0)
	require.True(t, ok)
	require.True(t, v.IsUndef())
}
