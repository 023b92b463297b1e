package codebuf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/op"
	"github.com/deepnoodle-ai/zimvm/vmerr"
)

func TestWriteReadOpcodeRoundTrip(t *testing.T) {
	buf := New(64)
	addr, err := buf.WriteOpcode(op.Jump)
	require.NoError(t, err)
	require.Equal(t, Addr(0), addr)

	r := buf.NewReader(addr)
	require.Equal(t, op.Jump, r.ReadOpcode())
	require.Equal(t, Addr(2), r.IP())
}

func TestWriteReadValueRoundTrip(t *testing.T) {
	cases := []object.Value{
		object.Undef,
		object.Int32(-7),
		object.Float32(3.25),
		object.Bool(true),
		object.Bool(false),
		object.String("hello"),
	}
	for _, v := range cases {
		buf := New(64)
		require.NoError(t, buf.WriteValue(v))
		r := buf.NewReader(0)
		require.True(t, v.Equal(r.ReadValue()))
	}
}

func TestWriteValueRejectsNonScalar(t *testing.T) {
	buf := New(64)
	err := buf.WriteValue(object.FromObject(object.NewObject(0)))
	require.Error(t, err)
}

func TestPatchOpcodeRewritesInPlace(t *testing.T) {
	buf := New(64)
	addr, err := buf.WriteOpcode(op.JumpStub)
	require.NoError(t, err)

	buf.PatchOpcode(addr, op.Jump)

	r := buf.NewReader(addr)
	require.Equal(t, op.Jump, r.ReadOpcode())
}

func TestPatchAddrRewritesInPlace(t *testing.T) {
	buf := New(64)
	addr, err := buf.WriteAddr(0xdead)
	require.NoError(t, err)

	buf.PatchAddr(addr, 0xbeef)

	r := buf.NewReader(0)
	v, at := r.ReadAddr()
	require.Equal(t, addr, at)
	require.Equal(t, uint64(0xbeef), v)
}

func TestReserveExhaustionReportsCodeBufferExhausted(t *testing.T) {
	buf := New(3)
	_, err := buf.WriteOpcode(op.Push) // 2 bytes, fits
	require.NoError(t, err)

	_, err = buf.WriteOpcode(op.Pop) // needs 2 more, only 1 left
	require.Error(t, err)
	ve, ok := err.(*vmerr.Error)
	require.True(t, ok)
	require.Equal(t, vmerr.CodeBufferExhausted, ve.Code)
}

func TestContainsBoundsBufferCapacity(t *testing.T) {
	buf := New(16)
	require.True(t, buf.Contains(0))
	require.True(t, buf.Contains(15))
	require.False(t, buf.Contains(-1))
	require.False(t, buf.Contains(16))
}
