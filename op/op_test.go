package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupKnownOpcode(t *testing.T) {
	c, ok := Lookup("add_i32")
	require.True(t, ok)
	require.Equal(t, AddI32, c)
	require.Equal(t, "add_i32", c.String())
}

func TestLookupUnknownOpcode(t *testing.T) {
	_, ok := Lookup("frobnicate")
	require.False(t, ok)
}

func TestJumpSourceNameMapsToStub(t *testing.T) {
	c, ok := Lookup("jump")
	require.True(t, ok)
	require.Equal(t, JumpStub, c)
}
