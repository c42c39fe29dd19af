package interrupt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriorityOrder(t *testing.T) {
	c := &Controller{IE: 0x1F, IF: 0x1F}
	bit, ok := c.Next()
	require.True(t, ok)
	require.Equal(t, VBlank, bit, "expected VBlank first")

	c.Ack(VBlank)
	bit, ok = c.Next()
	require.True(t, ok)
	require.Equal(t, STAT, bit, "expected STAT next")
}

func TestDisabledLineNotPending(t *testing.T) {
	c := &Controller{IE: 0x00, IF: 0x1F}
	require.False(t, c.Pending(), "no lines enabled, should not be pending")
}

func TestRequestAck(t *testing.T) {
	c := &Controller{}
	c.Request(Timer)
	require.NotZero(t, c.IF&(1<<Timer), "timer flag not set after Request")

	c.Ack(Timer)
	require.Zero(t, c.IF&(1<<Timer), "timer flag not cleared after Ack")
}

func TestReadIFUpperBitsSet(t *testing.T) {
	c := &Controller{IF: 0x00}
	require.Equal(t, byte(0xE0), c.ReadIF())
}
