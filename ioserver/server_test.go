package ioserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerChannelRoundTrip(t *testing.T) {
	srv := NewServer(WithTickHz(1000))
	defer srv.Shutdown()

	received := make(chan []byte, 1)
	a, err := srv.CreateChannel(CreateChannelOptions{
		BindHost: "127.0.0.1",
		PacketIn: func(data []byte, peer *net.UDPAddr, nowNS uint64) {
			cp := make([]byte, len(data))
			copy(cp, data)
			received <- cp
		},
	})
	require.NoError(t, err)
	defer a.Close()

	b, err := srv.CreateChannel(CreateChannelOptions{BindHost: "127.0.0.1"})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.SetTarget(a.LocalAddr().IP.String(), a.LocalAddr().Port))
	require.NoError(t, b.SendPkt([]byte("hello")))

	select {
	case got := <-received:
		assert.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("packet never arrived")
	}
}

func TestServerSendPktFailsWhenQueueFull(t *testing.T) {
	srv := NewServer()
	defer srv.Shutdown()

	ch, err := srv.CreateChannel(CreateChannelOptions{BindHost: "127.0.0.1", QueueSize: 2})
	require.NoError(t, err)
	defer ch.Close()

	// The worker drains the queue only once per 5ms tick (discarding the
	// packets, since no target is set); the three sends below are issued
	// back to back between ticks, so the third exercises the full-queue
	// rejection path.
	require.NoError(t, ch.SendPkt([]byte("a")))
	require.NoError(t, ch.SendPkt([]byte("b")))
	err = ch.SendPkt([]byte("c"))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestServerCreateChannelRejectsNonPowerOfTwoQueue(t *testing.T) {
	srv := NewServer()
	defer srv.Shutdown()

	_, err := srv.CreateChannel(CreateChannelOptions{BindHost: "127.0.0.1", QueueSize: 3})
	assert.Error(t, err)
}

func TestServerOperationsFailAfterShutdown(t *testing.T) {
	srv := NewServer()
	srv.Shutdown()

	_, err := srv.CreateChannel(CreateChannelOptions{BindHost: "127.0.0.1"})
	assert.ErrorIs(t, err, ErrServerShuttingDown)
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	srv := NewServer()
	defer srv.Shutdown()

	ch, err := srv.CreateChannel(CreateChannelOptions{BindHost: "127.0.0.1"})
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
}

func TestParseBindFamily(t *testing.T) {
	cases := []struct {
		in   any
		want BindFamily
	}{
		{nil, BindAuto},
		{0, BindAuto},
		{4, BindIPv4},
		{6, BindIPv6},
		{"auto", BindAuto},
		{"ipv4", BindIPv4},
		{"inet6", BindIPv6},
	}
	for _, c := range cases {
		got, err := ParseBindFamily(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := ParseBindFamily("bogus")
	assert.Error(t, err)
}
