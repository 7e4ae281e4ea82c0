package ioserver

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/sippy/rtpcore/ringqueue"
	"github.com/sippy/rtpcore/rtpsync"
)

// DefaultQueueCapacity is the default outbound queue size for a new
// Channel, matching the toolkit's historical default.
const DefaultQueueCapacity = 32

// PacketInFunc is invoked once per received datagram, during the
// server's per-tick inbound drain, in the order datagrams arrived on the
// channel's socket.
type PacketInFunc func(data []byte, peer *net.UDPAddr, nowNS uint64)

type sendItem struct {
	data []byte
}

// Channel is one UDP socket managed by a Server: inbound datagrams are
// delivered to a caller-supplied callback, outbound datagrams are queued
// via SendPkt and drained to the wire on the server's tick.
type Channel struct {
	id  uint64
	srv *Server

	conn      *net.UDPConn
	localAddr *net.UDPAddr
	pktIn     PacketInFunc
	outQ      *ringqueue.Queue[sendItem]

	targetMu sync.Mutex
	target   *net.UDPAddr

	closed atomic.Bool
	stop   chan struct{}
}

// LocalAddr returns the address the channel's socket is bound to.
func (c *Channel) LocalAddr() *net.UDPAddr { return c.localAddr }

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool { return c.closed.Load() }

// SetTarget synchronously resolves host:port and installs it as the
// channel's outbound destination.
func (c *Channel) SetTarget(host string, port int) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	addr, err := resolveUDPAddr(c.srv.family(c), host, port, false)
	if err != nil {
		return err
	}
	w := rtpsync.NewWaiter()
	if !c.srv.enqueue(command{typ: cmdSetTarget, ch: c, target: addr, waiter: w}) {
		return ErrServerShuttingDown
	}
	return w.Wait()
}

// SendPkt enqueues b for transmission on the channel's outbound queue. b
// itself is queued, without a copy: callers must not mutate b after a
// successful call. ErrQueueFull is returned, and b is left owned by the
// caller, if the queue has no free slot. The outbound queue has a single
// producer side, so only one goroutine at a time may call SendPkt on a
// given Channel.
func (c *Channel) SendPkt(b []byte) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	if c.srv.isShuttingDown() {
		return ErrServerShuttingDown
	}
	if !c.outQ.TryPush(sendItem{data: b}) {
		return ErrQueueFull
	}
	c.srv.signal.Broadcast()
	return nil
}

// Close removes the channel from the server and closes its socket. Safe
// to call more than once.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.stop)
	c.srv.enqueue(command{typ: cmdRemoveChannel, ch: c})
	return nil
}

func (c *Channel) readLoop() {
	buf := make([]byte, maxUDPPacket)
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		n, peer, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case c.srv.inbound <- inboundPkt{ch: c, data: data, peer: peer, nowNS: nowNS()}:
		case <-c.stop:
			return
		}
	}
}
