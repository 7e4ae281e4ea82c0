// Package ioserver implements the I/O server: a single worker goroutine
// that owns a dynamic set of UDP channels, ticking at a configured rate to
// drain inbound datagrams to per-channel callbacks and outbound
// datagrams queued via each channel's SPMC queue.
package ioserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sippy/rtpcore/ringqueue"
	"github.com/sippy/rtpcore/rtpsync"
)

const (
	defaultTickHz = 200
	maxUDPPacket  = 65535
)

type inboundPkt struct {
	ch    *Channel
	data  []byte
	peer  *net.UDPAddr
	nowNS uint64
}

// Server owns one worker goroutine driving any number of UDP channels.
type Server struct {
	cmds   rtpsync.CommandQueue[command]
	signal *rtpsync.Signal
	inbound chan inboundPkt

	tickNS uint64

	mu             sync.Mutex
	channels       map[uint64]*Channel
	nextID         uint64
	accepting      bool
	shutdownQueued bool

	log zerolog.Logger
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithTickHz overrides the default 200Hz tick rate.
func WithTickHz(hz int) ServerOption {
	return func(s *Server) {
		if hz > 0 {
			s.tickNS = uint64(time.Second / time.Duration(hz))
		}
	}
}

// WithLogger overrides the default package logger.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer starts a Server's worker goroutine and returns it.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		signal:    rtpsync.NewSignal(),
		inbound:   make(chan inboundPkt, 1024),
		tickNS:    uint64(time.Second / defaultTickHz),
		channels:  make(map[uint64]*Channel),
		accepting: true,
		log:       log.Logger.With().Str("component", "ioserver").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// CreateChannelOptions configures a new channel.
type CreateChannelOptions struct {
	PacketIn     PacketInFunc
	BindHost     string
	BindPort     int
	BindFamily   any
	QueueSize    int
}

// CreateChannel binds a UDP socket and synchronously registers it with
// the server.
func (s *Server) CreateChannel(opts CreateChannelOptions) (*Channel, error) {
	family, err := ParseBindFamily(opts.BindFamily)
	if err != nil {
		return nil, err
	}
	queueSize := opts.QueueSize
	if queueSize == 0 {
		queueSize = DefaultQueueCapacity
	}
	if queueSize <= 0 || queueSize&(queueSize-1) != 0 {
		return nil, fmt.Errorf("ioserver: queue_size %d is not a power of two", queueSize)
	}

	laddr, err := resolveUDPAddr(family, opts.BindHost, opts.BindPort, true)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP(family.network(), laddr)
	if err != nil {
		return nil, err
	}
	outQ, err := ringqueue.New[sendItem](queueSize)
	if err != nil {
		conn.Close()
		return nil, err
	}

	ch := &Channel{
		srv:       s,
		conn:      conn,
		localAddr: conn.LocalAddr().(*net.UDPAddr),
		pktIn:     opts.PacketIn,
		outQ:      outQ,
		stop:      make(chan struct{}),
	}

	w := rtpsync.NewWaiter()
	if !s.enqueue(command{typ: cmdAddChannel, ch: ch, waiter: w}) {
		conn.Close()
		return nil, ErrServerShuttingDown
	}
	if err := w.Wait(); err != nil {
		conn.Close()
		return nil, err
	}
	go ch.readLoop()
	return ch, nil
}

// Shutdown stops the server's worker goroutine and closes every channel.
// Safe to call more than once.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.shutdownQueued {
		s.mu.Unlock()
		return
	}
	s.shutdownQueued = true
	s.accepting = false
	s.mu.Unlock()

	s.cmds.Push(command{typ: cmdShutdown})
	s.signal.Broadcast()
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.accepting
}

func (s *Server) family(ch *Channel) BindFamily {
	if ch.localAddr == nil || ch.localAddr.IP.To4() != nil {
		return BindIPv4
	}
	return BindIPv6
}

func (s *Server) enqueue(c command) bool {
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return false
	}
	s.cmds.Push(c)
	s.mu.Unlock()
	s.signal.Broadcast()
	return true
}

func resolveUDPAddr(family BindFamily, host string, port int, passive bool) (*net.UDPAddr, error) {
	if host == "" {
		if passive {
			if family == BindIPv6 {
				host = "::"
			} else {
				host = "0.0.0.0"
			}
		} else {
			return nil, errors.New("ioserver: target host is required")
		}
	}
	addr, err := net.ResolveUDPAddr(family.network(), fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("ioserver: resolve %s:%d: %w", host, port, err)
	}
	return addr, nil
}

func nowNS() uint64 { return uint64(time.Now().UnixNano()) }

func (s *Server) run() {
	nextTick := nowNS() + s.tickNS
	for {
		if s.processCommands() {
			break
		}

		s.mu.Lock()
		noChannels := len(s.channels) == 0
		s.mu.Unlock()

		s.signal.Lock()
		if noChannels {
			s.signal.Wait()
			s.signal.Unlock()
			continue
		}
		now := nowNS()
		if now < nextTick {
			s.signal.WaitUntil(time.Unix(0, int64(nextTick)))
			s.signal.Unlock()
			continue
		}
		s.signal.Unlock()

		s.drainInbound()
		s.drainOutbound()

		for nextTick <= nowNS() {
			nextTick += s.tickNS
		}
	}
	s.cleanup()
}

func (s *Server) drainInbound() {
	for {
		select {
		case pkt := <-s.inbound:
			if pkt.ch.pktIn != nil && !pkt.ch.closed.Load() {
				pkt.ch.pktIn(pkt.data, pkt.peer, pkt.nowNS)
			}
		default:
			return
		}
	}
}

func (s *Server) drainOutbound() {
	s.mu.Lock()
	channels := make([]*Channel, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, c)
	}
	s.mu.Unlock()

	for _, c := range channels {
		for {
			item, ok := c.outQ.TryPop()
			if !ok {
				break
			}
			c.targetMu.Lock()
			target := c.target
			c.targetMu.Unlock()
			if target != nil {
				if _, err := c.conn.WriteToUDP(item.data, target); err != nil {
					s.log.Debug().Err(err).Uint64("channel", c.id).Msg("send failed")
				}
			}
		}
	}
}

func (s *Server) processCommands() (shutdown bool) {
	for _, c := range s.cmds.DetachAll() {
		switch c.typ {
		case cmdAddChannel:
			s.mu.Lock()
			c.ch.id = s.nextID
			s.nextID++
			s.channels[c.ch.id] = c.ch
			s.mu.Unlock()
			c.waiter.Complete(nil)
		case cmdRemoveChannel:
			s.mu.Lock()
			delete(s.channels, c.ch.id)
			s.mu.Unlock()
			c.ch.conn.Close()
		case cmdSetTarget:
			s.mu.Lock()
			_, present := s.channels[c.ch.id]
			s.mu.Unlock()
			if !present {
				c.waiter.Complete(ErrChannelGone)
				continue
			}
			c.ch.targetMu.Lock()
			c.ch.target = c.target
			c.ch.targetMu.Unlock()
			c.waiter.Complete(nil)
		case cmdShutdown:
			shutdown = true
		}
	}
	return shutdown
}

func (s *Server) cleanup() {
	s.mu.Lock()
	channels := make([]*Channel, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, c)
	}
	s.channels = make(map[uint64]*Channel)
	s.mu.Unlock()

	for _, c := range channels {
		c.closed.Store(true)
		select {
		case <-c.stop:
		default:
			close(c.stop)
		}
		c.conn.Close()
	}
}
