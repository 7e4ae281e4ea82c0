package ioserver

import (
	"net"

	"github.com/sippy/rtpcore/rtpsync"
)

type cmdType int

const (
	cmdAddChannel cmdType = iota
	cmdRemoveChannel
	cmdSetTarget
	cmdShutdown
)

type command struct {
	typ    cmdType
	ch     *Channel
	target *net.UDPAddr
	waiter *rtpsync.Waiter
}
