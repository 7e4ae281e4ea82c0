package procsched

import "github.com/sippy/rtpcore/rtpsync"

type cmdType int

const (
	cmdAddChannel cmdType = iota
	cmdRemoveChannel
	cmdShutdown
)

type command struct {
	typ    cmdType
	ch     *Channel
	waiter *rtpsync.Waiter
}
