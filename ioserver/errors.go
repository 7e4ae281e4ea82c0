package ioserver

import "errors"

var (
	// ErrQueueFull is returned by Channel.SendPkt when the outbound SPMC
	// queue has no free slot.
	ErrQueueFull = errors.New("ioserver: channel output queue is full")
	// ErrChannelClosed is returned by operations on a closed Channel.
	ErrChannelClosed = errors.New("ioserver: channel is already closed")
	// ErrServerShuttingDown is returned by operations submitted after
	// Shutdown has been called.
	ErrServerShuttingDown = errors.New("ioserver: server is shutting down")
	// ErrChannelGone is returned by SetTarget when the channel has
	// already been removed from the server.
	ErrChannelGone = errors.New("ioserver: channel is no longer present")
)
