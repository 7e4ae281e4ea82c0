package procsched

import (
	"sync/atomic"

	"github.com/sippy/rtpcore/rtpsync"
)

// ProcessFunc is the per-channel callback contract: invoked with the
// current time and the deadline that was scheduled (0 on the very first
// call), it returns the next absolute deadline in nanoseconds and true,
// or ok=false to stop being scheduled.
type ProcessFunc func(nowNS, deadlineNS uint64) (nextNS uint64, ok bool)

// Channel is one registered callback on the Scheduler's ordered schedule
// list.
type Channel struct {
	id  uint64
	cb  ProcessFunc
	sch *Scheduler

	active    bool
	scheduled bool
	nextRunNS uint64
	cbErr     error

	// next links Channel into the scheduler's ordered singly-linked
	// schedule list; it is only ever touched by the scheduler worker
	// goroutine.
	next *Channel

	closed atomic.Bool
}

// Close synchronously unregisters the channel. If the callback had
// previously panicked, Close returns the captured error wrapped in a
// *ChannelProcError with the original as its cause.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	w := rtpsync.NewWaiter()
	c.sch.enqueue(command{typ: cmdRemoveChannel, ch: c, waiter: w})
	return w.Wait()
}
