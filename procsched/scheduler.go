// Package procsched implements the processing scheduler: a single
// background worker that invokes registered callbacks in deadline order,
// each callback reporting its own next deadline (or none) on return.
package procsched

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sippy/rtpcore/rtpsync"
)

var (
	singleton     *Scheduler
	singletonOnce sync.Once
)

// Scheduler is a process-wide singleton: GetScheduler always returns the
// same instance, started lazily on first call. There is no public
// constructor, mirroring the original toolkit's single-instance
// enforcement at the type level.
type Scheduler struct {
	cmds   rtpsync.CommandQueue[command]
	signal *rtpsync.Signal

	mu             sync.Mutex
	channels       map[uint64]*Channel
	nextID         uint64
	schedHead      *Channel
	accepting      bool
	shutdownQueued bool

	log zerolog.Logger
}

// GetScheduler returns the process-wide Scheduler, starting its worker
// goroutine on first call.
func GetScheduler() *Scheduler {
	singletonOnce.Do(func() {
		singleton = &Scheduler{
			signal:    rtpsync.NewSignal(),
			channels:  make(map[uint64]*Channel),
			accepting: true,
			log:       log.Logger.With().Str("component", "procsched").Logger(),
		}
		go singleton.run()
	})
	return singleton
}

// CreateChannel registers cb with the scheduler. The callback is invoked
// once synchronously (with deadlineNS=0) to obtain its initial deadline
// before CreateChannel returns.
func (s *Scheduler) CreateChannel(cb ProcessFunc) (*Channel, error) {
	ch := &Channel{cb: cb, sch: s}
	w := rtpsync.NewWaiter()
	if !s.enqueue(command{typ: cmdAddChannel, ch: ch, waiter: w}) {
		return nil, errors.New("procsched: scheduler is shutting down")
	}
	if err := w.Wait(); err != nil {
		return nil, err
	}
	return ch, nil
}

// Shutdown stops the worker goroutine after it finishes any in-flight
// command. Safe to call more than once.
func (s *Scheduler) Shutdown() {
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

func (s *Scheduler) enqueue(c command) bool {
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

func nowNS() uint64 { return uint64(time.Now().UnixNano()) }

func (s *Scheduler) run() {
	for {
		shutdown := s.processCommands()
		if shutdown {
			return
		}

		s.signal.Lock()
		now := nowNS()
		for {
			ch := s.popDue(now)
			if ch == nil {
				break
			}
			s.invoke(ch, now)
			now = nowNS()
		}

		if s.schedHead == nil {
			s.signal.Wait()
		} else {
			s.signal.WaitUntil(time.Unix(0, int64(s.schedHead.nextRunNS)))
		}
		s.signal.Unlock()
	}
}

// processCommands drains and applies every queued command, returning true
// once a shutdown command has been seen.
func (s *Scheduler) processCommands() bool {
	cmds := s.cmds.DetachAll()
	shutdown := false
	for _, c := range cmds {
		switch c.typ {
		case cmdAddChannel:
			s.applyAdd(c)
		case cmdRemoveChannel:
			s.applyRemove(c)
		case cmdShutdown:
			shutdown = true
		}
	}
	return shutdown
}

func (s *Scheduler) applyAdd(c command) {
	s.mu.Lock()
	c.ch.id = s.nextID
	s.nextID++
	c.ch.active = true
	s.channels[c.ch.id] = c.ch
	s.mu.Unlock()

	next, ok, err := s.invokeCallback(c.ch, nowNS(), 0)
	if err != nil {
		c.ch.cbErr = err
		s.log.Warn().Err(err).Uint64("channel", c.ch.id).Msg("callback failed on registration")
	} else if ok {
		now := nowNS()
		if next < now {
			next = now
		}
		s.schedule(c.ch, next)
	}
	c.waiter.Complete(nil)
}

func (s *Scheduler) applyRemove(c command) {
	s.unschedule(c.ch)
	s.mu.Lock()
	c.ch.active = false
	delete(s.channels, c.ch.id)
	err := c.ch.cbErr
	s.mu.Unlock()

	if c.waiter == nil {
		return
	}
	if err != nil {
		c.waiter.Complete(&ChannelProcError{cause: err})
		return
	}
	c.waiter.Complete(nil)
}

// invokeCallback calls the channel's ProcessFunc, recovering a panic into
// an error the way the original toolkit captures and re-raises a thrown
// callback exception.
func (s *Scheduler) invokeCallback(ch *Channel, now, deadlineNS uint64) (next uint64, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("procsched: callback panic: %v", r)
		}
	}()
	next, ok = ch.cb(now, deadlineNS)
	return next, ok, nil
}

func (s *Scheduler) invoke(ch *Channel, now uint64) {
	deadline := ch.nextRunNS
	ch.scheduled = false
	next, ok, err := s.invokeCallback(ch, now, deadline)
	if err != nil {
		ch.cbErr = err
		s.log.Warn().Err(err).Uint64("channel", ch.id).Msg("callback failed")
		return
	}
	if ok {
		s.schedule(ch, next)
	}
}

// schedule inserts ch into the ordered schedule list keyed by
// nextRunNS, ties broken by insertion order (a new entry is placed after
// every existing entry with an equal-or-earlier deadline).
func (s *Scheduler) schedule(ch *Channel, nextRunNS uint64) {
	s.unschedule(ch)
	ch.nextRunNS = nextRunNS
	ch.scheduled = true

	if s.schedHead == nil || nextRunNS < s.schedHead.nextRunNS {
		ch.next = s.schedHead
		s.schedHead = ch
		return
	}
	prev := s.schedHead
	for prev.next != nil && prev.next.nextRunNS <= nextRunNS {
		prev = prev.next
	}
	ch.next = prev.next
	prev.next = ch
}

func (s *Scheduler) unschedule(ch *Channel) {
	if !ch.scheduled {
		return
	}
	ch.scheduled = false
	if s.schedHead == ch {
		s.schedHead = ch.next
		ch.next = nil
		return
	}
	for prev := s.schedHead; prev != nil; prev = prev.next {
		if prev.next == ch {
			prev.next = ch.next
			ch.next = nil
			return
		}
	}
}

// popDue removes and returns the head of the schedule list if it is due
// at now, so the worker can drain every currently-due channel before it
// waits again.
func (s *Scheduler) popDue(now uint64) *Channel {
	if s.schedHead == nil || s.schedHead.nextRunNS > now {
		return nil
	}
	ch := s.schedHead
	s.schedHead = ch.next
	ch.next = nil
	ch.scheduled = false
	return ch
}
