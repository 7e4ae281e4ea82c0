// Package jitter implements the reorder/erasure engine: a bounded buffer
// that accepts RTP packets in arbitrary arrival order, reassembles them
// into logical-sequence order, and synthesizes Erasure frames for gaps it
// gives up waiting to fill.
package jitter

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sippy/rtpcore/rtppkt"
)

// preWrapWindow and forwardWrapWindow are the near-wraparound detection
// thresholds: a 16-bit RTP sequence number this close to 0 or 65535,
// observed against a running maximum on the other side of the wrap, is
// treated as the same wraparound event rather than a huge forward/back
// jump.
const (
	preWrapWindow     = 536
	forwardWrapWindow = 65000
	seqSpace          = 0x10000
)

// Buffer is the reorder/erasure engine. It is single-threaded: callers
// must serialize calls to UDPIn and Flush, and must finish processing the
// ready list from one call before making the next, since gap frames are
// emitted from a single frame shared across calls.
type Buffer struct {
	capacity uint32
	size     uint32
	head     *Frame

	lastLseq    *uint64
	lastMaxLseq *uint64
	lastTS      uint32
	lseqMask    uint64

	ersSlot Frame

	stats Stats
	log   zerolog.Logger
}

// Option configures a Buffer at construction time.
type Option func(*Buffer)

// WithLogger overrides the default package logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Buffer) { b.log = l }
}

// NewBuffer returns a Buffer with the given capacity (maximum number of
// pending out-of-order packets held before a forced eviction).
func NewBuffer(capacity uint32, opts ...Option) *Buffer {
	b := &Buffer{
		capacity: capacity,
		log:      log.Logger.With().Str("component", "jitter").Logger(),
	}
	b.ersSlot.Kind = FrameErasure
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stats returns a snapshot of the buffer's drop/wrap counters.
func (b *Buffer) Stats() Stats { return b.stats }

// UDPIn feeds one received datagram into the buffer. It returns the
// frames (possibly erasure-prefixed) that became ready for output, or a
// drop list if the packet was rejected as a duplicate or too late to
// place. A non-nil err means data failed to parse as RTP; the packet was
// not admitted and counts against ParseErrors.
func (b *Buffer) UDPIn(data []byte, owner any) (ready, drop []*Frame, err error) {
	desc, perr := rtppkt.ParseRaw(data)
	if perr != nil {
		b.stats.ParseErrors++
		b.log.Debug().Err(perr).Msg("dropping unparsable packet")
		return nil, nil, perr
	}

	seq := uint64(desc.Seq)
	lseq := b.lseqMask | seq

	fr := &Frame{
		Kind: FrameRTP,
		Packet: &Packet{
			Desc:  desc,
			Data:  data[desc.DataOffset : desc.DataOffset+desc.DataSize],
			Owner: owner,
		},
	}

	warmUp := b.lastLseq == nil

	if b.lastMaxLseq == nil {
		maxV := lseq
		b.lastMaxLseq = &maxV
		if lseq == 0 {
			fr.Packet.Lseq = lseq
			b.commitEmission(lseq, desc.TS)
			return []*Frame{fr}, nil, nil
		}
		fr.Packet.Lseq = lseq
		b.head = fr
		b.size = 1
		return nil, nil, nil
	}

	lastMax := *b.lastMaxLseq
	switch {
	case lastMax%seqSpace < preWrapWindow && seq > forwardWrapWindow:
		lseq -= seqSpace
	case lastMax > forwardWrapWindow && lseq < lastMax-forwardWrapWindow:
		b.lseqMask += seqSpace
		lseq += seqSpace
		b.stats.SeqWraps++
	}
	fr.Packet.Lseq = lseq

	if lseq > lastMax {
		maxV := lseq
		b.lastMaxLseq = &maxV
	}

	if !warmUp && lseq <= *b.lastLseq {
		if lseq == *b.lastLseq {
			b.stats.DupDrops++
			b.log.Debug().Uint64("lseq", lseq).Msg("dropping duplicate packet")
			return nil, []*Frame{fr}, nil
		}
		b.stats.LateDrops++
		b.log.Debug().Uint64("lseq", lseq).Msg("dropping late packet")
		return nil, []*Frame{fr}, nil
	}

	if b.insertSorted(fr) {
		b.stats.DupDrops++
		b.log.Debug().Uint64("lseq", lseq).Msg("dropping duplicate packet")
		return nil, []*Frame{fr}, nil
	}
	b.size++

	flush := !warmUp && b.head.Packet.Lseq == *b.lastLseq+1
	if b.size >= b.capacity || flush {
		ready = b.evictContiguousRun(warmUp)
	}
	return ready, nil, nil
}

// Flush drains every buffered packet regardless of contiguity: the
// leading contiguous run (possibly erasure-prefixed) becomes ready,
// everything after the first internal gap is returned as drop.
func (b *Buffer) Flush() (ready, drop []*Frame) {
	if b.head == nil {
		return nil, nil
	}
	warmUp := b.lastLseq == nil

	runHead := b.head
	cur := runHead
	for cur.Next != nil && cur.Packet.Lseq+1 == cur.Next.Packet.Lseq {
		cur = cur.Next
	}
	remainder := cur.Next
	cur.Next = nil

	out := runHead
	if !warmUp {
		if ers := b.insertErasure(runHead); ers != nil {
			out = ers
		}
	}
	b.commitEmission(cur.Packet.Lseq, cur.Packet.Desc.TS)

	b.head = nil
	b.size = 0
	return flatten(out), flatten(remainder)
}

func (b *Buffer) commitEmission(lseq uint64, ts uint32) {
	l := lseq
	b.lastLseq = &l
	b.lastTS = ts
}

// insertSorted inserts fr into the ascending-lseq pending list, reporting
// whether fr.Packet.Lseq duplicates an already-buffered frame.
func (b *Buffer) insertSorted(fr *Frame) (dup bool) {
	if b.head == nil {
		b.head = fr
		return false
	}
	if fr.Packet.Lseq == b.head.Packet.Lseq {
		return true
	}
	if fr.Packet.Lseq < b.head.Packet.Lseq {
		fr.Next = b.head
		b.head = fr
		return false
	}
	prev := b.head
	for prev.Next != nil {
		if prev.Next.Packet.Lseq == fr.Packet.Lseq {
			return true
		}
		if prev.Next.Packet.Lseq > fr.Packet.Lseq {
			break
		}
		prev = prev.Next
	}
	fr.Next = prev.Next
	prev.Next = fr
	return false
}

// evictContiguousRun pops the leading contiguous run off the pending
// list, prefixes it with an erasure frame if it does not immediately
// follow the last emitted lseq, and advances last_lseq/last_ts together.
func (b *Buffer) evictContiguousRun(warmUp bool) []*Frame {
	runHead := b.head
	cur := runHead
	for cur.Next != nil && cur.Packet.Lseq+1 == cur.Next.Packet.Lseq {
		cur = cur.Next
	}
	remainder := cur.Next
	cur.Next = nil

	evicted := uint32(0)
	for f := runHead; f != nil; f = f.Next {
		evicted++
	}
	b.head = remainder
	b.size -= evicted

	out := runHead
	if !warmUp {
		if ers := b.insertErasure(runHead); ers != nil {
			out = ers
		}
	}
	b.commitEmission(cur.Packet.Lseq, cur.Packet.Desc.TS)

	return flatten(out)
}

// insertErasure wires the buffer's single reusable erasure slot in front
// of fp if fp does not immediately follow last_lseq, returning nil (no
// gap, fp unchanged) otherwise. The caller must finish consuming the
// previous ready list before the next frame that reuses this slot.
func (b *Buffer) insertErasure(fp *Frame) *Frame {
	if *b.lastLseq+1 == fp.Packet.Lseq {
		return nil
	}
	gapLen := fp.Packet.Lseq - *b.lastLseq - 1
	b.ersSlot = Frame{
		Kind: FrameErasure,
		Erasure: &Erasure{
			LseqStart: *b.lastLseq + 1,
			LseqEnd:   fp.Packet.Lseq - 1,
			TSDiff:    tsDiff(b.lastTS, fp.Packet.Desc.TS, gapLen),
		},
		Next: fp,
	}
	return &b.ersSlot
}

// tsDiff estimates the total timestamp span the gapLen missing packets
// would have covered, given the timestamps bracketing the gap. The subtraction
// is plain uint32 arithmetic, which already wraps correctly across an
// RTP timestamp rollover.
func tsDiff(tsBefore, tsAfter uint32, gapLen uint64) uint32 {
	diff := uint64(tsAfter - tsBefore)
	return uint32(diff * gapLen / (gapLen + 1))
}
