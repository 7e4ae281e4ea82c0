package jitter

import "github.com/sippy/rtpcore/rtppkt"

// Kind discriminates the two variants a Frame can carry. Go has no
// tagged union; Kind plus the two nilable payload pointers below is the
// idiomatic stand-in for the original rtp_frame_type/union pair.
type Kind int

const (
	// FrameRTP carries an actual received packet.
	FrameRTP Kind = iota
	// FrameErasure marks a gap the buffer gave up waiting to fill.
	FrameErasure
)

// Packet is the RTP-frame payload: the parsed descriptor plus the
// borrowed payload bytes and the caller's owning handle, returned
// unmodified on emission so the caller can release whatever buffer-pool
// entry or reference it represents.
type Packet struct {
	Desc  rtppkt.Descriptor
	Data  []byte
	Owner any
	Lseq  uint64
}

// Erasure marks a logical-sequence-number gap the buffer decided to stop
// waiting for, with an estimated timestamp span to let the caller insert
// concealment audio of roughly the right duration.
type Erasure struct {
	LseqStart uint64
	LseqEnd   uint64
	TSDiff    uint32
}

// Frame is a node in the buffer's ready/pending/drop lists. Exactly one
// of Packet/Erasure is populated, selected by Kind.
type Frame struct {
	Kind    Kind
	Packet  *Packet
	Erasure *Erasure
	Next    *Frame
}

// ReleaseOwner returns the caller-supplied owner handle for an RTP frame
// so the caller can release it (return a buffer to a pool, drop a
// reference count, and so on). It is the Go equivalent of the original
// toolkit's explicit frame destructor; erasure frames own nothing and it
// returns nil for them.
func ReleaseOwner(f *Frame) any {
	if f == nil || f.Kind != FrameRTP || f.Packet == nil {
		return nil
	}
	return f.Packet.Owner
}

func flatten(head *Frame) []*Frame {
	var out []*Frame
	for f := head; f != nil; f = f.Next {
		out = append(out, f)
	}
	return out
}
