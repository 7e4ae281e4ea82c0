// Package rtpsynth implements a stateful RTP packet synthesizer for
// playout and conformance testing: it stamps a monotonically advancing
// sequence number and timestamp into caller-provided buffers, following
// the marker-bit-on-first-packet convention of a real media source.
package rtpsynth

import (
	"encoding/binary"
	"io"
	"math/rand"
	"time"
)

const (
	rtpVersion = 2
	hdrLen     = 12 // fixed RTP header, no CSRC list or extension
)

// Synth is a single synthetic RTP source. Not safe for concurrent use.
type Synth struct {
	sampleRate int
	tsInc      uint32

	ssrc uint32
	seq  uint16
	ts   uint32
	mbt  bool

	lastSync time.Time
}

// New returns a Synth for the given sample rate and packetization
// interval (ptimeMS), with a randomized SSRC/sequence/timestamp the way
// a freshly constructed media source would start.
func New(sampleRate, ptimeMS int) *Synth {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Synth{
		sampleRate: sampleRate,
		tsInc:      uint32(80 * ptimeMS / 10),
		ssrc:       rng.Uint32(),
		ts:         rng.Uint32() &^ 1,
		seq:        uint16(rng.Uint32()),
		mbt:        true,
		lastSync:   time.Now(),
	}
}

// NextPktInto writes the next packet's header into buf, preserving the
// payload-buffer-layout convention callers depend on: when filled is
// false, buf[hdrLen:] is zeroed as the payload region to be filled by the
// caller after this call; when filled is true, the plen bytes already
// written at buf[0:plen] are shifted to buf[hdrLen:hdrLen+plen] to make
// room for the header, and any remainder is zeroed. It returns the total
// packet length (hdrLen+plen).
func (s *Synth) NextPktInto(buf []byte, plen int, pt uint8, filled bool) (int, error) {
	total := hdrLen + plen
	if total > len(buf) {
		return 0, io.ErrShortBuffer
	}

	if !filled {
		for i := hdrLen; i < len(buf); i++ {
			buf[i] = 0
		}
	} else {
		copy(buf[hdrLen:hdrLen+plen], buf[:plen])
		for i := hdrLen + plen; i < len(buf); i++ {
			buf[i] = 0
		}
	}

	buf[0] = rtpVersion << 6
	if s.mbt {
		buf[1] = pt | 0x80
	} else {
		buf[1] = pt &^ 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], s.seq)
	binary.BigEndian.PutUint32(buf[4:8], s.ts)
	binary.BigEndian.PutUint32(buf[8:12], s.ssrc)

	s.mbt = false
	s.seq++
	s.ts += s.tsInc

	return total, nil
}

// NextPkt allocates and returns the next packet. If payload is non-nil
// it is copied in as the pre-filled payload (the filled=true path of
// NextPktInto); otherwise the payload region is zeroed.
func (s *Synth) NextPkt(plen int, pt uint8, payload []byte) ([]byte, error) {
	buf := make([]byte, hdrLen+plen)
	filled := payload != nil
	if filled {
		copy(buf, payload)
	}
	n, err := s.NextPktInto(buf, plen, pt, filled)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// SetMBT sets whether the next emitted packet carries the marker bit.
// The marker bit is set on the very first packet after New and cleared
// automatically after every emission; SetMBT(true) re-arms it, for
// example after a Resync.
func (s *Synth) SetMBT(v bool) { s.mbt = v }

// Resync returns the synthesizer's current logical {ts, seq} and
// advances ts by the wall-clock time elapsed since the last Resync (or
// since New, on the first call) scaled by the sample rate, without
// emitting a packet.
func (s *Synth) Resync(now time.Time) (ts uint32, seq uint16) {
	ts, seq = s.ts, s.seq
	elapsed := now.Sub(s.lastSync)
	s.lastSync = now
	s.ts += uint32(elapsed.Seconds() * float64(s.sampleRate))
	return ts, seq
}

// Skip advances ts by n packet intervals without emitting any packets.
func (s *Synth) Skip(n int) {
	s.ts += uint32(n) * s.tsInc
}

// SSRC returns the synthesizer's synthetic source identifier.
func (s *Synth) SSRC() uint32 { return s.ssrc }
