package rtpsynth

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Synth-continuity: sequence and timestamp advance by exactly one and
// tsInc respectively on every emitted packet, and the marker bit is set
// only on the first.
func TestSynthContinuity(t *testing.T) {
	s := New(8000, 20)
	firstSeq := s.seq
	firstTS := s.ts

	pkt1, err := s.NextPkt(160, 0, nil)
	require.NoError(t, err)
	assert.NotZero(t, pkt1[1]&0x80, "marker bit should be set on first packet")
	assert.Equal(t, firstSeq, binary.BigEndian.Uint16(pkt1[2:4]))
	assert.Equal(t, firstTS, binary.BigEndian.Uint32(pkt1[4:8]))

	pkt2, err := s.NextPkt(160, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, pkt2[1]&0x80, "marker bit should clear after the first packet")
	assert.Equal(t, firstSeq+1, binary.BigEndian.Uint16(pkt2[2:4]))
	assert.Equal(t, firstTS+s.tsInc, binary.BigEndian.Uint32(pkt2[4:8]))
}

func TestSynthSetMBTRearms(t *testing.T) {
	s := New(8000, 20)
	_, err := s.NextPkt(160, 0, nil)
	require.NoError(t, err)

	s.SetMBT(true)
	pkt, err := s.NextPkt(160, 0, nil)
	require.NoError(t, err)
	assert.NotZero(t, pkt[1]&0x80)
}

// NextPktInto must preserve the payload-shift buffer-layout convention:
// a pre-filled payload at offset 0 ends up at hdrLen after the call.
func TestNextPktIntoShiftsPrefilledPayload(t *testing.T) {
	s := New(8000, 20)
	payload := []byte{0x11, 0x22, 0x33, 0x44}
	buf := make([]byte, hdrLen+len(payload))
	copy(buf, payload)

	n, err := s.NextPktInto(buf, len(payload), 0, true)
	require.NoError(t, err)
	assert.Equal(t, hdrLen+len(payload), n)
	assert.Equal(t, payload, buf[hdrLen:hdrLen+len(payload)])
}

func TestNextPktIntoZeroesUnfilledPayload(t *testing.T) {
	s := New(8000, 20)
	buf := make([]byte, hdrLen+4)
	for i := range buf {
		buf[i] = 0xFF
	}

	_, err := s.NextPktInto(buf, 4, 0, false)
	require.NoError(t, err)
	for _, b := range buf[hdrLen:] {
		assert.Zero(t, b)
	}
}

func TestNextPktIntoRejectsShortBuffer(t *testing.T) {
	s := New(8000, 20)
	buf := make([]byte, hdrLen)
	_, err := s.NextPktInto(buf, 10, 0, false)
	assert.Error(t, err)
}

// Synth-resync: Resync returns the pre-advance state and moves ts
// forward by roughly the elapsed wall-clock time scaled by sample rate.
func TestSynthResyncAdvancesTimestamp(t *testing.T) {
	s := New(8000, 20)
	tsBefore := s.ts
	seqBefore := s.seq

	t0 := time.Now()
	ts, seq := s.Resync(t0)
	assert.Equal(t, tsBefore, ts)
	assert.Equal(t, seqBefore, seq)

	ts2, _ := s.Resync(t0.Add(time.Second))
	assert.Equal(t, tsBefore, ts2)
	assert.Equal(t, tsBefore+8000, s.ts)
}

func TestSynthSkipAdvancesWithoutEmitting(t *testing.T) {
	s := New(8000, 20)
	tsBefore := s.ts
	seqBefore := s.seq

	s.Skip(5)
	assert.Equal(t, tsBefore+5*s.tsInc, s.ts)
	assert.Equal(t, seqBefore, s.seq)
}
