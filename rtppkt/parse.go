package rtppkt

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

// ErrShortPacket is returned when data is too small to contain a valid
// RTP header.
var ErrShortPacket = errors.New("rtppkt: packet shorter than RTP header")

// ParseRaw unmarshals a raw UDP datagram into a Descriptor. It is the
// external parser contract the jitter buffer calls on every inbound
// packet; any returned error is treated as a parse-policy drop by the
// caller, never a panic.
func ParseRaw(data []byte) (Descriptor, error) {
	if len(data) < 12 {
		return Descriptor{}, ErrShortPacket
	}
	var hdr rtp.Header
	n, err := hdr.Unmarshal(data)
	if err != nil {
		return Descriptor{}, fmt.Errorf("rtppkt: %w", err)
	}
	if n > len(data) {
		return Descriptor{}, ErrShortPacket
	}

	payload := data[n:]
	appendable := cap(data) == len(data) || len(payload) == cap(payload)

	return Descriptor{
		DataSize:   len(payload),
		DataOffset: n,
		TS:         hdr.Timestamp,
		Seq:        hdr.SequenceNumber,
		SSRC:       hdr.SSRC,
		Profile:    hdr.PayloadType,
		Marker:     hdr.Marker,
		Appendable: appendable,
	}, nil
}
