// Package rtppkt parses raw UDP datagrams into RTP descriptors for the
// jitter buffer, wrapping github.com/pion/rtp the way the media session
// layer of an RTP-aware softswitch does.
package rtppkt

// Descriptor is the minimal view of an RTP packet the jitter buffer
// needs: enough to reorder, detect gaps, and hand payload bytes back to
// the caller without copying.
type Descriptor struct {
	// DataSize is the payload length in bytes.
	DataSize int
	// DataOffset is the byte offset of the payload within the original
	// buffer (after the fixed header, CSRC list, and extension, if any).
	DataOffset int
	// NSamples is the number of timestamp units the profile associates
	// with one packet of this payload type, when known; 0 if unknown.
	NSamples uint32

	TS   uint32
	Seq  uint16
	SSRC uint32

	// Appendable reports whether the payload region may be safely
	// extended in place (no trailing padding/extension sharing the same
	// underlying array past DataOffset+DataSize).
	Appendable bool

	// Profile is the RTP payload type, kept opaque beyond its numeric
	// value the way the original parser treats it as a caller-defined
	// handle.
	Profile uint8

	Marker bool
}
