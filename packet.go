// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package rtpframe parses real-time transport packets and reassembles the
// elementary-stream bytes of each video frame from its constituent packets.
// It sits between a transport receiver and a decoder (or a file writer that
// wants whole-frame units): it does not do network I/O, session signalling,
// payload-type negotiation, decryption, or clock synchronization.
package rtpframe

import (
	"encoding/binary"
	"fmt"
)

const (
	minHeaderLength = 12
	versionShift    = 6
	versionMask     = 0x3
	paddingShift    = 5
	paddingMask     = 0x1
	extensionShift  = 4
	extensionMask   = 0x1
	ccMask          = 0xF
	markerShift     = 7
	markerMask      = 0x1
	ptMask          = 0x7F
	seqNumOffset    = 2
	timestampOffset = 4
	ssrcOffset      = 8
	csrcOffset      = 12
	csrcLength      = 4

	rtpVersion = 2
)

// Extension locates, but does not interpret, the opaque extension data that
// follows the fixed header and CSRC list. Payload-type-specific decoding of
// what the extension actually contains (abs-send-time, transport-wide CC,
// audio level, ...) is SDP/negotiation territory and out of scope here; a
// caller that knows the profile can slice Buffer[Offset:Offset+Length]
// itself.
type Extension struct {
	Profile uint16
	// LengthWords is the extension length in 32-bit words, as declared on
	// the wire.
	LengthWords uint16
	// Offset and Length locate the extension's opaque payload within the
	// buffer originally passed to Unmarshal.
	Offset int
	Length int
}

// Header is an RTP transport header as described in RFC 3550 §5.1,
// trimmed to the fields this pipeline's components consume.
type Header struct {
	Version        uint8
	Padding        bool
	HasExtension   bool
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	// SSRC is the media-source identifier (synchronization source).
	SSRC uint32
	CSRC []uint32

	// Extension is only meaningful when HasExtension is true.
	Extension Extension
}

// Packet is a parsed transport packet: a header plus a non-owning view of
// its payload within the buffer passed to Unmarshal. Padding bytes, if any,
// are excluded from Payload. The caller must keep the original buffer alive
// for as long as it uses Payload or Header.Extension's offsets.
type Packet struct {
	Header
	Payload []byte
}

// Unmarshal parses buf into a Packet. buf must remain valid for the
// lifetime of the returned Packet's Payload slice and Header.Extension
// range: both borrow buf rather than copy it.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|V=2|P|X|  CC   |M|     PT      |       sequence number        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                           timestamp                          |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|           synchronization source (SSRC) identifier           |
//	+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
//	|            contributing source (CSRC) identifiers            |
//	|                             ....                              |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
func Unmarshal(buf []byte) (*Packet, error) { //nolint:cyclop
	if len(buf) < minHeaderLength {
		return nil, fmt.Errorf("%w: %d < %d", ErrBufferTooShort, len(buf), minHeaderLength)
	}

	version := buf[0] >> versionShift & versionMask
	if version != rtpVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}

	pkt := &Packet{}
	h := &pkt.Header

	h.Version = version
	h.Padding = (buf[0] >> paddingShift & paddingMask) > 0
	h.HasExtension = (buf[0] >> extensionShift & extensionMask) > 0
	nCSRC := int(buf[0] & ccMask)

	n := csrcOffset + nCSRC*csrcLength
	if len(buf) < n {
		return nil, fmt.Errorf("%w: %d < %d", ErrBufferTooShort, len(buf), n)
	}

	h.Marker = (buf[1] >> markerShift & markerMask) > 0
	h.PayloadType = buf[1] & ptMask
	h.SequenceNumber = binary.BigEndian.Uint16(buf[seqNumOffset:])
	h.Timestamp = binary.BigEndian.Uint32(buf[timestampOffset:])
	h.SSRC = binary.BigEndian.Uint32(buf[ssrcOffset:])

	if nCSRC > 0 {
		h.CSRC = make([]uint32, nCSRC)
		for i := range h.CSRC {
			h.CSRC[i] = binary.BigEndian.Uint32(buf[csrcOffset+i*csrcLength:])
		}
	}

	if h.HasExtension {
		if len(buf) < n+4 {
			return nil, fmt.Errorf("%w: %d < %d", ErrBufferTooShort, len(buf), n+4)
		}

		h.Extension.Profile = binary.BigEndian.Uint16(buf[n:])
		h.Extension.LengthWords = binary.BigEndian.Uint16(buf[n+2:])
		n += 4

		extLen := int(h.Extension.LengthWords) * 4
		if len(buf) < n+extLen {
			return nil, fmt.Errorf("%w: %d < %d", ErrInvalidExtensionLength, len(buf), n+extLen)
		}

		h.Extension.Offset = n
		h.Extension.Length = extLen
		n += extLen
	}

	end := len(buf)
	if h.Padding {
		if end <= n {
			return nil, fmt.Errorf("%w: no room for padding length byte", ErrBufferTooShort)
		}
		paddingLen := int(buf[end-1])
		if paddingLen < 1 || paddingLen > end-n {
			return nil, fmt.Errorf("%w: padding length %d out of range [1, %d]", ErrBufferTooShort, paddingLen, end-n)
		}
		end -= paddingLen
	}

	pkt.Payload = buf[n:end]

	return pkt, nil
}
