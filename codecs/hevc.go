// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package codecs

// HEVCKind classifies an HEVC (H.265) RTP payload per RFC 7798.
type HEVCKind int

const (
	// HEVCSingle is a payload that is itself one complete NAL unit.
	HEVCSingle HEVCKind = iota
	// HEVCAp is an aggregation packet.
	HEVCAp
	// HEVCFu is a fragmentation unit.
	HEVCFu
	// HEVCPacsi is a payload content scalability information packet.
	HEVCPacsi
	// HEVCUnknown is a NAL type this depacketizer does not classify further.
	HEVCUnknown
)

const (
	hevcAggregationType = 48
	hevcFUType          = 49
	hevcPACIType        = 50

	hevcNALUHeaderSize = 2
	hevcFUHeaderSize   = 3
)

// HEVCPayloadHeader is the result of classifying an HEVC RTP payload.
type HEVCPayloadHeader struct {
	Kind HEVCKind
	// NALType is the 6-bit NAL unit type: for Single/Ap/Pacsi/Unknown it's
	// the type field of the 2-byte NAL header; for Fu it's the *original*
	// fragmented NAL's type, carried in the FU header's low 6 bits.
	NALType uint8
	// HeaderLength is the number of leading payload bytes that are
	// packetization framing.
	HeaderLength int

	// B0, B1 are the payload's first two bytes (the 2-byte NAL header, or
	// for Fu packets the PayloadHdr that replaces it), needed to
	// reconstruct the original NAL header on reassembly.
	B0, B1 byte

	FUStart bool
	FUEnd   bool
}

// ParseHEVCPayloadHeader classifies payload and reports how many leading
// bytes are packetization framing. It returns errBufferTooShort if payload
// is too short for the case its NAL type selects.
//
//	+---------------+---------------+
//	|0|1|2|3|4|5|6|7|0|1|2|3|4|5|6|7|
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|F|   Type    |  LayerID  | TID |
//	+-------------+-----------------+
func ParseHEVCPayloadHeader(payload []byte) (HEVCPayloadHeader, error) { //nolint:cyclop
	if len(payload) < hevcNALUHeaderSize {
		return HEVCPayloadHeader{}, errBufferTooShort
	}

	b0, b1 := payload[0], payload[1]
	nalType := (b0 & 0x7E) >> 1

	switch {
	case nalType == hevcAggregationType:
		return HEVCPayloadHeader{Kind: HEVCAp, NALType: nalType, HeaderLength: hevcNALUHeaderSize, B0: b0, B1: b1}, nil
	case nalType == hevcFUType:
		if len(payload) < hevcFUHeaderSize {
			return HEVCPayloadHeader{}, errBufferTooShort
		}

		fuHeader := payload[2]

		return HEVCPayloadHeader{
			Kind:         HEVCFu,
			NALType:      fuHeader & 0x3F,
			HeaderLength: hevcFUHeaderSize,
			B0:           b0,
			B1:           b1,
			FUStart:      fuHeader&0x80 != 0,
			FUEnd:        fuHeader&0x40 != 0,
		}, nil
	case nalType == hevcPACIType:
		return HEVCPayloadHeader{Kind: HEVCPacsi, NALType: nalType, HeaderLength: hevcNALUHeaderSize, B0: b0, B1: b1}, nil
	case nalType <= 47 || (nalType >= 51 && nalType <= 63):
		return HEVCPayloadHeader{Kind: HEVCSingle, NALType: nalType, B0: b0, B1: b1}, nil
	default:
		// Unreachable for a genuine 6-bit field; kept defensive per the
		// packetization spec this depacketizer follows.
		return HEVCPayloadHeader{Kind: HEVCUnknown, NALType: nalType, B0: b0, B1: b1}, nil
	}
}

// HEVCIsVCL reports whether nalType carries coded slice data.
func HEVCIsVCL(nalType uint8) bool {
	return nalType <= 31
}
