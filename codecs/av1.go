// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package codecs

// AV1AggregationHeader is the one-byte aggregation header prefixed to every
// AV1 RTP payload per the AV1 payload format specification.
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|Z|Y|N|W|T|K|-|-|
//	+-+-+-+-+-+-+-+-+
type AV1AggregationHeader struct {
	Z bool // first OBU element is a continuation of a previous packet's last OBU
	Y bool // last OBU element continues in the next packet
	N bool // first packet of a coded video sequence
	W bool // W bit of the aggregation header
	T bool // T bit of the aggregation header
	K bool // K bit of the aggregation header

	// HeaderLength is always 1.
	HeaderLength int
}

// ParseAV1AggregationHeader parses the header at the start of payload. It
// returns errBufferTooShort if payload is empty.
func ParseAV1AggregationHeader(payload []byte) (AV1AggregationHeader, error) {
	if len(payload) < 1 {
		return AV1AggregationHeader{}, errBufferTooShort
	}

	b0 := payload[0]

	return AV1AggregationHeader{
		Z:            b0&0x80 != 0,
		Y:            b0&0x40 != 0,
		N:            b0&0x20 != 0,
		W:            b0&0x10 != 0,
		T:            b0&0x08 != 0,
		K:            b0&0x04 != 0,
		HeaderLength: 1,
	}, nil
}
