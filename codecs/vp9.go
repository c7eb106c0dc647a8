// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package codecs

// VP9Descriptor is the payload descriptor prefixed to every VP9 RTP
// payload per the VP9 payload format draft.
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|I|P|L|F|B|E|V|Z| (REQUIRED)
//	+-+-+-+-+-+-+-+-+
//	|M| PICTURE ID   | (if I)
//	+-+-+-+-+-+-+-+-+
//	| EXTENDED PID   | (if I and M)
//	+-+-+-+-+-+-+-+-+
type VP9Descriptor struct {
	I bool // picture ID present
	P bool // inter-picture predicted frame
	L bool // layer indices present
	F bool // flexible mode
	B bool // start of a frame
	E bool // end of a frame
	V bool // scalability structure present
	Z bool // reserved

	HasPictureID bool
	PictureID    uint16

	// HeaderLength is the number of leading payload bytes that make up the
	// descriptor.
	HeaderLength int
}

// ParseVP9PayloadDescriptor parses the descriptor at the start of payload.
// It returns errBufferTooShort if payload is too short for the fields the
// flag byte declares present.
func ParseVP9PayloadDescriptor(payload []byte) (VP9Descriptor, error) {
	if len(payload) < 1 {
		return VP9Descriptor{}, errBufferTooShort
	}

	b0 := payload[0]
	d := VP9Descriptor{
		I: b0&0x80 != 0,
		P: b0&0x40 != 0,
		L: b0&0x20 != 0,
		F: b0&0x10 != 0,
		B: b0&0x08 != 0,
		E: b0&0x04 != 0,
		V: b0&0x02 != 0,
		Z: b0&0x01 != 0,
	}

	pos := 1

	if d.I {
		if len(payload) <= pos {
			return VP9Descriptor{}, errBufferTooShort
		}

		d.HasPictureID = true
		pidByte := payload[pos]

		if pidByte&0x80 != 0 {
			pos++
			if len(payload) <= pos {
				return VP9Descriptor{}, errBufferTooShort
			}
			d.PictureID = uint16(pidByte&0x7F)<<8 | uint16(payload[pos])
			pos++
		} else {
			d.PictureID = uint16(pidByte & 0x7F)
			pos++
		}
	}

	d.HeaderLength = pos

	return d, nil
}
