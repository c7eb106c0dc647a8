// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit-go/rtpframe/codecs"
)

func rpkt(seq uint16, ts uint32, payload []byte, marker bool) *Packet {
	return &Packet{
		Header: Header{
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           1,
			Marker:         marker,
		},
		Payload: payload,
	}
}

func TestReassembler_AVCFragmentation(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AVC))

	assert.Nil(t, r.PushPacket(rpkt(1, 1000, []byte{0x7C, 0x85, 0xAA, 0xBB}, false)))
	out := r.PushPacket(rpkt(2, 1000, []byte{0x7C, 0x45, 0xCC, 0xDD}, true))

	require.NotNil(t, out)
	expected := append(append([]byte{}, startCode...), 0x65, 0xAA, 0xBB, 0xCC, 0xDD)
	assert.Equal(t, expected, out)
}

func TestReassembler_AVCStapA(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AVC))

	stapBody := []byte{
		0x00, 0x02, 0x67, 0x42, // 2-byte NAL: SPS-ish
		0x00, 0x02, 0x68, 0xCE, // 2-byte NAL: PPS-ish
	}
	payload := append([]byte{24}, stapBody...)

	out := r.PushPacket(rpkt(10, 2000, payload, true))
	require.NotNil(t, out)

	expected := append(append([]byte{}, startCode...), 0x67, 0x42)
	expected = append(append(expected, startCode...), 0x68, 0xCE)
	assert.Equal(t, expected, out)
}

func TestReassembler_HEVCFragmentation(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.HEVC))

	// type 49 FU; original NAL type 1 in the FU header's low 6 bits.
	assert.Nil(t, r.PushPacket(rpkt(1, 5000, []byte{0x62, 0x01, 0x81, 0xAA}, false)))
	out := r.PushPacket(rpkt(2, 5000, []byte{0x62, 0x01, 0x41, 0xBB}, true))

	require.NotNil(t, out)
	// reconstructed NAL header: type field (bits 1-6) set to 1.
	expected := append(append([]byte{}, startCode...), 0x02, 0x01, 0xAA, 0xBB)
	assert.Equal(t, expected, out)
}

func TestReassembler_VP9TwoFragments(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.VP9))

	assert.Nil(t, r.PushPacket(rpkt(1, 7000, []byte{0x08, 0xAA, 0xBB}, false)))
	out := r.PushPacket(rpkt(2, 7000, []byte{0x04, 0xCC}, true))

	require.NotNil(t, out)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, out)
}

func TestReassembler_OutOfOrderAVC(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AVC))

	// Packet 2 (FU end) arrives before packet 1 (FU start).
	assert.Nil(t, r.PushPacket(rpkt(2, 3000, []byte{0x7C, 0x45, 0xDD}, true)))
	out := r.PushPacket(rpkt(1, 3000, []byte{0x7C, 0x85, 0xCC}, false))

	require.NotNil(t, out)
	expected := append(append([]byte{}, startCode...), 0x65, 0xCC, 0xDD)
	assert.Equal(t, expected, out)
}

func TestReassembler_GapDropsIncompleteFrame(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AVC))

	assert.Nil(t, r.PushPacket(rpkt(1, 4000, []byte{0x7C, 0x85, 0xAA}, false)))
	// sequence 3 instead of 2: a gap.
	out := r.PushPacket(rpkt(3, 4000, []byte{0x7C, 0x45, 0xBB}, true))

	assert.Nil(t, out)
}

func TestReassembler_GapKeptWhenDropDisabled(t *testing.T) {
	cfg := DefaultReorderConfig()
	cfg.DropIncompleteFrames = false
	r := NewReassembler(WithCodec(codecs.AVC), WithReorderConfig(cfg))

	assert.Nil(t, r.PushPacket(rpkt(1, 4100, []byte{0x7C, 0x85, 0xAA}, false)))
	out := r.PushPacket(rpkt(3, 4100, []byte{0x7C, 0x45, 0xBB}, true))

	assert.NotNil(t, out)
}

func TestReassembler_MissingFUStartIsIncomplete(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AVC))

	// Only the FU end packet ever arrives: never ready.
	out := r.PushPacket(rpkt(1, 4200, []byte{0x7C, 0x45, 0xBB}, true))
	assert.Nil(t, out)
}

func TestReassembler_DuplicatePacketIsIdempotent(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AVC))

	pkt := rpkt(1, 4300, []byte{0x65, 0xAA}, true)
	first := r.PushPacket(pkt)
	require.NotNil(t, first)

	// Same timestamp/sequence pushed again starts a fresh frame (the prior
	// one was already delivered and removed from the collector map).
	second := r.PushPacket(pkt)
	assert.Equal(t, first, second)
}

func TestReassembler_SSRCChangeResetsState(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AVC))

	assert.Nil(t, r.PushPacket(rpkt(1, 5000, []byte{0x7C, 0x85, 0xAA}, false)))

	other := &Packet{
		Header: Header{SequenceNumber: 1, Timestamp: 5000, SSRC: 2, Marker: true},
		Payload: []byte{0x65, 0xBB},
	}
	out := r.PushPacket(other)

	require.NotNil(t, out)
	expected := append(append([]byte{}, startCode...), 0x65, 0xBB)
	assert.Equal(t, expected, out)
}

func TestReassembler_OverflowClearsCollector(t *testing.T) {
	cfg := DefaultReorderConfig()
	cfg.MaxBufferedPacketsPerFrame = 2
	r := NewReassembler(WithCodec(codecs.AVC), WithReorderConfig(cfg))

	assert.Nil(t, r.PushPacket(rpkt(1, 6000, []byte{0x7C, 0x85, 0xAA}, false)))
	assert.Nil(t, r.PushPacket(rpkt(2, 6000, []byte{0x7C, 0x05, 0xBB}, false)))
	// Third packet triggers overflow-clear before insertion; this packet
	// alone is not ready (not a FU start), so nothing is emitted yet.
	out := r.PushPacket(rpkt(3, 6000, []byte{0x7C, 0x45, 0xCC}, true))
	assert.Nil(t, out)
}

func TestReassembler_CodecDiscoveryStickyAcrossFrames(t *testing.T) {
	r := NewReassembler()

	out := r.PushPacket(rpkt(1, 8000, []byte{0x65, 0xAA}, true))
	require.NotNil(t, out)

	codec, ok := r.Codec()
	assert.True(t, ok)
	assert.Equal(t, codecs.AVC, codec)

	// A later frame whose first byte would guess AV1 does not change it.
	out = r.PushPacket(rpkt(2, 8100, []byte{0xC8, 0xAA}, true))
	require.NotNil(t, out)

	codec, ok = r.Codec()
	assert.True(t, ok)
	assert.Equal(t, codecs.AVC, codec)
}

func TestReassembler_AV1StripsAggregationHeader(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.AV1))

	payload := []byte{0x20, 0x12, 0x00, 0x30, 0xAA, 0xBB}
	out := r.PushPacket(rpkt(1, 9100, payload, true))

	require.NotNil(t, out)
	assert.Equal(t, []byte{0x12, 0x00, 0x30, 0xAA, 0xBB}, out)
}

func TestReassembler_UnknownCodecConcatenatesRaw(t *testing.T) {
	r := NewReassembler(WithCodec(codecs.Unknown))

	assert.Nil(t, r.PushPacket(rpkt(1, 9000, []byte{0xAA, 0xBB}, false)))
	out := r.PushPacket(rpkt(2, 9000, []byte{0xCC}, true))

	require.NotNil(t, out)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, out)
}
