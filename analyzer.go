// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpframe

import "github.com/streamkit-go/rtpframe/codecs"

// Boundary is the frame-boundary classification of one packet relative to
// the stream's current in-frame state.
type Boundary int

const (
	// BoundaryNone means the packet is neither the first nor the last
	// packet of its frame.
	BoundaryNone Boundary = iota
	// BoundaryStart means the packet begins a new frame.
	BoundaryStart
	// BoundaryEnd means the packet ends the current frame.
	BoundaryEnd
	// BoundaryStartEnd means the packet is a complete frame by itself.
	BoundaryStartEnd
)

// Analyzer is a per-stream state machine that classifies each packet's
// relationship to frame boundaries. It is not goroutine-safe; confine one
// Analyzer to one stream and one goroutine at a time.
type Analyzer struct {
	codec    codecs.Codec
	codecSet bool
	inFrame  bool
}

// NewAnalyzer returns an Analyzer with no codec configured.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// SetCodec pins the analyzer to a known codec, bypassing the guesser.
func (a *Analyzer) SetCodec(c codecs.Codec) {
	a.codec = c
	a.codecSet = true
}

// Codec reports the analyzer's codec and whether one has been set (either
// explicitly or by a prior guess).
func (a *Analyzer) Codec() (codecs.Codec, bool) {
	return a.codec, a.codecSet
}

// reset clears in-frame state but preserves any explicitly configured
// codec, mirroring Reassembler's SSRC-change reset.
func (a *Analyzer) reset(keepCodec bool) {
	a.inFrame = false
	if !keepCodec {
		a.codec = codecs.Unknown
		a.codecSet = false
	}
}

// Analyze classifies pkt and advances the analyzer's in_frame state.
func (a *Analyzer) Analyze(pkt *Packet) Boundary { //nolint:cyclop
	if !a.codecSet {
		a.codec = codecs.Guess(pkt.Payload)
		a.codecSet = true
	}

	var start, end bool

	switch a.codec {
	case codecs.AVC:
		start, end = a.analyzeAVC(pkt)
	case codecs.HEVC:
		start, end = a.analyzeHEVC(pkt)
	case codecs.VP9:
		start, end = a.analyzeVP9(pkt)
	case codecs.AV1:
		start, end = a.analyzeAV1(pkt)
	default:
		start, end = a.analyzeGeneric(pkt)
	}

	boundary := boundaryOf(start, end)
	a.inFrame = !(boundary == BoundaryEnd || boundary == BoundaryStartEnd)

	return boundary
}

func boundaryOf(start, end bool) Boundary {
	switch {
	case start && end:
		return BoundaryStartEnd
	case start:
		return BoundaryStart
	case end:
		return BoundaryEnd
	default:
		return BoundaryNone
	}
}

func (a *Analyzer) analyzeGeneric(pkt *Packet) (start, end bool) {
	return !a.inFrame, pkt.Marker
}

func (a *Analyzer) analyzeAVC(pkt *Packet) (start, end bool) {
	h, err := codecs.ParseAVCPayloadHeader(pkt.Payload)
	if err != nil {
		return a.analyzeGeneric(pkt)
	}

	switch h.Kind {
	case codecs.AVCFUA, codecs.AVCFUB:
		return h.FUStart && codecs.AVCIsVCL(h.NALType), pkt.Marker
	case codecs.AVCSingle:
		return codecs.AVCIsVCL(h.NALType) && !a.inFrame, pkt.Marker
	default: // aggregation variants and Unknown: conservative
		return !a.inFrame, pkt.Marker
	}
}

func (a *Analyzer) analyzeHEVC(pkt *Packet) (start, end bool) {
	h, err := codecs.ParseHEVCPayloadHeader(pkt.Payload)
	if err != nil {
		return a.analyzeGeneric(pkt)
	}

	switch h.Kind {
	case codecs.HEVCFu:
		return h.FUStart && codecs.HEVCIsVCL(h.NALType), pkt.Marker
	case codecs.HEVCSingle:
		return codecs.HEVCIsVCL(h.NALType) && !a.inFrame, pkt.Marker
	default: // Ap, Pacsi, Unknown: conservative
		return !a.inFrame, pkt.Marker
	}
}

func (a *Analyzer) analyzeVP9(pkt *Packet) (start, end bool) {
	d, err := codecs.ParseVP9PayloadDescriptor(pkt.Payload)
	if err != nil {
		return a.analyzeGeneric(pkt)
	}

	return d.B || !a.inFrame, d.E || pkt.Marker
}

func (a *Analyzer) analyzeAV1(pkt *Packet) (start, end bool) {
	if _, err := codecs.ParseAV1AggregationHeader(pkt.Payload); err != nil {
		return a.analyzeGeneric(pkt)
	}

	return !a.inFrame, pkt.Marker
}
