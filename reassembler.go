// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpframe

import (
	"encoding/binary"
	"sort"

	"github.com/pion/logging"

	"github.com/streamkit-go/rtpframe/codecs"
)

// startCode is the Annex B byte-stream start code emitted before every
// reconstructed AVC or HEVC NAL unit.
var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// frameCollector buffers the packets of one in-progress frame, keyed by
// sequence number so duplicates overwrite and ordering is recoverable
// regardless of arrival order.
type frameCollector struct {
	packets   map[uint16][]byte
	sawMarker bool
}

func newFrameCollector() *frameCollector {
	return &frameCollector{packets: make(map[uint16][]byte)}
}

func (c *frameCollector) sortedSeqs() []uint16 {
	seqs := make([]uint16, 0, len(c.packets))
	for seq := range c.packets {
		seqs = append(seqs, seq)
	}

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	return seqs
}

// Reassembler buffers packets of a single RTP stream and emits the
// elementary-stream bytes of each frame once it is complete. It is not
// goroutine-safe; confine one Reassembler to one stream and one goroutine
// at a time.
type Reassembler struct {
	ssrc    uint32
	ssrcSet bool

	codec         codecs.Codec
	codecSet      bool
	codecExplicit bool

	analyzer   *Analyzer
	collectors map[uint32]*frameCollector

	cfg ReorderConfig

	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

// ReassemblerOption configures a Reassembler at construction time.
type ReassemblerOption func(*Reassembler)

// WithCodec pins the reassembler (and its Analyzer) to a known codec,
// bypassing the guesser.
func WithCodec(c codecs.Codec) ReassemblerOption {
	return func(r *Reassembler) {
		r.codec = c
		r.codecSet = true
		r.codecExplicit = true
	}
}

// WithReorderConfig overrides the default ReorderConfig.
func WithReorderConfig(cfg ReorderConfig) ReassemblerOption {
	return func(r *Reassembler) {
		r.cfg = cfg.withDefaults()
	}
}

// WithLoggerFactory overrides the default pion/logging factory used to
// derive the reassembler's logger.
func WithLoggerFactory(f logging.LoggerFactory) ReassemblerOption {
	return func(r *Reassembler) {
		r.loggerFactory = f
	}
}

// NewReassembler constructs a Reassembler with no stream bound yet; the
// first packet pushed to it determines the SSRC it tracks.
func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{
		analyzer:   NewAnalyzer(),
		collectors: make(map[uint32]*frameCollector),
		cfg:        DefaultReorderConfig(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.codecExplicit {
		r.analyzer.SetCodec(r.codec)
	}

	if r.loggerFactory == nil {
		r.loggerFactory = logging.NewDefaultLoggerFactory()
	}

	r.log = r.loggerFactory.NewLogger("rtpframe")

	return r
}

// SetCodec pins the reassembler (and its Analyzer) to a known codec,
// bypassing the guesser for subsequent packets.
func (r *Reassembler) SetCodec(c codecs.Codec) {
	r.codec = c
	r.codecSet = true
	r.codecExplicit = true
	r.analyzer.SetCodec(c)
}

// Codec reports the reassembler's codec and whether one is set.
func (r *Reassembler) Codec() (codecs.Codec, bool) {
	return r.codec, r.codecSet
}

// SetReorderConfig replaces the reassembler's ReorderConfig.
func (r *Reassembler) SetReorderConfig(cfg ReorderConfig) {
	r.cfg = cfg.withDefaults()
}

// PushPacket feeds one parsed packet into the reassembler. It returns the
// assembled elementary-stream bytes of a frame when pkt completes one, and
// nil otherwise.
func (r *Reassembler) PushPacket(pkt *Packet) []byte {
	r.syncStreamIdentity(pkt)
	r.discoverCodec(pkt)

	collector := r.collectors[pkt.Timestamp]
	if collector == nil {
		collector = newFrameCollector()
		r.collectors[pkt.Timestamp] = collector
	}

	if len(collector.packets) >= r.cfg.MaxBufferedPacketsPerFrame {
		r.log.Warnf("rtpframe: frame at timestamp %d exceeded %d buffered packets, dropping", pkt.Timestamp, r.cfg.MaxBufferedPacketsPerFrame)
		collector = newFrameCollector()
		r.collectors[pkt.Timestamp] = collector
	}

	// Copy: pkt.Payload only borrows the caller's buffer, but a frame's
	// packets are buffered across calls and must outlive it.
	owned := make([]byte, len(pkt.Payload))
	copy(owned, pkt.Payload)
	collector.packets[pkt.SequenceNumber] = owned

	if pkt.Marker {
		collector.sawMarker = true
	}

	if !collector.sawMarker || !r.ready(collector) {
		return nil
	}

	delete(r.collectors, pkt.Timestamp)

	return r.assemble(collector)
}

func (r *Reassembler) syncStreamIdentity(pkt *Packet) {
	if r.ssrcSet && r.ssrc != pkt.SSRC {
		r.log.Infof("rtpframe: SSRC changed %d -> %d, resetting stream state", r.ssrc, pkt.SSRC)
		r.collectors = make(map[uint32]*frameCollector)
		r.analyzer.reset(r.codecExplicit)

		if !r.codecExplicit {
			r.codecSet = false
			r.codec = codecs.Unknown
		}
	}

	r.ssrc = pkt.SSRC
	r.ssrcSet = true
}

func (r *Reassembler) discoverCodec(pkt *Packet) {
	r.analyzer.Analyze(pkt)

	if !r.codecSet {
		r.codec, r.codecSet = r.analyzer.Codec()
	}
}

// ready applies the start half of the §4.5.1 readiness predicate: for AVC,
// HEVC and VP9 at least one buffered packet must begin the frame (a single
// or aggregated NAL unit, a fragmentation-unit start, or a VP9 packet with
// B set). It does not look at sawMarker; PushPacket checks that first.
func (r *Reassembler) ready(c *frameCollector) bool {
	switch r.codec {
	case codecs.AVC:
		return r.avcReady(c)
	case codecs.HEVC:
		return r.hevcReady(c)
	case codecs.VP9:
		return r.vp9Ready(c)
	default: // AV1 and Unknown: marker alone is sufficient.
		return true
	}
}

func (r *Reassembler) avcReady(c *frameCollector) bool {
	for _, payload := range c.packets {
		h, err := codecs.ParseAVCPayloadHeader(payload)
		if err != nil {
			continue
		}

		switch h.Kind {
		case codecs.AVCSingle, codecs.AVCStapA, codecs.AVCStapB, codecs.AVCMtap16, codecs.AVCMtap24:
			return true
		case codecs.AVCFUA, codecs.AVCFUB:
			if h.FUStart {
				return true
			}
		}
	}

	return false
}

func (r *Reassembler) hevcReady(c *frameCollector) bool {
	for _, payload := range c.packets {
		h, err := codecs.ParseHEVCPayloadHeader(payload)
		if err != nil {
			continue
		}

		switch h.Kind {
		case codecs.HEVCSingle, codecs.HEVCAp, codecs.HEVCPacsi:
			return true
		case codecs.HEVCFu:
			if h.FUStart {
				return true
			}
		}
	}

	return false
}

func (r *Reassembler) vp9Ready(c *frameCollector) bool {
	for _, payload := range c.packets {
		d, err := codecs.ParseVP9PayloadDescriptor(payload)
		if err == nil && d.B {
			return true
		}
	}

	return false
}

// assemble reconstructs the elementary-stream bytes of a complete frame
// from its buffered packets, per §4.5.2. It detects sequence-number gaps
// along the way; if DropIncompleteFrames is set and a gap (or a missing
// fragmentation start) was found, it returns nil instead of the partial
// result.
func (r *Reassembler) assemble(c *frameCollector) []byte { //nolint:cyclop
	seqs := c.sortedSeqs()

	incomplete := false
	for i := 1; i < len(seqs); i++ {
		if seqs[i]-seqs[i-1] != 1 {
			incomplete = true

			break
		}
	}

	var out []byte

	var fuOpenAVC, fuOpenHEVC bool

	for _, seq := range seqs {
		payload := c.packets[seq]

		switch r.codec {
		case codecs.AVC:
			var ok bool
			out, fuOpenAVC, ok = appendAVC(out, payload, fuOpenAVC)
			if !ok {
				incomplete = true
			}
		case codecs.HEVC:
			var ok bool
			out, fuOpenHEVC, ok = appendHEVC(out, payload, fuOpenHEVC)
			if !ok {
				incomplete = true
			}
		case codecs.VP9:
			out = appendVP9(out, payload)
		case codecs.AV1:
			out = appendAV1(out, payload)
		default:
			out = append(out, payload...)
		}
	}

	if incomplete && r.cfg.DropIncompleteFrames {
		return nil
	}

	return out
}

func appendAVC(out []byte, payload []byte, fuOpen bool) (result []byte, newFUOpen bool, ok bool) {
	h, err := codecs.ParseAVCPayloadHeader(payload)
	if err != nil {
		return append(out, payload...), fuOpen, true
	}

	switch h.Kind {
	case codecs.AVCSingle:
		out = append(out, startCode...)
		out = append(out, payload...)
	case codecs.AVCStapA:
		out = appendAggregated(out, payload[h.HeaderLength:])
	case codecs.AVCFUA, codecs.AVCFUB:
		if h.FUStart {
			reconstructed := (h.FUIndicator &^ 0x1F) | h.NALType
			out = append(out, startCode...)
			out = append(out, reconstructed)
			fuOpen = true
		} else if !fuOpen {
			return out, fuOpen, false
		}

		out = append(out, payload[h.HeaderLength:]...)

		if h.FUEnd {
			fuOpen = false
		}
	default: // StapB, Mtap16, Mtap24, Unknown: best-effort.
		out = append(out, startCode...)
		out = append(out, payload...)
	}

	return out, fuOpen, true
}

func appendHEVC(out []byte, payload []byte, fuOpen bool) (result []byte, newFUOpen bool, ok bool) {
	h, err := codecs.ParseHEVCPayloadHeader(payload)
	if err != nil {
		return append(out, payload...), fuOpen, true
	}

	switch h.Kind {
	case codecs.HEVCSingle, codecs.HEVCPacsi, codecs.HEVCUnknown:
		out = append(out, startCode...)
		out = append(out, payload...)
	case codecs.HEVCAp:
		out = appendAggregated(out, payload[h.HeaderLength:])
	case codecs.HEVCFu:
		if h.FUStart {
			newB0 := (h.B0 &^ 0x7E) | (h.NALType << 1)
			out = append(out, startCode...)
			out = append(out, newB0, h.B1)
			fuOpen = true
		} else if !fuOpen {
			return out, fuOpen, false
		}

		out = append(out, payload[h.HeaderLength:]...)

		if h.FUEnd {
			fuOpen = false
		}
	}

	return out, fuOpen, true
}

// appendAggregated unpacks a STAP-A/AP-style run of 2-byte-length-prefixed
// NAL units, emitting a start code before each.
func appendAggregated(out []byte, body []byte) []byte {
	for len(body) >= 2 {
		size := int(binary.BigEndian.Uint16(body))
		body = body[2:]

		if len(body) < size {
			break
		}

		out = append(out, startCode...)
		out = append(out, body[:size]...)
		body = body[size:]
	}

	return out
}

func appendVP9(out []byte, payload []byte) []byte {
	d, err := codecs.ParseVP9PayloadDescriptor(payload)
	if err != nil {
		return append(out, payload...)
	}

	return append(out, payload[d.HeaderLength:]...)
}

func appendAV1(out []byte, payload []byte) []byte {
	h, err := codecs.ParseAV1AggregationHeader(payload)
	if err != nil {
		return append(out, payload...)
	}

	return append(out, payload[h.HeaderLength:]...)
}
