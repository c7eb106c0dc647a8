// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package rtpframe

import "errors"

// Parse errors returned by Unmarshal. These are the only errors that ever
// propagate out of this package; every downstream anomaly (malformed
// depacketizer input, sequence gaps, FU-start loss) is absorbed internally.
var (
	// ErrBufferTooShort is returned when a buffer ends before a field that
	// the header declares (csrc list, extension, or the fixed 12-byte header
	// itself) has been fully read.
	ErrBufferTooShort = errors.New("rtpframe: buffer too short")

	// ErrInvalidVersion is returned when the two high bits of the first
	// header byte are not 2.
	ErrInvalidVersion = errors.New("rtpframe: invalid rtp version")

	// ErrInvalidExtensionLength is returned when the header extension's
	// declared length in 32-bit words runs past the end of the buffer.
	ErrInvalidExtensionLength = errors.New("rtpframe: invalid extension length")
)
