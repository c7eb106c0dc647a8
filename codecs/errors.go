// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package codecs

import "errors"

// errBufferTooShort is returned by each codec's ParsePayloadHeader when the
// payload is too short for the framing its leading byte(s) select. It never
// escapes this package's callers: the analyzer and reassembler both treat
// it as "fall back to generic handling".
var errBufferTooShort = errors.New("codecs: buffer too short for payload header")
