// Copyright © 2016 Abcum Ltd
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package query

import (
	"github.com/abcum/oranet/query/rowbuf"
	"github.com/abcum/oranet/wire"
)

// decodeRow finds one row's column boundaries in buf. It never interprets
// the bytes of a column past locating its length; that is a codec-level
// concern left to an external collaborator. Columns the bit vector flags
// as a duplicate consume no bytes from buf at all and are filled in from
// the previous row already held in prior.
//
// Wire shape: one length-prefixed chunk per non-duplicate column, where a
// length byte of 0xFF means "null" (zero-length, present) and any other
// value is the number of data bytes that follow. Returns ok=false if buf
// doesn't yet contain a complete row, in which case the caller must wait
// for more bytes via ChunkReceived.
func decodeRow(buf []byte, columns int, bv *wire.BitVector, prior *rowbuf.Buffer) (row wire.Row, rest []byte, ok bool) {
	out := make([][]byte, columns)
	cursor := 0

	for i := 0; i < columns; i++ {
		if bv.IsDuplicate(i) {
			out[i] = prior.ReceivedDuplicate(i)
			continue
		}
		if cursor >= len(buf) {
			return wire.Row{}, nil, false
		}
		length := buf[cursor]
		cursor++
		if length == 0xFF {
			out[i] = nil
			continue
		}
		n := int(length)
		if cursor+n > len(buf) {
			return wire.Row{}, nil, false
		}
		out[i] = buf[cursor : cursor+n]
		cursor += n
	}

	return wire.Row{Columns: out}, buf[cursor:], true
}

// reconstructRowDataFraming takes ownership of a partial row's bytes with a
// defensive copy, so the buffer held across a streamingAndWaiting wait
// doesn't alias a caller-owned slice that a subsequent read reuses; no
// framing bytes are stripped or reinserted, since parseRowData never needs
// a message-id prefix to resume mid-row.
func reconstructRowDataFraming(buf []byte) []byte {
	saved := make([]byte, len(buf))
	copy(saved, buf)
	return saved
}
