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

// Package rowbuf implements the adaptive demand/supply buffer the extended
// query state machine sits in front of a decoded row stream: a deque that
// grows and shrinks its target size to smooth throughput across highly
// variable row widths and server chunk sizes, while still preserving
// backpressure toward the transport.
package rowbuf

import "github.com/abcum/oranet/wire"

// Demand is what a demand-side operation asks the dispatcher to do next.
type Demand int

const (
	DemandRead Demand = iota
	DemandWait
)

// Buffer is the RowStreamBuffer. It holds no reference to any transport or
// statement; it is a plain structure with documented pre/postconditions,
// safe to embed directly inside an ExtendedQueryStateMachine state.
type Buffer struct {
	rows    []wire.Row
	target  int
	primed  bool // true once the first post-initialization receive has happened
	credits int  // outstanding demand from the caller not yet satisfied by a release
	failing bool // set once Fail is called; ReceivedRow must not be called again
}

// New creates a Buffer at the default target size.
func New() *Buffer {
	return &Buffer{target: wire.RowBufferDefaultTarget}
}

// Len reports the number of rows currently held.
func (b *Buffer) Len() int { return len(b.rows) }

// Target reports the current adaptive target size.
func (b *Buffer) Target() int { return b.target }

// ReceivedRow appends one decoded row and applies the halving policy: once
// primed, if appending would bring the buffer to or above target, target is
// halved (floored at the minimum).
func (b *Buffer) ReceivedRow(r wire.Row) {
	b.rows = append(b.rows, r)
	if b.primed && len(b.rows) >= b.target {
		b.target = b.target / 2
		if b.target < wire.RowBufferMinTarget {
			b.target = wire.RowBufferMinTarget
		}
	}
	b.primed = true
}

// ReceivedDuplicate is called for a column the bit vector flags as a
// duplicate of the previous row's value at the same position: atIndex is
// the column offset, and the result is the raw bytes to splice into the
// row currently being assembled. Returns nil if there is no previous row
// yet (which would itself be a decoder-level protocol violation).
func (b *Buffer) ReceivedDuplicate(atIndex int) []byte {
	if len(b.rows) == 0 {
		return nil
	}
	prev := b.rows[len(b.rows)-1]
	if atIndex < 0 || atIndex >= len(prev.Columns) {
		return nil
	}
	return prev.Columns[atIndex]
}

// ReleasedBatch is the rows handed back to the caller by ChannelReadComplete.
type ReleasedBatch struct {
	Rows []wire.Row
}

// ChannelReadComplete releases whatever is buffered to the caller if the
// caller has outstanding demand; otherwise it holds the rows. Emptying to
// zero after a release doubles target (capped at the maximum).
func (b *Buffer) ChannelReadComplete() *ReleasedBatch {
	if len(b.rows) == 0 || b.credits == 0 {
		return nil
	}
	released := b.rows
	b.rows = nil
	b.credits--
	if len(b.rows) == 0 {
		b.target = b.target * 2
		if b.target > wire.RowBufferMaxTarget {
			b.target = wire.RowBufferMaxTarget
		}
	}
	return &ReleasedBatch{Rows: released}
}

// DemandMoreResponseBodyParts records one unit of caller demand and reports
// whether the transport should be asked to read more: true iff, after
// incrementing credit, the buffer size is at most target-1.
func (b *Buffer) DemandMoreResponseBodyParts() Demand {
	b.credits++
	return b.demandDecision()
}

// Read is the plain "more bytes arrived, should we ask for more" check used
// outside an explicit demand step (e.g. after draining a partial-row
// reassembly). It applies the same target-1 threshold without consuming a
// credit.
func (b *Buffer) Read() Demand {
	return b.demandDecision()
}

// Fail puts the buffer into a terminal failing mode (used when the owning
// statement is cancelled or errored mid-stream): subsequent demand
// decisions still resolve, but ReceivedRow must not be called again.
func (b *Buffer) Fail() Demand {
	b.failing = true
	return b.demandDecision()
}

func (b *Buffer) demandDecision() Demand {
	if len(b.rows) <= b.target-1 {
		return DemandRead
	}
	return DemandWait
}

// End drains and returns whatever rows remain buffered, used when the
// statement reaches its terminal end-of-data event.
func (b *Buffer) End() []wire.Row {
	remaining := b.rows
	b.rows = nil
	return remaining
}
