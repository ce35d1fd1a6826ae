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

// Package query implements the ExtendedQueryStateMachine: it drives one
// statement from submission through DESCRIBE/EXECUTE/FETCH to completion,
// turning inbound protocol events into row events and a terminal status.
// It never touches a transport; every method returns the wire.Action its
// embedding connection must carry out.
package query

import (
	"github.com/abcum/oranet/query/rowbuf"
	"github.com/abcum/oranet/wire"
)

// State is the tagged EQSM state.
type State int

const (
	StateInitialized State = iota
	StateDescribeInfoReceived
	StateStreaming
	StateStreamingAndWaiting
	StateDrain
	StateCommandComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateDescribeInfoReceived:
		return "describeInfoReceived"
	case StateStreaming:
		return "streaming"
	case StateStreamingAndWaiting:
		return "streamingAndWaiting"
	case StateDrain:
		return "drain"
	case StateCommandComplete:
		return "commandComplete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Machine is the ExtendedQueryStateMachine. One Machine drives exactly one
// StatementContext; the embedding connection discards it once it reaches a
// terminal state.
type Machine struct {
	state State
	ctx   *wire.StatementContext

	describe *wire.DescribeInfo
	header   *wire.RowHeader
	buf      *rowbuf.Buffer

	// partial holds bytes reassembled across transport chunks for a row
	// that didn't fully arrive in one ROW-DATA message.
	partial []byte

	err error
}

// New constructs a Machine for ctx, in its initialized state.
func New(ctx *wire.StatementContext) *Machine {
	return &Machine{state: StateInitialized, ctx: ctx, buf: rowbuf.New()}
}

// State reports the current tagged state.
func (m *Machine) State() State { return m.state }

// IsComplete reports whether the statement reached a terminal state.
func (m *Machine) IsComplete() bool {
	return m.state == StateCommandComplete || m.state == StateError
}

// Start emits the initial EXECUTE for the statement.
func (m *Machine) Start() wire.Action {
	if m.state != StateInitialized {
		wire.Violation("query", "start", m.state.String())
	}
	return wire.SendExecute{Ctx: m.ctx}
}

// DescribeInfoReceived stores the column metadata the server returns ahead
// of the row stream.
func (m *Machine) DescribeInfoReceived(info *wire.DescribeInfo) wire.Action {
	if m.state != StateInitialized {
		wire.Violation("query", "describeInfoReceived", m.state.String())
	}
	m.describe = info
	m.state = StateDescribeInfoReceived
	return wire.Wait{}
}

// RowHeaderReceived begins or continues the row stream. The first header
// transitions the statement to streaming and succeeds the caller's
// completer with the describe info; later headers (possible across
// re-fetches) just update the stored header, preserving any bit vector not
// yet attached to it.
func (m *Machine) RowHeaderReceived(header *wire.RowHeader) wire.Action {
	switch m.state {
	case StateDescribeInfoReceived:
		m.header = header
		m.state = StateStreaming
		return wire.SucceedQuery{Completer: m.ctx.Completer, Result: &wire.Result{Describe: m.describe}}
	case StateInitialized:
		// Empty describe: a DML/DDL statement with no column metadata can
		// still carry a row header (e.g. RETURNING clause plumbing).
		m.header = header
		m.state = StateStreaming
		return wire.SucceedQuery{Completer: m.ctx.Completer, Result: &wire.Result{}}
	case StateStreaming, StateStreamingAndWaiting:
		if header.BitVector != nil {
			m.header.BitVector = header.BitVector
		}
		return wire.Wait{}
	default:
		wire.Violation("query", "rowHeaderReceived", m.state.String())
		return nil
	}
}

// BitVectorReceived attaches a bit vector to the current header.
func (m *Machine) BitVectorReceived(bv *wire.BitVector) wire.Action {
	switch m.state {
	case StateStreaming, StateStreamingAndWaiting:
		if m.header != nil {
			m.header.BitVector = bv
		}
		return wire.Wait{}
	default:
		wire.Violation("query", "bitVectorReceived", m.state.String())
		return nil
	}
}

// RowDataReceived parses one ROW-DATA message's worth of bytes. A row that
// doesn't fit entirely within buf is saved as a reassembly partial and
// NeedMoreData is returned instead; subsequent bytes arrive via
// ChunkReceived. Columns the bit vector flags as duplicates are filled in
// from the buffer's previous row rather than parsed from buf.
func (m *Machine) RowDataReceived(buf []byte) wire.Action {
	switch m.state {
	case StateStreaming, StateStreamingAndWaiting:
		return m.parseRowData(buf)
	case StateInitialized:
		return m.parsePLSQLOutBinds(buf)
	default:
		wire.Violation("query", "rowDataReceived", m.state.String())
		return nil
	}
}

// ChunkReceived appends a further transport chunk onto a reassembly
// partial and retries parsing.
func (m *Machine) ChunkReceived(buf []byte) wire.Action {
	if m.state != StateStreamingAndWaiting {
		wire.Violation("query", "chunkReceived", m.state.String())
	}
	combined := append(m.partial, buf...)
	m.partial = nil
	m.state = StateStreaming
	return m.parseRowData(combined)
}

func (m *Machine) parseRowData(buf []byte) wire.Action {
	columns := m.rowWidth()

	parsed, rest, ok := decodeRow(buf, columns, m.header.BitVector, m.buf)
	if !ok {
		// The row doesn't fully fit in what arrived so far; save a copy of
		// the row's bytes received so far (no message-id prefix is added)
		// and wait for the rest on a later transport chunk.
		m.partial = reconstructRowDataFraming(buf)
		m.state = StateStreamingAndWaiting
		return wire.NeedMoreData{}
	}

	m.buf.ReceivedRow(parsed)

	if len(rest) > 0 && len(rest) < len(buf) {
		return m.parseRowData(rest)
	}

	if released := m.buf.ChannelReadComplete(); released != nil {
		return wire.ForwardRows{Rows: released.Rows}
	}
	return wire.Wait{}
}

func (m *Machine) rowWidth() int {
	if m.describe == nil {
		return 0
	}
	return len(m.describe.Columns)
}

// parsePLSQLOutBinds interprets a row-data message in initialized as
// OUT-bind values for a PL/SQL call: for each output bind, a row count
// followed by a sequence of columns, appended into the bind's buffer. A
// negative actual-bytes length for a boolean bind is a documented skip.
func (m *Machine) parsePLSQLOutBinds(buf []byte) wire.Action {
	cursor := 0
	for _, bind := range m.ctx.Binds {
		if bind.Meta.Direction == wire.BindIn {
			continue
		}
		if cursor >= len(buf) {
			break
		}
		rowCount := int(buf[cursor])
		cursor++
		for i := 0; i < rowCount && cursor < len(buf); i++ {
			n := int(buf[cursor])
			cursor++
			if bind.Meta.Type == wire.TypeBoolean && n < 0 {
				continue
			}
			end := cursor + n
			if end > len(buf) {
				end = len(buf)
			}
			bind.AppendRow(buf[cursor:end])
			cursor = end
		}
	}
	return wire.Wait{}
}

// BackendErrorReceived classifies a SERVER-ERROR event. End-of-data
// sentinels drain the buffer and complete the statement (before any row
// header, they succeed the statement with an empty result); a cursor id
// carried on the error always propagates to ctx; a describe carrying LOB
// columns drives a describe-rewrite re-execute; a describe carrying no LOB
// columns instead continues the same cursor with sendFetch; "var not in
// select list" fails pre-stream and forwards post-stream; a user-cancel
// acknowledgement is absorbed during drain; anything else routes through
// setAndFireError.
func (m *Machine) BackendErrorReceived(serverErr *wire.ServerError) wire.Action {
	if serverErr.CursorID != 0 {
		m.ctx.CursorID = serverErr.CursorID
	}

	if serverErr.IsUserRequestedCancel() && m.state == StateDrain {
		m.state = StateCommandComplete
		return wire.ForwardCancelComplete{}
	}

	if serverErr.IsNoDataFound() {
		return m.drainToCompletion()
	}

	switch m.state {
	case StateInitialized:
		if serverErr.Describe != nil {
			if serverErr.Describe.HasLOBColumn() && !m.ctx.Options.FetchLOBs {
				rewritten := serverErr.Describe.RewriteLOBs()
				m.describe = rewritten
				return wire.SendExecute{Ctx: m.ctx, Describe: rewritten}
			}
			if serverErr.CursorID != 0 {
				m.describe = serverErr.Describe
				m.state = StateDescribeInfoReceived
				return wire.SendFetch{Ctx: m.ctx}
			}
		}
		return m.setAndFireError(serverErr)
	case StateDescribeInfoReceived:
		return m.setAndFireError(serverErr)
	case StateStreaming, StateStreamingAndWaiting:
		if serverErr.IsVarNotInSelectList() {
			return wire.ForwardStreamError{Err: serverErr, CursorID: serverErr.CursorID, HasCursorID: true}
		}
		return m.setAndFireError(serverErr)
	case StateDrain:
		return m.setAndFireError(serverErr)
	default:
		wire.Violation("query", "backendErrorReceived", m.state.String())
		return nil
	}
}

func (m *Machine) drainToCompletion() wire.Action {
	if m.state == StateInitialized || m.state == StateDescribeInfoReceived {
		// No row header arrived, so no SucceedQuery was sent yet: the
		// statement succeeds with an empty result.
		m.state = StateCommandComplete
		return wire.SucceedQuery{Completer: m.ctx.Completer, Result: &wire.Result{Describe: m.describe}}
	}
	remaining := m.buf.End()
	m.state = StateCommandComplete
	return wire.ForwardStreamComplete{Rows: remaining}
}

// setAndFireError implements the EQSM-level error classification table:
// before any streaming it fails the statement completer (or escalates if
// the caller already cancelled); during drain it becomes error and
// escalates to connection level; while streaming it tells the buffer to
// fail and forwards a stream error; in terminal states it is a programmer
// error, since CSM must never dispatch into a finished machine.
func (m *Machine) setAndFireError(err error) wire.Action {
	switch m.state {
	case StateInitialized, StateDescribeInfoReceived:
		m.state = StateError
		m.err = err
		if m.ctx.Cancelled() {
			return wire.Wait{} // escalate to connection level; CSM re-evaluates.
		}
		return wire.FailQuery{Completer: m.ctx.Completer, Err: err}
	case StateDrain:
		m.state = StateError
		m.err = err
		return wire.Wait{} // escalate to connection level.
	case StateStreaming, StateStreamingAndWaiting:
		m.state = StateError
		m.err = err
		demand := m.buf.Fail()
		return wire.ForwardStreamError{Err: err, Read: demand == rowbuf.DemandRead}
	default:
		wire.Violation("query", "setAndFireError", m.state.String())
		return nil
	}
}

// Cancel implements cancel(); cancel() ≡ cancel() idempotence: a second
// call while already draining or terminal is a no-op Wait.
func (m *Machine) Cancel() wire.Action {
	m.ctx.MarkCancelled()
	switch m.state {
	case StateDescribeInfoReceived, StateInitialized:
		m.state = StateError
		return wire.FailQuery{Completer: m.ctx.Completer, Err: &wire.QueryCancelledError{ClientCancelled: true}}
	case StateStreaming, StateStreamingAndWaiting:
		demand := m.buf.Fail()
		m.state = StateDrain
		return wire.ForwardStreamError{
			Err:             &wire.QueryCancelledError{ClientCancelled: true},
			Read:            demand == rowbuf.DemandRead,
			ClientCancelled: true,
		}
	default:
		return wire.Wait{}
	}
}

// RequestQueryRows delegates to the row buffer's demand step.
func (m *Machine) RequestQueryRows() wire.Action {
	if demand := m.buf.DemandMoreResponseBodyParts(); demand == rowbuf.DemandRead {
		return wire.Read{}
	}
	return wire.Wait{}
}

// ChannelReadComplete delegates to the row buffer's release step.
func (m *Machine) ChannelReadComplete() wire.Action {
	if released := m.buf.ChannelReadComplete(); released != nil {
		return wire.ForwardRows{Rows: released.Rows}
	}
	return wire.Wait{}
}

// ReadyForQueryReceived is observed by CSM once the machine has reached a
// terminal state; EQSM itself has nothing further to do.
func (m *Machine) ReadyForQueryReceived() wire.Action {
	if !m.IsComplete() {
		wire.Violation("query", "readyForQueryReceived", m.state.String())
	}
	return wire.FireEventReadyForStatement{}
}

// Err returns the failure reason once IsComplete() and State() == StateError.
func (m *Machine) Err() error { return m.err }
