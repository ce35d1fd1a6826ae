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

// Package conn implements the ConnectionStateMachine: it owns the overall
// connection lifecycle, routes inbound protocol events to whichever
// sub-machine is active, serializes caller requests through a FIFO task
// queue, and manages quiescence, logoff and the out-of-band marker
// protocol. Every exposed operation returns exactly one wire.Action; the
// machine never performs I/O itself.
package conn

import (
	"github.com/sirupsen/logrus"

	"github.com/abcum/oranet/auth"
	"github.com/abcum/oranet/ids"
	"github.com/abcum/oranet/log"
	"github.com/abcum/oranet/query"
	"github.com/abcum/oranet/wire"
)

// State is the tagged CSM state. There is deliberately no "modifying"
// member here: Go gives CSM exclusive heap-pointer ownership of its
// sub-machines, so routing an event into one never aliases or copies it,
// and a copy-on-write guard has nothing to guard against.
type State int

const (
	StateInitialized State = iota
	StateConnectSent
	StateOOBProbeSent
	StateProtocolSent
	StateDataTypesSent
	StateAwaitingAuthContext
	StateAuthenticating
	StateReady
	StateExecuting
	StateReadyToLogOff
	StateLoggingOff
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnectSent:
		return "connectSent"
	case StateOOBProbeSent:
		return "oobProbeSent"
	case StateProtocolSent:
		return "protocolSent"
	case StateDataTypesSent:
		return "dataTypesSent"
	case StateAwaitingAuthContext:
		return "awaitingAuthContext"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateReadyToLogOff:
		return "readyToLogOff"
	case StateLoggingOff:
		return "loggingOff"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Machine is the ConnectionStateMachine.
type Machine struct {
	id    string
	log   *logrus.Entry
	state State

	asm  *auth.Machine
	eqsm *query.Machine

	queue []*wire.StatementContext

	quiescing          bool
	quiescingCompleter *wire.Completer[struct{}]

	markerSent bool

	// oobCapable is resolved by the handshake's OOB probe (AcceptReceived,
	// MarkerReceived/ResetOOBReceived while StateOOBProbeSent) and gates
	// nothing else yet beyond being observable for diagnostics — the
	// marker-based cancel protocol works the same either way, since a
	// server that echoed RESET-OOB never sends an unsolicited MARKER to
	// confuse CancelQueryStream's own exchange.
	oobCapable bool

	loggingOffCompleter *wire.Completer[struct{}]
}

// New constructs a Machine in its initialized state.
func New() *Machine {
	id := ids.NewConnectionID()
	return &Machine{
		id:    id,
		log:   log.WithField("conn", id),
		state: StateInitialized,
	}
}

// State reports the current tagged state.
func (m *Machine) State() State { return m.state }

// Connected begins the handshake.
func (m *Machine) Connected() wire.Action {
	if m.state != StateInitialized {
		return wire.Wait{}
	}
	m.state = StateConnectSent
	return wire.SendConnect{}
}

// AcceptReceived observes the server's ACCEPT and its capabilities blob. A
// server that advertises OOB support is probed for it before the handshake
// continues: the core sends an OOB marker and waits for either a MARKER
// echo (capable — resolved by MarkerReceived) or a RESET-OOB (not capable —
// resolved by ResetOOBReceived). A server that never advertised OOB support
// skips the probe entirely and goes straight to protocolSent.
func (m *Machine) AcceptReceived(oobCapable bool) wire.Action {
	if m.state != StateConnectSent {
		wire.Violation("conn", "acceptReceived", m.state.String())
	}
	if oobCapable {
		m.state = StateOOBProbeSent
		return wire.SendOOB{}
	}
	m.state = StateProtocolSent
	return wire.SendProtocol{}
}

// ResetOOBReceived observes the server declining the OOB probe it was
// offered: the handshake proceeds without out-of-band cancellation
// support.
func (m *Machine) ResetOOBReceived() wire.Action {
	if m.state != StateOOBProbeSent {
		wire.Violation("conn", "resetOOBReceived", m.state.String())
	}
	m.oobCapable = false
	m.state = StateProtocolSent
	return wire.SendProtocol{}
}

// ProtocolReceived advances from protocolSent to dataTypesSent.
func (m *Machine) ProtocolReceived() wire.Action {
	if m.state != StateProtocolSent {
		wire.Violation("conn", "protocolReceived", m.state.String())
	}
	m.state = StateDataTypesSent
	return wire.SendDataTypes{}
}

// DataTypesReceived asks the caller for an AuthContext.
func (m *Machine) DataTypesReceived() wire.Action {
	if m.state != StateDataTypesSent {
		wire.Violation("conn", "dataTypesReceived", m.state.String())
	}
	m.state = StateAwaitingAuthContext
	return wire.ProvideAuthenticationContext{}
}

// ResendReceived re-emits the last message sent. Only connectSent honors
// this; widening it to other pre-ready states would let a misbehaving
// server replay a handshake step out of order, so the conservative scope
// is kept deliberately narrow.
func (m *Machine) ResendReceived() wire.Action {
	if m.state != StateConnectSent {
		wire.Violation("conn", "resendReceived", m.state.String())
	}
	return wire.SendConnect{}
}

// ProvideAuthenticationContext creates the embedded AuthenticationStateMachine
// and forwards its start() action.
func (m *Machine) ProvideAuthenticationContext(ctx *wire.AuthContext, cookie *wire.Cookie) wire.Action {
	if m.state != StateAwaitingAuthContext {
		wire.Violation("conn", "provideAuthenticationContext", m.state.String())
	}
	m.asm = auth.New()
	m.state = StateAuthenticating
	return m.asm.Start(ctx, cookie)
}

// ParameterReceived routes an inbound PARAMETER block to whichever
// sub-machine is listening for it.
func (m *Machine) ParameterReceived(params map[string]string) wire.Action {
	switch m.state {
	case StateAuthenticating:
		return m.mapAuthAction(m.asm.ParameterReceived(params))
	default:
		return m.unexpected("parameterReceived")
	}
}

// mapAuthAction translates an action returned by the embedded auth
// machine into one the connection should emit: phase messages pass
// straight through; Authenticated transitions CSM to ready; a reported
// auth error builds a cleanup context and tears the connection down.
func (m *Machine) mapAuthAction(a wire.Action) wire.Action {
	switch act := a.(type) {
	case wire.Authenticated:
		m.state = StateReady
		m.asm = nil
		return act
	case wire.ReportAuthError:
		m.asm = nil
		return m.buildCleanup(wire.CleanupClose, act.Err)
	default:
		return act
	}
}

// Enqueue starts or queues a statement depending on connection state.
func (m *Machine) Enqueue(task *wire.StatementContext) wire.Action {
	switch {
	case m.quiescing || m.state == StateClosing || m.state == StateClosed || m.state == StateReadyToLogOff || m.state == StateLoggingOff:
		task.Completer.Fail(&wire.ClientClosesConnectionError{})
		return wire.Wait{}
	case m.state == StateReady:
		return m.startTask(task)
	default:
		m.queue = append(m.queue, task)
		return wire.Wait{}
	}
}

func (m *Machine) startTask(task *wire.StatementContext) wire.Action {
	m.eqsm = query.New(task)
	m.state = StateExecuting
	return m.eqsm.Start()
}

// CancelQueryStream delegates to the active EQSM.
func (m *Machine) CancelQueryStream() wire.Action {
	if m.state != StateExecuting {
		wire.Violation("conn", "cancelQueryStream", m.state.String())
	}
	return m.mapQueryAction(m.eqsm.Cancel())
}

// RequestQueryRows delegates to the active EQSM's row buffer demand step.
func (m *Machine) RequestQueryRows() wire.Action {
	if m.state != StateExecuting {
		wire.Violation("conn", "requestQueryRows", m.state.String())
	}
	return m.mapQueryAction(m.eqsm.RequestQueryRows())
}

// DescribeInfoReceived, RowHeaderReceived, RowDataReceived, BitVectorReceived,
// BackendErrorReceived and ChunkReceived all route into the active EQSM
// while executing; any other state means an unsolicited backend message.

func (m *Machine) DescribeInfoReceived(info *wire.DescribeInfo) wire.Action {
	if m.state != StateExecuting {
		return m.unexpected("describeInfoReceived")
	}
	return m.mapQueryAction(m.eqsm.DescribeInfoReceived(info))
}

func (m *Machine) RowHeaderReceived(header *wire.RowHeader) wire.Action {
	if m.state != StateExecuting {
		return m.unexpected("rowHeaderReceived")
	}
	return m.mapQueryAction(m.eqsm.RowHeaderReceived(header))
}

func (m *Machine) BitVectorReceived(bv *wire.BitVector) wire.Action {
	if m.state != StateExecuting {
		return m.unexpected("bitVectorReceived")
	}
	return m.mapQueryAction(m.eqsm.BitVectorReceived(bv))
}

func (m *Machine) RowDataReceived(buf []byte) wire.Action {
	if m.state != StateExecuting {
		return m.unexpected("rowDataReceived")
	}
	return m.mapQueryAction(m.eqsm.RowDataReceived(buf))
}

func (m *Machine) ChunkReceived(buf []byte) wire.Action {
	if m.state != StateExecuting {
		return m.unexpected("chunkReceived")
	}
	return m.mapQueryAction(m.eqsm.ChunkReceived(buf))
}

func (m *Machine) BackendErrorReceived(serverErr *wire.ServerError) wire.Action {
	if m.state != StateExecuting {
		return m.unexpected("backendErrorReceived")
	}
	return m.mapQueryAction(m.eqsm.BackendErrorReceived(serverErr))
}

// ReadyForQueryReceived observes the server's end-of-round-trip signal.
// EQSM must already be complete; CSM reclaims readiness and either pulls
// the next queued task or fires readiness upstream.
func (m *Machine) ReadyForQueryReceived() wire.Action {
	if m.state != StateExecuting {
		return m.unexpected("readyForQueryReceived")
	}
	m.eqsm.ReadyForQueryReceived()
	m.eqsm = nil

	if m.quiescing && len(m.queue) == 0 {
		m.state = StateLoggingOff
		p := m.quiescingCompleter
		m.quiescing = false
		m.quiescingCompleter = nil
		return wire.LogoffConnection{Completer: p}
	}

	m.state = StateReady
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return m.startTask(next)
	}
	return wire.FireEventReadyForStatement{}
}

// mapQueryAction translates an action returned by the embedded query
// machine into one the connection should emit: most actions pass
// straight through; a failed query whose error kind demands it escalates
// to a connection-level cleanup.
func (m *Machine) mapQueryAction(a wire.Action) wire.Action {
	switch act := a.(type) {
	case wire.Wait:
		// EQSM's setAndFireError uses Wait to signal "escalate to
		// connection level"; re-evaluate against the machine's own error.
		if m.eqsm != nil && m.eqsm.IsComplete() && m.eqsm.Err() != nil {
			if werr, ok := m.eqsm.Err().(wire.Error); ok && wire.ShouldCloseConnection(werr) {
				return m.buildCleanup(wire.CleanupClose, m.eqsm.Err())
			}
		}
		return act
	default:
		return act
	}
}

// MarkerReceived implements the out-of-band cancellation acknowledgement
// protocol: if no marker is outstanding, send one and record that; if one
// is already outstanding, clear it without sending a second (this avoids a
// cancel echo being mistaken for a fresh one). While StateOOBProbeSent,
// this same flush-and-absorb exchange resolves the ACCEPT-time OOB probe
// instead: the MARKER confirms the server is OOB-capable, and absorbing it
// unblocks the handshake, which was waiting on this resolution before it
// could send PROTOCOL.
func (m *Machine) MarkerReceived() wire.Action {
	if m.state == StateOOBProbeSent {
		if m.markerSent {
			m.markerSent = false
			m.oobCapable = true
			m.state = StateProtocolSent
			return wire.SendProtocol{}
		}
		m.markerSent = true
		return wire.SendMarker{}
	}
	if m.markerSent {
		m.markerSent = false
		return wire.Wait{}
	}
	m.markerSent = true
	return wire.SendMarker{}
}

// StatusReceived observes the logoff round trip's response and proceeds to
// close the transport.
func (m *Machine) StatusReceived() wire.Action {
	if m.state != StateLoggingOff {
		wire.Violation("conn", "statusReceived", m.state.String())
	}
	m.state = StateClosing
	p := m.loggingOffCompleter
	m.loggingOffCompleter = nil
	return wire.CloseConnection{Completer: p}
}

// Close initiates an orderly shutdown: a connection already idle logs
// off immediately; one already logging off or closing responds
// idempotently; anything still active is marked quiescing, its completer
// chained onto whatever already-pending close this merges with.
func (m *Machine) Close(p *wire.Completer[struct{}]) wire.Action {
	switch m.state {
	case StateReady:
		if len(m.queue) == 0 {
			m.state = StateLoggingOff
			m.loggingOffCompleter = p
			return wire.LogoffConnection{Completer: p}
		}
		m.quiescing = true
		m.quiescingCompleter = p
		return wire.Wait{}
	case StateLoggingOff:
		prev := m.loggingOffCompleter
		m.state = StateClosing
		m.loggingOffCompleter = p
		if prev != nil {
			p.Chain(prev)
		}
		return wire.CloseConnection{Completer: prev}
	case StateClosing, StateClosed:
		return wire.CloseConnection{Completer: p}
	default:
		if m.quiescing && m.quiescingCompleter != nil {
			p.Chain(m.quiescingCompleter)
			return wire.Wait{}
		}
		m.quiescing = true
		m.quiescingCompleter = p
		return wire.Wait{}
	}
}

// Closed observes that the transport disappeared. Pre-logoff this is an
// unclean shutdown requiring cleanup; during logoff/closing it simply
// fires channel-inactive; observing it from initialized or closed is a
// programmer error.
func (m *Machine) Closed() wire.Action {
	switch m.state {
	case StateInitialized, StateClosed:
		wire.Violation("conn", "closed", m.state.String())
		return nil
	case StateLoggingOff, StateClosing:
		m.state = StateClosed
		return wire.FireChannelInactive{}
	default:
		return m.buildCleanup(wire.CleanupFireChannelInactive, &wire.UncleanShutdownError{})
	}
}

// ErrorHappened classifies a lower-level failure. During shutdown
// reentrancy windows the error is swallowed; otherwise cleanup is built
// from it.
func (m *Machine) ErrorHappened(err error) wire.Action {
	switch m.state {
	case StateReadyToLogOff, StateLoggingOff, StateClosing, StateClosed:
		return wire.Wait{}
	default:
		return m.buildCleanup(wire.CleanupClose, err)
	}
}

// ChannelReadComplete and ReadEventCaught are read-pump plumbing.
// ChannelReadComplete delegates to the row buffer while executing; elsewhere
// there's nothing to release so the dispatcher just waits. ReadEventCaught
// always asks for a read, and is a programmer error in initialized or
// closed.
func (m *Machine) ChannelReadComplete() wire.Action {
	if m.state == StateExecuting {
		return m.mapQueryAction(m.eqsm.ChannelReadComplete())
	}
	return wire.Wait{}
}

func (m *Machine) ReadEventCaught() wire.Action {
	if m.state == StateInitialized || m.state == StateClosed {
		wire.Violation("conn", "readEventCaught", m.state.String())
	}
	return wire.Read{}
}

func (m *Machine) unexpected(op string) wire.Action {
	return m.buildCleanup(wire.CleanupClose, &wire.UnexpectedBackendMessageError{Msg: op})
}

// buildCleanup assembles the CleanupContext the dispatcher must honor:
// drain the task queue (failing every entry with err), transition to
// readyToLogOff, and emit closeConnectionAndCleanup.
func (m *Machine) buildCleanup(action wire.CleanupAction, err error) wire.Action {
	tasks := m.queue
	m.queue = nil
	for _, t := range tasks {
		t.Completer.Fail(err)
	}
	m.state = StateReadyToLogOff
	cleanup := &wire.CleanupContext{
		Action:         action,
		Tasks:          tasks,
		Err:            err,
		CloseCompleter: m.quiescingCompleter,
	}
	m.quiescingCompleter = nil
	m.quiescing = false
	return wire.CloseConnectionAndCleanup{Cleanup: cleanup}
}
