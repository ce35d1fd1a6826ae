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

// Package wire holds the vocabulary shared by the connection, authentication
// and extended-query state machines: the Action sum type they emit, the
// error taxonomy they classify against, and the small data structures
// (describe info, binds, cleanup contexts) that flow between them.
package wire

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies an Error the way the state machines need to dispatch
// on, without reaching for errors.As on every hot path.
type ErrorKind int

const (
	KindConnection ErrorKind = iota
	KindUncleanShutdown
	KindMessageDecoding
	KindUnexpectedBackendMessage
	KindServer
	KindQueryCancelled
	KindClientClosesConnection
	KindClientClosedConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connectionError"
	case KindUncleanShutdown:
		return "uncleanShutdown"
	case KindMessageDecoding:
		return "messageDecodingFailure"
	case KindUnexpectedBackendMessage:
		return "unexpectedBackendMessage"
	case KindServer:
		return "server"
	case KindQueryCancelled:
		return "queryCancelled"
	case KindClientClosesConnection:
		return "clientClosesConnection"
	case KindClientClosedConnection:
		return "clientClosedConnection"
	default:
		return "unknown"
	}
}

// Error is the interface every member of the core's error taxonomy
// implements, on top of the standard error interface.
type Error interface {
	error
	Kind() ErrorKind
}

// ConnectionError wraps a failure of the underlying transport.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string   { return fmt.Sprintf("connection error: %v", e.Cause) }
func (e *ConnectionError) Kind() ErrorKind { return KindConnection }
func (e *ConnectionError) Unwrap() error   { return e.Cause }

// UncleanShutdownError indicates the channel disappeared before the core
// asked for it to be closed; cleanup must fire channel-inactive rather than
// attempt a graceful close.
type UncleanShutdownError struct{}

func (e *UncleanShutdownError) Error() string   { return "connection shut down uncleanly" }
func (e *UncleanShutdownError) Kind() ErrorKind { return KindUncleanShutdown }

// MessageDecodingError indicates the decoder could not make sense of the
// bytes on the wire. Partial holds whatever prefix was recovered, for
// diagnostics only.
type MessageDecodingError struct {
	Partial []byte
}

func (e *MessageDecodingError) Error() string {
	return fmt.Sprintf("failed to decode message (%d bytes recovered)", len(e.Partial))
}
func (e *MessageDecodingError) Kind() ErrorKind { return KindMessageDecoding }

// UnexpectedBackendMessageError indicates an inbound event arrived in a
// state that never expects it.
type UnexpectedBackendMessageError struct {
	Msg string
}

func (e *UnexpectedBackendMessageError) Error() string {
	return fmt.Sprintf("unexpected backend message: %s", e.Msg)
}
func (e *UnexpectedBackendMessageError) Kind() ErrorKind { return KindUnexpectedBackendMessage }

// ServerError is a classified SERVER-ERROR inbound event. Code is the raw
// ORA error number; CursorID and Describe are populated only on the error
// paths that carry them (cursor propagation, LOB-describe rewrite).
type ServerError struct {
	Code     int
	Message  string
	CursorID uint32
	Describe *DescribeInfo
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("ORA-%05d: %s", e.Code, e.Message)
}
func (e *ServerError) Kind() ErrorKind { return KindServer }

// IsNoDataFound reports whether this is the "no data found" / array-DML-errors
// sentinel that signals end-of-fetch.
func (e *ServerError) IsNoDataFound() bool {
	return e.Code == TNSErrNoDataFound || e.Code == TNSErrArrayDMLErrors
}

// IsVarNotInSelectList reports the "bind variable does not exist in the
// select list" sentinel.
func (e *ServerError) IsVarNotInSelectList() bool {
	return e.Code == TNSErrVarNotInSelectList
}

// IsUserRequestedCancel reports the server-side acknowledgement of a client
// cancel (ORA-01013).
func (e *ServerError) IsUserRequestedCancel() bool {
	return e.Code == TNSErrUserRequestedCancel
}

// QueryCancelledError is surfaced to a caller whose stream or statement was
// cancelled, client- or server-side.
type QueryCancelledError struct {
	ClientCancelled bool
}

func (e *QueryCancelledError) Error() string   { return "query cancelled" }
func (e *QueryCancelledError) Kind() ErrorKind { return KindQueryCancelled }

// ClientClosesConnectionError fails any task still queued when close() is
// accepted. It never originates inside the core from anywhere but enqueue().
type ClientClosesConnectionError struct{}

func (e *ClientClosesConnectionError) Error() string   { return "client closes connection" }
func (e *ClientClosesConnectionError) Kind() ErrorKind { return KindClientClosesConnection }

// ClientClosedConnectionError marks a connection that has already finished
// closing. Like ClientClosesConnectionError, observing this from inside the
// core (rather than constructing it for a caller) is a programmer error.
type ClientClosedConnectionError struct{}

func (e *ClientClosedConnectionError) Error() string   { return "client closed connection" }
func (e *ClientClosedConnectionError) Kind() ErrorKind { return KindClientClosedConnection }

// ShouldCloseConnection implements the connection-level error
// classification: connection-level faults and decode/protocol faults
// always tear the connection down; a cancelled query never does.
func ShouldCloseConnection(err Error) bool {
	switch err.Kind() {
	case KindConnection, KindMessageDecoding, KindUnexpectedBackendMessage, KindUncleanShutdown:
		return true
	case KindQueryCancelled:
		return false
	default:
		return false
	}
}

// ProtocolViolationError is the payload of a panic raised when a caller (or
// the dispatcher) drives a state machine through a transition its own
// contract declares invalid. It is never recoverable and must never be
// folded into the Error taxonomy above.
type ProtocolViolationError struct {
	Machine string
	Op      string
	State   string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("%s: %s called while in state %s", e.Machine, e.Op, e.State)
}

// Violation panics with a ProtocolViolationError. Call this from any
// transition that is a programmer error rather than a recoverable fault.
func Violation(machine, op, state string) {
	panic(&ProtocolViolationError{Machine: machine, Op: op, State: state})
}

// Wrap is a small convenience so call sites that need a causal chain (e.g.
// building a ConnectionError around an I/O failure reported by the
// dispatcher) don't have to import pkg/errors directly.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
