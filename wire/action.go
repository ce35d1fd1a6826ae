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

package wire

// Action is the sum type every exposed operation on the connection,
// authentication and extended-query state machines returns exactly one of.
// A transport adapter (the dispatcher) type-switches on the concrete type
// to decide what I/O, completion or timer work to do; the state machines
// themselves never perform that work.
type Action interface {
	action()
}

type actionBase struct{}

func (actionBase) action() {}

// -- transport --------------------------------------------------------

type SendConnect struct{ actionBase }
type SendProtocol struct{ actionBase }
type SendDataTypes struct{ actionBase }
type SendMarker struct{ actionBase }

// SendOOB is the out-of-band attention probe sent during handshake
// capability negotiation: the core sends OOB, then expects either a
// MARKER echo (OOB-capable) or a RESET-OOB (not capable).
type SendOOB struct{ actionBase }

type LogoffConnection struct {
	actionBase
	Completer *Completer[struct{}]
}

type CloseConnection struct {
	actionBase
	Completer *Completer[struct{}]
}

type FireChannelInactive struct{ actionBase }
type FireEventReadyForStatement struct{ actionBase }

// Read asks the dispatcher to pull more bytes off the transport.
type Read struct{ actionBase }

// Wait asks the dispatcher to do nothing observable; the event was fully
// absorbed internally.
type Wait struct{ actionBase }

// NeedMoreData asks the dispatcher to keep the connection open for more
// bytes without issuing a fresh read itself (used when a partial row is
// buffered and the transport's own read-pump is already running).
type NeedMoreData struct{ actionBase }

// -- authentication ----------------------------------------------------

type ProvideAuthenticationContext struct{ actionBase }

type SendAuthPhaseOne struct {
	actionBase
	Ctx    *AuthContext
	Cookie *Cookie // nil unless a resumption cookie is being offered
}

type SendAuthPhaseTwo struct {
	actionBase
	Ctx    *AuthContext
	Params map[string]string
}

type Authenticated struct {
	actionBase
	Params map[string]string
	Cookie *Cookie // non-nil only when the hand-shake minted a resumption cookie
}

// ReportAuthError surfaces a logon failure to the connection's caller; it
// carries no Completer of its own because the hand-shake's result channel
// belongs to whatever future the dispatcher attached to Connect().
type ReportAuthError struct {
	actionBase
	Err error
}

// -- statement execution -------------------------------------------------

type SendExecute struct {
	actionBase
	Ctx      *StatementContext
	Describe *DescribeInfo // non-nil only on a describe-driven re-execute
}

type SendReexecute struct {
	actionBase
	Ctx     *StatementContext
	Cleanup *CleanupContext
}

type SendFetch struct {
	actionBase
	Ctx *StatementContext
}

type FailQuery struct {
	actionBase
	Completer *Completer[*Result]
	Err       error
	Cleanup   *CleanupContext
}

type SucceedQuery struct {
	actionBase
	Completer *Completer[*Result]
	Result    *Result
}

type ForwardRows struct {
	actionBase
	Rows []Row
}

type ForwardStreamComplete struct {
	actionBase
	Rows []Row
}

type ForwardStreamError struct {
	actionBase
	Err             error
	Read            bool
	CursorID        uint32
	HasCursorID     bool
	ClientCancelled bool
}

type ForwardCancelComplete struct{ actionBase }

// -- lifecycle -----------------------------------------------------------

type CloseConnectionAndCleanup struct {
	actionBase
	Cleanup *CleanupContext
}
