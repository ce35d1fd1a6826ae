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

package conn

import "github.com/abcum/oranet/wire"

// Dispatcher is the external collaborator contract: whoever drives a
// Machine is responsible for performing the I/O, completions and timers
// that one wire.Action variant asks for. Dispatch is expected to
// type-switch on the action returned by a Machine method and call the
// matching method here; Machine itself never imports a transport package.
type Dispatcher interface {
	SendConnect()
	SendProtocol()
	SendDataTypes()
	SendMarker()
	SendOOB()

	LogoffConnection(completer *wire.Completer[struct{}])
	CloseConnection(completer *wire.Completer[struct{}])
	FireChannelInactive()
	FireEventReadyForStatement()

	Read()
	NeedMoreData()

	ProvideAuthenticationContext() (*wire.AuthContext, *wire.Cookie)
	SendAuthPhaseOne(ctx *wire.AuthContext, cookie *wire.Cookie)
	SendAuthPhaseTwo(ctx *wire.AuthContext, params map[string]string)
	Authenticated(params map[string]string, cookie *wire.Cookie)
	ReportAuthError(err error)

	SendExecute(ctx *wire.StatementContext, describe *wire.DescribeInfo)
	SendReexecute(ctx *wire.StatementContext, cleanup *wire.CleanupContext)
	SendFetch(ctx *wire.StatementContext)
	FailQuery(completer *wire.Completer[*wire.Result], err error, cleanup *wire.CleanupContext)
	SucceedQuery(completer *wire.Completer[*wire.Result], result *wire.Result)
	ForwardRows(rows []wire.Row)
	ForwardStreamComplete(rows []wire.Row)
	ForwardStreamError(err error, read bool, cursorID uint32, hasCursorID bool, clientCancelled bool)
	ForwardCancelComplete()

	CloseConnectionAndCleanup(cleanup *wire.CleanupContext)
}

// Dispatch type-switches on a single wire.Action and calls the matching
// Dispatcher method. Machine methods return an Action rather than calling
// a Dispatcher directly, so they stay pure functions of (state, event);
// Dispatch is the seam where that purity ends.
func Dispatch(d Dispatcher, a wire.Action) {
	switch act := a.(type) {
	case wire.SendConnect:
		d.SendConnect()
	case wire.SendProtocol:
		d.SendProtocol()
	case wire.SendDataTypes:
		d.SendDataTypes()
	case wire.SendMarker:
		d.SendMarker()
	case wire.SendOOB:
		d.SendOOB()
	case wire.LogoffConnection:
		d.LogoffConnection(act.Completer)
	case wire.CloseConnection:
		d.CloseConnection(act.Completer)
	case wire.FireChannelInactive:
		d.FireChannelInactive()
	case wire.FireEventReadyForStatement:
		d.FireEventReadyForStatement()
	case wire.Read:
		d.Read()
	case wire.Wait:
		// nothing observable to do.
	case wire.NeedMoreData:
		d.NeedMoreData()
	case wire.ProvideAuthenticationContext:
		d.ProvideAuthenticationContext()
	case wire.SendAuthPhaseOne:
		d.SendAuthPhaseOne(act.Ctx, act.Cookie)
	case wire.SendAuthPhaseTwo:
		d.SendAuthPhaseTwo(act.Ctx, act.Params)
	case wire.Authenticated:
		d.Authenticated(act.Params, act.Cookie)
	case wire.ReportAuthError:
		d.ReportAuthError(act.Err)
	case wire.SendExecute:
		d.SendExecute(act.Ctx, act.Describe)
	case wire.SendReexecute:
		d.SendReexecute(act.Ctx, act.Cleanup)
	case wire.SendFetch:
		d.SendFetch(act.Ctx)
	case wire.FailQuery:
		d.FailQuery(act.Completer, act.Err, act.Cleanup)
	case wire.SucceedQuery:
		d.SucceedQuery(act.Completer, act.Result)
	case wire.ForwardRows:
		d.ForwardRows(act.Rows)
	case wire.ForwardStreamComplete:
		d.ForwardStreamComplete(act.Rows)
	case wire.ForwardStreamError:
		d.ForwardStreamError(act.Err, act.Read, act.CursorID, act.HasCursorID, act.ClientCancelled)
	case wire.ForwardCancelComplete:
		d.ForwardCancelComplete()
	case wire.CloseConnectionAndCleanup:
		d.CloseConnectionAndCleanup(act.Cleanup)
	}
}
