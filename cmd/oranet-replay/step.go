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

package main

import (
	"errors"

	"github.com/abcum/oranet/conn"
	"github.com/abcum/oranet/log"
	"github.com/abcum/oranet/wire"
)

// dispatchStep turns one loosely-typed scripted step into a call on m,
// returning whatever wire.Action that call produced. Unknown step kinds
// are logged and treated as a no-op Wait, since a typo in a hand-edited
// trace script shouldn't crash the whole replay.
func dispatchStep(m *conn.Machine, st step) wire.Action {
	switch st.Kind {
	case "connected":
		return m.Connected()
	case "acceptReceived":
		return m.AcceptReceived(boolParam(st.Params, "oobCapable"))
	case "resetOOBReceived":
		return m.ResetOOBReceived()
	case "protocolReceived":
		return m.ProtocolReceived()
	case "dataTypesReceived":
		return m.DataTypesReceived()
	case "resendReceived":
		return m.ResendReceived()

	case "provideAuthContext":
		ctx := &wire.AuthContext{
			Username: stringParam(st.Params, "username"),
			Password: stringParam(st.Params, "password"),
		}
		return m.ProvideAuthenticationContext(ctx, nil)

	case "parameterReceived":
		params := map[string]string{}
		for k, v := range st.Params {
			if s, ok := v.(string); ok {
				params[k] = s
			}
		}
		return m.ParameterReceived(params)

	case "enqueue":
		task := &wire.StatementContext{
			Kind:      wire.StatementQuery,
			SQL:       stringParam(st.Params, "sql"),
			Completer: wire.NewCompleter[*wire.Result](),
		}
		return m.Enqueue(task)

	case "cancelQueryStream":
		return m.CancelQueryStream()
	case "requestQueryRows":
		return m.RequestQueryRows()
	case "channelReadComplete":
		return m.ChannelReadComplete()
	case "readEventCaught":
		return m.ReadEventCaught()

	case "describeInfoReceived":
		return m.DescribeInfoReceived(&wire.DescribeInfo{})
	case "rowHeaderReceived":
		return m.RowHeaderReceived(&wire.RowHeader{})
	case "rowDataReceived":
		return m.RowDataReceived([]byte(stringParam(st.Params, "bytes")))
	case "chunkReceived":
		return m.ChunkReceived([]byte(stringParam(st.Params, "bytes")))

	case "backendErrorReceived":
		return m.BackendErrorReceived(&wire.ServerError{
			Code:    intParam(st.Params, "code"),
			Message: stringParam(st.Params, "message"),
		})

	case "readyForQueryReceived":
		return m.ReadyForQueryReceived()

	case "markerReceived":
		return m.MarkerReceived()
	case "statusReceived":
		return m.StatusReceived()

	case "close":
		return m.Close(wire.NewCompleter[struct{}]())
	case "closed":
		return m.Closed()

	case "errorHappened":
		return m.ErrorHappened(&wire.ConnectionError{Cause: errors.New(stringParam(st.Params, "message"))})

	default:
		log.Warnf("unknown step kind %q, skipping", st.Kind)
		return wire.Wait{}
	}
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func boolParam(params map[string]interface{}, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

