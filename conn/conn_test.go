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

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/abcum/oranet/wire"
)

func TestHandshakeAndAuthentication(t *testing.T) {

	Convey("A fresh connection drives through to ready", t, func() {

		m := New()
		So(m.Connected(), ShouldResemble, wire.SendConnect{})
		So(m.AcceptReceived(false), ShouldResemble, wire.SendProtocol{})
		So(m.ProtocolReceived(), ShouldResemble, wire.SendDataTypes{})
		So(m.DataTypesReceived(), ShouldResemble, wire.ProvideAuthenticationContext{})
		So(m.State(), ShouldEqual, StateAwaitingAuthContext)

		authCtx := &wire.AuthContext{Username: "scott"}
		action := m.ProvideAuthenticationContext(authCtx, nil)
		phaseOne, ok := action.(wire.SendAuthPhaseOne)
		So(ok, ShouldBeTrue)
		So(phaseOne.Ctx, ShouldEqual, authCtx)
		So(m.State(), ShouldEqual, StateAuthenticating)

		action = m.ParameterReceived(map[string]string{"salt": "abcd"})
		_, ok = action.(wire.SendAuthPhaseTwo)
		So(ok, ShouldBeTrue)

		action = m.ParameterReceived(map[string]string{"session-id": "1"})
		_, ok = action.(wire.Authenticated)
		So(ok, ShouldBeTrue)
		So(m.State(), ShouldEqual, StateReady)

		Convey("closing an idle ready connection logs off immediately", func() {

			p := wire.NewCompleter[struct{}]()
			action := m.Close(p)
			_, ok := action.(wire.LogoffConnection)
			So(ok, ShouldBeTrue)
			So(m.State(), ShouldEqual, StateLoggingOff)

			action = m.StatusReceived()
			_, ok = action.(wire.CloseConnection)
			So(ok, ShouldBeTrue)
			So(m.State(), ShouldEqual, StateClosing)

			action = m.Closed()
			So(action, ShouldResemble, wire.FireChannelInactive{})
			So(m.State(), ShouldEqual, StateClosed)
		})
	})
}

func TestQuiescedClose(t *testing.T) {

	Convey("Closing while a statement is executing quiesces until it drains", t, func() {

		m := readyMachine()

		task := &wire.StatementContext{Kind: wire.StatementQuery, SQL: "SELECT 1 FROM dual", Completer: wire.NewCompleter[*wire.Result]()}
		action := m.Enqueue(task)
		_, ok := action.(wire.SendExecute)
		So(ok, ShouldBeTrue)
		So(m.State(), ShouldEqual, StateExecuting)

		p := wire.NewCompleter[struct{}]()
		action = m.Close(p)
		So(action, ShouldResemble, wire.Wait{})
		So(m.quiescing, ShouldBeTrue)

		m.eqsm.DescribeInfoReceived(&wire.DescribeInfo{})
		m.eqsm.RowHeaderReceived(&wire.RowHeader{})
		m.BackendErrorReceived(&wire.ServerError{Code: wire.TNSErrNoDataFound})

		action = m.ReadyForQueryReceived()
		_, ok = action.(wire.LogoffConnection)
		So(ok, ShouldBeTrue)
		So(m.State(), ShouldEqual, StateLoggingOff)
	})
}

func TestUnexpectedMessageAfterHandshake(t *testing.T) {

	Convey("An unsolicited message while ready tears the connection down", t, func() {

		m := readyMachine()

		action := m.RowDataReceived([]byte{1, 'x'})
		cleanup, ok := action.(wire.CloseConnectionAndCleanup)
		So(ok, ShouldBeTrue)
		So(cleanup.Cleanup.Action, ShouldEqual, wire.CleanupClose)
		So(cleanup.Cleanup.Tasks, ShouldHaveLength, 0)
		_, ok = cleanup.Cleanup.Err.(*wire.UnexpectedBackendMessageError)
		So(ok, ShouldBeTrue)
		So(m.State(), ShouldEqual, StateReadyToLogOff)
	})
}

func TestOOBProbeOnAccept(t *testing.T) {

	Convey("An ACCEPT advertising OOB support is probed before PROTOCOL is sent", t, func() {

		m := New()
		m.Connected()

		So(m.AcceptReceived(true), ShouldResemble, wire.SendOOB{})
		So(m.State(), ShouldEqual, StateOOBProbeSent)

		So(m.MarkerReceived(), ShouldResemble, wire.SendMarker{})
		So(m.markerSent, ShouldBeTrue)
		So(m.State(), ShouldEqual, StateOOBProbeSent)

		So(m.MarkerReceived(), ShouldResemble, wire.SendProtocol{})
		So(m.markerSent, ShouldBeFalse)
		So(m.oobCapable, ShouldBeTrue)
		So(m.State(), ShouldEqual, StateProtocolSent)

		So(m.ProtocolReceived(), ShouldResemble, wire.SendDataTypes{})
	})

	Convey("An ACCEPT advertising OOB support that is then declined falls back cleanly", t, func() {

		m := New()
		m.Connected()

		So(m.AcceptReceived(true), ShouldResemble, wire.SendOOB{})
		So(m.ResetOOBReceived(), ShouldResemble, wire.SendProtocol{})
		So(m.oobCapable, ShouldBeFalse)
		So(m.State(), ShouldEqual, StateProtocolSent)
	})

	Convey("An ACCEPT not advertising OOB support skips the probe entirely", t, func() {

		m := New()
		m.Connected()

		So(m.AcceptReceived(false), ShouldResemble, wire.SendProtocol{})
		So(m.State(), ShouldEqual, StateProtocolSent)
	})
}

func TestMarkerAcknowledgement(t *testing.T) {

	Convey("A first marker event sends one; a second clears it without resending", t, func() {

		m := readyMachine()

		action := m.MarkerReceived()
		So(action, ShouldResemble, wire.SendMarker{})
		So(m.markerSent, ShouldBeTrue)

		action = m.MarkerReceived()
		So(action, ShouldResemble, wire.Wait{})
		So(m.markerSent, ShouldBeFalse)
	})
}

// readyMachine drives a fresh Machine through the handshake to StateReady.
func readyMachine() *Machine {
	m := New()
	m.Connected()
	m.AcceptReceived(false)
	m.ProtocolReceived()
	m.DataTypesReceived()
	m.ProvideAuthenticationContext(&wire.AuthContext{Username: "scott"}, nil)
	m.ParameterReceived(map[string]string{"salt": "abcd"})
	m.ParameterReceived(map[string]string{"session-id": "1"})
	return m
}
