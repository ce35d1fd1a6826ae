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

package auth

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/abcum/oranet/wire"
)

func TestMachineHappyPath(t *testing.T) {

	Convey("A fresh machine starts initialized", t, func() {

		m := New()
		So(m.State(), ShouldEqual, StateInitialized)
		So(m.IsComplete(), ShouldBeFalse)

		Convey("Start sends phase one and advances to phaseOneSent", func() {

			ctx := &wire.AuthContext{Username: "scott"}
			action := m.Start(ctx, nil)

			So(m.State(), ShouldEqual, StatePhaseOneSent)
			phaseOne, ok := action.(wire.SendAuthPhaseOne)
			So(ok, ShouldBeTrue)
			So(phaseOne.Ctx, ShouldEqual, ctx)
			So(phaseOne.Cookie, ShouldBeNil)

			Convey("The phase-one parameter block sends phase two", func() {

				action := m.ParameterReceived(map[string]string{"salt": "abcd"})

				So(m.State(), ShouldEqual, StatePhaseTwoSent)
				phaseTwo, ok := action.(wire.SendAuthPhaseTwo)
				So(ok, ShouldBeTrue)
				So(phaseTwo.Params["salt"], ShouldEqual, "abcd")

				Convey("The phase-two parameter block completes authentication", func() {

					action := m.ParameterReceived(map[string]string{"session-id": "1"})

					So(m.State(), ShouldEqual, StateAuthenticated)
					So(m.IsComplete(), ShouldBeTrue)
					done, ok := action.(wire.Authenticated)
					So(ok, ShouldBeTrue)
					So(done.Params["session-id"], ShouldEqual, "1")
				})
			})
		})
	})
}

func TestMachineSessionKeyAndCookie(t *testing.T) {

	Convey("A phase-one salt derives a session key forwarded as AUTH_SESSKEY", t, func() {

		ctx := &wire.AuthContext{Username: "scott", Password: "tiger", CookieSigningKey: []byte("shared-secret")}
		m := New()
		m.Start(ctx, nil)

		salt := "deadbeef"
		action := m.ParameterReceived(map[string]string{"AUTH_VFR_DATA": salt})
		phaseTwo, ok := action.(wire.SendAuthPhaseTwo)
		So(ok, ShouldBeTrue)
		So(phaseTwo.Params["AUTH_SESSKEY"], ShouldNotBeEmpty)
		So(m.sessionKey, ShouldNotBeEmpty)

		Convey("completion mints a cookie when a signing key is configured", func() {

			action := m.ParameterReceived(map[string]string{"session-id": "1"})
			done, ok := action.(wire.Authenticated)
			So(ok, ShouldBeTrue)
			So(done.Cookie, ShouldNotBeNil)
			So(wire.VerifyCookie(done.Cookie.String(), m.sessionKey, ctx.CookieSigningKey), ShouldBeTrue)
		})
	})

	Convey("No signing key means no cookie is minted", t, func() {

		ctx := &wire.AuthContext{Username: "scott", Password: "tiger"}
		m := New()
		m.Start(ctx, nil)
		m.ParameterReceived(map[string]string{"AUTH_VFR_DATA": "deadbeef"})
		action := m.ParameterReceived(map[string]string{"session-id": "1"})

		done, ok := action.(wire.Authenticated)
		So(ok, ShouldBeTrue)
		So(done.Cookie, ShouldBeNil)
	})
}

func TestMachineNewPasswordPolicy(t *testing.T) {

	Convey("A weak NewPassword fails Start before any phase-one is sent", t, func() {

		ctx := &wire.AuthContext{Username: "scott", Password: "tiger", NewPassword: "short"}
		m := New()
		action := m.Start(ctx, nil)

		So(m.State(), ShouldEqual, StateError)
		So(m.IsComplete(), ShouldBeTrue)
		_, ok := action.(wire.ReportAuthError)
		So(ok, ShouldBeTrue)
	})
}

func TestMachineOfferedCookie(t *testing.T) {

	Convey("An offered cookie verifying against the resume key is forwarded as-is", t, func() {

		signingKey := []byte("shared-secret")
		sessionKey := []byte("previous-session-key")
		cookie, err := wire.NewCookie(sessionKey, time.Hour, signingKey)
		So(err, ShouldBeNil)

		ctx := &wire.AuthContext{
			Username:         "scott",
			ResumeSessionKey: sessionKey,
			CookieSigningKey: signingKey,
		}
		m := New()
		action := m.Start(ctx, cookie)

		phaseOne, ok := action.(wire.SendAuthPhaseOne)
		So(ok, ShouldBeTrue)
		So(phaseOne.Cookie, ShouldEqual, cookie)
	})

	Convey("An offered cookie that fails verification is dropped, not fatal", t, func() {

		ctx := &wire.AuthContext{
			Username:         "scott",
			ResumeSessionKey: []byte("current-session-key"),
			CookieSigningKey: []byte("shared-secret"),
		}
		forged := &wire.Cookie{}
		m := New()
		action := m.Start(ctx, forged)

		So(m.State(), ShouldEqual, StatePhaseOneSent)
		phaseOne, ok := action.(wire.SendAuthPhaseOne)
		So(ok, ShouldBeTrue)
		So(phaseOne.Cookie, ShouldBeNil)
	})
}

func TestMachineServerError(t *testing.T) {

	Convey("A server-reported logon failure moves to the error state", t, func() {

		m := New()
		m.Start(&wire.AuthContext{Username: "scott"}, nil)

		serverErr := &wire.ServerError{Code: 1017, Message: "invalid username/password"}
		action := m.ErrorReceived(serverErr)

		So(m.State(), ShouldEqual, StateError)
		So(m.IsComplete(), ShouldBeTrue)
		So(m.Err(), ShouldEqual, serverErr)

		report, ok := action.(wire.ReportAuthError)
		So(ok, ShouldBeTrue)
		So(report.Err, ShouldEqual, serverErr)
	})
}

func TestMachineLowerLevelError(t *testing.T) {

	Convey("A transport-level failure during the hand-shake moves to the error state", t, func() {

		m := New()
		m.Start(&wire.AuthContext{Username: "scott"}, nil)

		cause := &wire.UncleanShutdownError{}
		action := m.ErrorHappened(cause)

		So(m.State(), ShouldEqual, StateError)
		report, ok := action.(wire.ReportAuthError)
		So(ok, ShouldBeTrue)
		So(report.Err, ShouldEqual, cause)
	})
}
