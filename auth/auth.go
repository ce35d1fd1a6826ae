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

// Package auth implements the two-phase logon sub-machine a connection
// embeds and drives: it never opens a socket or owns a Completer itself,
// it only turns (state, event) into (state, wire.Action) the way the rest
// of the engine does.
package auth

import (
	"encoding/hex"
	"time"

	"github.com/abcum/oranet/wire"
)

// cookieTTL is how long a minted resumption cookie remains eligible to be
// offered on a future Start(); VerifyCookie rejects it after that.
const cookieTTL = 10 * time.Minute

// State is the tagged state of the authentication hand-shake.
type State int

const (
	StateInitialized State = iota
	StatePhaseOneSent
	StatePhaseTwoSent
	StateAuthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StatePhaseOneSent:
		return "phaseOneSent"
	case StatePhaseTwoSent:
		return "phaseTwoSent"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Machine is the AuthenticationStateMachine. It holds no transport handle
// and performs no I/O; every transition returns the wire.Action its
// embedding ConnectionStateMachine must carry out.
type Machine struct {
	state      State
	ctx        *wire.AuthContext
	err        error
	sessionKey []byte
}

// New constructs a Machine in its initialized state, unbound to any
// AuthContext until Start is called: the context only arrives once the
// connection has one to hand over.
func New() *Machine {
	return &Machine{state: StateInitialized}
}

// State reports the current tagged state.
func (m *Machine) State() State { return m.state }

// IsComplete reports whether the hand-shake reached a terminal state,
// successful or not.
func (m *Machine) IsComplete() bool {
	return m.state == StateAuthenticated || m.state == StateError
}

// Err returns the failure reason once IsComplete() and State() == StateError.
func (m *Machine) Err() error { return m.err }

// Start begins the hand-shake once the embedding CSM has obtained an
// AuthContext from its caller (the provideAuthenticationContext round
// trip). cookie is nil unless a resumption cookie is available to offer.
func (m *Machine) Start(ctx *wire.AuthContext, cookie *wire.Cookie) wire.Action {
	if m.state != StateInitialized {
		wire.Violation("auth", "start", m.state.String())
	}
	m.ctx = ctx

	if ctx.NewPassword != "" {
		if err := ctx.CheckNewPasswordPolicy(); err != nil {
			m.state = StateError
			m.err = err
			return wire.ReportAuthError{Err: err}
		}
	}

	// An offered cookie only survives to the wire if it actually verifies
	// against the session key it claims to resume; otherwise it is silently
	// dropped. Either way the hand-shake runs both phases.
	if cookie != nil && !wire.VerifyCookie(cookie.String(), ctx.ResumeSessionKey, ctx.CookieSigningKey) {
		cookie = nil
	}

	m.state = StatePhaseOneSent
	return wire.SendAuthPhaseOne{Ctx: ctx, Cookie: cookie}
}

// ParameterReceived advances the hand-shake on each AUTH parameter block
// the server sends back. Phase one's response carries the salt/session
// parameters the core uses to derive the phase-two verifier; phase two's
// response carries the session parameters the connection then adopts.
func (m *Machine) ParameterReceived(params map[string]string) wire.Action {
	switch m.state {
	case StatePhaseOneSent:
		if salt, ok := params["AUTH_VFR_DATA"]; ok {
			if raw, err := hex.DecodeString(salt); err == nil {
				m.sessionKey = m.ctx.DeriveSessionKey(raw)
				params["AUTH_SESSKEY"] = hex.EncodeToString(m.sessionKey)
			}
		}
		m.state = StatePhaseTwoSent
		return wire.SendAuthPhaseTwo{Ctx: m.ctx, Params: params}
	case StatePhaseTwoSent:
		m.state = StateAuthenticated
		return wire.Authenticated{Params: params, Cookie: m.mintCookie()}
	default:
		wire.Violation("auth", "parameterReceived", m.state.String())
		return nil
	}
}

// mintCookie signs a resumption cookie over the derived session key when
// the caller's AuthContext carries a CookieSigningKey; otherwise no cookie
// is offered back to the pool.
func (m *Machine) mintCookie() *wire.Cookie {
	if len(m.ctx.CookieSigningKey) == 0 || len(m.sessionKey) == 0 {
		return nil
	}
	cookie, err := wire.NewCookie(m.sessionKey, cookieTTL, m.ctx.CookieSigningKey)
	if err != nil {
		return nil
	}
	return cookie
}

// ErrorReceived absorbs a server-reported logon failure (bad credentials,
// expired password, account locked) at any point before authentication
// completes. This is a normal, expected outcome, not a protocol violation.
func (m *Machine) ErrorReceived(serverErr *wire.ServerError) wire.Action {
	m.state = StateError
	m.err = serverErr
	return wire.ReportAuthError{Err: serverErr}
}

// ErrorHappened records a lower-level failure (decode error, connection
// drop) that aborted the hand-shake from outside the AUTH message flow.
func (m *Machine) ErrorHappened(e error) wire.Action {
	m.state = StateError
	m.err = e
	return wire.ReportAuthError{Err: e}
}
