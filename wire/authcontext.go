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

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/elithrar/simple-scrypt"
	"golang.org/x/crypto/pbkdf2"
)

// AuthDescription is the session-purity/service-name block the server
// needs to route the logon.
type AuthDescription struct {
	ServiceName   string
	SessionPurity string
}

// AuthContext carries everything AuthenticationStateMachine needs to drive
// the two-phase logon: identity, secret material, numeric mode flags and
// the service description. It is never logged directly — call Redact()
// first.
type AuthContext struct {
	Username    string
	Password    string
	NewPassword string // set only on a password-change logon
	ModeFlags   uint32
	Description AuthDescription

	// ResumeSessionKey and CookieSigningKey are set by a connection pool
	// that wants to offer a resumption cookie on Start(): ResumeSessionKey
	// is the session key the offered Cookie was minted against, and
	// CookieSigningKey is the shared secret used both to verify it here
	// and to sign the cookie minted once this hand-shake authenticates.
	// Left nil, Start() never offers or trusts a cookie.
	ResumeSessionKey []byte
	CookieSigningKey []byte
}

const redactedPlaceholder = "******"

// Redact returns a copy of ctx with secret fields replaced, safe to pass to
// a logger or to render in an error message.
func (ctx *AuthContext) Redact() *AuthContext {
	redacted := *ctx
	if redacted.Password != "" {
		redacted.Password = redactedPlaceholder
	}
	if redacted.NewPassword != "" {
		redacted.NewPassword = redactedPlaceholder
	}
	return &redacted
}

// String never renders secret material, even under %v/%s formatting.
func (ctx *AuthContext) String() string {
	return fmt.Sprintf("AuthContext{Username: %q, Service: %q}", ctx.Username, ctx.Description.ServiceName)
}

// pbkdf2Iterations and pbkdf2KeyLen mirror the constants Oracle's O5LOGON
// verifier derivation uses for the PBKDF2-over-SHA1 session key.
const (
	pbkdf2Iterations = 4096
	pbkdf2KeyLen     = 24
)

// DeriveSessionKey derives the session key used to prove knowledge of the
// password, from the salt the server returns in response to phase one;
// the key is forwarded as AUTH_SESSKEY in the phase-two parameters. The
// core never sends the password itself; this is the verifier the wire
// format actually carries.
func (ctx *AuthContext) DeriveSessionKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(ctx.Password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha1.New)
}

// CheckNewPasswordPolicy runs a local minimum-strength check against
// NewPassword before ever placing a password-change logon on the wire,
// hashing it with scrypt.DefaultParams, so a request that is certain to be
// rejected by policy doesn't cost a round trip.
func (ctx *AuthContext) CheckNewPasswordPolicy() error {
	if len(ctx.NewPassword) < 8 {
		return fmt.Errorf("new password must be at least 8 characters")
	}
	// Deriving (and discarding) a scrypt hash doubles as a cheap proof
	// that the candidate password round-trips through the same KDF the
	// server-side credential store will eventually use for it.
	_, err := scrypt.GenerateFromPassword([]byte(ctx.NewPassword), scrypt.DefaultParams)
	return err
}

// Cookie is an opaque, signed resumption token a long-lived pool can hand
// back to sendAuthPhaseOne on reconnect to the same server. Offering one
// does not shorten the hand-shake: both phases still run.
type Cookie struct {
	token string
}

type cookieClaims struct {
	jwt.StandardClaims
	SessionKeyFingerprint string `json:"skf"`
}

// NewCookie signs a resumption cookie binding a fingerprint of the derived
// session key to an expiry, so a replayed cookie can't outlive the session
// it was minted for.
func NewCookie(sessionKey []byte, ttl time.Duration, signingKey []byte) (*Cookie, error) {
	sum := sha256.Sum256(sessionKey)
	claims := cookieClaims{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(ttl).Unix(),
		},
		SessionKeyFingerprint: fmt.Sprintf("%x", sum),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return nil, err
	}
	return &Cookie{token: signed}, nil
}

// String returns the wire representation of the cookie.
func (c *Cookie) String() string {
	if c == nil {
		return ""
	}
	return c.token
}

// VerifyCookie re-verifies a cookie's signature and expiry and, on success,
// reports whether it was minted for the given session key. A cookie that
// fails verification is never trusted; Start drops it and sends phase one
// without it rather than failing the connection.
func VerifyCookie(raw string, sessionKey []byte, signingKey []byte) bool {
	if raw == "" {
		return false
	}
	claims := &cookieClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	sum := sha256.Sum256(sessionKey)
	return claims.SessionKeyFingerprint == fmt.Sprintf("%x", sum)
}
