// Copyright 2026 The OpenTrusty Authors
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

package grant

import (
	"time"

	"github.com/opentrusty/oauth2grant/grant/audit"
	"github.com/opentrusty/oauth2grant/grant/bridge"
	"github.com/opentrusty/oauth2grant/grant/registry"
	"github.com/opentrusty/oauth2grant/grant/secret"
	"github.com/opentrusty/oauth2grant/grant/store"
	"github.com/opentrusty/oauth2grant/grant/token"
)

// Option configures an Engine at construction time. There is no
// keyword/positional adapter here: every field is named, and there is a
// single constructor path (New), not a callback-or-builtin switch
// re-resolved on every call.
type Option func(*Engine)

// WithRegistry supplies the Client Registry. Required: New fails without
// one, since there is no meaningful default client set.
func WithRegistry(r registry.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithStore supplies a persistence implementation, replacing the default
// in-memory memstore.Store. Use this to plug in a host-backed Store (a
// database-backed implementation, for instance).
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithSignedTokens selects Signed (self-contained) mode: tokens carry
// their own claims, signed with secret, and the Store is bypassed
// entirely for issuance and verification. Absent this option, the engine
// runs in Opaque mode.
func WithSignedTokens(secret []byte) Option {
	return func(e *Engine) {
		e.codec = token.NewSigned(secret)
		e.signed = true
	}
}

// WithAuthCodeTTL overrides the default 600-second authorization code
// lifetime.
func WithAuthCodeTTL(d time.Duration) Option {
	return func(e *Engine) { e.authCodeTTL = d }
}

// WithAccessTokenTTL overrides the default 3600-second access token
// lifetime.
func WithAccessTokenTTL(d time.Duration) Option {
	return func(e *Engine) { e.accessTokenTTL = d }
}

// WithBridge supplies a ResourceOwnerBridge, replacing the permissive
// development default.
func WithBridge(b bridge.ResourceOwnerBridge) Option {
	return func(e *Engine) { e.bridge = b }
}

// WithAuditLogger supplies an audit.Logger the engine reports token
// lifecycle events through. Optional; the engine is silent by default.
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Engine) { e.auditLogger = l }
}

// WithSecretHasher replaces the default salted-SHA-256 client secret
// hasher (secret.Default) with h, e.g. secret.NewArgon2Hasher(...) for a
// host that standardizes on Argon2id across every credential it stores.
func WithSecretHasher(h secret.Hasher) Option {
	return func(e *Engine) { e.secretHasher = h }
}

// WithStrictRedirectURI enables RFC 6749 §4.1.3-strict redirect_uri
// checking during auth code verification: the redirect_uri supplied at
// verification time must match the one recorded at issuance even when
// the caller passes an empty string. The default (false) preserves the
// source's lax behavior, which skips the check when redirect_uri is
// empty at verification time.
func WithStrictRedirectURI(v bool) Option {
	return func(e *Engine) { e.strictRedirectURI = v }
}
