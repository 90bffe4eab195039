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

// Package store defines the persistence contract for authorization codes,
// access tokens, and refresh tokens. The Grant Engine borrows records
// through these operations and never caches them; the Store exclusively
// owns token state.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by every lookup operation when the requested
// record is absent (never existed, or already deleted). Expired records
// are still returned; callers check IsExpired.
var ErrNotFound = errors.New("store: record not found")

// ErrAlreadyExists is returned by PutAuthCode on a duplicate code. With
// the entropy required of Codec implementations this is unreachable in
// practice.
var ErrAlreadyExists = errors.New("store: record already exists")

// ErrAlreadyRedeemed is returned by MarkAuthCodeRedeemed and
// PutAccessToken (when called with AuthCode set) if the code has already
// been redeemed by a prior, possibly concurrent, call. Implementations
// MUST perform this check-and-set atomically: of two concurrent
// redemption attempts for the same code, at most one may succeed, and the
// loser neither inserts its access/refresh tokens nor mutates the
// AuthCode record.
var ErrAlreadyRedeemed = errors.New("store: authorization code already redeemed")

// AuthCode is a short-lived, single-use authorization code.
type AuthCode struct {
	Code                string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	ExpiresAt           time.Time
	RedeemedAccessToken string // set by PutAccessToken or MarkAuthCodeRedeemed on redemption
}

// IsExpired reports whether the code has passed its ExpiresAt.
func (c *AuthCode) IsExpired() bool { return !time.Now().Before(c.ExpiresAt) }

// IsRedeemed reports whether the code has already been exchanged once.
func (c *AuthCode) IsRedeemed() bool { return c.RedeemedAccessToken != "" }

// AccessToken is a credential presented to access protected resources.
type AccessToken struct {
	Token        string
	ClientID     string
	UserID       string
	Scopes       []string
	ExpiresAt    time.Time
	RefreshToken string // back-pointer to the paired refresh token, if any
}

// IsExpired reports whether the token has passed its ExpiresAt.
func (t *AccessToken) IsExpired() bool { return !time.Now().Before(t.ExpiresAt) }

// RefreshToken is a long-lived credential used to mint a new access token
// without user interaction. Refresh tokens never self-expire.
type RefreshToken struct {
	Token       string
	ClientID    string
	UserID      string
	AccessToken string // current paired access token
	AuthCode    string // originating authorization code, for lineage
	Scopes      []string
}

// PutAccessTokenInput bundles the arguments to PutAccessToken: a fresh
// AccessToken/RefreshToken pair, optionally replacing the AuthCode's
// pending redemption.
type PutAccessTokenInput struct {
	AccessToken  *AccessToken
	RefreshToken *RefreshToken
	AuthCode     string // when set, the matching AuthCode is marked redeemed
}

// Store is the abstract mapping and lifecycle manager for authorization
// codes, access tokens, and refresh tokens.
//
// All mutating operations on the same key must be atomic with respect to
// other Store operations on that key. In particular, the sequence
// TakeAuthCode -> inspect -> MarkAuthCodeRedeemed must behave as a single
// atomic step: of two concurrent redemption attempts for the same code, at
// most one may succeed.
type Store interface {
	// PutAuthCode inserts a new AuthCode. Returns ErrAlreadyExists on a
	// duplicate code.
	PutAuthCode(ctx context.Context, c *AuthCode) error

	// TakeAuthCode retrieves a point-in-time snapshot of the AuthCode for
	// code. Its RedeemedAccessToken field reflects whatever the last
	// successful MarkAuthCodeRedeemed/PutAccessToken call recorded; it is
	// a read, not a claim, so the caller (the Grant Engine) must route
	// the actual redemption through MarkAuthCodeRedeemed or
	// PutAccessToken, both of which are atomic check-and-set operations.
	TakeAuthCode(ctx context.Context, code string) (*AuthCode, error)

	// MarkAuthCodeRedeemed atomically marks code redeemed with
	// accessToken, but only if it is not already redeemed. Returns
	// ErrAlreadyRedeemed — without mutating the record — if a prior call
	// (possibly concurrent) already redeemed it.
	MarkAuthCodeRedeemed(ctx context.Context, code, accessToken string) error

	// DeleteAuthCode removes an AuthCode (expiry or cascaded revocation).
	DeleteAuthCode(ctx context.Context, code string) error

	// PutAccessToken inserts a new AccessToken + RefreshToken pair,
	// evicting any prior RefreshToken (and its AccessToken) for
	// (ClientID, UserID), and — when in.AuthCode is set — marking that
	// AuthCode redeemed with the new access token, all as one atomic
	// operation. When in.AuthCode is set and the code is already
	// redeemed, PutAccessToken performs no insertion at all and returns
	// ErrAlreadyRedeemed: this is the mechanism that guarantees at most
	// one of two concurrent redemptions of the same code succeeds.
	PutAccessToken(ctx context.Context, in PutAccessTokenInput) error

	// GetAccessToken retrieves an AccessToken by its token string.
	GetAccessToken(ctx context.Context, tok string) (*AccessToken, error)

	// GetRefreshToken retrieves a RefreshToken by its token string.
	GetRefreshToken(ctx context.Context, tok string) (*RefreshToken, error)

	// DeleteAccessToken removes an AccessToken (expiry, revoke, or rotation).
	DeleteAccessToken(ctx context.Context, tok string) error

	// DeleteRefreshToken removes a RefreshToken (rotation).
	DeleteRefreshToken(ctx context.Context, tok string) error
}
