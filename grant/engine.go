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

// Package grant implements the OAuth 2.0 Authorization Code Grant
// (RFC 6749 §4.1) as an embeddable core: a host application wires in a
// client registry, a token persistence strategy, and resource-owner
// hooks, and the Engine carries out client verification, authorization
// code issuance, code-for-token exchange, access/refresh token issuance,
// and bearer token verification.
//
// The Engine never touches HTTP, never renders a login or consent page,
// and never owns a user/session model — those are host concerns. It
// only implements the protocol state machine and the invariants RFC 6749
// requires of it: single-use authorization codes, cascaded revocation on
// replay, and refresh token rotation.
package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opentrusty/oauth2grant/grant/audit"
	"github.com/opentrusty/oauth2grant/grant/bridge"
	"github.com/opentrusty/oauth2grant/grant/registry"
	"github.com/opentrusty/oauth2grant/grant/secret"
	"github.com/opentrusty/oauth2grant/grant/store"
	"github.com/opentrusty/oauth2grant/grant/store/memstore"
	"github.com/opentrusty/oauth2grant/grant/token"
)

// Default token lifetimes, matching the distilled specification.
const (
	DefaultAuthCodeTTL    = 600 * time.Second
	DefaultAccessTokenTTL = 3600 * time.Second
)

// Engine is the Authorization Code Grant core. Build one with New; it is
// safe for concurrent use by multiple goroutines once constructed.
type Engine struct {
	registry          registry.Registry
	store             store.Store
	codec             token.Codec
	signed            bool
	authCodeTTL       time.Duration
	accessTokenTTL    time.Duration
	bridge            bridge.ResourceOwnerBridge
	auditLogger       audit.Logger
	strictRedirectURI bool
	secretHasher      secret.Hasher
}

// New constructs an Engine from opts. A Registry is mandatory (via
// WithRegistry); everything else has a working default — an in-memory
// Store, Opaque tokens, a permissive resource-owner bridge, and a silent
// audit logger.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		store:          memstore.New(),
		codec:          token.NewOpaque(),
		authCodeTTL:    DefaultAuthCodeTTL,
		accessTokenTTL: DefaultAccessTokenTTL,
		bridge:         bridge.Permissive{},
		auditLogger:    audit.NoOp{},
		secretHasher:   secret.Default{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		return nil, errors.New("grant: New requires WithRegistry; there is no default client set")
	}
	return e, nil
}

// LoginResourceOwner forwards to the configured ResourceOwnerBridge. The
// engine itself never calls this; it is exposed so a host can gate its
// own call to Authorize on the result.
func (e *Engine) LoginResourceOwner(ctx context.Context) bool {
	return e.bridge.LoginResourceOwner(ctx)
}

// ConfirmByResourceOwner forwards to the configured ResourceOwnerBridge,
// for the same reason as LoginResourceOwner.
func (e *Engine) ConfirmByResourceOwner(ctx context.Context, clientID string, scopes []string) bool {
	return e.bridge.ConfirmByResourceOwner(ctx, clientID, scopes)
}

// VerifyClient looks up clientID and checks that every scope in scopes is
// both known to and granted for that client. The first scope that fails
// determines the error kind: an unrecognized scope is invalid_scope, a
// recognized-but-disabled scope is access_denied. An unknown client is
// unauthorized_client regardless of scopes.
func (e *Engine) VerifyClient(ctx context.Context, clientID string, scopes []string) (*registry.Client, error) {
	c, err := e.registry.Lookup(ctx, clientID)
	if err != nil {
		return nil, protoErr(ErrKindUnauthorizedClient, fmt.Errorf("client %q: %w", clientID, err))
	}
	for _, s := range scopes {
		granted, known := c.Scopes[s]
		switch {
		case !known:
			return nil, protoErr(ErrKindInvalidScope, fmt.Errorf("scope %q not recognized for client %q", s, clientID))
		case !granted:
			return nil, protoErr(ErrKindAccessDenied, fmt.Errorf("scope %q not granted to client %q", s, clientID))
		}
	}
	return c, nil
}

// AuthorizeInput bundles the inputs to Authorize.
type AuthorizeInput struct {
	ClientID    string
	UserID      string
	RedirectURI string
	Scopes      []string
}

// Authorize verifies clientID and scopes, then issues a single-use
// authorization code bound to userID, redirectURI, and scopes. The
// caller is expected to have already gated this call on
// LoginResourceOwner and ConfirmByResourceOwner returning true; Authorize
// itself does not re-check them.
func (e *Engine) Authorize(ctx context.Context, in AuthorizeInput) (string, error) {
	if _, err := e.VerifyClient(ctx, in.ClientID, in.Scopes); err != nil {
		return "", err
	}

	code, err := e.codec.Encode(token.Descriptor{
		Kind:     token.KindAuth,
		ClientID: in.ClientID,
		UserID:   in.UserID,
		Scopes:   in.Scopes,
		Audience: in.RedirectURI,
		TTL:      e.authCodeTTL,
	})
	if err != nil {
		return "", fmt.Errorf("grant: issuing authorization code: %w", err)
	}

	if !e.signed {
		if err := e.store.PutAuthCode(ctx, &store.AuthCode{
			Code:        code,
			ClientID:    in.ClientID,
			UserID:      in.UserID,
			RedirectURI: in.RedirectURI,
			Scopes:      in.Scopes,
			ExpiresAt:   time.Now().Add(e.authCodeTTL),
		}); err != nil {
			return "", fmt.Errorf("grant: storing authorization code: %w", err)
		}
	}

	e.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAuthCodeIssued,
		ClientID: in.ClientID,
		UserID:   in.UserID,
	})
	return code, nil
}

// ExchangeInput bundles the inputs to Exchange.
type ExchangeInput struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
}

// ExchangeResult is what the authorization code resolved to.
type ExchangeResult struct {
	ClientID string
	UserID   string
	Scopes   []string
}

// Exchange redeems an authorization code: the critical path of the
// grant. In Opaque mode every failure reason — absent code, client
// mismatch, bad secret, redirect_uri mismatch, expiry, and replay — is
// collapsed into a single invalid_grant error, deliberately, so a caller
// cannot distinguish "wrong secret" from "no such code" by error kind
// alone. A replayed code (one already redeemed) additionally triggers
// cascaded revocation of the access token it had produced. In Signed
// mode there is no Store to consult, so there is no replay detection;
// an unknown client is distinguished as unauthorized_client.
func (e *Engine) Exchange(ctx context.Context, in ExchangeInput) (*ExchangeResult, error) {
	if e.signed {
		return e.exchangeSigned(ctx, in)
	}
	return e.exchangeOpaque(ctx, in)
}

func (e *Engine) exchangeOpaque(ctx context.Context, in ExchangeInput) (*ExchangeResult, error) {
	rec, err := e.store.TakeAuthCode(ctx, in.Code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, protoErr(ErrKindInvalidGrant, errors.New("unknown authorization code"))
		}
		return nil, fmt.Errorf("grant: looking up authorization code: %w", err)
	}

	if rec.IsRedeemed() {
		if err := e.store.DeleteAccessToken(ctx, rec.RedeemedAccessToken); err != nil {
			slog.ErrorContext(ctx, "Exchange: failed to revoke access token from replayed code", "client_id", in.ClientID, "error", err)
		}
		if err := e.store.DeleteAuthCode(ctx, in.Code); err != nil {
			slog.ErrorContext(ctx, "Exchange: failed to delete replayed authorization code", "client_id", in.ClientID, "error", err)
		}
		e.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeAuthCodeReplayed,
			ClientID: in.ClientID,
			UserID:   rec.UserID,
		})
		return nil, protoErr(ErrKindInvalidGrant, errors.New("authorization code already redeemed"))
	}

	client, lookupErr := e.registry.Lookup(ctx, in.ClientID)
	redirectMismatch := (e.strictRedirectURI || in.RedirectURI != "") && in.RedirectURI != rec.RedirectURI

	invalid := lookupErr != nil ||
		rec.ClientID != in.ClientID ||
		(lookupErr == nil && !e.secretHasher.Verify(in.ClientSecret, client.ClientSecretHash)) ||
		redirectMismatch ||
		rec.IsExpired()
	if invalid {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("authorization code verification failed"))
	}

	return &ExchangeResult{ClientID: rec.ClientID, UserID: rec.UserID, Scopes: rec.Scopes}, nil
}

func (e *Engine) exchangeSigned(ctx context.Context, in ExchangeInput) (*ExchangeResult, error) {
	d, err := e.codec.Decode(in.Code)
	if err != nil || d.Kind != token.KindAuth {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("malformed or expired authorization code"))
	}
	if d.ClientID != in.ClientID {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("authorization code was not issued to this client"))
	}
	if d.Audience != "" && d.Audience != in.RedirectURI {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("redirect_uri mismatch"))
	}

	client, err := e.registry.Lookup(ctx, in.ClientID)
	if err != nil {
		return nil, protoErr(ErrKindUnauthorizedClient, fmt.Errorf("client %q: %w", in.ClientID, err))
	}
	if !e.secretHasher.Verify(in.ClientSecret, client.ClientSecretHash) {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("client secret mismatch"))
	}

	return &ExchangeResult{ClientID: d.ClientID, UserID: d.UserID, Scopes: d.Scopes}, nil
}

// IssueResult is a freshly minted access/refresh token pair.
type IssueResult struct {
	AccessToken  string
	RefreshToken string
}

// IssueFromAuthCodeInput bundles the inputs to IssueFromAuthCode. Code is
// the exact string Exchange was called with; it is only needed in Opaque
// mode, to tie the new tokens back to the AuthCode record, and is
// ignored in Signed mode.
type IssueFromAuthCodeInput struct {
	ClientID string
	UserID   string
	Scopes   []string
	Code     string
}

// IssueFromAuthCode mints an access/refresh token pair following a
// successful Exchange. In Opaque mode this is also where the
// authorization code is durably marked redeemed, atomically with token
// insertion: if a concurrent redemption of the same code already won,
// this call fails with invalid_grant and inserts nothing.
func (e *Engine) IssueFromAuthCode(ctx context.Context, in IssueFromAuthCodeInput) (*IssueResult, error) {
	accessTok, refreshTok, err := e.mintPair(in.ClientID, in.UserID, in.Scopes)
	if err != nil {
		return nil, err
	}

	if !e.signed {
		err := e.store.PutAccessToken(ctx, store.PutAccessTokenInput{
			AccessToken: &store.AccessToken{
				Token:        accessTok,
				ClientID:     in.ClientID,
				UserID:       in.UserID,
				Scopes:       in.Scopes,
				ExpiresAt:    time.Now().Add(e.accessTokenTTL),
				RefreshToken: refreshTok,
			},
			RefreshToken: &store.RefreshToken{
				Token:       refreshTok,
				ClientID:    in.ClientID,
				UserID:      in.UserID,
				AccessToken: accessTok,
				AuthCode:    in.Code,
				Scopes:      in.Scopes,
			},
			AuthCode: in.Code,
		})
		if err != nil {
			if errors.Is(err, store.ErrAlreadyRedeemed) {
				return nil, protoErr(ErrKindInvalidGrant, err)
			}
			return nil, fmt.Errorf("grant: storing access token: %w", err)
		}
	}

	e.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAccessTokenIssued,
		ClientID: in.ClientID,
		UserID:   in.UserID,
	})
	return &IssueResult{AccessToken: accessTok, RefreshToken: refreshTok}, nil
}

// IssueFromRefreshInput bundles the inputs to IssueFromRefresh. Scopes,
// if non-empty, narrows the new token pair to a subset of the original
// grant; if empty, the original scopes carry forward unchanged.
type IssueFromRefreshInput struct {
	RefreshToken string
	Scopes       []string
}

// IssueFromRefresh redeems a refresh token for a new access/refresh token
// pair, rotating both: the old refresh token (and its paired access
// token) is revoked and replaced. This is the only path that keeps a
// resource owner's grant alive without re-running the authorization
// step.
func (e *Engine) IssueFromRefresh(ctx context.Context, in IssueFromRefreshInput) (*IssueResult, error) {
	if e.signed {
		d, err := e.codec.Decode(in.RefreshToken)
		if err != nil || d.Kind != token.KindRefresh {
			return nil, protoErr(ErrKindInvalidGrant, errors.New("invalid refresh token"))
		}
		scopes := in.Scopes
		if len(scopes) == 0 {
			scopes = d.Scopes
		}
		accessTok, refreshTok, err := e.mintPair(d.ClientID, d.UserID, scopes)
		if err != nil {
			return nil, err
		}
		e.auditLogger.Log(ctx, audit.Event{Type: audit.TypeRefreshTokenRotated, ClientID: d.ClientID, UserID: d.UserID})
		return &IssueResult{AccessToken: accessTok, RefreshToken: refreshTok}, nil
	}

	old, err := e.store.GetRefreshToken(ctx, in.RefreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, protoErr(ErrKindInvalidGrant, errors.New("unknown refresh token"))
		}
		return nil, fmt.Errorf("grant: looking up refresh token: %w", err)
	}

	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = old.Scopes
	}

	accessTok, refreshTok, err := e.mintPair(old.ClientID, old.UserID, scopes)
	if err != nil {
		return nil, err
	}

	if err := e.store.DeleteAccessToken(ctx, old.AccessToken); err != nil {
		slog.ErrorContext(ctx, "IssueFromRefresh: failed to revoke superseded access token", "client_id", old.ClientID, "error", err)
	}
	if err := e.store.DeleteRefreshToken(ctx, in.RefreshToken); err != nil {
		slog.ErrorContext(ctx, "IssueFromRefresh: failed to delete superseded refresh token", "client_id", old.ClientID, "error", err)
	}

	if err := e.store.PutAccessToken(ctx, store.PutAccessTokenInput{
		AccessToken: &store.AccessToken{
			Token:        accessTok,
			ClientID:     old.ClientID,
			UserID:       old.UserID,
			Scopes:       scopes,
			ExpiresAt:    time.Now().Add(e.accessTokenTTL),
			RefreshToken: refreshTok,
		},
		RefreshToken: &store.RefreshToken{
			Token:       refreshTok,
			ClientID:    old.ClientID,
			UserID:      old.UserID,
			AccessToken: accessTok,
			AuthCode:    old.AuthCode,
			Scopes:      scopes,
		},
	}); err != nil {
		return nil, fmt.Errorf("grant: storing rotated access token: %w", err)
	}

	e.auditLogger.Log(ctx, audit.Event{Type: audit.TypeRefreshTokenRotated, ClientID: old.ClientID, UserID: old.UserID})
	return &IssueResult{AccessToken: accessTok, RefreshToken: refreshTok}, nil
}

func (e *Engine) mintPair(clientID, userID string, scopes []string) (accessTok, refreshTok string, err error) {
	accessTok, err = e.codec.Encode(token.Descriptor{
		Kind:     token.KindAccess,
		ClientID: clientID,
		UserID:   userID,
		Scopes:   scopes,
		TTL:      e.accessTokenTTL,
	})
	if err != nil {
		return "", "", fmt.Errorf("grant: issuing access token: %w", err)
	}
	refreshTok, err = e.codec.Encode(token.Descriptor{
		Kind:     token.KindRefresh,
		ClientID: clientID,
		UserID:   userID,
		Scopes:   scopes,
	})
	if err != nil {
		return "", "", fmt.Errorf("grant: issuing refresh token: %w", err)
	}
	return accessTok, refreshTok, nil
}

// VerifyInput bundles the inputs to VerifyAccessToken.
type VerifyInput struct {
	Token          string
	Scopes         []string // required scopes; every one must be granted
	IsRefreshToken bool
}

// VerifyResult is what a verified token resolved to.
type VerifyResult struct {
	ClientID string
	UserID   string
	Scopes   []string
}

// VerifyAccessToken checks that in.Token is a live, unexpired token
// granting every scope in in.Scopes. In Opaque mode, an expired access
// token is deleted from the Store as a side effect of being observed
// expired. In Signed mode the token is accepted if its type is access,
// or if IsRefreshToken is set and its type is refresh.
func (e *Engine) VerifyAccessToken(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if e.signed {
		return e.verifySigned(in)
	}
	return e.verifyOpaque(ctx, in)
}

func (e *Engine) verifyOpaque(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if in.IsRefreshToken {
		rt, err := e.store.GetRefreshToken(ctx, in.Token)
		if err != nil {
			return nil, protoErr(ErrKindInvalidGrant, errors.New("unknown refresh token"))
		}
		if !scopesGranted(rt.Scopes, in.Scopes) {
			return nil, protoErr(ErrKindInvalidGrant, errors.New("scope not granted"))
		}
		return &VerifyResult{ClientID: rt.ClientID, UserID: rt.UserID, Scopes: rt.Scopes}, nil
	}

	at, err := e.store.GetAccessToken(ctx, in.Token)
	if err != nil {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("unknown access token"))
	}
	if at.IsExpired() {
		_ = e.store.DeleteAccessToken(ctx, in.Token)
		return nil, protoErr(ErrKindInvalidGrant, errors.New("access token expired"))
	}
	if !scopesGranted(at.Scopes, in.Scopes) {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("scope not granted"))
	}
	return &VerifyResult{ClientID: at.ClientID, UserID: at.UserID, Scopes: at.Scopes}, nil
}

func (e *Engine) verifySigned(in VerifyInput) (*VerifyResult, error) {
	d, err := e.codec.Decode(in.Token)
	if err != nil {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("invalid or expired token"))
	}
	if d.Kind != token.KindAccess && !(in.IsRefreshToken && d.Kind == token.KindRefresh) {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("unexpected token type"))
	}
	if !scopesGranted(d.Scopes, in.Scopes) {
		return nil, protoErr(ErrKindInvalidGrant, errors.New("scope not granted"))
	}
	return &VerifyResult{ClientID: d.ClientID, UserID: d.UserID, Scopes: d.Scopes}, nil
}

func scopesGranted(granted, requested []string) bool {
	set := make(map[string]bool, len(granted))
	for _, s := range granted {
		set[s] = true
	}
	for _, s := range requested {
		if !set[s] {
			return false
		}
	}
	return true
}

// VerifyBearer verifies a request carrying either an Authorization:
// Bearer header or, for the refresh flow, a bare refresh token. If
// refreshToken is non-empty it takes precedence and is verified as a
// refresh token; otherwise authHeader is split on a single space and its
// first element must equal "Bearer" exactly, or the request fails with
// invalid_request rather than invalid_grant — a malformed header is a
// client bug, not a bad credential.
func (e *Engine) VerifyBearer(ctx context.Context, authHeader string, scopes []string, refreshToken string) (*VerifyResult, error) {
	if refreshToken != "" {
		return e.VerifyAccessToken(ctx, VerifyInput{Token: refreshToken, Scopes: scopes, IsRefreshToken: true})
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return nil, protoErr(ErrKindInvalidRequest, errors.New("missing or malformed Authorization header"))
	}
	return e.VerifyAccessToken(ctx, VerifyInput{Token: parts[1], Scopes: scopes})
}
