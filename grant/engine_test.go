// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"
	"testing"
	"time"

	"github.com/opentrusty/oauth2grant/grant/registry"
	"github.com/opentrusty/oauth2grant/grant/secret"
	"github.com/opentrusty/oauth2grant/grant/token"
)

func tokenDescriptor(clientID, userID string, scopes []string, ttl time.Duration) token.Descriptor {
	return token.Descriptor{Kind: token.KindAuth, ClientID: clientID, UserID: userID, Scopes: scopes, TTL: ttl}
}

func testClient(t *testing.T, id, plainSecret string, scopes map[string]bool) *registry.Client {
	t.Helper()
	h, err := secret.Hash(plainSecret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	return &registry.Client{ClientID: id, ClientSecretHash: h, Scopes: scopes}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *registry.Client) {
	t.Helper()
	client := testClient(t, "client-1", "s3cret", map[string]bool{"read": true, "write": true, "admin": false})
	reg := registry.NewStatic(map[string]*registry.Client{"client-1": client})
	all := append([]Option{WithRegistry(reg)}, opts...)
	e, err := New(all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, client
}

func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	code, err := e.Authorize(ctx, AuthorizeInput{
		ClientID:    "client-1",
		UserID:      "user-1",
		RedirectURI: "https://app.example/cb",
		Scopes:      []string{"read"},
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	xr, err := e.Exchange(ctx, ExchangeInput{
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Code:         code,
		RedirectURI:  "https://app.example/cb",
	})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if xr.ClientID != "client-1" || xr.UserID != "user-1" {
		t.Fatalf("unexpected exchange result: %+v", xr)
	}

	pair, err := e.IssueFromAuthCode(ctx, IssueFromAuthCodeInput{
		ClientID: xr.ClientID,
		UserID:   xr.UserID,
		Scopes:   xr.Scopes,
		Code:     code,
	})
	if err != nil {
		t.Fatalf("IssueFromAuthCode: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected non-empty token pair")
	}

	vr, err := e.VerifyAccessToken(ctx, VerifyInput{Token: pair.AccessToken, Scopes: []string{"read"}})
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if vr.ClientID != "client-1" || vr.UserID != "user-1" {
		t.Fatalf("unexpected verify result: %+v", vr)
	}
}

func TestReplayTriggersCascadedRevocation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	code, err := e.Authorize(ctx, AuthorizeInput{ClientID: "client-1", UserID: "user-1", Scopes: []string{"read"}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	xr, err := e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "s3cret", Code: code})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	pair, err := e.IssueFromAuthCode(ctx, IssueFromAuthCodeInput{ClientID: xr.ClientID, UserID: xr.UserID, Scopes: xr.Scopes, Code: code})
	if err != nil {
		t.Fatalf("IssueFromAuthCode: %v", err)
	}

	if _, err := e.VerifyAccessToken(ctx, VerifyInput{Token: pair.AccessToken}); err != nil {
		t.Fatalf("expected access token to be live before replay: %v", err)
	}

	_, err = e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "s3cret", Code: code})
	kind, ok := AsProtocolError(err)
	if !ok || kind != ErrKindInvalidGrant {
		t.Fatalf("expected invalid_grant on replay, got %v", err)
	}

	if _, err := e.VerifyAccessToken(ctx, VerifyInput{Token: pair.AccessToken}); err == nil {
		t.Fatalf("expected access token to be revoked after replay")
	}
}

func TestExchangeRejectsBadSecret(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	code, err := e.Authorize(ctx, AuthorizeInput{ClientID: "client-1", UserID: "user-1", Scopes: []string{"read"}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	_, err = e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "wrong", Code: code})
	kind, ok := AsProtocolError(err)
	if !ok || kind != ErrKindInvalidGrant {
		t.Fatalf("expected invalid_grant for bad secret, got %v", err)
	}
}

func TestVerifyClientRejectsUnknownAndDisabledScope(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.VerifyClient(ctx, "client-1", []string{"nonexistent"})
	if kind, ok := AsProtocolError(err); !ok || kind != ErrKindInvalidScope {
		t.Fatalf("expected invalid_scope for unknown scope, got %v", err)
	}

	_, err = e.VerifyClient(ctx, "client-1", []string{"admin"})
	if kind, ok := AsProtocolError(err); !ok || kind != ErrKindAccessDenied {
		t.Fatalf("expected access_denied for disabled scope, got %v", err)
	}

	_, err = e.VerifyClient(ctx, "no-such-client", nil)
	if kind, ok := AsProtocolError(err); !ok || kind != ErrKindUnauthorizedClient {
		t.Fatalf("expected unauthorized_client for unknown client, got %v", err)
	}
}

func TestExpiredAuthCodeIsRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, WithAuthCodeTTL(0))

	code, err := e.Authorize(ctx, AuthorizeInput{ClientID: "client-1", UserID: "user-1", Scopes: []string{"read"}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	_, err = e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "s3cret", Code: code})
	if kind, ok := AsProtocolError(err); !ok || kind != ErrKindInvalidGrant {
		t.Fatalf("expected invalid_grant for expired code, got %v", err)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	code, err := e.Authorize(ctx, AuthorizeInput{ClientID: "client-1", UserID: "user-1", Scopes: []string{"read", "write"}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	xr, err := e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "s3cret", Code: code})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	first, err := e.IssueFromAuthCode(ctx, IssueFromAuthCodeInput{ClientID: xr.ClientID, UserID: xr.UserID, Scopes: xr.Scopes, Code: code})
	if err != nil {
		t.Fatalf("IssueFromAuthCode: %v", err)
	}

	rotated, err := e.IssueFromRefresh(ctx, IssueFromRefreshInput{RefreshToken: first.RefreshToken})
	if err != nil {
		t.Fatalf("IssueFromRefresh: %v", err)
	}
	if rotated.AccessToken == first.AccessToken || rotated.RefreshToken == first.RefreshToken {
		t.Fatalf("expected rotation to mint fresh tokens")
	}

	if _, err := e.VerifyAccessToken(ctx, VerifyInput{Token: first.AccessToken}); err == nil {
		t.Fatalf("expected old access token revoked after rotation")
	}
	if _, err := e.VerifyAccessToken(ctx, VerifyInput{Token: first.RefreshToken, IsRefreshToken: true}); err == nil {
		t.Fatalf("expected old refresh token revoked after rotation")
	}

	vr, err := e.VerifyAccessToken(ctx, VerifyInput{Token: rotated.AccessToken, Scopes: []string{"read", "write"}})
	if err != nil {
		t.Fatalf("expected rotated access token to verify: %v", err)
	}
	if vr.ClientID != "client-1" || vr.UserID != "user-1" {
		t.Fatalf("unexpected rotated verify result: %+v", vr)
	}
}

func TestVerifyBearerParsesHeader(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	code, err := e.Authorize(ctx, AuthorizeInput{ClientID: "client-1", UserID: "user-1", Scopes: []string{"read"}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	xr, err := e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "s3cret", Code: code})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	pair, err := e.IssueFromAuthCode(ctx, IssueFromAuthCodeInput{ClientID: xr.ClientID, UserID: xr.UserID, Scopes: xr.Scopes, Code: code})
	if err != nil {
		t.Fatalf("IssueFromAuthCode: %v", err)
	}

	if _, err := e.VerifyBearer(ctx, "Bearer "+pair.AccessToken, []string{"read"}, ""); err != nil {
		t.Fatalf("expected valid bearer header to verify: %v", err)
	}

	_, err = e.VerifyBearer(ctx, "Token "+pair.AccessToken, nil, "")
	if kind, ok := AsProtocolError(err); !ok || kind != ErrKindInvalidRequest {
		t.Fatalf("expected invalid_request for wrong scheme, got %v", err)
	}

	_, err = e.VerifyBearer(ctx, "", nil, "")
	if kind, ok := AsProtocolError(err); !ok || kind != ErrKindInvalidRequest {
		t.Fatalf("expected invalid_request for empty header, got %v", err)
	}

	if _, err := e.VerifyBearer(ctx, "", []string{"read"}, pair.RefreshToken); err != nil {
		t.Fatalf("expected refresh token precedence to verify: %v", err)
	}
}

func TestSignedModeRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, WithSignedTokens([]byte("hmac-secret-key-material")))

	code, err := e.Authorize(ctx, AuthorizeInput{ClientID: "client-1", UserID: "user-1", RedirectURI: "https://app.example/cb", Scopes: []string{"read"}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	xr, err := e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "s3cret", Code: code, RedirectURI: "https://app.example/cb"})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	pair, err := e.IssueFromAuthCode(ctx, IssueFromAuthCodeInput{ClientID: xr.ClientID, UserID: xr.UserID, Scopes: xr.Scopes})
	if err != nil {
		t.Fatalf("IssueFromAuthCode: %v", err)
	}

	if _, err := e.VerifyAccessToken(ctx, VerifyInput{Token: pair.AccessToken, Scopes: []string{"read"}}); err != nil {
		t.Fatalf("expected signed access token to verify: %v", err)
	}

	// Signed mode has no Store to consult, so the same code can be
	// exchanged again; there is no replay detection without persistence.
	if _, err := e.Exchange(ctx, ExchangeInput{ClientID: "client-1", ClientSecret: "s3cret", Code: code, RedirectURI: "https://app.example/cb"}); err != nil {
		t.Fatalf("expected signed mode to allow re-exchange (no replay detection): %v", err)
	}
}

func TestSignedModeUnknownClientIsUnauthorized(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, WithSignedTokens([]byte("hmac-secret-key-material")))

	// An auth code issued to a client id that was never registered: the
	// token itself decodes fine (Signed mode has no Store to consult),
	// but the registry lookup during Exchange fails.
	code, err := e.codec.Encode(tokenDescriptor("ghost-client", "user-1", []string{"read"}, e.authCodeTTL))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err = e.Exchange(ctx, ExchangeInput{ClientID: "ghost-client", ClientSecret: "s3cret", Code: code})
	if kind, ok := AsProtocolError(err); !ok || kind != ErrKindUnauthorizedClient {
		t.Fatalf("expected unauthorized_client for unregistered client, got %v", err)
	}
}

func TestConstructionRequiresRegistry(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatalf("expected New to fail without WithRegistry")
	}
}
