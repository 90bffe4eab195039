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

package memstore

import (
	"context"

	"github.com/opentrusty/oauth2grant/grant/store"
)

// PutAccessToken inserts a new AccessToken + RefreshToken pair. Any prior
// RefreshToken (and its paired AccessToken) for the same (ClientID,
// UserID) is evicted first, and when in.AuthCode is set, that AuthCode is
// marked redeemed with the new access token — all under the store's
// single lock, so no other operation can observe an intermediate state.
func (s *Store) PutAccessToken(_ context.Context, in store.PutAccessTokenInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := in.AccessToken
	rt := in.RefreshToken

	var code *store.AuthCode
	if in.AuthCode != "" {
		c, ok := s.codes[in.AuthCode]
		if !ok {
			return store.ErrNotFound
		}
		if c.RedeemedAccessToken != "" {
			return store.ErrAlreadyRedeemed
		}
		code = c
	}

	for tok, existing := range s.refresh {
		if existing.ClientID == at.ClientID && existing.UserID == at.UserID {
			delete(s.refresh, tok)
			if existing.AccessToken != "" {
				delete(s.access, existing.AccessToken)
			}
		}
	}

	atCp := *at
	atCp.Scopes = append([]string(nil), at.Scopes...)
	s.access[at.Token] = &atCp

	if rt != nil {
		rtCp := *rt
		rtCp.Scopes = append([]string(nil), rt.Scopes...)
		s.refresh[rt.Token] = &rtCp
	}

	if code != nil {
		code.RedeemedAccessToken = at.Token
	}

	return nil
}

// GetAccessToken retrieves an AccessToken by token string.
func (s *Store) GetAccessToken(_ context.Context, tok string) (*store.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.access[tok]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp, nil
}

// GetRefreshToken retrieves a RefreshToken by token string.
func (s *Store) GetRefreshToken(_ context.Context, tok string) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refresh[tok]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp, nil
}

// DeleteAccessToken removes an AccessToken.
func (s *Store) DeleteAccessToken(_ context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.access, tok)
	return nil
}

// DeleteRefreshToken removes a RefreshToken.
func (s *Store) DeleteRefreshToken(_ context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, tok)
	return nil
}
