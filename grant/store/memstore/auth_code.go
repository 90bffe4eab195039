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

// PutAuthCode inserts a new AuthCode.
func (s *Store) PutAuthCode(_ context.Context, c *store.AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[c.Code]; exists {
		return store.ErrAlreadyExists
	}

	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	s.codes[c.Code] = &cp
	return nil
}

// TakeAuthCode returns a copy of the current AuthCode record for code,
// read under the store's single lock. It does not mark or remove the
// record, so concurrent callers may all observe it as unredeemed; the
// single-redemption guarantee comes from the check-and-set in
// PutAccessToken and MarkAuthCodeRedeemed.
func (s *Store) TakeAuthCode(_ context.Context, code string) (*store.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp, nil
}

// MarkAuthCodeRedeemed atomically marks code redeemed with accessToken,
// unless it is already redeemed.
func (s *Store) MarkAuthCodeRedeemed(_ context.Context, code, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return store.ErrNotFound
	}
	if c.RedeemedAccessToken != "" {
		return store.ErrAlreadyRedeemed
	}
	c.RedeemedAccessToken = accessToken
	return nil
}

// DeleteAuthCode removes an AuthCode.
func (s *Store) DeleteAuthCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, code)
	return nil
}
