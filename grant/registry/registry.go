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

// Package registry looks up OAuth2 client records by client identifier.
package registry

import (
	"context"
	"errors"
)

// ErrClientNotFound is returned by Lookup when no client matches.
var ErrClientNotFound = errors.New("registry: client not found")

// Client is an OAuth2 client application.
//
// Purpose: Immutable record consulted by the grant engine during client
// verification and token issuance.
// Domain: OAuth2
// Invariants: ClientID is unique. Scopes maps every scope name the client
// either may request (true) or is known but forbidden from requesting
// (false); a scope absent from the map is unknown to this client entirely.
type Client struct {
	ClientID         string
	ClientSecretHash string
	Scopes           map[string]bool
}

// Registry looks up Client records by client id. The default
// implementation is immutable after construction; a host may substitute a
// hook-backed implementation with an identical contract.
type Registry interface {
	Lookup(ctx context.Context, clientID string) (*Client, error)
}

// Static is the default in-memory Registry, built once at construction
// time and never mutated afterward (the Client Registry is immutable for
// the lifetime of a Grant Engine instance).
type Static struct {
	clients map[string]*Client
}

// NewStatic builds a Static registry from clients, keyed by ClientID.
func NewStatic(clients map[string]*Client) *Static {
	cp := make(map[string]*Client, len(clients))
	for id, c := range clients {
		cp[id] = c
	}
	return &Static{clients: cp}
}

// Lookup implements Registry.
func (s *Static) Lookup(_ context.Context, clientID string) (*Client, error) {
	c, ok := s.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return c, nil
}
