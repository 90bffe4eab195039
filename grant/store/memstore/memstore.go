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

// Package memstore is the default in-memory store.Store, guarded by a
// single mutex so every mutating operation is atomic with respect to
// every other, including across the AuthCode/AccessToken/RefreshToken
// maps (required by PutAccessToken's cross-entity eviction+insert).
package memstore

import (
	"sync"

	"github.com/opentrusty/oauth2grant/grant/store"
)

// Store is the process-local default persistence layer. Unlike the
// source's mutable module-level dictionaries, a Store value is owned
// entirely by the Grant Engine instance that constructed it: no
// process-wide statics.
type Store struct {
	mu      sync.Mutex
	codes   map[string]*store.AuthCode
	access  map[string]*store.AccessToken
	refresh map[string]*store.RefreshToken
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		codes:   make(map[string]*store.AuthCode),
		access:  make(map[string]*store.AccessToken),
		refresh: make(map[string]*store.RefreshToken),
	}
}

var _ store.Store = (*Store)(nil)
