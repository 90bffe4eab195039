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

// Package bridge defines the resource-owner hooks through which the host
// indicates user authentication and consent. The core consults them but
// never implements login or consent itself.
package bridge

import "context"

// ResourceOwnerBridge is implemented by the host application. Both hooks
// may be side-effectful (e.g. issuing an HTTP redirect to a login or
// consent page); their boolean return tells the caller whether the
// resource owner step is satisfied. The Grant Engine exposes them as
// pass-through methods (Engine.LoginResourceOwner,
// Engine.ConfirmByResourceOwner) but does not consult them itself —
// Authorize issues a code unconditionally. A host's /authorize handler
// is expected to call both hooks and redirect to its own login or
// consent page on a false return, before ever calling Authorize.
type ResourceOwnerBridge interface {
	// LoginResourceOwner reports whether a user is already authenticated.
	// A false return means the host should initiate a login flow instead
	// of proceeding to Authorize.
	LoginResourceOwner(ctx context.Context) bool

	// ConfirmByResourceOwner reports whether the user has consented to
	// clientID obtaining scopes. A false return means denied or
	// undecided, and the host should render a consent page instead of
	// proceeding to Authorize.
	ConfirmByResourceOwner(ctx context.Context, clientID string, scopes []string) bool
}

// Permissive is the default bridge for the trivial single-process
// development mode: every hook returns true.
type Permissive struct{}

// LoginResourceOwner always returns true.
func (Permissive) LoginResourceOwner(context.Context) bool { return true }

// ConfirmByResourceOwner always returns true.
func (Permissive) ConfirmByResourceOwner(context.Context, string, []string) bool { return true }
