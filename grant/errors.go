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

import "errors"

// ErrorKind is the RFC 6749 error taxonomy emitted on the wire. No other
// values are ever produced by the grant engine.
type ErrorKind string

const (
	// ErrKindNone means the operation succeeded.
	ErrKindNone ErrorKind = ""

	// ErrKindInvalidRequest is returned for a malformed bearer header.
	ErrKindInvalidRequest ErrorKind = "invalid_request"

	// ErrKindInvalidScope is returned when a requested scope is absent
	// from the client's scope map.
	ErrKindInvalidScope ErrorKind = "invalid_scope"

	// ErrKindAccessDenied is returned when a requested scope is present
	// but disabled for the client.
	ErrKindAccessDenied ErrorKind = "access_denied"

	// ErrKindUnauthorizedClient is returned when the client id is unknown.
	ErrKindUnauthorizedClient ErrorKind = "unauthorized_client"

	// ErrKindInvalidGrant collapses every failure of code/token
	// verification (absence, expiry, bad secret, bad redirect, replay,
	// scope mismatch, malformed signed token) into a single kind,
	// deliberately, to avoid distinguishing oracles.
	ErrKindInvalidGrant ErrorKind = "invalid_grant"
)

// ProtocolError is the structured result returned for every protocol-level
// failure. Construction-time configuration errors are plain errors, never
// a ProtocolError.
type ProtocolError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protoErr(kind ErrorKind, err error) *ProtocolError {
	return &ProtocolError{Kind: kind, Err: err}
}

// AsProtocolError extracts the ErrorKind from err, if any.
func AsProtocolError(err error) (ErrorKind, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return ErrKindNone, false
}
