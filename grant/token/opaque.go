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

package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// OpaqueCodec produces random high-entropy token strings. The codec never
// stores anything itself; the descriptor contents live only in a Store.
type OpaqueCodec struct{}

// NewOpaque constructs an OpaqueCodec.
func NewOpaque() *OpaqueCodec { return &OpaqueCodec{} }

// Encode concatenates the current seconds, current microseconds, a
// uniform random 64-bit value, and a 30-octet cryptographically random
// string, then base64-encodes the result. No information about d is
// recoverable from the returned string.
func (OpaqueCodec) Encode(d Descriptor) (string, error) {
	now := time.Now()

	var rand64 [8]byte
	if _, err := rand.Read(rand64[:]); err != nil {
		return "", fmt.Errorf("token: failed to generate random bits: %w", err)
	}

	randBytes := make([]byte, 30)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("token: failed to generate random octets: %w", err)
	}

	raw := fmt.Sprintf("%d.%d.%s.%s",
		now.Unix(),
		now.Nanosecond()/1000,
		strconv.FormatUint(beUint64(rand64), 36),
		base64.RawURLEncoding.EncodeToString(randBytes),
	)

	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// Decode always fails: opaque tokens are meaningless without a Store
// lookup.
func (OpaqueCodec) Decode(string) (Descriptor, error) {
	return Descriptor{}, ErrOpaqueToken
}

func beUint64(b [8]byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
