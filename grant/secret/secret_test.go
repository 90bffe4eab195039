// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestHashAndVerify(t *testing.T) {
	plain := "boo"
	hashed, err := Hash(plain)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify(plain, hashed) {
		t.Fatalf("expected correct secret to verify")
	}
	if Verify("wrong", hashed) {
		t.Fatalf("expected wrong secret to fail verification")
	}
}

func TestHashIsSaltedPerCall(t *testing.T) {
	a, _ := Hash("boo")
	b, _ := Hash("boo")
	if a == b {
		t.Fatalf("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if Verify("boo", "not-a-valid-hash") {
		t.Fatalf("expected malformed hash to fail verification")
	}
}

func TestHashHMACRoundTrip(t *testing.T) {
	h := HashHMAC("server-key", "boo")
	if !VerifyHMAC("server-key", "boo", h) {
		t.Fatalf("expected matching hmac secret to verify")
	}
	if VerifyHMAC("server-key", "wrong", h) {
		t.Fatalf("expected wrong secret to fail hmac verification")
	}
	if VerifyHMAC("other-key", "boo", h) {
		t.Fatalf("expected wrong key to fail hmac verification")
	}
}

func TestGenerateProducesUniqueSecrets(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()
	if a == b {
		t.Fatalf("expected distinct secrets")
	}
}

func TestArgon2HasherRoundTrip(t *testing.T) {
	h := NewArgon2Hasher(64*1024, 1, 1, 16, 32)
	encoded, err := h.Hash("boo")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Verify("boo", encoded) {
		t.Fatalf("expected correct secret to verify")
	}
	if h.Verify("wrong", encoded) {
		t.Fatalf("expected wrong secret to fail verification")
	}
}

func TestArgon2HasherRejectsMalformedHash(t *testing.T) {
	h := NewArgon2Hasher(64*1024, 1, 1, 16, 32)
	if h.Verify("boo", "not-a-valid-hash") {
		t.Fatalf("expected malformed hash to fail verification")
	}
}

func TestDefaultSatisfiesHasher(t *testing.T) {
	var _ Hasher = Default{}
	var _ Hasher = (*Argon2Hasher)(nil)
}
