// Copyright 2026 The OpenTrusty Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"testing"
)

func TestStaticLookup(t *testing.T) {
	r := NewStatic(map[string]*Client{
		"TrendyNewService": {
			ClientID: "TrendyNewService",
			Scopes:   map[string]bool{"post_images": true, "annoy_friends": true},
		},
	})

	got, err := r.Lookup(context.Background(), "TrendyNewService")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !got.Scopes["post_images"] {
		t.Fatalf("expected post_images to be granted")
	}

	if _, err := r.Lookup(context.Background(), "unknown"); err != ErrClientNotFound {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestStaticIsImmutableSnapshot(t *testing.T) {
	src := map[string]*Client{"c1": {ClientID: "c1", Scopes: map[string]bool{"a": true}}}
	r := NewStatic(src)

	src["c2"] = &Client{ClientID: "c2"}

	if _, err := r.Lookup(context.Background(), "c2"); err != ErrClientNotFound {
		t.Fatalf("mutating the caller's map after construction must not affect the registry")
	}
}
