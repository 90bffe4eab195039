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

// Command oauth2grant-demo runs the Authorization Code Grant engine
// behind a minimal HTTP front end: /authorize issues a code for the
// resource owner named by the user_id query parameter, /token exchanges it (or a refresh token)
// for an access/refresh token pair, and /resource demonstrates bearer
// verification. It exists to exercise the grant package end to end, not
// as a production-ready authorization server — there is no login page,
// no consent page, and no client management API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/opentrusty/oauth2grant/grant"
	"github.com/opentrusty/oauth2grant/grant/audit"
	"github.com/opentrusty/oauth2grant/grant/registry"
	"github.com/opentrusty/oauth2grant/grant/secret"
	"github.com/opentrusty/oauth2grant/grant/store/postgres"
)

type config struct {
	addr       string
	dsn        string // if set, tokens persist in PostgreSQL instead of memory
	signingKey string // if set, run in Signed token mode instead of Opaque
}

func main() {
	cfg := parseFlags()

	engine, err := buildEngine(cfg)
	if err != nil {
		slog.Error("failed to build grant engine", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, engine)

	slog.Info("oauth2grant-demo listening", "addr", cfg.addr)
	if err := http.ListenAndServe(cfg.addr, mux); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.addr, "addr", ":8080", "listen address")
	flag.StringVar(&cfg.dsn, "postgres-dsn", os.Getenv("OAUTH2GRANT_POSTGRES_DSN"), "PostgreSQL DSN; empty means in-memory storage")
	flag.StringVar(&cfg.signingKey, "signing-key", os.Getenv("OAUTH2GRANT_SIGNING_KEY"), "HMAC key for Signed token mode; empty means Opaque mode")
	flag.Parse()
	return cfg
}

// demoClientSecret is the plaintext secret for the single demo client.
// Never do this in a real deployment; a real registry.Registry is
// backed by a database and secrets are never logged or hardcoded.
const demoClientSecret = "demo-client-secret"

func buildEngine(cfg config) (*grant.Engine, error) {
	hash, err := secret.Hash(demoClientSecret)
	if err != nil {
		return nil, err
	}
	reg := registry.NewStatic(map[string]*registry.Client{
		"demo-client": {
			ClientID:         "demo-client",
			ClientSecretHash: hash,
			Scopes:           map[string]bool{"profile": true, "email": true, "admin": false},
		},
	})

	opts := []grant.Option{
		grant.WithRegistry(reg),
		grant.WithAuthCodeTTL(2 * time.Minute),
		grant.WithAccessTokenTTL(time.Hour),
		grant.WithAuditLogger(audit.NewSlogLogger()),
	}

	if cfg.signingKey != "" {
		opts = append(opts, grant.WithSignedTokens([]byte(cfg.signingKey)))
	}

	if cfg.dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := postgres.Open(ctx, cfg.dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, grant.WithStore(postgres.New(db)))
	}

	return grant.New(opts...)
}

func registerRoutes(mux *http.ServeMux, engine *grant.Engine) {
	mux.HandleFunc("/authorize", handleAuthorize(engine))
	mux.HandleFunc("/token", handleToken(engine))
	mux.HandleFunc("/resource", handleResource(engine))
}

func handleAuthorize(engine *grant.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()

		if !engine.LoginResourceOwner(ctx) || !engine.ConfirmByResourceOwner(ctx, q.Get("client_id"), r.URL.Query()["scope"]) {
			http.Error(w, "login or consent required", http.StatusForbidden)
			return
		}

		code, err := engine.Authorize(ctx, grant.AuthorizeInput{
			ClientID:    q.Get("client_id"),
			UserID:      q.Get("user_id"),
			RedirectURI: q.Get("redirect_uri"),
			Scopes:      r.URL.Query()["scope"],
		})
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"code": code})
	}
}

func handleToken(engine *grant.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}

		switch r.FormValue("grant_type") {
		case "authorization_code":
			xr, err := engine.Exchange(ctx, grant.ExchangeInput{
				ClientID:     r.FormValue("client_id"),
				ClientSecret: r.FormValue("client_secret"),
				Code:         r.FormValue("code"),
				RedirectURI:  r.FormValue("redirect_uri"),
			})
			if err != nil {
				writeProtocolError(w, err)
				return
			}
			pair, err := engine.IssueFromAuthCode(ctx, grant.IssueFromAuthCodeInput{
				ClientID: xr.ClientID,
				UserID:   xr.UserID,
				Scopes:   xr.Scopes,
				Code:     r.FormValue("code"),
			})
			if err != nil {
				writeProtocolError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, tokenResponse(pair, xr.Scopes))

		case "refresh_token":
			pair, err := engine.IssueFromRefresh(ctx, grant.IssueFromRefreshInput{
				RefreshToken: r.FormValue("refresh_token"),
			})
			if err != nil {
				writeProtocolError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, tokenResponse(pair, nil))

		default:
			writeProtocolError(w, &grant.ProtocolError{Kind: grant.ErrKindInvalidRequest, Err: nil})
		}
	}
}

func handleResource(engine *grant.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vr, err := engine.VerifyBearer(r.Context(), r.Header.Get("Authorization"), []string{"profile"}, "")
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"client_id": vr.ClientID, "user_id": vr.UserID, "scopes": vr.Scopes})
	}
}

func tokenResponse(pair *grant.IssueResult, scopes []string) map[string]any {
	resp := map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
	}
	if len(scopes) > 0 {
		resp["scope"] = scopes
	}
	return resp
}

func writeProtocolError(w http.ResponseWriter, err error) {
	kind, ok := grant.AsProtocolError(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status := http.StatusBadRequest
	if kind == grant.ErrKindUnauthorizedClient {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, map[string]string{"error": string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
