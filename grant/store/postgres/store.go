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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opentrusty/oauth2grant/grant/store"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation (23505).
const uniqueViolation = "23505"

// Store is a store.Store backed by PostgreSQL via pgx. The atomicity
// invariant the store package requires of MarkAuthCodeRedeemed and
// PutAccessToken is implemented with a conditional UPDATE inside an
// explicit transaction, the SQL analogue of the in-memory store's
// mutex-guarded compare-and-set.
type Store struct {
	db *DB
}

// New wraps db as a store.Store.
func New(db *DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func joinScope(scopes []string) string { return strings.Join(scopes, " ") }

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

// PutAuthCode implements store.Store.
func (s *Store) PutAuthCode(ctx context.Context, c *store.AuthCode) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO oauth2_auth_codes (code, client_id, user_id, redirect_uri, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.Code, c.ClientID, c.UserID, c.RedirectURI, joinScope(c.Scopes), c.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: inserting authorization code: %w", err)
	}
	return nil
}

// TakeAuthCode implements store.Store.
func (s *Store) TakeAuthCode(ctx context.Context, code string) (*store.AuthCode, error) {
	return s.getAuthCode(ctx, s.db.pool, code)
}

func (s *Store) getAuthCode(ctx context.Context, q queryer, code string) (*store.AuthCode, error) {
	var c store.AuthCode
	var scope string
	var redeemed *string
	err := q.QueryRow(ctx, `
		SELECT code, client_id, user_id, redirect_uri, scope, expires_at, redeemed_access_token
		FROM oauth2_auth_codes WHERE code = $1
	`, code).Scan(&c.Code, &c.ClientID, &c.UserID, &c.RedirectURI, &scope, &c.ExpiresAt, &redeemed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: looking up authorization code: %w", err)
	}
	c.Scopes = splitScope(scope)
	if redeemed != nil {
		c.RedeemedAccessToken = *redeemed
	}
	return &c, nil
}

// MarkAuthCodeRedeemed implements store.Store.
func (s *Store) MarkAuthCodeRedeemed(ctx context.Context, code, accessToken string) error {
	tag, err := s.db.pool.Exec(ctx, `
		UPDATE oauth2_auth_codes SET redeemed_access_token = $1
		WHERE code = $2 AND redeemed_access_token IS NULL
	`, accessToken, code)
	if err != nil {
		return fmt.Errorf("postgres: marking authorization code redeemed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Zero rows: either the code does not exist, or it is already
	// redeemed. Distinguish the two without reintroducing a race, since
	// the CAS above already ran.
	if _, err := s.getAuthCode(ctx, s.db.pool, code); err != nil {
		return err
	}
	return store.ErrAlreadyRedeemed
}

// DeleteAuthCode implements store.Store.
func (s *Store) DeleteAuthCode(ctx context.Context, code string) error {
	_, err := s.db.pool.Exec(ctx, `DELETE FROM oauth2_auth_codes WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("postgres: deleting authorization code: %w", err)
	}
	return nil
}

// PutAccessToken implements store.Store. When in.AuthCode is set, the
// redemption check-and-set, the eviction of any prior refresh/access
// pair for (ClientID, UserID), and the insertion of the new pair all run
// inside one transaction: a losing concurrent call either fails the CAS
// (no rows touched beyond the failed UPDATE) or never reaches the
// transaction's commit.
func (s *Store) PutAccessToken(ctx context.Context, in store.PutAccessTokenInput) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if in.AuthCode != "" {
		tag, err := tx.Exec(ctx, `
			UPDATE oauth2_auth_codes SET redeemed_access_token = $1
			WHERE code = $2 AND redeemed_access_token IS NULL
		`, in.AccessToken.Token, in.AuthCode)
		if err != nil {
			return fmt.Errorf("postgres: marking authorization code redeemed: %w", err)
		}
		if tag.RowsAffected() != 1 {
			if _, err := s.getAuthCode(ctx, tx, in.AuthCode); err != nil {
				return err
			}
			return store.ErrAlreadyRedeemed
		}
	}

	var priorAccessToken *string
	err = tx.QueryRow(ctx, `
		SELECT access_token FROM oauth2_refresh_tokens WHERE client_id = $1 AND user_id = $2
	`, in.AccessToken.ClientID, in.AccessToken.UserID).Scan(&priorAccessToken)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: looking up prior refresh token: %w", err)
	}
	if priorAccessToken != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM oauth2_access_tokens WHERE token = $1`, *priorAccessToken); err != nil {
			return fmt.Errorf("postgres: evicting prior access token: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM oauth2_refresh_tokens WHERE client_id = $1 AND user_id = $2
	`, in.AccessToken.ClientID, in.AccessToken.UserID); err != nil {
		return fmt.Errorf("postgres: evicting prior refresh token: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO oauth2_access_tokens (token, client_id, user_id, scope, expires_at, refresh_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, in.AccessToken.Token, in.AccessToken.ClientID, in.AccessToken.UserID,
		joinScope(in.AccessToken.Scopes), in.AccessToken.ExpiresAt, nullIfEmpty(in.AccessToken.RefreshToken)); err != nil {
		return fmt.Errorf("postgres: inserting access token: %w", err)
	}

	if in.RefreshToken != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO oauth2_refresh_tokens (token, client_id, user_id, access_token, auth_code, scope)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, in.RefreshToken.Token, in.RefreshToken.ClientID, in.RefreshToken.UserID,
			in.RefreshToken.AccessToken, in.RefreshToken.AuthCode, joinScope(in.RefreshToken.Scopes)); err != nil {
			return fmt.Errorf("postgres: inserting refresh token: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: committing access token transaction: %w", err)
	}
	return nil
}

// GetAccessToken implements store.Store.
func (s *Store) GetAccessToken(ctx context.Context, tok string) (*store.AccessToken, error) {
	var at store.AccessToken
	var scope string
	var refresh *string
	err := s.db.pool.QueryRow(ctx, `
		SELECT token, client_id, user_id, scope, expires_at, refresh_token
		FROM oauth2_access_tokens WHERE token = $1
	`, tok).Scan(&at.Token, &at.ClientID, &at.UserID, &scope, &at.ExpiresAt, &refresh)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: looking up access token: %w", err)
	}
	at.Scopes = splitScope(scope)
	if refresh != nil {
		at.RefreshToken = *refresh
	}
	return &at, nil
}

// GetRefreshToken implements store.Store.
func (s *Store) GetRefreshToken(ctx context.Context, tok string) (*store.RefreshToken, error) {
	var rt store.RefreshToken
	var scope string
	err := s.db.pool.QueryRow(ctx, `
		SELECT token, client_id, user_id, access_token, auth_code, scope
		FROM oauth2_refresh_tokens WHERE token = $1
	`, tok).Scan(&rt.Token, &rt.ClientID, &rt.UserID, &rt.AccessToken, &rt.AuthCode, &scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: looking up refresh token: %w", err)
	}
	rt.Scopes = splitScope(scope)
	return &rt, nil
}

// DeleteAccessToken implements store.Store.
func (s *Store) DeleteAccessToken(ctx context.Context, tok string) error {
	_, err := s.db.pool.Exec(ctx, `DELETE FROM oauth2_access_tokens WHERE token = $1`, tok)
	if err != nil {
		return fmt.Errorf("postgres: deleting access token: %w", err)
	}
	return nil
}

// DeleteRefreshToken implements store.Store.
func (s *Store) DeleteRefreshToken(ctx context.Context, tok string) error {
	_, err := s.db.pool.Exec(ctx, `DELETE FROM oauth2_refresh_tokens WHERE token = $1`, tok)
	if err != nil {
		return fmt.Errorf("postgres: deleting refresh token: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// getAuthCode run either as a standalone read or inside a transaction.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
