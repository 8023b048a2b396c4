// upub-fed/core is an ActivityPub federation engine.
// Copyright (C) 2026 The upub-fed/core authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/upub-fed/core/internal/model"
)

var _ Model = &Credentials{}

// Credentials is the Model for local login/password pairs (local only).
type Credentials struct {
	insert      *sql.Stmt
	getByLogin  *sql.Stmt
	getByActor  *sql.Stmt
	setActive   *sql.Stmt
}

func (c *Credentials) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&c.insert, `INSERT INTO credentials (actor, login, pass_hash, salt, active)
			VALUES ($1,$2,$3,$4,$5) RETURNING internal`},
		{&c.getByLogin, `SELECT internal, actor, login, pass_hash, salt, active FROM credentials WHERE login = $1`},
		{&c.getByActor, `SELECT internal, actor, login, pass_hash, salt, active FROM credentials WHERE actor = $1`},
		{&c.setActive, `UPDATE credentials SET active = $2 WHERE internal = $1`},
	})
}

func (c *Credentials) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS credentials (
		internal  BIGSERIAL PRIMARY KEY,
		actor     BIGINT NOT NULL UNIQUE REFERENCES actors(internal),
		login     TEXT NOT NULL UNIQUE,
		pass_hash BYTEA NOT NULL,
		salt      BYTEA NOT NULL,
		active    BOOLEAN NOT NULL DEFAULT true
	)`)
	return err
}

func (c *Credentials) Close() { closeAll(c.insert, c.getByLogin, c.getByActor, c.setActive) }

// Insert creates a local login.
func (c *Credentials) Insert(ctx context.Context, tx *sql.Tx, cr *model.Credential) (int64, error) {
	var internal int64
	err := tx.Stmt(c.insert).QueryRowContext(ctx, cr.Actor, cr.Login, cr.PassHash, cr.Salt, cr.Active).Scan(&internal)
	return internal, err
}

// GetByLogin looks up a Credential by login name, for password auth.
func (c *Credentials) GetByLogin(ctx context.Context, tx *sql.Tx, login string) (*model.Credential, error) {
	return scanCredential(tx.Stmt(c.getByLogin).QueryRowContext(ctx, login))
}

// GetByActor looks up a Credential by the owning actor's internal id.
func (c *Credentials) GetByActor(ctx context.Context, tx *sql.Tx, actor int64) (*model.Credential, error) {
	return scanCredential(tx.Stmt(c.getByActor).QueryRowContext(ctx, actor))
}

// SetActive toggles whether this login may authenticate (e.g. suspended).
func (c *Credentials) SetActive(ctx context.Context, tx *sql.Tx, internal int64, active bool) error {
	_, err := tx.Stmt(c.setActive).ExecContext(ctx, internal, active)
	return err
}

func scanCredential(row *sql.Row) (*model.Credential, error) {
	var cr model.Credential
	if err := row.Scan(&cr.Internal, &cr.Actor, &cr.Login, &cr.PassHash, &cr.Salt, &cr.Active); err != nil {
		return nil, err
	}
	return &cr, nil
}

var _ Model = &Sessions{}

// Sessions is the Model for opaque bearer tokens mapped to an actor.
type Sessions struct {
	insert        *sql.Stmt
	getBySecret   *sql.Stmt
	deleteBySecret *sql.Stmt
	deleteExpired *sql.Stmt
}

func (s *Sessions) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&s.insert, `INSERT INTO sessions (actor, secret, expires) VALUES ($1,$2,$3) RETURNING internal`},
		{&s.getBySecret, `SELECT internal, actor, secret, expires FROM sessions WHERE secret = $1`},
		{&s.deleteBySecret, `DELETE FROM sessions WHERE secret = $1`},
		{&s.deleteExpired, `DELETE FROM sessions WHERE expires < now()`},
	})
}

func (s *Sessions) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		internal BIGSERIAL PRIMARY KEY,
		actor    BIGINT NOT NULL REFERENCES actors(internal),
		secret   TEXT NOT NULL UNIQUE,
		expires  TIMESTAMPTZ NOT NULL
	)`)
	return err
}

func (s *Sessions) Close() { closeAll(s.insert, s.getBySecret, s.deleteBySecret, s.deleteExpired) }

// Insert mints a new session for actor, valid until expires.
func (s *Sessions) Insert(ctx context.Context, tx *sql.Tx, actor int64, secret string, expires time.Time) (int64, error) {
	var internal int64
	err := tx.Stmt(s.insert).QueryRowContext(ctx, actor, secret, expires).Scan(&internal)
	return internal, err
}

// GetBySecret looks up a Session by its bearer token.
func (s *Sessions) GetBySecret(ctx context.Context, tx *sql.Tx, secret string) (*model.Session, error) {
	var sess model.Session
	err := tx.Stmt(s.getBySecret).QueryRowContext(ctx, secret).Scan(&sess.Internal, &sess.Actor, &sess.Secret, &sess.Expires)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteBySecret logs a session out.
func (s *Sessions) DeleteBySecret(ctx context.Context, tx *sql.Tx, secret string) error {
	_, err := tx.Stmt(s.deleteBySecret).ExecContext(ctx, secret)
	return err
}

// DeleteExpired garbage-collects sessions past their expiry.
func (s *Sessions) DeleteExpired(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.Stmt(s.deleteExpired).ExecContext(ctx)
	return err
}

var _ Model = &UserConfigs{}

// UserConfigs is the Model for per-local-actor preferences.
type UserConfigs struct {
	upsert    *sql.Stmt
	getByKey  *sql.Stmt
}

func (u *UserConfigs) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&u.upsert, `INSERT INTO user_config (actor, key, value) VALUES ($1,$2,$3)
			ON CONFLICT (actor, key) DO UPDATE SET value = EXCLUDED.value`},
		{&u.getByKey, `SELECT internal, actor, key, value FROM user_config WHERE actor = $1 AND key = $2`},
	})
}

func (u *UserConfigs) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS user_config (
		internal BIGSERIAL PRIMARY KEY,
		actor    BIGINT NOT NULL REFERENCES actors(internal),
		key      TEXT NOT NULL,
		value    TEXT NOT NULL,
		UNIQUE(actor, key)
	)`)
	return err
}

func (u *UserConfigs) Close() { closeAll(u.upsert, u.getByKey) }

// Set upserts one config value for actor.
func (u *UserConfigs) Set(ctx context.Context, tx *sql.Tx, actor int64, key, value string) error {
	_, err := tx.Stmt(u.upsert).ExecContext(ctx, actor, key, value)
	return err
}

// Get reads one config value for actor.
func (u *UserConfigs) Get(ctx context.Context, tx *sql.Tx, actor int64, key string) (*model.UserConfig, error) {
	var uc model.UserConfig
	err := tx.Stmt(u.getByKey).QueryRowContext(ctx, actor, key).Scan(&uc.Internal, &uc.Actor, &uc.Key, &uc.Value)
	if err != nil {
		return nil, err
	}
	return &uc, nil
}
