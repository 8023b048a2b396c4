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

// Package store is the relational store (§3): a thin layer of hand-written
// SQL over database/sql with the jackc/pgx/v4 driver, one Model per entity
// group. Every Model prepares its statements once and exposes typed
// methods; callers supply the *sql.Tx so a whole activity's side effects
// commit or roll back together (§5 atomicity).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/upub-fed/core/internal/apperr"
)

// fieldsJSON marshals an actor's profile fields map to JSONB; a nil/empty
// map is stored as NULL rather than "{}" so GetByAPID round-trips it back
// to a nil map.
func fieldsJSON(fields map[string]string) []byte {
	if len(fields) == 0 {
		return nil
	}
	b, _ := json.Marshal(fields)
	return b
}

func unmarshalFields(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// Model mirrors the teacher's models.Model: a type that owns a set of
// prepared statements and the DDL to create its table.
type Model interface {
	Prepare(db *sql.DB) error
	CreateTable(tx *sql.Tx) error
	Close()
}

type stmtPair struct {
	stmt   **sql.Stmt
	sqlStr string
}

type stmtPairs []stmtPair

func prepareStmtPairs(db *sql.DB, pairs stmtPairs) error {
	for _, p := range pairs {
		stmt, err := db.Prepare(p.sqlStr)
		if err != nil {
			return fmt.Errorf("preparing statement %q: %w", p.sqlStr, err)
		}
		*p.stmt = stmt
	}
	return nil
}

// Store bundles every Model plus the underlying connection pool.
type Store struct {
	DB *sql.DB

	Instances     *Instances
	Actors        *Actors
	Objects       *Objects
	Activities    *Activities
	Addressing    *Addressing
	Relations     *Relations
	Likes         *Likes
	Announces     *Announces
	Attachments   *Attachments
	Mentions      *Mentions
	Hashtags      *Hashtags
	Credentials   *Credentials
	Sessions      *Sessions
	UserConfig    *UserConfigs
	Jobs          *Jobs
	Notifications *Notifications
}

// Open connects to Postgres via pgx and bounds the pool per §6 datasource
// config.
func Open(connString string, maxConns, minConns int) (*Store, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	return &Store{
		DB:            db,
		Instances:     &Instances{},
		Actors:        &Actors{},
		Objects:       &Objects{},
		Activities:    &Activities{},
		Addressing:    &Addressing{},
		Relations:     &Relations{},
		Likes:         &Likes{},
		Announces:     &Announces{},
		Attachments:   &Attachments{},
		Mentions:      &Mentions{},
		Hashtags:      &Hashtags{},
		Credentials:   &Credentials{},
		Sessions:      &Sessions{},
		UserConfig:    &UserConfigs{},
		Jobs:          &Jobs{},
		Notifications: &Notifications{},
	}, nil
}

func (s *Store) models() []Model {
	return []Model{
		s.Instances, s.Actors, s.Objects, s.Activities, s.Addressing,
		s.Relations, s.Likes, s.Announces, s.Attachments, s.Mentions,
		s.Hashtags, s.Credentials, s.Sessions, s.UserConfig, s.Jobs,
		s.Notifications,
	}
}

// Migrate creates every table (idempotently, via CREATE TABLE IF NOT
// EXISTS) and prepares every statement. Schema evolution beyond this initial
// shape is a separate migration tool's job (§1 out of scope).
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Databasef(err)
	}
	for _, m := range s.models() {
		if err := m.CreateTable(tx); err != nil {
			tx.Rollback()
			return apperr.Databasef(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Databasef(err)
	}
	for _, m := range s.models() {
		if err := m.Prepare(s.DB); err != nil {
			return apperr.Databasef(err)
		}
	}
	return nil
}

// Close releases every prepared statement and the pool.
func (s *Store) Close() {
	for _, m := range s.models() {
		m.Close()
	}
	s.DB.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error — the unit every Processor branch runs in (§5).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Databasef(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Databasef(err)
	}
	return nil
}

// ErrNoRows is returned by single-row lookups that found nothing; callers
// translate it to apperr.Incomplete where the spec calls for that.
var ErrNoRows = sql.ErrNoRows
