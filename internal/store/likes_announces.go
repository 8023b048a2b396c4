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

	"github.com/upub-fed/core/internal/model"
)

var _ Model = &Likes{}

// Likes is the Model for UNIQUE(actor, object) Like rows.
type Likes struct {
	insert              *sql.Stmt
	getByActorObject    *sql.Stmt
	deleteByActorObject *sql.Stmt
}

func (l *Likes) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&l.insert, `INSERT INTO likes (actor, object, activity, content, published)
			VALUES ($1,$2,$3,$4,now()) RETURNING internal`},
		{&l.getByActorObject, `SELECT internal, actor, object, activity, content, published FROM likes
			WHERE actor = $1 AND object = $2`},
		{&l.deleteByActorObject, `DELETE FROM likes WHERE actor = $1 AND object = $2`},
	})
}

func (l *Likes) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS likes (
		internal  BIGSERIAL PRIMARY KEY,
		actor     BIGINT NOT NULL REFERENCES actors(internal),
		object    BIGINT NOT NULL REFERENCES objects(internal),
		activity  BIGINT NOT NULL REFERENCES activities(internal),
		content   TEXT,
		published TIMESTAMPTZ NOT NULL,
		UNIQUE(actor, object)
	)`)
	return err
}

func (l *Likes) Close() {
	closeAll(l.insert, l.getByActorObject, l.deleteByActorObject)
}

// Insert records a Like, enforcing UNIQUE(actor, object) at the schema
// level (§4.f: duplicate detection is the caller's job via GetByActorObject
// first, this is the backstop).
func (l *Likes) Insert(ctx context.Context, tx *sql.Tx, like *model.Like) (int64, error) {
	var internal int64
	err := tx.Stmt(l.insert).QueryRowContext(ctx, like.Actor, like.Object, like.Activity, like.Content).Scan(&internal)
	return internal, err
}

// GetByActorObject looks up an existing Like, used to detect
// AlreadyProcessed (§4.f Like, §8 idempotence).
func (l *Likes) GetByActorObject(ctx context.Context, tx *sql.Tx, actor, object int64) (*model.Like, error) {
	var like model.Like
	err := tx.Stmt(l.getByActorObject).QueryRowContext(ctx, actor, object).
		Scan(&like.Internal, &like.Actor, &like.Object, &like.Activity, &like.Content, &like.Published)
	if err != nil {
		return nil, err
	}
	return &like, nil
}

// DeleteByActorObject removes a Like (§4.f Undo(Like)).
func (l *Likes) DeleteByActorObject(ctx context.Context, tx *sql.Tx, actor, object int64) error {
	_, err := tx.Stmt(l.deleteByActorObject).ExecContext(ctx, actor, object)
	return err
}

var _ Model = &Announces{}

// Announces is the Model for shares of an Object by an Actor.
type Announces struct {
	insert           *sql.Stmt
	getByActorObject *sql.Stmt
}

func (a *Announces) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&a.insert, `INSERT INTO announces (actor, object, activity, published)
			VALUES ($1,$2,$3,now()) RETURNING internal`},
		{&a.getByActorObject, `SELECT internal, actor, object, activity, published FROM announces
			WHERE actor = $1 AND object = $2`},
	})
}

func (a *Announces) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS announces (
		internal  BIGSERIAL PRIMARY KEY,
		actor     BIGINT NOT NULL REFERENCES actors(internal),
		object    BIGINT NOT NULL REFERENCES objects(internal),
		activity  BIGINT NOT NULL REFERENCES activities(internal),
		published TIMESTAMPTZ NOT NULL,
		UNIQUE(actor, object)
	)`)
	return err
}

func (a *Announces) Close() { closeAll(a.insert, a.getByActorObject) }

// Insert records an Announce (§4.f Announce, for Person announcers only).
func (a *Announces) Insert(ctx context.Context, tx *sql.Tx, an *model.Announce) (int64, error) {
	var internal int64
	err := tx.Stmt(a.insert).QueryRowContext(ctx, an.Actor, an.Object, an.Activity).Scan(&internal)
	return internal, err
}

// GetByActorObject looks up an existing Announce.
func (a *Announces) GetByActorObject(ctx context.Context, tx *sql.Tx, actor, object int64) (*model.Announce, error) {
	var an model.Announce
	err := tx.Stmt(a.getByActorObject).QueryRowContext(ctx, actor, object).
		Scan(&an.Internal, &an.Actor, &an.Object, &an.Activity, &an.Published)
	if err != nil {
		return nil, err
	}
	return &an, nil
}
