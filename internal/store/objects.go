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

	"github.com/lib/pq"

	"github.com/upub-fed/core/internal/model"
)

var _ Model = &Objects{}

// Objects is the Model for content referenced by activities.
type Objects struct {
	insert            *sql.Stmt
	getByAPID         *sql.Stmt
	getByInternal     *sql.Stmt
	update            *sql.Stmt
	deleteByAPID      *sql.Stmt
	incrementReplies  *sql.Stmt
	incrementLikes    *sql.Stmt
	incrementAnnounce *sql.Stmt
}

const objectColumns = `internal, ap_id, object_type, attributed_to, name, summary, content, sensitive,
	in_reply_to, context, quote, image, url, published, updated, to_list, bto_list, cc_list, bcc_list,
	audience, replies, likes, announces`

func (o *Objects) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&o.insert, `INSERT INTO objects (ap_id, object_type, attributed_to, name, summary, content, sensitive,
				in_reply_to, context, quote, image, url, published, updated,
				to_list, bto_list, cc_list, bcc_list, audience, replies, likes, announces)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now(),$13,$14,$15,$16,$17,$18,$19,$20)
			RETURNING internal`},
		{&o.getByAPID, `SELECT ` + objectColumns + ` FROM objects WHERE ap_id = $1`},
		{&o.getByInternal, `SELECT ` + objectColumns + ` FROM objects WHERE internal = $1`},
		{&o.update, `UPDATE objects SET name = $2, summary = $3, content = $4, sensitive = $5, updated = now()
			WHERE internal = $1`},
		{&o.deleteByAPID, `DELETE FROM objects WHERE ap_id = $1`},
		{&o.incrementReplies, `UPDATE objects SET replies = replies + $2 WHERE internal = $1`},
		{&o.incrementLikes, `UPDATE objects SET likes = likes + $2 WHERE internal = $1`},
		{&o.incrementAnnounce, `UPDATE objects SET announces = announces + $2 WHERE internal = $1`},
	})
}

func (o *Objects) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS objects (
		internal      BIGSERIAL PRIMARY KEY,
		ap_id         TEXT NOT NULL UNIQUE,
		object_type   TEXT NOT NULL,
		attributed_to BIGINT REFERENCES actors(internal),
		name          TEXT,
		summary       TEXT,
		content       TEXT,
		sensitive     BOOLEAN NOT NULL DEFAULT false,
		in_reply_to   BIGINT REFERENCES objects(internal),
		context       TEXT,
		quote         TEXT,
		image         TEXT,
		url           TEXT,
		published     TIMESTAMPTZ NOT NULL,
		updated       TIMESTAMPTZ NOT NULL,
		to_list       TEXT[],
		bto_list      TEXT[],
		cc_list       TEXT[],
		bcc_list      TEXT[],
		audience      TEXT,
		replies       INTEGER NOT NULL DEFAULT 0,
		likes         INTEGER NOT NULL DEFAULT 0,
		announces     INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_objects_in_reply_to ON objects (in_reply_to)`)
	return err
}

func (o *Objects) Close() {
	closeAll(o.insert, o.getByAPID, o.getByInternal, o.update, o.deleteByAPID,
		o.incrementReplies, o.incrementLikes, o.incrementAnnounce)
}

// Insert creates a new Object row, returning its internal id.
func (o *Objects) Insert(ctx context.Context, tx *sql.Tx, obj *model.Object) (int64, error) {
	var internal int64
	err := tx.Stmt(o.insert).QueryRowContext(ctx,
		obj.APID, obj.ObjectType, obj.AttributedTo, obj.Name, obj.Summary, obj.Content, obj.Sensitive,
		obj.InReplyTo, obj.Context, obj.Quote, obj.Image, obj.URL,
		pq.Array(obj.To), pq.Array(obj.BTo), pq.Array(obj.CC), pq.Array(obj.BCC), obj.Audience,
		obj.Replies, obj.Likes, obj.Announces,
	).Scan(&internal)
	return internal, err
}

// GetByAPID looks up an object by its ap_id.
func (o *Objects) GetByAPID(ctx context.Context, tx *sql.Tx, apid string) (*model.Object, error) {
	return scanObject(tx.Stmt(o.getByAPID).QueryRowContext(ctx, apid))
}

// GetByInternal looks up an object by its internal id.
func (o *Objects) GetByInternal(ctx context.Context, tx *sql.Tx, internal int64) (*model.Object, error) {
	return scanObject(tx.Stmt(o.getByInternal).QueryRowContext(ctx, internal))
}

// Update overwrites name/summary/content/sensitive (§4.f Update(Object)).
func (o *Objects) Update(ctx context.Context, tx *sql.Tx, obj *model.Object) error {
	_, err := tx.Stmt(o.update).ExecContext(ctx, obj.Internal, obj.Name, obj.Summary, obj.Content, obj.Sensitive)
	return err
}

// DeleteByAPID removes an object row; FK cascades remove dependent rows.
func (o *Objects) DeleteByAPID(ctx context.Context, tx *sql.Tx, apid string) error {
	_, err := tx.Stmt(o.deleteByAPID).ExecContext(ctx, apid)
	return err
}

// IncrementReplies adjusts replies by delta.
func (o *Objects) IncrementReplies(ctx context.Context, tx *sql.Tx, internal int64, delta int) error {
	_, err := tx.Stmt(o.incrementReplies).ExecContext(ctx, internal, delta)
	return err
}

// IncrementLikes adjusts likes by delta.
func (o *Objects) IncrementLikes(ctx context.Context, tx *sql.Tx, internal int64, delta int) error {
	_, err := tx.Stmt(o.incrementLikes).ExecContext(ctx, internal, delta)
	return err
}

// IncrementAnnounces adjusts announces by delta.
func (o *Objects) IncrementAnnounces(ctx context.Context, tx *sql.Tx, internal int64, delta int) error {
	_, err := tx.Stmt(o.incrementAnnounce).ExecContext(ctx, internal, delta)
	return err
}

func scanObject(row *sql.Row) (*model.Object, error) {
	var obj model.Object
	var to, bto, cc, bcc pq.StringArray
	err := row.Scan(&obj.Internal, &obj.APID, &obj.ObjectType, &obj.AttributedTo, &obj.Name, &obj.Summary,
		&obj.Content, &obj.Sensitive, &obj.InReplyTo, &obj.Context, &obj.Quote, &obj.Image, &obj.URL,
		&obj.Published, &obj.Updated, &to, &bto, &cc, &bcc, &obj.Audience, &obj.Replies, &obj.Likes, &obj.Announces)
	if err != nil {
		return nil, err
	}
	obj.To, obj.BTo, obj.CC, obj.BCC = []string(to), []string(bto), []string(cc), []string(bcc)
	return &obj, nil
}
