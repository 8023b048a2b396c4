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

var _ Model = &Attachments{}

// Attachments is the Model for media/links attached to an Object.
type Attachments struct {
	insert      *sql.Stmt
	listByObject *sql.Stmt
}

func (a *Attachments) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&a.insert, `INSERT INTO attachments (object, url, document_type, name, media_type, published)
			VALUES ($1,$2,$3,$4,$5,now()) RETURNING internal`},
		{&a.listByObject, `SELECT internal, object, url, document_type, name, media_type, published
			FROM attachments WHERE object = $1 ORDER BY internal ASC`},
	})
}

func (a *Attachments) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS attachments (
		internal      BIGSERIAL PRIMARY KEY,
		object        BIGINT NOT NULL REFERENCES objects(internal) ON DELETE CASCADE,
		url           TEXT NOT NULL,
		document_type TEXT NOT NULL,
		name          TEXT,
		media_type    TEXT NOT NULL,
		published     TIMESTAMPTZ NOT NULL
	)`)
	return err
}

func (a *Attachments) Close() { closeAll(a.insert, a.listByObject) }

// Insert records one Attachment row (§4.d attachment walk).
func (a *Attachments) Insert(ctx context.Context, tx *sql.Tx, at *model.Attachment) (int64, error) {
	var internal int64
	err := tx.Stmt(a.insert).QueryRowContext(ctx, at.Object, at.URL, at.DocumentType, at.Name, at.MediaType).Scan(&internal)
	return internal, err
}

// ListByObject returns every attachment belonging to an object, in
// insertion order.
func (a *Attachments) ListByObject(ctx context.Context, tx *sql.Tx, object int64) ([]model.Attachment, error) {
	rows, err := tx.Stmt(a.listByObject).QueryContext(ctx, object)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Attachment
	for rows.Next() {
		var at model.Attachment
		if err := rows.Scan(&at.Internal, &at.Object, &at.URL, &at.DocumentType, &at.Name, &at.MediaType, &at.Published); err != nil {
			return nil, err
		}
		out = append(out, at)
	}
	return out, rows.Err()
}

var _ Model = &Mentions{}

// Mentions is the Model for actor mentions attached to an Object.
type Mentions struct {
	insert       *sql.Stmt
	listByObject *sql.Stmt
}

func (m *Mentions) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&m.insert, `INSERT INTO mentions (object, actor_ap_id, published) VALUES ($1,$2,now()) RETURNING internal`},
		{&m.listByObject, `SELECT internal, object, actor_ap_id, published FROM mentions WHERE object = $1`},
	})
}

func (m *Mentions) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS mentions (
		internal    BIGSERIAL PRIMARY KEY,
		object      BIGINT NOT NULL REFERENCES objects(internal) ON DELETE CASCADE,
		actor_ap_id TEXT NOT NULL,
		published   TIMESTAMPTZ NOT NULL
	)`)
	return err
}

func (m *Mentions) Close() { closeAll(m.insert, m.listByObject) }

// Insert records one Mention as given; it does not resolve actor_ap_id to
// an Actor row (internal/normalize best-effort fetches the mentioned actor
// right after inserting the mention).
func (m *Mentions) Insert(ctx context.Context, tx *sql.Tx, mention *model.Mention) (int64, error) {
	var internal int64
	err := tx.Stmt(m.insert).QueryRowContext(ctx, mention.Object, mention.ActorAPID).Scan(&internal)
	return internal, err
}

// ListByObject returns every mention on an object.
func (m *Mentions) ListByObject(ctx context.Context, tx *sql.Tx, object int64) ([]model.Mention, error) {
	rows, err := tx.Stmt(m.listByObject).QueryContext(ctx, object)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Mention
	for rows.Next() {
		var mn model.Mention
		if err := rows.Scan(&mn.Internal, &mn.Object, &mn.ActorAPID, &mn.Published); err != nil {
			return nil, err
		}
		out = append(out, mn)
	}
	return out, rows.Err()
}

var _ Model = &Hashtags{}

// Hashtags is the Model for tags on an Object.
type Hashtags struct {
	insert       *sql.Stmt
	listByObject *sql.Stmt
}

func (h *Hashtags) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&h.insert, `INSERT INTO hashtags (object, name) VALUES ($1,$2) RETURNING internal`},
		{&h.listByObject, `SELECT internal, object, name FROM hashtags WHERE object = $1`},
	})
}

func (h *Hashtags) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS hashtags (
		internal BIGSERIAL PRIMARY KEY,
		object   BIGINT NOT NULL REFERENCES objects(internal) ON DELETE CASCADE,
		name     TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_hashtags_name ON hashtags (name)`)
	return err
}

func (h *Hashtags) Close() { closeAll(h.insert, h.listByObject) }

// Insert records one Hashtag row.
func (h *Hashtags) Insert(ctx context.Context, tx *sql.Tx, tag *model.Hashtag) (int64, error) {
	var internal int64
	err := tx.Stmt(h.insert).QueryRowContext(ctx, tag.Object, tag.Name).Scan(&internal)
	return internal, err
}

// ListByObject returns every hashtag on an object.
func (h *Hashtags) ListByObject(ctx context.Context, tx *sql.Tx, object int64) ([]model.Hashtag, error) {
	rows, err := tx.Stmt(h.listByObject).QueryContext(ctx, object)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Hashtag
	for rows.Next() {
		var tag model.Hashtag
		if err := rows.Scan(&tag.Internal, &tag.Object, &tag.Name); err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}
