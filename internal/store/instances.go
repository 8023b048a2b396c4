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

var _ Model = &Instances{}

// Instances is the Model for one row per remote (or local) server.
type Instances struct {
	insert         *sql.Stmt
	getByDomain    *sql.Stmt
	getByInternal  *sql.Stmt
	updateSoftware *sql.Stmt
	markDownSince  *sql.Stmt
}

func (i *Instances) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&i.insert, `INSERT INTO instances (domain, name, software, version, icon, published, updated)
			VALUES ($1, $2, $3, $4, $5, now(), now()) RETURNING internal`},
		{&i.getByDomain, `SELECT internal, domain, name, software, version, icon, down_since, users, posts, published, updated
			FROM instances WHERE domain = $1`},
		{&i.getByInternal, `SELECT internal, domain, name, software, version, icon, down_since, users, posts, published, updated
			FROM instances WHERE internal = $1`},
		{&i.updateSoftware, `UPDATE instances SET name = $2, software = $3, version = $4, users = $5, posts = $6, updated = now()
			WHERE internal = $1`},
		{&i.markDownSince, `UPDATE instances SET down_since = $2, updated = now() WHERE internal = $1`},
	})
}

func (i *Instances) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS instances (
		internal   BIGSERIAL PRIMARY KEY,
		domain     TEXT NOT NULL UNIQUE,
		name       TEXT,
		software   TEXT,
		version    TEXT,
		icon       TEXT,
		down_since TIMESTAMPTZ,
		users      INTEGER,
		posts      INTEGER,
		published  TIMESTAMPTZ NOT NULL,
		updated    TIMESTAMPTZ NOT NULL
	)`)
	return err
}

func (i *Instances) Close() {
	closeAll(i.insert, i.getByDomain, i.getByInternal, i.updateSoftware, i.markDownSince)
}

// Insert materializes a shell Instance row for a newly-seen domain.
func (i *Instances) Insert(ctx context.Context, tx *sql.Tx, in *model.Instance) (int64, error) {
	var internal int64
	err := tx.Stmt(i.insert).QueryRowContext(ctx, in.Domain, in.Name, in.Software, in.Version, in.Icon).Scan(&internal)
	return internal, err
}

// GetByDomain looks up an Instance by its domain name.
func (i *Instances) GetByDomain(ctx context.Context, tx *sql.Tx, domain string) (*model.Instance, error) {
	return scanInstance(tx.Stmt(i.getByDomain).QueryRowContext(ctx, domain))
}

// GetByInternal looks up an Instance by its internal id.
func (i *Instances) GetByInternal(ctx context.Context, tx *sql.Tx, internal int64) (*model.Instance, error) {
	return scanInstance(tx.Stmt(i.getByInternal).QueryRowContext(ctx, internal))
}

// UpdateSoftware records NodeInfo-derived metadata (§4.c fetch_domain).
func (i *Instances) UpdateSoftware(ctx context.Context, tx *sql.Tx, internal int64, name, software, version *string, users, posts *int) error {
	_, err := tx.Stmt(i.updateSoftware).ExecContext(ctx, internal, name, software, version, users, posts)
	return err
}

// MarkDownSince flags an instance as unreachable starting at t.
func (i *Instances) MarkDownSince(ctx context.Context, tx *sql.Tx, internal int64, t sql.NullTime) error {
	_, err := tx.Stmt(i.markDownSince).ExecContext(ctx, internal, t)
	return err
}

func scanInstance(row *sql.Row) (*model.Instance, error) {
	var in model.Instance
	err := row.Scan(&in.Internal, &in.Domain, &in.Name, &in.Software, &in.Version, &in.Icon,
		&in.DownSince, &in.Users, &in.Posts, &in.Published, &in.Updated)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func closeAll(stmts ...*sql.Stmt) {
	for _, s := range stmts {
		if s != nil {
			s.Close()
		}
	}
}
