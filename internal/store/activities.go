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

var _ Model = &Activities{}

// Activities is the Model for typed actions (append-only: no method deletes
// a row, Undo included).
type Activities struct {
	insert        *sql.Stmt
	getByAPID     *sql.Stmt
	getByInternal *sql.Stmt
	existsByAPID  *sql.Stmt
}

const activityColumns = `internal, ap_id, activity_type, actor, object, target, content, published,
	to_list, bto_list, cc_list, bcc_list`

func (a *Activities) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&a.insert, `INSERT INTO activities (ap_id, activity_type, actor, object, target, content, published,
				to_list, bto_list, cc_list, bcc_list)
			VALUES ($1,$2,$3,$4,$5,$6,now(),$7,$8,$9,$10) RETURNING internal`},
		{&a.getByAPID, `SELECT ` + activityColumns + ` FROM activities WHERE ap_id = $1`},
		{&a.getByInternal, `SELECT ` + activityColumns + ` FROM activities WHERE internal = $1`},
		{&a.existsByAPID, `SELECT EXISTS(SELECT 1 FROM activities WHERE ap_id = $1)`},
	})
}

func (a *Activities) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS activities (
		internal      BIGSERIAL PRIMARY KEY,
		ap_id         TEXT NOT NULL UNIQUE,
		activity_type TEXT NOT NULL,
		actor         BIGINT NOT NULL REFERENCES actors(internal),
		object        TEXT,
		target        TEXT,
		content       TEXT,
		published     TIMESTAMPTZ NOT NULL,
		to_list       TEXT[],
		bto_list      TEXT[],
		cc_list       TEXT[],
		bcc_list      TEXT[]
	)`)
	return err
}

func (a *Activities) Close() {
	closeAll(a.insert, a.getByAPID, a.getByInternal, a.existsByAPID)
}

// Insert records a new Activity row, returning its internal id. ap_id is
// UNIQUE, so a duplicate insert fails the constraint rather than silently
// succeeding — callers must check ExistsByAPID first where idempotence
// matters (§3 invariant, §8 idempotence).
func (a *Activities) Insert(ctx context.Context, tx *sql.Tx, act *model.Activity) (int64, error) {
	var internal int64
	err := tx.Stmt(a.insert).QueryRowContext(ctx,
		act.APID, act.ActivityType, act.Actor, act.Object, act.Target, act.Content,
		pq.Array(act.To), pq.Array(act.BTo), pq.Array(act.CC), pq.Array(act.BCC),
	).Scan(&internal)
	return internal, err
}

// GetByAPID looks up an activity by its ap_id.
func (a *Activities) GetByAPID(ctx context.Context, tx *sql.Tx, apid string) (*model.Activity, error) {
	return scanActivity(tx.Stmt(a.getByAPID).QueryRowContext(ctx, apid))
}

// GetByInternal looks up an activity by its internal id.
func (a *Activities) GetByInternal(ctx context.Context, tx *sql.Tx, internal int64) (*model.Activity, error) {
	return scanActivity(tx.Stmt(a.getByInternal).QueryRowContext(ctx, internal))
}

// ExistsByAPID reports whether an activity with this ap_id has already
// been processed — the dispatcher's duplicate-job check (§4.i step 4).
func (a *Activities) ExistsByAPID(ctx context.Context, tx *sql.Tx, apid string) (bool, error) {
	var exists bool
	err := tx.Stmt(a.existsByAPID).QueryRowContext(ctx, apid).Scan(&exists)
	return exists, err
}

func scanActivity(row *sql.Row) (*model.Activity, error) {
	var act model.Activity
	var to, bto, cc, bcc pq.StringArray
	err := row.Scan(&act.Internal, &act.APID, &act.ActivityType, &act.Actor, &act.Object, &act.Target,
		&act.Content, &act.Published, &to, &bto, &cc, &bcc)
	if err != nil {
		return nil, err
	}
	act.To, act.BTo, act.CC, act.BCC = []string(to), []string(bto), []string(cc), []string(bcc)
	return &act, nil
}
