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

var _ Model = &Addressing{}

// Addressing is the Model for the central permission/visibility
// materialization table (§3 invariant 6).
type Addressing struct {
	insert              *sql.Stmt
	findMergeTarget     *sql.Stmt
	mergeActivity       *sql.Stmt
	listForActivityObj  *sql.Stmt
}

func (a *Addressing) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&a.insert, `INSERT INTO addressing (actor, instance, activity, object, published)
			VALUES ($1,$2,$3,$4,now()) RETURNING internal`},
		{&a.findMergeTarget, `SELECT internal FROM addressing
			WHERE activity IS NULL AND object = $1 AND actor IS NOT DISTINCT FROM $2 AND instance IS NOT DISTINCT FROM $3`},
		{&a.mergeActivity, `UPDATE addressing SET activity = $2 WHERE internal = $1`},
		{&a.listForActivityObj, `SELECT internal, actor, instance, activity, object, published FROM addressing
			WHERE activity IS NOT DISTINCT FROM $1 AND object IS NOT DISTINCT FROM $2`},
	})
}

func (a *Addressing) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS addressing (
		internal  BIGSERIAL PRIMARY KEY,
		actor     BIGINT REFERENCES actors(internal),
		instance  BIGINT REFERENCES instances(internal),
		activity  BIGINT REFERENCES activities(internal) ON DELETE CASCADE,
		object    BIGINT REFERENCES objects(internal) ON DELETE CASCADE,
		published TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_addressing_actor_published ON addressing (actor, published DESC)`)
	return err
}

func (a *Addressing) Close() {
	closeAll(a.insert, a.findMergeTarget, a.mergeActivity, a.listForActivityObj)
}

// Insert materializes one visibility row.
func (a *Addressing) Insert(ctx context.Context, tx *sql.Tx, row *model.Addressing) (int64, error) {
	var internal int64
	err := tx.Stmt(a.insert).QueryRowContext(ctx, row.Actor, row.Instance, row.Activity, row.Object).Scan(&internal)
	return internal, err
}

// FindMergeTarget looks for an existing (NULL activity, object, actor,
// instance) row so address_to can merge into it instead of duplicating
// (§4.e.1).
func (a *Addressing) FindMergeTarget(ctx context.Context, tx *sql.Tx, object int64, actor, instance *int64) (int64, bool, error) {
	var internal int64
	err := tx.Stmt(a.findMergeTarget).QueryRowContext(ctx, object, actor, instance).Scan(&internal)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return internal, true, nil
}

// MergeActivity stamps an existing addressing row with the activity it now
// also covers.
func (a *Addressing) MergeActivity(ctx context.Context, tx *sql.Tx, addressingInternal, activityInternal int64) error {
	_, err := tx.Stmt(a.mergeActivity).ExecContext(ctx, addressingInternal, activityInternal)
	return err
}

// ListForActivityObject returns every addressing row for a given
// (activity, object) pair.
func (a *Addressing) ListForActivityObject(ctx context.Context, tx *sql.Tx, activity, object *int64) ([]model.Addressing, error) {
	rows, err := tx.Stmt(a.listForActivityObj).QueryContext(ctx, activity, object)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Addressing
	for rows.Next() {
		var row model.Addressing
		if err := rows.Scan(&row.Internal, &row.Actor, &row.Instance, &row.Activity, &row.Object, &row.Published); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
