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

var _ Model = &Relations{}

// Relations is the Model for Follow edges.
type Relations struct {
	insert                    *sql.Stmt
	getByFollowerFollowing    *sql.Stmt
	getByActivity             *sql.Stmt
	setAccept                 *sql.Stmt
	deleteByFollowerFollowing *sql.Stmt
	listFollowerAPIDs         *sql.Stmt
}

const relationColumns = `internal, follower, following, activity, accept`

func (r *Relations) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&r.insert, `INSERT INTO relations (follower, following, activity, accept)
			VALUES ($1,$2,$3,NULL) RETURNING internal`},
		{&r.getByFollowerFollowing, `SELECT ` + relationColumns + ` FROM relations WHERE follower = $1 AND following = $2`},
		{&r.getByActivity, `SELECT ` + relationColumns + ` FROM relations WHERE activity = $1`},
		{&r.setAccept, `UPDATE relations SET accept = $2 WHERE internal = $1`},
		{&r.deleteByFollowerFollowing, `DELETE FROM relations WHERE follower = $1 AND following = $2`},
		{&r.listFollowerAPIDs, `SELECT a.ap_id FROM relations r JOIN actors a ON a.internal = r.follower
			WHERE r.following = $1 AND r.accept IS NOT NULL`},
	})
}

func (r *Relations) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS relations (
		internal  BIGSERIAL PRIMARY KEY,
		follower  BIGINT NOT NULL REFERENCES actors(internal),
		following BIGINT NOT NULL REFERENCES actors(internal),
		activity  BIGINT NOT NULL REFERENCES activities(internal),
		accept    BIGINT REFERENCES activities(internal),
		UNIQUE(follower, following)
	)`)
	return err
}

func (r *Relations) Close() {
	closeAll(r.insert, r.getByFollowerFollowing, r.getByActivity, r.setAccept, r.deleteByFollowerFollowing,
		r.listFollowerAPIDs)
}

// Insert records a pending Follow (§4.f Follow).
func (r *Relations) Insert(ctx context.Context, tx *sql.Tx, rel *model.Relation) (int64, error) {
	var internal int64
	err := tx.Stmt(r.insert).QueryRowContext(ctx, rel.Follower, rel.Following, rel.Activity).Scan(&internal)
	return internal, err
}

// GetByFollowerFollowing looks up a Relation by the (follower, following) pair.
func (r *Relations) GetByFollowerFollowing(ctx context.Context, tx *sql.Tx, follower, following int64) (*model.Relation, error) {
	return scanRelation(tx.Stmt(r.getByFollowerFollowing).QueryRowContext(ctx, follower, following))
}

// GetByActivity looks up the Relation created by a given Follow activity —
// used by Accept/Reject to find the follow they refer to.
func (r *Relations) GetByActivity(ctx context.Context, tx *sql.Tx, activityInternal int64) (*model.Relation, error) {
	return scanRelation(tx.Stmt(r.getByActivity).QueryRowContext(ctx, activityInternal))
}

// SetAccept records the Accept activity that completed a pending Follow.
func (r *Relations) SetAccept(ctx context.Context, tx *sql.Tx, relationInternal, acceptActivityInternal int64) error {
	_, err := tx.Stmt(r.setAccept).ExecContext(ctx, relationInternal, acceptActivityInternal)
	return err
}

// DeleteByFollowerFollowing removes a Relation (§4.f Reject, Undo(Follow)).
func (r *Relations) DeleteByFollowerFollowing(ctx context.Context, tx *sql.Tx, follower, following int64) error {
	_, err := tx.Stmt(r.deleteByFollowerFollowing).ExecContext(ctx, follower, following)
	return err
}

// ListFollowerAPIDs returns the ap_id of every accepted follower of
// actorInternal — used by the Addresser to expand a `/followers` target
// into the concrete audience it denotes (§4.e.1).
func (r *Relations) ListFollowerAPIDs(ctx context.Context, tx *sql.Tx, actorInternal int64) ([]string, error) {
	rows, err := tx.Stmt(r.listFollowerAPIDs).QueryContext(ctx, actorInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var apid string
		if err := rows.Scan(&apid); err != nil {
			return nil, err
		}
		out = append(out, apid)
	}
	return out, rows.Err()
}

func scanRelation(row *sql.Row) (*model.Relation, error) {
	var rel model.Relation
	if err := row.Scan(&rel.Internal, &rel.Follower, &rel.Following, &rel.Activity, &rel.Accept); err != nil {
		return nil, err
	}
	return &rel, nil
}
