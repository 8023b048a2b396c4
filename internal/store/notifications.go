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

var _ Model = &Notifications{}

// Notifications is the Model tracking which activities are relevant to a
// local actor's feed, and whether they've been seen (§4.f View handler,
// §4.j notifications query).
type Notifications struct {
	insert       *sql.Stmt
	markSeen     *sql.Stmt
	listForActor *sql.Stmt
}

func (n *Notifications) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&n.insert, `INSERT INTO notifications (activity, actor, seen, published)
			VALUES ($1,$2,false,now()) RETURNING internal`},
		{&n.markSeen, `UPDATE notifications SET seen = true WHERE activity = $1 AND actor = $2`},
		{&n.listForActor, `SELECT internal, activity, actor, seen, published FROM notifications
			WHERE actor = $1 ORDER BY published DESC LIMIT $2 OFFSET $3`},
	})
}

func (n *Notifications) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS notifications (
		internal  BIGSERIAL PRIMARY KEY,
		activity  BIGINT NOT NULL REFERENCES activities(internal) ON DELETE CASCADE,
		actor     BIGINT NOT NULL REFERENCES actors(internal),
		seen      BOOLEAN NOT NULL DEFAULT false,
		published TIMESTAMPTZ NOT NULL,
		UNIQUE(activity, actor)
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_notifications_actor_published ON notifications (actor, published DESC)`)
	return err
}

func (n *Notifications) Close() { closeAll(n.insert, n.markSeen, n.listForActor) }

// Insert records that activity is relevant to actor's feed.
func (n *Notifications) Insert(ctx context.Context, tx *sql.Tx, notif *model.Notification) (int64, error) {
	var internal int64
	err := tx.Stmt(n.insert).QueryRowContext(ctx, notif.Activity, notif.Actor).Scan(&internal)
	return internal, err
}

// MarkSeen flips the seen flag for one (activity, actor) pair, driven by a
// View activity (§4.f).
func (n *Notifications) MarkSeen(ctx context.Context, tx *sql.Tx, activity, actor int64) error {
	_, err := tx.Stmt(n.markSeen).ExecContext(ctx, activity, actor)
	return err
}

// ListForActor returns actor's notifications, newest first.
func (n *Notifications) ListForActor(ctx context.Context, tx *sql.Tx, actor int64, limit, offset int) ([]model.Notification, error) {
	rows, err := tx.Stmt(n.listForActor).QueryContext(ctx, actor, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		var notif model.Notification
		if err := rows.Scan(&notif.Internal, &notif.Activity, &notif.Actor, &notif.Seen, &notif.Published); err != nil {
			return nil, err
		}
		out = append(out, notif)
	}
	return out, rows.Err()
}
