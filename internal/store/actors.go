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

var _ Model = &Actors{}

// Actors is the Model for users, bots, groups, applications, services.
type Actors struct {
	insert                     *sql.Stmt
	getByAPID                  *sql.Stmt
	getByInternal              *sql.Stmt
	getByPreferredUsernameHost *sql.Stmt
	getByFollowersURL          *sql.Stmt
	update                     *sql.Stmt
	deleteByAPID               *sql.Stmt
	incrementFollowing         *sql.Stmt
	incrementFollowers         *sql.Stmt
	incrementStatuses          *sql.Stmt
}

func (a *Actors) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&a.insert, `INSERT INTO actors (ap_id, actor_type, domain, preferred_username, name, summary, icon, image,
				fields, inbox, outbox, shared_inbox, following, followers, public_key, private_key,
				also_known_as, moved_to, published, updated)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
			RETURNING internal`},
		{&a.getByAPID, `SELECT ` + actorColumns + ` FROM actors WHERE ap_id = $1`},
		{&a.getByInternal, `SELECT ` + actorColumns + ` FROM actors WHERE internal = $1`},
		{&a.getByPreferredUsernameHost, `SELECT ` + actorColumns + ` FROM actors WHERE preferred_username = $1 AND domain = $2`},
		{&a.getByFollowersURL, `SELECT ` + actorColumns + ` FROM actors WHERE followers = $1`},
		{&a.update, `UPDATE actors SET name = $2, summary = $3, icon = $4, image = $5, fields = $6,
				also_known_as = $7, moved_to = $8, updated = now() WHERE internal = $1`},
		{&a.deleteByAPID, `DELETE FROM actors WHERE ap_id = $1`},
		{&a.incrementFollowing, `UPDATE actors SET following_count = following_count + $2 WHERE internal = $1`},
		{&a.incrementFollowers, `UPDATE actors SET followers_count = followers_count + $2 WHERE internal = $1`},
		{&a.incrementStatuses, `UPDATE actors SET statuses_count = statuses_count + $2 WHERE internal = $1`},
	})
}

const actorColumns = `internal, ap_id, actor_type, domain, preferred_username, name, summary, icon, image,
	fields, inbox, outbox, shared_inbox, following, followers, following_count, followers_count,
	statuses_count, public_key, private_key, also_known_as, moved_to, published, updated`

func (a *Actors) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS actors (
		internal            BIGSERIAL PRIMARY KEY,
		ap_id               TEXT NOT NULL UNIQUE,
		actor_type          TEXT NOT NULL,
		domain              BIGINT NOT NULL REFERENCES instances(internal),
		preferred_username  TEXT NOT NULL,
		name                TEXT,
		summary             TEXT,
		icon                TEXT,
		image               TEXT,
		fields              JSONB,
		inbox               TEXT,
		outbox              TEXT,
		shared_inbox        TEXT,
		following           TEXT,
		followers           TEXT,
		following_count     INTEGER NOT NULL DEFAULT 0,
		followers_count     INTEGER NOT NULL DEFAULT 0,
		statuses_count      INTEGER NOT NULL DEFAULT 0,
		public_key          TEXT NOT NULL,
		private_key         TEXT,
		also_known_as       TEXT[],
		moved_to            TEXT,
		published           TIMESTAMPTZ NOT NULL,
		updated             TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_actors_preferred_username_domain ON actors (preferred_username, domain)`)
	return err
}

func (a *Actors) Close() {
	closeAll(a.insert, a.getByAPID, a.getByInternal, a.getByPreferredUsernameHost, a.getByFollowersURL,
		a.update, a.deleteByAPID, a.incrementFollowing, a.incrementFollowers, a.incrementStatuses)
}

// Insert creates a new Actor row, returning its internal id.
func (a *Actors) Insert(ctx context.Context, tx *sql.Tx, ac *model.Actor) (int64, error) {
	var internal int64
	err := tx.Stmt(a.insert).QueryRowContext(ctx,
		ac.APID, ac.ActorType, ac.Domain, ac.PreferredUser, ac.Name, ac.Summary, ac.Icon, ac.Image,
		fieldsJSON(ac.Fields), ac.Inbox, ac.Outbox, ac.SharedInbox, ac.Following, ac.Followers,
		ac.PublicKeyPEM, ac.PrivateKeyPEM, pq.Array(ac.AlsoKnownAs), ac.MovedTo,
	).Scan(&internal)
	return internal, err
}

// GetByAPID looks up an actor by its ap_id.
func (a *Actors) GetByAPID(ctx context.Context, tx *sql.Tx, apid string) (*model.Actor, error) {
	return scanActor(tx.Stmt(a.getByAPID).QueryRowContext(ctx, apid))
}

// GetByInternal looks up an actor by its internal id.
func (a *Actors) GetByInternal(ctx context.Context, tx *sql.Tx, internal int64) (*model.Actor, error) {
	return scanActor(tx.Stmt(a.getByInternal).QueryRowContext(ctx, internal))
}

// GetByPreferredUsernameDomain resolves a mention's "@user@domain" pair to
// a known actor (used by the Outbox Builder's mention rewrite, §4.g.2).
func (a *Actors) GetByPreferredUsernameDomain(ctx context.Context, tx *sql.Tx, username string, domainInternal int64) (*model.Actor, error) {
	return scanActor(tx.Stmt(a.getByPreferredUsernameHost).QueryRowContext(ctx, username, domainInternal))
}

// GetByFollowersURL looks up the actor whose published `followers`
// collection URL matches target — the Addresser's `/followers` expansion
// (§4.e.1).
func (a *Actors) GetByFollowersURL(ctx context.Context, tx *sql.Tx, target string) (*model.Actor, error) {
	return scanActor(tx.Stmt(a.getByFollowersURL).QueryRowContext(ctx, target))
}

// Update overwrites the mutable profile fields of an actor (§4.f Update).
func (a *Actors) Update(ctx context.Context, tx *sql.Tx, ac *model.Actor) error {
	_, err := tx.Stmt(a.update).ExecContext(ctx, ac.Internal, ac.Name, ac.Summary, ac.Icon, ac.Image,
		fieldsJSON(ac.Fields), pq.Array(ac.AlsoKnownAs), ac.MovedTo)
	return err
}

// DeleteByAPID removes an actor row (§4.f Delete); FK cascades handle
// related rows.
func (a *Actors) DeleteByAPID(ctx context.Context, tx *sql.Tx, apid string) error {
	_, err := tx.Stmt(a.deleteByAPID).ExecContext(ctx, apid)
	return err
}

// IncrementFollowingCount adjusts following_count by delta (may be negative
// for Undo).
func (a *Actors) IncrementFollowingCount(ctx context.Context, tx *sql.Tx, internal int64, delta int) error {
	_, err := tx.Stmt(a.incrementFollowing).ExecContext(ctx, internal, delta)
	return err
}

// IncrementFollowersCount adjusts followers_count by delta.
func (a *Actors) IncrementFollowersCount(ctx context.Context, tx *sql.Tx, internal int64, delta int) error {
	_, err := tx.Stmt(a.incrementFollowers).ExecContext(ctx, internal, delta)
	return err
}

// IncrementStatusesCount adjusts statuses_count by delta.
func (a *Actors) IncrementStatusesCount(ctx context.Context, tx *sql.Tx, internal int64, delta int) error {
	_, err := tx.Stmt(a.incrementStatuses).ExecContext(ctx, internal, delta)
	return err
}

func scanActor(row *sql.Row) (*model.Actor, error) {
	var ac model.Actor
	var fields []byte
	var aka pq.StringArray
	err := row.Scan(&ac.Internal, &ac.APID, &ac.ActorType, &ac.Domain, &ac.PreferredUser, &ac.Name,
		&ac.Summary, &ac.Icon, &ac.Image, &fields, &ac.Inbox, &ac.Outbox, &ac.SharedInbox,
		&ac.Following, &ac.Followers, &ac.FollowingCount, &ac.FollowersCount, &ac.StatusesCount,
		&ac.PublicKeyPEM, &ac.PrivateKeyPEM, &aka, &ac.MovedTo, &ac.Published, &ac.Updated)
	if err != nil {
		return nil, err
	}
	ac.AlsoKnownAs = []string(aka)
	ac.Fields = unmarshalFields(fields)
	return &ac, nil
}
