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

var _ Model = &Jobs{}

// Jobs is the Model for the durable work queue (§4.i). A row is claimed by
// atomically deleting it: the delete's reported row count tells the caller
// whether it won the race against a sibling dispatcher.
type Jobs struct {
	insert        *sql.Stmt
	poll          *sql.Stmt
	pollByType    *sql.Stmt
	lock          *sql.Stmt
	existsByActivity *sql.Stmt
}

func (j *Jobs) Prepare(db *sql.DB) error {
	return prepareStmtPairs(db, stmtPairs{
		{&j.insert, `INSERT INTO jobs (job_type, actor, target, activity, payload, published, not_before, attempt)
			VALUES ($1,$2,$3,$4,$5,now(),$6,$7) RETURNING internal`},
		{&j.poll, `SELECT internal, job_type, actor, target, activity, payload, published, not_before, attempt
			FROM jobs WHERE not_before <= now() ORDER BY not_before ASC LIMIT 1`},
		{&j.pollByType, `SELECT internal, job_type, actor, target, activity, payload, published, not_before, attempt
			FROM jobs WHERE not_before <= now() AND job_type = $1 ORDER BY not_before ASC LIMIT 1`},
		{&j.lock, `DELETE FROM jobs WHERE internal = $1`},
		{&j.existsByActivity, `SELECT EXISTS(SELECT 1 FROM jobs WHERE activity = $1)`},
	})
}

func (j *Jobs) CreateTable(tx *sql.Tx) error {
	_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		internal   BIGSERIAL PRIMARY KEY,
		job_type   TEXT NOT NULL,
		actor      TEXT NOT NULL,
		target     TEXT,
		activity   TEXT NOT NULL UNIQUE,
		payload    TEXT,
		published  TIMESTAMPTZ NOT NULL,
		not_before TIMESTAMPTZ NOT NULL,
		attempt    INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_not_before ON jobs (not_before ASC)`)
	return err
}

func (j *Jobs) Close() {
	closeAll(j.insert, j.poll, j.pollByType, j.lock, j.existsByActivity)
}

// Insert enqueues a Job. The activity column is UNIQUE, so enqueuing the
// same activity twice returns a constraint error, which callers return as
// a Database error or log (§3 invariant 7).
func (j *Jobs) Insert(ctx context.Context, tx *sql.Tx, job *model.Job) (int64, error) {
	var internal int64
	err := tx.Stmt(j.insert).QueryRowContext(ctx, job.JobType, job.Actor, job.Target, job.Activity, job.Payload, job.NotBefore, job.Attempt).Scan(&internal)
	return internal, err
}

// Poll returns the oldest due job, or nil if none is due yet. It does not
// claim the row; callers must follow up with Lock before acting on it.
func (j *Jobs) Poll(ctx context.Context, tx *sql.Tx, filter *model.JobType) (*model.Job, error) {
	var row *sql.Row
	if filter != nil {
		row = tx.Stmt(j.pollByType).QueryRowContext(ctx, *filter)
	} else {
		row = tx.Stmt(j.poll).QueryRowContext(ctx)
	}
	var job model.Job
	err := row.Scan(&job.Internal, &job.JobType, &job.Actor, &job.Target, &job.Activity, &job.Payload, &job.Published, &job.NotBefore, &job.Attempt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Lock attempts to claim a job by deleting it. The bool return reports
// whether this call actually removed the row (true) or lost the race to
// another dispatcher (false) — the atomic DELETE is the lock (§4.i).
func (j *Jobs) Lock(ctx context.Context, tx *sql.Tx, internal int64) (bool, error) {
	res, err := tx.Stmt(j.lock).ExecContext(ctx, internal)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExistsByActivity reports whether a job for this activity is still queued.
func (j *Jobs) ExistsByActivity(ctx context.Context, tx *sql.Tx, activity string) (bool, error) {
	var exists bool
	err := tx.Stmt(j.existsByActivity).QueryRowContext(ctx, activity).Scan(&exists)
	return exists, err
}
