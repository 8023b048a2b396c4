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

// Package address implements the Addresser (§4.e): expanding an activity's
// or object's to/bto/cc/bcc/audience into concrete Addressing rows, and
// enqueuing Delivery jobs for the remote actors among them. Grounded on
// original_source/upub/core/src/traits/address.rs's expand_addressing and
// address_to, adapted to internal/fetch's flatter Address(activity, object
// *int64, to, bto, cc, bcc []string, audience *string) signature.
package address

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/upub-fed/core/internal/apjson"
	"github.com/upub-fed/core/internal/apperr"
	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/model"
)

// ActorFetcher is the narrow surface Deliver needs to resolve an
// as-yet-unknown recipient before it can find its inbox, declared locally
// (as internal/fetch and internal/normalize do) to avoid an import cycle
// with internal/fetch.
type ActorFetcher interface {
	FetchUser(ctx context.Context, id string) (*model.Actor, error)
}

// Addresser materializes Addressing rows and Delivery jobs.
type Addresser struct {
	Ctx     *ctxcore.Context
	Fetcher ActorFetcher
}

// New builds an Addresser. Fetcher may be nil, in which case Deliver only
// reaches actors already known locally.
func New(ctx *ctxcore.Context, fetcher ActorFetcher) *Addresser {
	return &Addresser{Ctx: ctx, Fetcher: fetcher}
}

// Address expands to/bto/cc/bcc (plus audience) into Addressing rows for
// activity and/or object (§4.e.1). The calls in internal/fetch set exactly
// one of activity/object; internal/process's create and internal/outbox's
// Create pass both (an activity and its embedded object) and get the merge
// behavior described below.
func (a *Addresser) Address(ctx context.Context, tx *sql.Tx, activity, object *int64, to, bto, cc, bcc []string, audience *string) error {
	if activity == nil && object == nil {
		return nil
	}

	targets := make([]string, 0, len(to)+len(bto)+len(cc)+len(bcc)+1)
	targets = append(targets, to...)
	targets = append(targets, bto...)
	targets = append(targets, cc...)
	targets = append(targets, bcc...)
	if audience != nil {
		targets = append(targets, *audience)
	}

	expanded, err := a.expand(ctx, tx, targets)
	if err != nil {
		return err
	}

	// Locality is decided by the entity's own ap_id, not by its author's:
	// a local actor's post about a remote actor is still a locally-owned
	// entity whose full addressed audience we're entitled to store.
	var local bool
	switch {
	case activity != nil:
		act, err := a.Ctx.Store.Activities.GetByInternal(ctx, tx, *activity)
		if err != nil {
			return apperr.Databasef(err)
		}
		local = a.Ctx.IsLocal(act.APID)
	case object != nil:
		obj, err := a.Ctx.Store.Objects.GetByInternal(ctx, tx, *object)
		if err != nil {
			return apperr.Databasef(err)
		}
		local = a.Ctx.IsLocal(obj.APID)
	}

	return a.addressTo(ctx, tx, expanded, activity, object, local)
}

// expand replaces any target that is a known actor's followers URL with
// that actor's accepted followers, leaving every other target (including
// an unresolvable "/followers" URL) untouched for addressTo to filter.
func (a *Addresser) expand(ctx context.Context, tx *sql.Tx, targets []string) ([]string, error) {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == "" {
			continue
		}
		following, err := a.Ctx.Store.Actors.GetByFollowersURL(ctx, tx, t)
		if err == sql.ErrNoRows {
			out = append(out, t)
			continue
		}
		if err != nil {
			return nil, apperr.Databasef(err)
		}
		followers, err := a.Ctx.Store.Relations.ListFollowerAPIDs(ctx, tx, following.Internal)
		if err != nil {
			return nil, apperr.Databasef(err)
		}
		out = append(out, followers...)
	}
	return out, nil
}

// keepTarget decides whether target survives the addressTo filter: a
// leftover unresolvable followers URL is always dropped; everything else
// is kept when the addressed entity is local, or the target is the public
// URI, or the target itself is a local actor — a non-local entity's
// addressing to remote peers isn't ours to enforce (§4.e.1).
func keepTarget(target string, local bool, isLocal func(string) bool) bool {
	if target == "" || strings.HasSuffix(target, "/followers") {
		return false
	}
	return local || target == apjson.PublicURI || isLocal(target)
}

// addressTo filters the expanded target list and inserts (or merges) one
// Addressing row per surviving target.
func (a *Addresser) addressTo(ctx context.Context, tx *sql.Tx, targets []string, activity, object *int64, local bool) error {
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		if !keepTarget(target, local, a.Ctx.IsLocal) {
			continue
		}
		if seen[target] {
			continue
		}
		seen[target] = true

		var actorInternal, instanceInternal *int64
		if target != apjson.PublicURI {
			actor, err := a.Ctx.Store.Actors.GetByAPID(ctx, tx, target)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			actorInternal = &actor.Internal
			instanceInternal = &actor.Domain
		}

		if object != nil && activity != nil {
			mergeInternal, found, err := a.Ctx.Store.Addressing.FindMergeTarget(ctx, tx, *object, actorInternal, instanceInternal)
			if err != nil {
				return apperr.Databasef(err)
			}
			if found {
				if err := a.Ctx.Store.Addressing.MergeActivity(ctx, tx, mergeInternal, *activity); err != nil {
					return apperr.Databasef(err)
				}
				continue
			}
		}

		row := &model.Addressing{Actor: actorInternal, Instance: instanceInternal, Activity: activity, Object: object}
		if _, err := a.Ctx.Store.Addressing.Insert(ctx, tx, row); err != nil {
			return apperr.Databasef(err)
		}
	}
	return nil
}

// Deliver enqueues a Delivery job for every remote, non-public recipient
// among targets (§4.e.2). Best-effort: a recipient this server can't
// resolve or that publishes no inbox is silently skipped, matching the
// Fetcher's treatment of unreachable peers elsewhere in this codebase.
func (a *Addresser) Deliver(ctx context.Context, tx *sql.Tx, targets []string, activityAPID, fromAPID string) error {
	expanded, err := a.expand(ctx, tx, targets)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(expanded))
	now := time.Now().UTC()
	any := false
	for _, target := range expanded {
		if target == "" || target == apjson.PublicURI {
			continue
		}
		if ctxcore.Server(target) == a.Ctx.Domain {
			continue
		}
		if seen[target] {
			continue
		}
		seen[target] = true

		actor, err := a.Ctx.Store.Actors.GetByAPID(ctx, tx, target)
		if err == sql.ErrNoRows {
			if a.Fetcher == nil {
				continue
			}
			actor, err = a.Fetcher.FetchUser(ctx, target)
			if err != nil {
				continue
			}
		} else if err != nil {
			return apperr.Databasef(err)
		}
		if actor.Inbox == nil {
			continue
		}

		job := &model.Job{
			JobType:   model.JobDelivery,
			Actor:     fromAPID,
			Target:    actor.Inbox,
			Activity:  activityAPID,
			NotBefore: now,
			Attempt:   0,
		}
		if _, err := a.Ctx.Store.Jobs.Insert(ctx, tx, job); err != nil {
			return apperr.Databasef(err)
		}
		any = true
	}

	if any {
		a.Ctx.WakeDispatcher()
	}
	return nil
}
