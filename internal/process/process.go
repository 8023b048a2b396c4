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

// Package process implements the Processor (§4.f): applying the
// type-specific side effects an inbound activity carries (a Like row and
// counter, a pending follow Relation, an Accept's counter bump, a Delete's
// cascade, ...) before handing its addressing to the Addresser. Grounded on
// original_source/upub/core/src/traits/process.rs.
//
// This is a different concern from internal/fetch's ResolveActivity, which
// stores any activity generically so a recursive reference (an Accept's
// Follow, an Announce's wrapped post) has something to point at. Process is
// the entry point for activities this server is actually meant to act on.
package process

import (
	"context"
	"database/sql"

	"github.com/upub-fed/core/internal/apjson"
	"github.com/upub-fed/core/internal/apperr"
	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/fetch"
	"github.com/upub-fed/core/internal/model"
)

// Normalizer is the narrow surface Process needs from internal/normalize.
type Normalizer interface {
	InsertActivity(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Activity, error)
	InsertObject(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Object, error)
	Sanitize(content string) string
}

// Addresser is the narrow surface Process needs from internal/address.
type Addresser interface {
	Address(ctx context.Context, tx *sql.Tx, activity, object *int64, to, bto, cc, bcc []string, audience *string) error
}

// Processor dispatches an inbound activity document to its type-specific
// handler. Unlike Normalizer/Addresser, Processor imports internal/fetch
// directly rather than declaring a narrow local interface: nothing depends
// on internal/process, so there is no cycle to avoid, and the announce
// handler wants fetch.Pull's Kind-tagged unwrap helpers as-is.
type Processor struct {
	Ctx        *ctxcore.Context
	Fetcher    *fetch.Fetcher
	Normalizer Normalizer
	Addresser  Addresser
}

// New builds a Processor.
func New(ctx *ctxcore.Context, fetcher *fetch.Fetcher, normalizer Normalizer, addresser Addresser) *Processor {
	return &Processor{Ctx: ctx, Fetcher: fetcher, Normalizer: normalizer, Addresser: addresser}
}

// Process applies doc's side effects and addressing (§4.f). doc must already
// have passed signature verification; Process does not re-check it.
func (p *Processor) Process(ctx context.Context, doc *apjson.Doc) error {
	if doc.Kind() != apjson.KindActivity {
		return apperr.Unprocessablef("cannot process a %v as an activity", doc.Kind())
	}
	apid, err := doc.ID()
	if err != nil {
		return err
	}

	var dup bool
	err = p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		d, err := p.Ctx.Store.Activities.ExistsByAPID(ctx, tx, apid)
		dup = d
		return err
	})
	if err != nil {
		return apperr.Databasef(err)
	}
	if dup {
		return apperr.AlreadyProcessedf("activity %s already processed", apid)
	}

	switch doc.TypeString() {
	case "Create":
		return p.create(ctx, doc)
	case "Like", "EmojiReact":
		return p.like(ctx, doc)
	case "Follow":
		return p.follow(ctx, doc)
	case "Accept", "TentativeAccept":
		return p.accept(ctx, doc)
	case "Reject", "TentativeReject":
		return p.reject(ctx, doc)
	case "Undo":
		return p.undo(ctx, doc)
	case "Delete":
		return p.delete(ctx, doc)
	case "Update":
		return p.update(ctx, doc)
	case "Announce":
		return p.announce(ctx, doc)
	case "View":
		return p.view(ctx, doc)
	default:
		return apperr.Unprocessablef("activity type %q is not handled", doc.TypeString())
	}
}

func audienceOf(doc *apjson.Doc) *string {
	if a, ok := doc.Audience(); ok {
		return &a
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// create inserts the activity's embedded object (unless it's already known)
// and the activity itself, then addresses both.
func (p *Processor) create(ctx context.Context, doc *apjson.Doc) error {
	objectDoc, ok := doc.ObjectDoc()
	if !ok {
		return apperr.Unprocessablef("Create without an embedded object")
	}
	oid, err := objectDoc.ID()
	if err != nil {
		return err
	}

	if reply, ok := objectDoc.InReplyTo(); ok {
		_, _ = p.Fetcher.FetchObject(ctx, reply)
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}

		var objectInternal int64
		if existing, err := p.Ctx.Store.Objects.GetByAPID(ctx, tx, oid); err == nil {
			objectInternal = existing.Internal
		} else if err == sql.ErrNoRows {
			obj, err := p.Normalizer.InsertObject(ctx, tx, objectDoc)
			if err != nil {
				return err
			}
			objectInternal = obj.Internal
		} else {
			return apperr.Databasef(err)
		}

		return p.Addresser.Address(ctx, tx, &activity.Internal, &objectInternal,
			activity.To, activity.BTo, activity.CC, activity.BCC, audienceOf(doc))
	})
}

// like records a Like/EmojiReact, rejecting a duplicate (actor, object) pair
// as AlreadyProcessed.
func (p *Processor) like(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	actor, err := p.Fetcher.FetchUser(ctx, actorIRI)
	if err != nil {
		return err
	}
	objectIRI, ok := doc.ObjectIRI()
	if !ok {
		return apperr.Malformedf("object")
	}
	obj, err := p.Fetcher.FetchObject(ctx, objectIRI)
	if err != nil {
		return err
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := p.Ctx.Store.Likes.GetByActorObject(ctx, tx, actor.Internal, obj.Internal); err == nil {
			return apperr.AlreadyProcessedf("%s already liked %s", actorIRI, objectIRI)
		} else if err != sql.ErrNoRows {
			return apperr.Databasef(err)
		}

		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}

		var content *string
		if c, ok := doc.Content(); ok {
			safe := p.Normalizer.Sanitize(c)
			content = &safe
		}
		if _, err := p.Ctx.Store.Likes.Insert(ctx, tx, &model.Like{
			Actor: actor.Internal, Object: obj.Internal, Activity: activity.Internal, Content: content,
		}); err != nil {
			return apperr.Databasef(err)
		}
		if err := p.Ctx.Store.Objects.IncrementLikes(ctx, tx, obj.Internal, 1); err != nil {
			return apperr.Databasef(err)
		}

		to, bto, cc, bcc := activity.To, activity.BTo, activity.CC, activity.BCC
		if len(to)+len(bto)+len(cc)+len(bcc) == 0 && obj.AttributedTo != nil {
			// Mastodon sends bare Likes with no addressing at all; fall back
			// to the liked object's author so they still receive it.
			if author, err := p.Ctx.Store.Actors.GetByInternal(ctx, tx, *obj.AttributedTo); err == nil {
				to = []string{author.APID}
			}
		}

		return p.Addresser.Address(ctx, tx, &activity.Internal, nil, to, bto, cc, bcc, audienceOf(doc))
	})
}

// follow records a pending Relation and ensures the target actor is
// addressed so it actually receives the Follow.
func (p *Processor) follow(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	targetIRI, ok := doc.ObjectIRI()
	if !ok {
		return apperr.Malformedf("object")
	}
	target, err := p.Fetcher.FetchUser(ctx, targetIRI)
	if err != nil {
		return err
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		source, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, actorIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved actor %s", actorIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}

		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}

		if _, err := p.Ctx.Store.Relations.Insert(ctx, tx, &model.Relation{
			Follower: source.Internal, Following: target.Internal, Activity: activity.Internal,
		}); err != nil {
			return apperr.Databasef(err)
		}

		// InsertActivity already forced targetIRI into activity.To for
		// Follow (§4.d), so the recipient is addressed without help here.
		return p.Addresser.Address(ctx, tx, &activity.Internal, nil,
			activity.To, activity.BTo, activity.CC, activity.BCC, audienceOf(doc))
	})
}

// accept completes a pending Follow: the Accept's actor must be the Follow's
// object, or the request is Unauthorized.
func (p *Processor) accept(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	followIRI, ok := doc.ObjectIRI()
	if !ok {
		return apperr.Malformedf("object")
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		follow, err := p.Ctx.Store.Activities.GetByAPID(ctx, tx, followIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved follow %s", followIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if follow.Object == nil || *follow.Object != actorIRI {
			return apperr.Unauthorizedf("%s is not authorized to accept follow %s", actorIRI, followIRI)
		}
		followee, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, actorIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved actor %s", actorIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}

		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}

		relation, err := p.Ctx.Store.Relations.GetByActivity(ctx, tx, follow.Internal)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("no pending relation for follow %s", followIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if err := p.Ctx.Store.Relations.SetAccept(ctx, tx, relation.Internal, activity.Internal); err != nil {
			return apperr.Databasef(err)
		}
		if err := p.Ctx.Store.Actors.IncrementFollowingCount(ctx, tx, follow.Actor, 1); err != nil {
			return apperr.Databasef(err)
		}
		if err := p.Ctx.Store.Actors.IncrementFollowersCount(ctx, tx, followee.Internal, 1); err != nil {
			return apperr.Databasef(err)
		}

		follower, err := p.Ctx.Store.Actors.GetByInternal(ctx, tx, follow.Actor)
		if err != nil {
			return apperr.Databasef(err)
		}
		to := activity.To
		if !containsString(to, follower.APID) {
			to = append(to, follower.APID)
		}

		return p.Addresser.Address(ctx, tx, &activity.Internal, nil, to, activity.BTo, activity.CC, activity.BCC, audienceOf(doc))
	})
}

// reject drops a pending Relation under the same authorization rule as accept.
func (p *Processor) reject(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	followIRI, ok := doc.ObjectIRI()
	if !ok {
		return apperr.Malformedf("object")
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		follow, err := p.Ctx.Store.Activities.GetByAPID(ctx, tx, followIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved follow %s", followIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if follow.Object == nil || *follow.Object != actorIRI {
			return apperr.Unauthorizedf("%s is not authorized to reject follow %s", actorIRI, followIRI)
		}
		followee, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, actorIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved actor %s", actorIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}

		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}

		if err := p.Ctx.Store.Relations.DeleteByFollowerFollowing(ctx, tx, follow.Actor, followee.Internal); err != nil {
			return apperr.Databasef(err)
		}

		follower, err := p.Ctx.Store.Actors.GetByInternal(ctx, tx, follow.Actor)
		if err != nil {
			return apperr.Databasef(err)
		}
		to := activity.To
		if !containsString(to, follower.APID) {
			to = append(to, follower.APID)
		}

		return p.Addresser.Address(ctx, tx, &activity.Internal, nil, to, activity.BTo, activity.CC, activity.BCC, audienceOf(doc))
	})
}

// delete removes an actor or object row by ap_id; FK cascades take care of
// dependent rows. Neither the Delete activity nor any addressing is stored:
// there's nothing left afterward worth pointing at (process.rs's delete()
// does the same).
func (p *Processor) delete(ctx context.Context, doc *apjson.Doc) error {
	oid, ok := doc.ObjectIRI()
	if !ok {
		objectDoc, ok := doc.ObjectDoc()
		if !ok {
			return apperr.Malformedf("object")
		}
		id, err := objectDoc.ID()
		if err != nil {
			return err
		}
		oid = id
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := p.Ctx.Store.Actors.DeleteByAPID(ctx, tx, oid); err != nil {
			return apperr.Databasef(err)
		}
		if err := p.Ctx.Store.Objects.DeleteByAPID(ctx, tx, oid); err != nil {
			return apperr.Databasef(err)
		}
		return nil
	})
}

// update applies field-by-field overwrites to a known Actor or Object row.
// An Update(Actor) requires the actor be updating itself; an Update(Object)
// requires the updater be the object's attributed_to.
func (p *Processor) update(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	objectDoc, ok := doc.ObjectDoc()
	if !ok {
		return apperr.Unprocessablef("Update without an embedded object")
	}
	oid, err := objectDoc.ID()
	if err != nil {
		return err
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}

		if objectDoc.Kind() == apjson.KindActor {
			if oid != actorIRI {
				return apperr.Unauthorizedf("%s cannot update actor %s", actorIRI, oid)
			}
			existing, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, oid)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved actor %s", oid)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			if name, ok := objectDoc.Name(); ok {
				existing.Name = &name
			}
			if summary, ok := objectDoc.Summary(); ok {
				existing.Summary = &summary
			}
			if icon, ok := objectDoc.Icon(); ok {
				existing.Icon = &icon
			}
			if image, ok := objectDoc.Image(); ok {
				existing.Image = &image
			}
			if aka := objectDoc.AlsoKnownAs(); aka != nil {
				existing.AlsoKnownAs = aka
			}
			if movedTo, ok := objectDoc.MovedTo(); ok {
				existing.MovedTo = &movedTo
			}
			if err := p.Ctx.Store.Actors.Update(ctx, tx, existing); err != nil {
				return apperr.Databasef(err)
			}
		} else {
			existing, err := p.Ctx.Store.Objects.GetByAPID(ctx, tx, oid)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved object %s", oid)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			if existing.AttributedTo == nil {
				return apperr.Unauthorizedf("%s cannot update %s: no known author", actorIRI, oid)
			}
			author, err := p.Ctx.Store.Actors.GetByInternal(ctx, tx, *existing.AttributedTo)
			if err != nil {
				return apperr.Databasef(err)
			}
			if author.APID != actorIRI {
				return apperr.Unauthorizedf("%s is not the author of %s", actorIRI, oid)
			}
			if name, ok := objectDoc.Name(); ok {
				existing.Name = &name
			}
			if summary, ok := objectDoc.Summary(); ok {
				existing.Summary = &summary
			}
			if content, ok := objectDoc.Content(); ok {
				safe := p.Normalizer.Sanitize(content)
				existing.Content = &safe
			}
			existing.Sensitive = objectDoc.Sensitive()
			if err := p.Ctx.Store.Objects.Update(ctx, tx, existing); err != nil {
				return apperr.Databasef(err)
			}
		}

		return p.Addresser.Address(ctx, tx, &activity.Internal, nil,
			activity.To, activity.BTo, activity.CC, activity.BCC, audienceOf(doc))
	})
}

// undo reverses the side effect of an embedded Like or Follow; the outer
// actor must match the undone activity's own actor.
func (p *Processor) undo(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	inner, ok := doc.ObjectDoc()
	if !ok || inner.Kind() != apjson.KindActivity {
		return apperr.Malformedf("object")
	}
	innerActorIRI, err := inner.ActorIRI()
	if err != nil {
		return err
	}
	if innerActorIRI != actorIRI {
		return apperr.Unauthorizedf("%s cannot undo an activity by %s", actorIRI, innerActorIRI)
	}
	innerTargetIRI, ok := inner.ObjectIRI()
	if !ok {
		return apperr.Malformedf("object")
	}
	innerType := inner.TypeString()

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		actor, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, actorIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved actor %s", actorIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}

		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := p.Addresser.Address(ctx, tx, &activity.Internal, nil,
			activity.To, activity.BTo, activity.CC, activity.BCC, audienceOf(doc)); err != nil {
			return err
		}

		switch innerType {
		case "Like", "EmojiReact":
			target, err := p.Ctx.Store.Objects.GetByAPID(ctx, tx, innerTargetIRI)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved object %s", innerTargetIRI)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			if err := p.Ctx.Store.Likes.DeleteByActorObject(ctx, tx, actor.Internal, target.Internal); err != nil {
				return apperr.Databasef(err)
			}
			return p.Ctx.Store.Objects.IncrementLikes(ctx, tx, target.Internal, -1)
		case "Follow":
			following, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, innerTargetIRI)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved actor %s", innerTargetIRI)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			if err := p.Ctx.Store.Relations.DeleteByFollowerFollowing(ctx, tx, actor.Internal, following.Internal); err != nil {
				return apperr.Databasef(err)
			}
			if err := p.Ctx.Store.Actors.IncrementFollowingCount(ctx, tx, actor.Internal, -1); err != nil {
				return apperr.Databasef(err)
			}
			return p.Ctx.Store.Actors.IncrementFollowersCount(ctx, tx, following.Internal, -1)
		default:
			return apperr.Unprocessablef("Undo of %s is not supported", innerType)
		}
	})
}

// announce resolves the announced resource; a wrapped Activity (a relay
// rebroadcasting another server's activity) is processed recursively rather
// than stored as a share when it is a Create, Like, Undo, Delete or Update;
// any other wrapped type is Unprocessable.
func (p *Processor) announce(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	actor, err := p.Fetcher.FetchUser(ctx, actorIRI)
	if err != nil {
		return err
	}
	announcedIRI, ok := doc.ObjectIRI()
	if !ok {
		return apperr.Malformedf("object")
	}

	var object *model.Object
	err = p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := p.Ctx.Store.Activities.GetByAPID(ctx, tx, announcedIRI); err == nil {
			return apperr.AlreadyProcessedf("already have activity %s", announcedIRI)
		} else if err != sql.ErrNoRows {
			return apperr.Databasef(err)
		}
		if _, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, announcedIRI); err == nil {
			return apperr.Unprocessablef("cannot announce an actor")
		} else if err != sql.ErrNoRows {
			return apperr.Databasef(err)
		}
		if existing, err := p.Ctx.Store.Objects.GetByAPID(ctx, tx, announcedIRI); err == nil {
			object = existing
		} else if err != sql.ErrNoRows {
			return apperr.Databasef(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if object == nil {
		pulled, err := p.Fetcher.Pull(ctx, announcedIRI)
		if err != nil {
			return err
		}
		switch pulled.Kind {
		case apjson.KindActivity:
			inner, err := pulled.Activity()
			if err != nil {
				return err
			}
			relayed := map[model.ActivityType]bool{
				model.ActivityCreate: true, model.ActivityLike: true, model.ActivityUndo: true,
				model.ActivityDelete: true, model.ActivityUpdate: true,
			}
			if !relayed[model.ActivityType(inner.TypeString())] {
				return apperr.Unprocessablef("cannot process announced %s", inner.TypeString())
			}
			return p.Process(ctx, inner)
		case apjson.KindActor:
			return apperr.Unprocessablef("cannot announce an actor")
		default:
			objDoc, err := pulled.Object()
			if err != nil {
				return err
			}
			object, err = p.Fetcher.ResolveObjectDepth(ctx, objDoc, 0)
			if err != nil {
				return err
			}
		}
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		activity, err := p.Normalizer.InsertActivity(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := p.Addresser.Address(ctx, tx, &activity.Internal, nil,
			activity.To, activity.BTo, activity.CC, activity.BCC, audienceOf(doc)); err != nil {
			return err
		}

		// Relays rebroadcast objects as Announce on behalf of an
		// Application actor; that's not a share a person made, so ingest
		// the object without inflating its announce count (§4.f Announce).
		if actor.ActorType != model.ActorPerson {
			return nil
		}

		if _, err := p.Ctx.Store.Announces.Insert(ctx, tx, &model.Announce{
			Actor: actor.Internal, Object: object.Internal, Activity: activity.Internal,
		}); err != nil {
			return apperr.Databasef(err)
		}
		return p.Ctx.Store.Objects.IncrementAnnounces(ctx, tx, object.Internal, 1)
	})
}

// view is an internal, never-stored activity a local session uses to mark
// its own notification seen; it carries no addressing of its own.
func (p *Processor) view(ctx context.Context, doc *apjson.Doc) error {
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return err
	}
	viewedIRI, ok := doc.ObjectIRI()
	if !ok {
		return apperr.Malformedf("object")
	}

	return p.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		actor, err := p.Ctx.Store.Actors.GetByAPID(ctx, tx, actorIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved actor %s", actorIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		viewed, err := p.Ctx.Store.Activities.GetByAPID(ctx, tx, viewedIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved activity %s", viewedIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		return p.Ctx.Store.Notifications.MarkSeen(ctx, tx, viewed.Internal, actor.Internal)
	})
}
