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

// Package outbox implements the Outbox Builder (§4.g): turning a document a
// local actor submits to its own outbox into a fully addressed, delivered
// activity. Grounded on
// original_source/upub/core/src/server/outbox.rs's impl apb::server::Outbox
// for Context, one method per verb, each minting fresh ids, inserting the
// object/activity, and handing off to the Addresser the same way
// original_source/src/server/addresser.rs's dispatch() does (expand
// addressing, materialize Addressing rows, enqueue Delivery jobs).
//
// apjson.Doc is read-only by design (§4.a), so there is no writer half to
// mint an id into a parsed document in place; this package instead decodes
// the submitted body into a plain map[string]interface{}, mutates it with
// encoding/json, and re-parses the result through apjson.Parse to get back
// the capability-based accessor the rest of the pipeline expects.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/upub-fed/core/internal/apjson"
	"github.com/upub-fed/core/internal/apperr"
	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/fetch"
	"github.com/upub-fed/core/internal/model"
)

// Normalizer is the narrow surface Builder needs from internal/normalize.
type Normalizer interface {
	InsertActivity(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Activity, error)
	InsertObject(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Object, error)
	Sanitize(content string) string
}

// Addresser is the narrow surface Builder needs from internal/address.
type Addresser interface {
	Address(ctx context.Context, tx *sql.Tx, activity, object *int64, to, bto, cc, bcc []string, audience *string) error
	Deliver(ctx context.Context, tx *sql.Tx, targets []string, activityAPID, fromAPID string) error
}

// mentionPattern matches a bare "@user@domain" mention inside free-form
// content, the same pattern outbox.rs compiles before rewriting.
var mentionPattern = regexp.MustCompile(`@(.+)@([^ ]+)`)

// Builder assembles and dispatches activities a local actor submits to its
// own outbox.
type Builder struct {
	Ctx        *ctxcore.Context
	Fetcher    *fetch.Fetcher
	Normalizer Normalizer
	Addresser  Addresser
}

// New builds a Builder.
func New(ctx *ctxcore.Context, fetcher *fetch.Fetcher, normalizer Normalizer, addresser Addresser) *Builder {
	return &Builder{Ctx: ctx, Fetcher: fetcher, Normalizer: normalizer, Addresser: addresser}
}

// Dispatch routes a raw client-submitted document to the matching verb by
// its own type, the entry point internal/queue's JobOutbound case uses: an
// (out-of-scope) HTTP handler that chooses to enqueue a submission instead
// of building it synchronously still needs somewhere to hand it off to.
func (b *Builder) Dispatch(ctx context.Context, actorAPID string, raw []byte) (string, error) {
	doc, err := apjson.Parse(raw)
	if err != nil {
		return "", err
	}
	switch doc.TypeString() {
	case "Create":
		return b.Create(ctx, actorAPID, raw)
	case "Like", "EmojiReact":
		return b.Like(ctx, actorAPID, raw)
	case "Follow":
		return b.Follow(ctx, actorAPID, raw)
	case "Accept":
		return b.Accept(ctx, actorAPID, raw)
	case "Reject":
		return b.Reject(ctx, actorAPID, raw)
	case "Undo":
		return b.Undo(ctx, actorAPID, raw)
	case "Delete":
		return b.Delete(ctx, actorAPID, raw)
	case "Update":
		return b.Update(ctx, actorAPID, raw)
	case "Announce":
		return b.Announce(ctx, actorAPID, raw)
	default:
		if doc.Kind() == apjson.KindObject {
			return b.CreateNote(ctx, actorAPID, raw)
		}
		return "", apperr.Unprocessablef("outbox submission of type %s is not supported", doc.TypeString())
	}
}

func (b *Builder) newObjectID() (raw, iri string) {
	raw = uuid.NewString()
	return raw, b.Ctx.ObjectIRI(raw)
}

func (b *Builder) newActivityID() string { return b.Ctx.ActivityIRI(uuid.NewString()) }

// rewriteMentions resolves every "@user@domain" occurrence in content to a
// u-url mention anchor, leaving unresolvable mentions untouched (§3
// supplement, grounded on outbox.rs's create()).
func (b *Builder) rewriteMentions(ctx context.Context, content string) string {
	var out string
	_ = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		out = mentionPattern.ReplaceAllStringFunc(content, func(m string) string {
			sub := mentionPattern.FindStringSubmatch(m)
			if sub == nil {
				return m
			}
			user, domain := sub[1], sub[2]
			inst, err := b.Ctx.Store.Instances.GetByDomain(ctx, tx, domain)
			if err != nil {
				return m
			}
			actor, err := b.Ctx.Store.Actors.GetByPreferredUsernameDomain(ctx, tx, user, inst.Internal)
			if err != nil {
				return m
			}
			return fmt.Sprintf(`<a href="%s" class="u-url mention">@%s</a>`, actor.APID, user)
		})
		return nil
	})
	return out
}

func unionTargets(doc *apjson.Doc) []string {
	out := append([]string{}, doc.To()...)
	out = append(out, doc.BTo()...)
	out = append(out, doc.CC()...)
	out = append(out, doc.BCC()...)
	if a, ok := doc.Audience(); ok {
		out = append(out, a)
	}
	return out
}

func decodeDoc(raw []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, apperr.Malformedf("body")
	}
	return m, nil
}

func reparse(m map[string]interface{}) (*apjson.Doc, []byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, nil, apperr.Malformedf("body")
	}
	doc, err := apjson.Parse(raw)
	return doc, raw, err
}

// CreateNote wraps a bare submitted object in a Create activity before
// building it, mirroring outbox.rs's create_note (§4.g: "wrapping a bare
// Note in a Create").
func (b *Builder) CreateNote(ctx context.Context, actorAPID string, objectJSON []byte) (string, error) {
	obj, err := decodeDoc(objectJSON)
	if err != nil {
		return "", err
	}
	activity := map[string]interface{}{
		"type":   "Create",
		"to":     obj["to"],
		"bto":    obj["bto"],
		"cc":     obj["cc"],
		"bcc":    obj["bcc"],
		"object": obj,
	}
	raw, err := json.Marshal(activity)
	if err != nil {
		return "", apperr.Malformedf("body")
	}
	return b.Create(ctx, actorAPID, raw)
}

// Create mints fresh object/activity ids, rewrites mentions in the embedded
// object's content, and dispatches the result (§4.g, outbox.rs's create()).
func (b *Builder) Create(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	activityDoc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	objectDoc, ok := activityDoc.ObjectDoc()
	if !ok {
		return "", apperr.Malformedf("object")
	}

	if reply, ok := objectDoc.InReplyTo(); ok {
		_, _ = b.Fetcher.FetchObject(ctx, reply)
	}

	activityMap, err := decodeDoc(activityJSON)
	if err != nil {
		return "", err
	}
	objectMap, _ := activityMap["object"].(map[string]interface{})
	if objectMap == nil {
		return "", apperr.Malformedf("object")
	}

	rawOID, oid := b.newObjectID()
	aid := b.newActivityID()
	now := time.Now().UTC().Format(time.RFC3339)

	if content, ok := objectDoc.Content(); ok {
		objectMap["content"] = b.rewriteMentions(ctx, content)
	}
	objectMap["id"] = oid
	objectMap["attributedTo"] = actorAPID
	objectMap["published"] = now
	if frontend := b.Ctx.Config.Instance.Frontend; frontend != "" {
		objectMap["url"] = frontend + "/objects/" + rawOID
	}

	activityMap["id"] = aid
	activityMap["actor"] = actorAPID
	activityMap["object"] = objectMap
	activityMap["published"] = now

	finalDoc, _, err := reparse(activityMap)
	if err != nil {
		return "", err
	}
	finalObjectDoc, ok := finalDoc.ObjectDoc()
	if !ok {
		return "", apperr.Malformedf("object")
	}
	targets := unionTargets(finalDoc)

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		obj, err := b.Normalizer.InsertObject(ctx, tx, finalObjectDoc)
		if err != nil {
			return err
		}
		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, &obj.Internal,
			finalDoc.To(), finalDoc.BTo(), finalDoc.CC(), finalDoc.BCC(), audienceOf(finalDoc)); err != nil {
			return err
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Like records a Like/EmojiReact by actorAPID, rejecting a duplicate
// (actor, object) pair as AlreadyProcessed (§4.g, outbox.rs's like()).
func (b *Builder) Like(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	objectIRI, ok := doc.ObjectIRI()
	if !ok {
		return "", apperr.Malformedf("object")
	}
	obj, err := b.Fetcher.FetchObject(ctx, objectIRI)
	if err != nil {
		return "", err
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		actor, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
		if err != nil {
			return apperr.Databasef(err)
		}
		if _, err := b.Ctx.Store.Likes.GetByActorObject(ctx, tx, actor.Internal, obj.Internal); err == nil {
			return apperr.AlreadyProcessedf("%s already liked %s", actorAPID, objectIRI)
		} else if err != sql.ErrNoRows {
			return apperr.Databasef(err)
		}

		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}
		var content *string
		if c, ok := finalDoc.Content(); ok {
			safe := b.Normalizer.Sanitize(c)
			content = &safe
		}
		if _, err := b.Ctx.Store.Likes.Insert(ctx, tx, &model.Like{
			Actor: actor.Internal, Object: obj.Internal, Activity: activity.Internal, Content: content,
		}); err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Ctx.Store.Objects.IncrementLikes(ctx, tx, obj.Internal, 1); err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil,
			finalDoc.To(), finalDoc.BTo(), finalDoc.CC(), finalDoc.BCC(), audienceOf(finalDoc)); err != nil {
			return err
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Follow records a pending Relation from actorAPID to the submitted target
// (§4.g, outbox.rs's follow()).
func (b *Builder) Follow(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	targetIRI, ok := doc.ObjectIRI()
	if !ok {
		return "", apperr.Malformedf("object")
	}
	target, err := b.Fetcher.FetchUser(ctx, targetIRI)
	if err != nil {
		return "", err
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		source, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
		if err != nil {
			return apperr.Databasef(err)
		}
		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}
		if _, err := b.Ctx.Store.Relations.Insert(ctx, tx, &model.Relation{
			Follower: source.Internal, Following: target.Internal, Activity: activity.Internal,
		}); err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil,
			activity.To, activity.BTo, activity.CC, activity.BCC, audienceOf(finalDoc)); err != nil {
			return err
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Accept completes a pending Follow addressed to actorAPID (§4.g, outbox.rs's
// accept()).
func (b *Builder) Accept(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	followIRI, ok := doc.ObjectIRI()
	if !ok {
		return "", apperr.Malformedf("object")
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		follow, err := b.Ctx.Store.Activities.GetByAPID(ctx, tx, followIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved follow %s", followIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if follow.ActivityType != model.ActivityFollow {
			return apperr.Malformedf("object")
		}
		if follow.Object == nil || *follow.Object != actorAPID {
			return apperr.Unauthorizedf("%s is not authorized to accept follow %s", actorAPID, followIRI)
		}
		followee, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
		if err != nil {
			return apperr.Databasef(err)
		}

		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}

		relation, err := b.Ctx.Store.Relations.GetByActivity(ctx, tx, follow.Internal)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("no pending relation for follow %s", followIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Ctx.Store.Relations.SetAccept(ctx, tx, relation.Internal, activity.Internal); err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Ctx.Store.Actors.IncrementFollowersCount(ctx, tx, followee.Internal, 1); err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Ctx.Store.Actors.IncrementFollowingCount(ctx, tx, follow.Actor, 1); err != nil {
			return apperr.Databasef(err)
		}

		follower, err := b.Ctx.Store.Actors.GetByInternal(ctx, tx, follow.Actor)
		if err != nil {
			return apperr.Databasef(err)
		}
		to := activity.To
		if !containsString(to, follower.APID) {
			to = append(to, follower.APID)
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil, to, activity.BTo, activity.CC, activity.BCC, audienceOf(finalDoc)); err != nil {
			return err
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Reject drops a pending Relation addressed to actorAPID (§4.g, outbox.rs's
// reject()). Deletes the Relation by (follower, following) rather than by
// the new Reject's own activity id: outbox.rs deletes
// model::relation::Column::Activity.eq(internal_aid), the freshly minted
// Reject's id, which can never match the Follow's relation row and silently
// no-ops. This mirrors the same correction already applied to
// internal/process's reject handler.
func (b *Builder) Reject(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	followIRI, ok := doc.ObjectIRI()
	if !ok {
		return "", apperr.Malformedf("object")
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		follow, err := b.Ctx.Store.Activities.GetByAPID(ctx, tx, followIRI)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved follow %s", followIRI)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if follow.ActivityType != model.ActivityFollow {
			return apperr.Malformedf("object")
		}
		if follow.Object == nil || *follow.Object != actorAPID {
			return apperr.Unauthorizedf("%s is not authorized to reject follow %s", actorAPID, followIRI)
		}
		followee, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
		if err != nil {
			return apperr.Databasef(err)
		}

		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}
		if err := b.Ctx.Store.Relations.DeleteByFollowerFollowing(ctx, tx, follow.Actor, followee.Internal); err != nil {
			return apperr.Databasef(err)
		}

		follower, err := b.Ctx.Store.Actors.GetByInternal(ctx, tx, follow.Actor)
		if err != nil {
			return apperr.Databasef(err)
		}
		to := activity.To
		if !containsString(to, follower.APID) {
			to = append(to, follower.APID)
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil, to, activity.BTo, activity.CC, activity.BCC, audienceOf(finalDoc)); err != nil {
			return err
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Undo reverses a Like or Follow actorAPID itself previously submitted
// (§4.g, outbox.rs's undo()).
func (b *Builder) Undo(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	oldAID, ok := doc.ObjectIRI()
	if !ok {
		return "", apperr.Malformedf("object")
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		actor, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
		if err != nil {
			return apperr.Databasef(err)
		}
		old, err := b.Ctx.Store.Activities.GetByAPID(ctx, tx, oldAID)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved activity %s", oldAID)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if old.Actor != actor.Internal {
			return apperr.Unauthorizedf("%s cannot undo an activity by another actor", actorAPID)
		}

		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil,
			finalDoc.To(), finalDoc.BTo(), finalDoc.CC(), finalDoc.BCC(), audienceOf(finalDoc)); err != nil {
			return err
		}

		if old.Object == nil {
			return apperr.Malformedf("object")
		}
		switch old.ActivityType {
		case model.ActivityLike, model.ActivityEmojiReact:
			target, err := b.Ctx.Store.Objects.GetByAPID(ctx, tx, *old.Object)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved object %s", *old.Object)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			if err := b.Ctx.Store.Likes.DeleteByActorObject(ctx, tx, actor.Internal, target.Internal); err != nil {
				return apperr.Databasef(err)
			}
			if err := b.Ctx.Store.Objects.IncrementLikes(ctx, tx, target.Internal, -1); err != nil {
				return apperr.Databasef(err)
			}
		case model.ActivityFollow:
			following, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, *old.Object)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved actor %s", *old.Object)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			if err := b.Ctx.Store.Relations.DeleteByFollowerFollowing(ctx, tx, actor.Internal, following.Internal); err != nil {
				return apperr.Databasef(err)
			}
			if err := b.Ctx.Store.Actors.IncrementFollowingCount(ctx, tx, actor.Internal, -1); err != nil {
				return apperr.Databasef(err)
			}
			if err := b.Ctx.Store.Actors.IncrementFollowersCount(ctx, tx, following.Internal, -1); err != nil {
				return apperr.Databasef(err)
			}
		default:
			return apperr.Unprocessablef("Undo of %s is not supported", old.ActivityType)
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Delete removes an object actorAPID authored, inserting and delivering the
// Delete itself (§4.g, outbox.rs's delete() — unlike internal/process's
// inbound delete, the outbox builder does deliver the tombstone).
func (b *Builder) Delete(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	oid, ok := doc.ObjectIRI()
	if !ok {
		objectDoc, ok := doc.ObjectDoc()
		if !ok {
			return "", apperr.Malformedf("object")
		}
		id, err := objectDoc.ID()
		if err != nil {
			return "", err
		}
		oid = id
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		actor, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
		if err != nil {
			return apperr.Databasef(err)
		}
		obj, err := b.Ctx.Store.Objects.GetByAPID(ctx, tx, oid)
		if err == sql.ErrNoRows {
			return apperr.Incompletef("unresolved object %s", oid)
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		if obj.AttributedTo == nil || *obj.AttributedTo != actor.Internal {
			return apperr.Unauthorizedf("%s is not the author of %s", actorAPID, oid)
		}

		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}
		if err := b.Ctx.Store.Objects.DeleteByAPID(ctx, tx, oid); err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil,
			finalDoc.To(), finalDoc.BTo(), finalDoc.CC(), finalDoc.BCC(), audienceOf(finalDoc)); err != nil {
			return err
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Update applies field-by-field overwrites to an Actor or Object actorAPID
// owns, and — unlike internal/process's inbound update — delivers the
// result to its followers (§4.g, outbox.rs's update()).
func (b *Builder) Update(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	objectDoc, ok := doc.ObjectDoc()
	if !ok {
		return "", apperr.Malformedf("object")
	}
	oid, err := objectDoc.ID()
	if err != nil {
		return "", err
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}
	finalObjectDoc, ok := finalDoc.ObjectDoc()
	if !ok {
		return "", apperr.Malformedf("object")
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}

		if finalObjectDoc.Kind() == apjson.KindActor {
			if oid != actorAPID {
				return apperr.Unauthorizedf("%s cannot update actor %s", actorAPID, oid)
			}
			existing, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, oid)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved actor %s", oid)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			if name, ok := finalObjectDoc.Name(); ok {
				existing.Name = &name
			}
			if summary, ok := finalObjectDoc.Summary(); ok {
				existing.Summary = &summary
			}
			if icon, ok := finalObjectDoc.Icon(); ok {
				existing.Icon = &icon
			}
			if image, ok := finalObjectDoc.Image(); ok {
				existing.Image = &image
			}
			if err := b.Ctx.Store.Actors.Update(ctx, tx, existing); err != nil {
				return apperr.Databasef(err)
			}
		} else {
			existing, err := b.Ctx.Store.Objects.GetByAPID(ctx, tx, oid)
			if err == sql.ErrNoRows {
				return apperr.Incompletef("unresolved object %s", oid)
			}
			if err != nil {
				return apperr.Databasef(err)
			}
			actor, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
			if err != nil {
				return apperr.Databasef(err)
			}
			if existing.AttributedTo == nil || *existing.AttributedTo != actor.Internal {
				return apperr.Unauthorizedf("%s is not the author of %s", actorAPID, oid)
			}
			if name, ok := finalObjectDoc.Name(); ok {
				existing.Name = &name
			}
			if summary, ok := finalObjectDoc.Summary(); ok {
				existing.Summary = &summary
			}
			if content, ok := finalObjectDoc.Content(); ok {
				safe := b.Normalizer.Sanitize(content)
				existing.Content = &safe
			}
			existing.Sensitive = finalObjectDoc.Sensitive()
			if err := b.Ctx.Store.Objects.Update(ctx, tx, existing); err != nil {
				return apperr.Databasef(err)
			}
		}

		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil,
			finalDoc.To(), finalDoc.BTo(), finalDoc.CC(), finalDoc.BCC(), audienceOf(finalDoc)); err != nil {
			return err
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// Announce shares an already-known or fetchable object on actorAPID's
// behalf (§4.g, outbox.rs's announce()).
func (b *Builder) Announce(ctx context.Context, actorAPID string, activityJSON []byte) (string, error) {
	doc, err := apjson.Parse(activityJSON)
	if err != nil {
		return "", err
	}
	announcedIRI, ok := doc.ObjectIRI()
	if !ok {
		return "", apperr.Malformedf("object")
	}
	obj, err := b.Fetcher.FetchObject(ctx, announcedIRI)
	if err != nil {
		return "", err
	}

	finalDoc, aid, targets, err := b.stampActivity(activityJSON, actorAPID)
	if err != nil {
		return "", err
	}

	err = b.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		actor, err := b.Ctx.Store.Actors.GetByAPID(ctx, tx, actorAPID)
		if err != nil {
			return apperr.Databasef(err)
		}
		activity, err := b.Normalizer.InsertActivity(ctx, tx, finalDoc)
		if err != nil {
			return err
		}
		if err := b.Addresser.Address(ctx, tx, &activity.Internal, nil,
			finalDoc.To(), finalDoc.BTo(), finalDoc.CC(), finalDoc.BCC(), audienceOf(finalDoc)); err != nil {
			return err
		}
		if _, err := b.Ctx.Store.Announces.Insert(ctx, tx, &model.Announce{
			Actor: actor.Internal, Object: obj.Internal, Activity: activity.Internal,
		}); err != nil {
			return apperr.Databasef(err)
		}
		if err := b.Ctx.Store.Objects.IncrementAnnounces(ctx, tx, obj.Internal, 1); err != nil {
			return apperr.Databasef(err)
		}
		return b.Addresser.Deliver(ctx, tx, targets, aid, actorAPID)
	})
	if err != nil {
		return "", err
	}
	return aid, nil
}

// stampActivity mints a fresh activity id and overwrites id/actor/published
// on the submitted top-level document, the common prelude every verb but
// Create and CreateNote needs.
func (b *Builder) stampActivity(activityJSON []byte, actorAPID string) (*apjson.Doc, string, []string, error) {
	m, err := decodeDoc(activityJSON)
	if err != nil {
		return nil, "", nil, err
	}
	aid := b.newActivityID()
	m["id"] = aid
	m["actor"] = actorAPID
	m["published"] = time.Now().UTC().Format(time.RFC3339)

	finalDoc, _, err := reparse(m)
	if err != nil {
		return nil, "", nil, err
	}
	return finalDoc, aid, unionTargets(finalDoc), nil
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
