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

// Package query assembles the feeds a viewer sees: the addressing table
// joined back to the activity or object it names, annotated with the
// viewer's own like and the object's attachments, mentions and hashtags.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/model"
)

// DefaultLimit bounds a feed page when the caller passes limit <= 0.
const DefaultLimit = 20

// MaxLimit is the largest page size Selector will ever return.
const MaxLimit = 100

// RichActivity pairs an Activity with the Object it carries (if any) and
// the viewer-specific and content annotations needed to render it.
type RichActivity struct {
	Activity    *model.Activity
	Object      *model.Object
	LikedByMe   bool
	Attachments []model.Attachment
	Hashtags    []model.Hashtag
	Mentions    []model.Mention
}

// RichObject pairs an Object with its viewer-specific and content
// annotations, for feeds that render bare objects rather than activities.
type RichObject struct {
	Object      *model.Object
	LikedByMe   bool
	Attachments []model.Attachment
	Hashtags    []model.Hashtag
	Mentions    []model.Mention
}

// Selector runs the cross-table feed queries: addressing joined to
// activities or objects, restricted to what a given viewer may see.
type Selector struct {
	Ctx *ctxcore.Context
}

// New builds a Selector bound to ctx.
func New(ctx *ctxcore.Context) *Selector {
	return &Selector{Ctx: ctx}
}

// clampLimit normalizes a caller-supplied page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Timeline returns the activities addressed to viewer (or addressed
// publicly, when viewer is nil), newest first, paginated by addressing's
// published timestamp. It mirrors the upstream Query::activities selector:
// addressing INNER JOINed to activities, LEFT JOINed to the object the
// activity names (by addressing.object, the internal object id — distinct
// from activities.object, which stores the referenced ap_id as text), with
// an additional LEFT JOIN-equivalent lookup against likes when viewer is
// given, so each row can report whether the viewer has liked the object.
func (s *Selector) Timeline(ctx context.Context, viewer *int64, before time.Time, limit int) ([]RichActivity, error) {
	limit = clampLimit(limit)

	const q = `SELECT DISTINCT ON (addressing.published, activities.internal)
		activities.internal, activities.ap_id, activities.activity_type, activities.actor,
		activities.object, activities.target, activities.content, activities.published,
		activities.to_list, activities.bto_list, activities.cc_list, activities.bcc_list,
		addressing.object
		FROM addressing
		INNER JOIN activities ON activities.internal = addressing.activity
		WHERE (addressing.actor = $1 OR addressing.actor IS NULL)
			AND addressing.published < $2
		ORDER BY addressing.published DESC, activities.internal DESC
		LIMIT $3`

	var out []RichActivity
	err := s.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, q, viewer, before, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			act, objInternal, err := scanActivityRow(rows)
			if err != nil {
				return err
			}
			rich := RichActivity{Activity: act}
			if objInternal != nil {
				obj, err := s.Ctx.Store.Objects.GetByInternal(ctx, tx, *objInternal)
				if err != nil && err != sql.ErrNoRows {
					return err
				}
				if obj != nil {
					if err := s.annotateObject(ctx, tx, viewer, obj, &rich.LikedByMe, &rich.Attachments, &rich.Hashtags, &rich.Mentions); err != nil {
						return err
					}
					rich.Object = obj
				}
			}
			out = append(out, rich)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Objects returns the objects addressed to viewer (or public, when viewer
// is nil), newest first, paginated by addressing's published timestamp.
// It mirrors the upstream Query::objects selector: addressing INNER
// JOINed to objects directly (skipping the owning activity).
func (s *Selector) Objects(ctx context.Context, viewer *int64, before time.Time, limit int) ([]RichObject, error) {
	limit = clampLimit(limit)

	const q = `SELECT DISTINCT ON (addressing.published, objects.internal)
		objects.internal, objects.ap_id, objects.object_type, objects.attributed_to, objects.name,
		objects.summary, objects.content, objects.sensitive, objects.in_reply_to, objects.context,
		objects.quote, objects.image, objects.url, objects.published, objects.updated,
		objects.to_list, objects.bto_list, objects.cc_list, objects.bcc_list, objects.audience,
		objects.replies, objects.likes, objects.announces
		FROM addressing
		INNER JOIN objects ON objects.internal = addressing.object
		WHERE (addressing.actor = $1 OR addressing.actor IS NULL)
			AND addressing.published < $2
		ORDER BY addressing.published DESC, objects.internal DESC
		LIMIT $3`

	var out []RichObject
	err := s.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, q, viewer, before, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			obj, err := scanObjectRow(rows)
			if err != nil {
				return err
			}
			rich := RichObject{Object: obj}
			if err := s.annotateObject(ctx, tx, viewer, obj, &rich.LikedByMe, &rich.Attachments, &rich.Hashtags, &rich.Mentions); err != nil {
				return err
			}
			out = append(out, rich)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Thread returns every object sharing root's conversation context,
// published ascending — the flattened reply tree normalize.InsertObject
// maintains via the object's context column, rather than a recursive
// in_reply_to walk.
func (s *Selector) Thread(ctx context.Context, root *model.Object, limit int) ([]RichObject, error) {
	limit = clampLimit(limit)
	if root.Context == nil {
		return []RichObject{{Object: root}}, nil
	}

	const q = `SELECT ` + objectColumnsForSelect + `
		FROM objects WHERE context = $1 ORDER BY published ASC LIMIT $2`

	var out []RichObject
	err := s.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, q, *root.Context, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			obj, err := scanObjectRow(rows)
			if err != nil {
				return err
			}
			rich := RichObject{Object: obj}
			if err := s.annotateObject(ctx, tx, nil, obj, &rich.LikedByMe, &rich.Attachments, &rich.Hashtags, &rich.Mentions); err != nil {
				return err
			}
			out = append(out, rich)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Followers returns the accepted followers of actorInternal, newest
// relation first, as a page of actors rather than the bare ap_id list
// store.Relations.ListFollowerAPIDs returns (that method serves the
// Addresser's audience expansion; this one serves a rendered followers
// collection page).
func (s *Selector) Followers(ctx context.Context, actorInternal int64, limit int) ([]model.Actor, error) {
	limit = clampLimit(limit)

	const q = `SELECT a.internal, a.ap_id, a.actor_type, a.domain, a.preferred_username, a.name,
		a.summary, a.icon, a.image, a.fields, a.inbox, a.outbox, a.shared_inbox, a.following, a.followers,
		a.following_count, a.followers_count, a.statuses_count, a.public_key, a.private_key,
		a.also_known_as, a.moved_to, a.published, a.updated
		FROM relations r JOIN actors a ON a.internal = r.follower
		WHERE r.following = $1 AND r.accept IS NOT NULL
		ORDER BY r.internal DESC LIMIT $2`

	var out []model.Actor
	err := s.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, q, actorInternal, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a model.Actor
			var alsoKnownAs pq.StringArray
			var fields []byte
			if err := rows.Scan(&a.Internal, &a.APID, &a.ActorType, &a.Domain, &a.PreferredUser, &a.Name,
				&a.Summary, &a.Icon, &a.Image, &fields, &a.Inbox, &a.Outbox, &a.SharedInbox, &a.Following, &a.Followers,
				&a.FollowingCount, &a.FollowersCount, &a.StatusesCount, &a.PublicKeyPEM, &a.PrivateKeyPEM,
				&alsoKnownAs, &a.MovedTo, &a.Published, &a.Updated); err != nil {
				return err
			}
			a.AlsoKnownAs = []string(alsoKnownAs)
			if len(fields) > 0 {
				_ = json.Unmarshal(fields, &a.Fields)
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// annotateObject fills liked/attachments/hashtags/mentions for obj.
func (s *Selector) annotateObject(ctx context.Context, tx *sql.Tx, viewer *int64, obj *model.Object,
	liked *bool, attachments *[]model.Attachment, hashtags *[]model.Hashtag, mentions *[]model.Mention) error {
	if viewer != nil {
		like, err := s.Ctx.Store.Likes.GetByActorObject(ctx, tx, *viewer, obj.Internal)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		*liked = like != nil
	}

	var err error
	if *attachments, err = s.Ctx.Store.Attachments.ListByObject(ctx, tx, obj.Internal); err != nil {
		return err
	}
	if *hashtags, err = s.Ctx.Store.Hashtags.ListByObject(ctx, tx, obj.Internal); err != nil {
		return err
	}
	if *mentions, err = s.Ctx.Store.Mentions.ListByObject(ctx, tx, obj.Internal); err != nil {
		return err
	}
	return nil
}

// objectColumnsForSelect mirrors store.objectColumns, which is unexported
// and can't be imported directly; Thread's plain `objects` scan must match
// it column-for-column.
const objectColumnsForSelect = `internal, ap_id, object_type, attributed_to, name, summary, content,
	sensitive, in_reply_to, context, quote, image, url, published, updated,
	to_list, bto_list, cc_list, bcc_list, audience, replies, likes, announces`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanActivityRow scans one Timeline row: the activityColumns projection
// plus the trailing addressing.object internal id.
func scanActivityRow(row rowScanner) (*model.Activity, *int64, error) {
	var act model.Activity
	var to, bto, cc, bcc pq.StringArray
	var addressingObject *int64
	if err := row.Scan(&act.Internal, &act.APID, &act.ActivityType, &act.Actor, &act.Object, &act.Target,
		&act.Content, &act.Published, &to, &bto, &cc, &bcc, &addressingObject); err != nil {
		return nil, nil, err
	}
	act.To, act.BTo, act.CC, act.BCC = []string(to), []string(bto), []string(cc), []string(bcc)
	return &act, addressingObject, nil
}

// scanObjectRow scans one row shaped like store.objectColumns.
func scanObjectRow(row rowScanner) (*model.Object, error) {
	var obj model.Object
	var to, bto, cc, bcc pq.StringArray
	if err := row.Scan(&obj.Internal, &obj.APID, &obj.ObjectType, &obj.AttributedTo, &obj.Name, &obj.Summary,
		&obj.Content, &obj.Sensitive, &obj.InReplyTo, &obj.Context, &obj.Quote, &obj.Image, &obj.URL,
		&obj.Published, &obj.Updated, &to, &bto, &cc, &bcc, &obj.Audience, &obj.Replies, &obj.Likes,
		&obj.Announces); err != nil {
		return nil, err
	}
	obj.To, obj.BTo, obj.CC, obj.BCC = []string(to), []string(bto), []string(cc), []string(bcc)
	return &obj, nil
}
