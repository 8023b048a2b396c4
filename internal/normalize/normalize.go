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

// Package normalize implements the Normalizer (§4.d): turning a typed
// ActivityPub document into its Object or Activity row, sanitizing HTML,
// maintaining the denormalized reply/like/share/status counters, and
// extracting attachments/mentions/hashtags. Grounded on
// original_source/upub/core/src/traits/normalize.rs for the field mapping
// and counter bookkeeping, and on go-fed-apcore/models/* for the
// table-per-entity persistence shape already built in internal/store.
//
// Actor normalization (extracting keys/endpoints/counters from a remote
// actor document, never writing a private key off the wire) lives in
// internal/fetch instead of here: the Fetcher already owns the single
// transaction that best-effort-counts an actor's followers/following and
// inserts the row, so routing that same data through a second Normalizer
// call would only add an indirection without changing what's stored.
package normalize

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/upub-fed/core/internal/apjson"
	"github.com/upub-fed/core/internal/apperr"
	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/model"
)

// ActorFetcher is the narrow surface Normalizer needs from internal/fetch,
// declared here instead of imported so the two packages don't form a cycle:
// Fetcher in turn depends on a narrow Normalizer-shaped interface of its own.
type ActorFetcher interface {
	FetchUser(ctx context.Context, id string) (*model.Actor, error)
}

// Normalizer converts dereferenced documents into model rows.
type Normalizer struct {
	Ctx     *ctxcore.Context
	Fetcher ActorFetcher
	policy  *bluemonday.Policy
}

// New builds a Normalizer with the fixed content sanitization policy (§4.d:
// "allow a fixed tag/attribute list; strip script, event handlers, style").
func New(ctx *ctxcore.Context, fetcher ActorFetcher) *Normalizer {
	return &Normalizer{Ctx: ctx, Fetcher: fetcher, policy: contentPolicy()}
}

// Sanitize runs content through the same HTML policy InsertObject applies,
// exported for internal/process's Update(Object) handler, which overwrites
// content outside of InsertObject's own path.
func (n *Normalizer) Sanitize(content string) string { return n.policy.Sanitize(content) }

// contentPolicy allows the small inline-markup subset fediverse posts
// actually use, rejecting scripts, inline event handlers, and style
// attributes outright.
func contentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowAttrs("href", "rel", "class").OnElements("a")
	p.AllowElements("p", "br", "span", "strong", "b", "em", "i", "u", "del", "code", "pre", "blockquote")
	p.AllowElements("ul", "ol", "li")
	p.RequireNoFollowOnLinks(true)
	return p
}

// InsertObject maps doc to an Object row and persists it, along with its
// attachments/mentions/hashtags, and maintains the reply/statuses counters
// (§4.d step 1).
func (n *Normalizer) InsertObject(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Object, error) {
	switch doc.Kind() {
	case apjson.KindActivity, apjson.KindActor, apjson.KindCollection, apjson.KindCollectionPage, apjson.KindLink:
		return nil, apperr.Malformedf("type")
	}

	id, err := doc.ID()
	if err != nil {
		return nil, err
	}

	obj := &model.Object{
		APID:       id,
		ObjectType: model.ObjectType(doc.TypeString()),
		Sensitive:  doc.Sensitive(),
		To:         doc.To(),
		BTo:        doc.BTo(),
		CC:         doc.CC(),
		BCC:        doc.BCC(),
	}

	if attrib, ok := doc.AttributedTo(); ok {
		if author, err := n.Ctx.Store.Actors.GetByAPID(ctx, tx, attrib); err == nil {
			obj.AttributedTo = &author.Internal
		}
	}
	if name, ok := doc.Name(); ok {
		obj.Name = &name
	}
	if summary, ok := doc.Summary(); ok {
		obj.Summary = &summary
	}
	if content, ok := doc.Content(); ok {
		safe := n.policy.Sanitize(content)
		obj.Content = &safe
	}
	if img, ok := doc.Image(); ok {
		obj.Image = &img
	}
	if url, ok := doc.URL(); ok {
		obj.URL = &url
	}
	if quote, ok := doc.Quote(); ok {
		obj.Quote = &quote
	}
	if audience, ok := doc.Audience(); ok {
		obj.Audience = &audience
	}
	if published, ok := doc.Published(); ok {
		obj.Published = published
	} else {
		obj.Published = time.Now().UTC()
	}
	if updated, ok := doc.Updated(); ok {
		obj.Updated = updated
	} else {
		obj.Updated = obj.Published
	}
	if n, ok := doc.CollectionTotalItems("likes"); ok {
		obj.Likes = n
	}
	if n, ok := doc.CollectionTotalItems("shares"); ok {
		obj.Announces = n
	}

	// Resolve context: inherit the parent's when in_reply_to is known,
	// otherwise this object is its own thread root.
	var parent *model.Object
	if reply, ok := doc.InReplyTo(); ok {
		obj.InReplyTo = nil
		if p, err := n.Ctx.Store.Objects.GetByAPID(ctx, tx, reply); err == nil {
			parent = p
			obj.InReplyTo = &p.Internal
			obj.Context = p.Context
		}
		// a broken/unresolved parent leaves Context nil, to be filled by a
		// later pass once the parent eventually arrives.
	} else {
		obj.Context = &id
	}

	internal, err := n.Ctx.Store.Objects.Insert(ctx, tx, obj)
	if err != nil {
		return nil, apperr.Databasef(err)
	}
	obj.Internal = internal

	if parent != nil {
		if err := n.Ctx.Store.Objects.IncrementReplies(ctx, tx, parent.Internal, 1); err != nil {
			return nil, apperr.Databasef(err)
		}
	}
	if obj.AttributedTo != nil {
		if err := n.Ctx.Store.Actors.IncrementStatusesCount(ctx, tx, *obj.AttributedTo, 1); err != nil {
			return nil, apperr.Databasef(err)
		}
	}

	if err := n.insertAttachments(ctx, tx, doc, obj); err != nil {
		return nil, err
	}
	if err := n.insertTags(ctx, tx, doc, obj); err != nil {
		return nil, err
	}

	return obj, nil
}

type named interface {
	Name() (string, bool)
}

// insertAttachments walks doc's "attachment" field and, as a Lemmy
// compatibility fallback, its top-level "image" field (§4.d Lemmy notes).
func (n *Normalizer) insertAttachments(ctx context.Context, tx *sql.Tx, doc *apjson.Doc, obj *model.Object) error {
	attachments := doc.Attachments()
	imageURL, hasImage := doc.Image()

	skipFirst := false
	if hasImage && len(attachments) == 1 && n.Ctx.Config.Compat.SkipSingleAttachmentIfImageIsSet {
		if href, ok := attachments[0].Href(); ok && href == imageURL {
			skipFirst = true
		}
	}

	for i, att := range attachments {
		if i == 0 && skipFirst {
			continue
		}
		href, ok := att.Href()
		if !ok {
			continue
		}
		mediaType, hasMediaType := att.MediaType()
		if !hasMediaType {
			mediaType = "link"
			if n.Ctx.Config.Compat.FixAttachmentImagesMediaType {
				if fixed, ok := mediaTypeFromExtension(href); ok {
					mediaType = fixed
				}
			}
		}
		docType := att.TypeString()
		if docType == "" {
			docType = "Document"
		}
		a := &model.Attachment{Object: obj.Internal, URL: href, DocumentType: docType, MediaType: mediaType}
		if nm, ok := att.(named); ok {
			if s, ok := nm.Name(); ok {
				a.Name = &s
			}
		}
		if _, err := n.Ctx.Store.Attachments.Insert(ctx, tx, a); err != nil {
			return apperr.Databasef(err)
		}
	}

	// Lemmy sends an "image" field on posts with no matching attachment;
	// treat it as one so it still renders.
	if hasImage && !skipFirst && len(attachments) == 0 {
		mediaType := "link"
		if n.Ctx.Config.Compat.FixAttachmentImagesMediaType {
			if fixed, ok := mediaTypeFromExtension(imageURL); ok {
				mediaType = fixed
			}
		}
		a := &model.Attachment{Object: obj.Internal, URL: imageURL, DocumentType: "Image", MediaType: mediaType}
		if _, err := n.Ctx.Store.Attachments.Insert(ctx, tx, a); err != nil {
			return apperr.Databasef(err)
		}
	}
	return nil
}

// insertTags walks doc's "tag" field, splitting Mention links from Hashtag
// objects; mention resolution is best-effort and failures are silent
// (§4.d: "resolving the mentioned actor by fetch; silent failure allowed").
func (n *Normalizer) insertTags(ctx context.Context, tx *sql.Tx, doc *apjson.Doc, obj *model.Object) error {
	for _, tag := range doc.Tags() {
		switch tag.TypeString() {
		case "Mention":
			href, ok := tag.Href()
			if !ok {
				continue
			}
			if _, err := n.Ctx.Store.Mentions.Insert(ctx, tx, &model.Mention{Object: obj.Internal, ActorAPID: href}); err != nil {
				return apperr.Databasef(err)
			}
			if n.Fetcher != nil {
				_, _ = n.Fetcher.FetchUser(ctx, href)
			}
		case "Hashtag":
			name, ok := tag.Name()
			if !ok {
				continue
			}
			name = strings.TrimPrefix(name, "#")
			if _, err := n.Ctx.Store.Hashtags.Insert(ctx, tx, &model.Hashtag{Object: obj.Internal, Name: name}); err != nil {
				return apperr.Databasef(err)
			}
		}
	}
	return nil
}

func mediaTypeFromExtension(url string) (string, bool) {
	switch {
	case strings.HasSuffix(url, ".png"):
		return "image/png", true
	case strings.HasSuffix(url, ".webp"):
		return "image/webp", true
	case strings.HasSuffix(url, ".jpeg"), strings.HasSuffix(url, ".jpg"):
		return "image/jpeg", true
	default:
		return "", false
	}
}

// InsertActivity maps doc to an Activity row and persists it, forcing
// Follow/Accept to address their object explicitly (§4.d step 2: "many
// peers omit this and recipients could otherwise never see the activity").
func (n *Normalizer) InsertActivity(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Activity, error) {
	id, err := doc.ID()
	if err != nil {
		return nil, err
	}
	actorIRI, err := doc.ActorIRI()
	if err != nil {
		return nil, err
	}
	actor, err := n.Ctx.Store.Actors.GetByAPID(ctx, tx, actorIRI)
	if err == sql.ErrNoRows {
		return nil, apperr.Incompletef("unresolved actor %s", actorIRI)
	}
	if err != nil {
		return nil, apperr.Databasef(err)
	}

	activityType := model.ActivityType(doc.TypeString())
	to := doc.To()

	objectIRI, hasObjectIRI := doc.ObjectIRI()
	if (activityType == model.ActivityFollow || activityType == model.ActivityAccept) && hasObjectIRI {
		if !containsString(to, objectIRI) {
			to = append(to, objectIRI)
		}
	}

	var objectRef *string
	if hasObjectIRI {
		objectRef = &objectIRI
	} else if objDoc, ok := doc.ObjectDoc(); ok {
		if oid, err := objDoc.ID(); err == nil {
			objectRef = &oid
		}
	}

	var target *string
	if t, ok := doc.Target(); ok {
		target = &t
	}
	var content *string
	if c, ok := doc.Content(); ok {
		content = &c
	}

	act := &model.Activity{
		APID:         id,
		ActivityType: activityType,
		Actor:        actor.Internal,
		Object:       objectRef,
		Target:       target,
		Content:      content,
		To:           to,
		BTo:          doc.BTo(),
		CC:           doc.CC(),
		BCC:          doc.BCC(),
	}

	internal, err := n.Ctx.Store.Activities.Insert(ctx, tx, act)
	if err != nil {
		return nil, apperr.Databasef(err)
	}
	act.Internal = internal
	return act, nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
