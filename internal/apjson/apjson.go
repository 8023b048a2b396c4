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

// Package apjson is the capability-based accessor layer over a raw
// ActivityPub JSON document. Rather than a generated vocabulary, it exposes
// a handful of typed accessor interfaces (Base, Object, Actor, Activity,
// Collection, Document, PublicKey) backed by valyala/fastjson; there is no
// separate Link or Endpoints interface, a bare Link is read through
// Document. The Normalizer/Fetcher/Outbox Builder thus the Normalizer/Fetcher/Outbox Builder consume an
// interface instead of a concrete parse tree — a hand-rolled vocabulary of
// every AS2 extension is explicitly out of scope (see design note 9).
package apjson

import (
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/upub-fed/core/internal/apperr"
)

// Kind is the structural category the Fetcher dispatches on (§4.c step 4).
type Kind int

const (
	KindObject Kind = iota
	KindActivity
	KindActor
	KindCollection
	KindCollectionPage
	KindLink
	KindTombstone
	KindUnknown
)

var activityTypes = map[string]bool{
	"Create": true, "Update": true, "Delete": true, "Follow": true,
	"Accept": true, "Reject": true, "TentativeAccept": true, "TentativeReject": true,
	"Add": true, "Remove": true, "Like": true, "EmojiReact": true, "Announce": true,
	"Undo": true, "Move": true, "View": true, "Block": true,
}

var actorTypes = map[string]bool{
	"Person": true, "Service": true, "Application": true, "Group": true, "Organization": true,
}

var linkTypes = map[string]bool{"Link": true, "Mention": true}

var collectionTypes = map[string]bool{"Collection": true, "OrderedCollection": true}

var collectionPageTypes = map[string]bool{"CollectionPage": true, "OrderedCollectionPage": true}

// ClassifyType maps a raw "type" string to its structural Kind.
func ClassifyType(raw string) Kind {
	switch {
	case raw == "Tombstone":
		return KindTombstone
	case activityTypes[raw]:
		return KindActivity
	case actorTypes[raw]:
		return KindActor
	case collectionTypes[raw]:
		return KindCollection
	case collectionPageTypes[raw]:
		return KindCollectionPage
	case linkTypes[raw]:
		return KindLink
	case raw == "":
		return KindUnknown
	default:
		return KindObject
	}
}

// PublicURI is the well-known addressing target meaning "world readable."
const PublicURI = "https://www.w3.org/ns/activitystreams#Public"

// Doc wraps one parsed JSON document and satisfies Base plus whichever of
// Object/Actor/Activity/Collection/Document/PublicKey its
// fields support; callers branch on ClassifyType(doc.TypeString()) first.
type Doc struct {
	v *fastjson.Value
}

// Parse parses raw JSON into a Doc, failing Malformed("body") if it is not
// valid JSON or not a JSON object at the top level.
func Parse(raw []byte) (*Doc, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, apperr.Malformedf("body")
	}
	if v.Type() != fastjson.TypeObject {
		return nil, apperr.Malformedf("body")
	}
	return &Doc{v: v}, nil
}

// Wrap adapts an already-parsed value (e.g. one element of a collection's
// "items" array) into a Doc.
func Wrap(v *fastjson.Value) *Doc { return &Doc{v: v} }

// Raw exposes the underlying value for callers that need a capability this
// layer doesn't wrap.
func (d *Doc) Raw() *fastjson.Value { return d.v }

// --- Base ---

// Base is the accessor set every ActivityPub node supports.
type Base interface {
	ID() (string, error)
	TypeString() string
	Kind() Kind
}

func (d *Doc) ID() (string, error) {
	s, ok := getString(d.v, "id")
	if !ok || s == "" {
		return "", apperr.Malformedf("id")
	}
	return s, nil
}

// TypeString returns the first element when "type" is an array, matching
// how most fediverse peers encode single-typed documents.
func (d *Doc) TypeString() string {
	t := d.v.Get("type")
	if t == nil {
		return ""
	}
	if t.Type() == fastjson.TypeArray {
		items, _ := t.Array()
		if len(items) == 0 {
			return ""
		}
		s, _ := items[0].StringBytes()
		return string(s)
	}
	s, _ := t.StringBytes()
	return string(s)
}

func (d *Doc) Kind() Kind { return ClassifyType(d.TypeString()) }

// --- Object ---

// Object is the accessor set for Note/Article/Event/Place/Profile/… and
// the embeddable Object facet of an Activity.
type Object interface {
	Base
	Name() (string, bool)
	Summary() (string, bool)
	Content() (string, bool)
	AttributedTo() (string, bool)
	InReplyTo() (string, bool)
	Context() (string, bool)
	URL() (string, bool)
	Image() (string, bool)
	Sensitive() bool
	Audience() (string, bool)
	To() []string
	BTo() []string
	CC() []string
	BCC() []string
	Published() (time.Time, bool)
	Updated() (time.Time, bool)
	Attachments() []Document
	Tags() []*Doc
}

func (d *Doc) Name() (string, bool)         { return getString(d.v, "name") }
func (d *Doc) Summary() (string, bool)      { return getString(d.v, "summary") }
func (d *Doc) Content() (string, bool)      { return getString(d.v, "content") }
func (d *Doc) Context() (string, bool)      { return getString(d.v, "context") }
func (d *Doc) Quote() (string, bool)        { return getStringOrID(d.v, "quote") }
func (d *Doc) Image() (string, bool)        { return getStringOrID(d.v, "image") }
func (d *Doc) URL() (string, bool)          { return getStringOrID(d.v, "url") }
func (d *Doc) Sensitive() bool              { b := d.v.Get("sensitive"); return b != nil && b.Type() == fastjson.TypeTrue }

func (d *Doc) AttributedTo() (string, bool) { return getStringOrID(d.v, "attributedTo") }
func (d *Doc) InReplyTo() (string, bool)    { return getStringOrID(d.v, "inReplyTo") }
func (d *Doc) Audience() (string, bool)     { return getStringOrID(d.v, "audience") }

func (d *Doc) To() []string   { return stringOrIDArray(d.v, "to") }
func (d *Doc) BTo() []string  { return stringOrIDArray(d.v, "bto") }
func (d *Doc) CC() []string   { return stringOrIDArray(d.v, "cc") }
func (d *Doc) BCC() []string  { return stringOrIDArray(d.v, "bcc") }

func (d *Doc) Published() (time.Time, bool) { return getTime(d.v, "published") }
func (d *Doc) Updated() (time.Time, bool)   { return getTime(d.v, "updated") }

// Attachments walks the "attachment" field, which may be a bare Link, a
// single Document/Object, or an array of either.
func (d *Doc) Attachments() []Document {
	raw := d.v.Get("attachment")
	if raw == nil {
		return nil
	}
	var out []Document
	for _, item := range asArray(raw) {
		out = append(out, Wrap(item))
	}
	return out
}

// CollectionTotalItems peeks at a nested (Ordered)Collection field (e.g.
// "replies", "likes", "shares") and returns its totalItems, for peers that
// publish an initial count inline instead of making it fetchable.
func (d *Doc) CollectionTotalItems(key string) (int, bool) {
	sub := d.v.Get(key)
	if sub == nil || sub.Type() != fastjson.TypeObject {
		return 0, false
	}
	return Wrap(sub).TotalItems()
}

// Tags walks the "tag" field (Mention links and Hashtag objects).
func (d *Doc) Tags() []*Doc {
	raw := d.v.Get("tag")
	if raw == nil {
		return nil
	}
	var out []*Doc
	for _, item := range asArray(raw) {
		out = append(out, Wrap(item))
	}
	return out
}

// --- Document (attachment/media facet) ---

// Document is the accessor set for an attachment: either a bare Link or a
// Document/Image/Video/Audio object.
type Document interface {
	Base
	Href() (string, bool)
	MediaType() (string, bool)
}

func (d *Doc) Href() (string, bool) {
	if s, ok := getString(d.v, "href"); ok {
		return s, true
	}
	return getString(d.v, "url")
}

func (d *Doc) MediaType() (string, bool) { return getString(d.v, "mediaType") }

// --- Actor ---

// Actor is the accessor set for Person/Service/Application/Group/Organization.
type Actor interface {
	Base
	PreferredUsername() (string, error)
	Name() (string, bool)
	Summary() (string, bool)
	Icon() (string, bool)
	Image() (string, bool)
	Inbox() (string, error)
	Outbox() (string, bool)
	Following() (string, bool)
	Followers() (string, bool)
	SharedInbox() (string, bool)
	PublicKey() (PublicKey, bool)
	AlsoKnownAs() []string
	MovedTo() (string, bool)
}

func (d *Doc) PreferredUsername() (string, error) {
	s, ok := getString(d.v, "preferredUsername")
	if !ok || s == "" {
		return "", apperr.Malformedf("preferredUsername")
	}
	return s, nil
}

func (d *Doc) Icon() (string, bool) { return getStringOrID(d.v, "icon") }

func (d *Doc) Inbox() (string, error) {
	s, ok := getStringOrID(d.v, "inbox")
	if !ok || s == "" {
		return "", apperr.Malformedf("inbox")
	}
	return s, nil
}

func (d *Doc) Outbox() (string, bool)    { return getStringOrID(d.v, "outbox") }
func (d *Doc) Following() (string, bool) { return getStringOrID(d.v, "following") }
func (d *Doc) Followers() (string, bool) { return getStringOrID(d.v, "followers") }

func (d *Doc) SharedInbox() (string, bool) {
	ep := d.v.Get("endpoints")
	if ep == nil {
		return "", false
	}
	return getStringOrID(ep, "sharedInbox")
}

func (d *Doc) AlsoKnownAs() []string { return stringOrIDArray(d.v, "alsoKnownAs") }
func (d *Doc) MovedTo() (string, bool) { return getStringOrID(d.v, "movedTo") }

// PublicKey is the accessor set for an actor's published signing key.
type PublicKey interface {
	Owner() (string, bool)
	ID() (string, error)
	PEM() (string, error)
}

func (d *Doc) PublicKey() (PublicKey, bool) {
	pk := d.v.Get("publicKey")
	if pk == nil {
		return nil, false
	}
	return Wrap(pk), true
}

func (d *Doc) Owner() (string, bool) { return getString(d.v, "owner") }

func (d *Doc) PEM() (string, error) {
	s, ok := getString(d.v, "publicKeyPem")
	if !ok || s == "" {
		return "", apperr.Malformedf("publicKeyPem")
	}
	return s, nil
}

// --- Activity ---

// Activity is the accessor set for a typed action.
type Activity interface {
	Base
	ActorIRI() (string, error)
	ObjectIRI() (string, bool)
	ObjectDoc() (*Doc, bool)
	Target() (string, bool)
	Content() (string, bool)
	To() []string
	BTo() []string
	CC() []string
	BCC() []string
	Published() (time.Time, bool)
}

func (d *Doc) ActorIRI() (string, error) {
	s, ok := getStringOrID(d.v, "actor")
	if !ok || s == "" {
		return "", apperr.Malformedf("actor")
	}
	return s, nil
}

// ObjectIRI returns the object field when it is a bare IRI string; ok is
// false when object is absent or is any JSON object, embedded document or
// link object alike.
func (d *Doc) ObjectIRI() (string, bool) {
	raw := d.v.Get("object")
	if raw == nil {
		return "", false
	}
	if raw.Type() == fastjson.TypeString {
		s, _ := raw.StringBytes()
		return string(s), true
	}
	return "", false
}

// ObjectDoc returns the object field as an embedded document when it is a
// JSON object rather than a bare string IRI.
func (d *Doc) ObjectDoc() (*Doc, bool) {
	raw := d.v.Get("object")
	if raw == nil || raw.Type() != fastjson.TypeObject {
		return nil, false
	}
	return Wrap(raw), true
}

func (d *Doc) Target() (string, bool) { return getStringOrID(d.v, "target") }

// --- Collection ---

// Collection is the accessor set for an (Ordered)Collection(Page).
type Collection interface {
	Base
	TotalItems() (int, bool)
	Items() []*Doc
	Next() (string, bool)
	First() (string, bool)
}

func (d *Doc) TotalItems() (int, bool) {
	v := d.v.Get("totalItems")
	if v == nil {
		return 0, false
	}
	n, err := v.Int()
	if err != nil {
		return 0, false
	}
	return n, true
}

func (d *Doc) Items() []*Doc {
	raw := d.v.Get("orderedItems")
	if raw == nil {
		raw = d.v.Get("items")
	}
	if raw == nil {
		return nil
	}
	var out []*Doc
	for _, item := range asArray(raw) {
		out = append(out, Wrap(item))
	}
	return out
}

func (d *Doc) Next() (string, bool)  { return getStringOrID(d.v, "next") }
func (d *Doc) First() (string, bool) { return getStringOrID(d.v, "first") }

// --- helpers ---

func getString(v *fastjson.Value, key string) (string, bool) {
	sub := v.Get(key)
	if sub == nil || sub.Type() != fastjson.TypeString {
		return "", false
	}
	b, err := sub.StringBytes()
	if err != nil {
		return "", false
	}
	return string(b), true
}

// getStringOrID reads key as either a bare string IRI or an object/array
// carrying an "id" field, the two shapes ActivityPub peers mix freely.
func getStringOrID(v *fastjson.Value, key string) (string, bool) {
	sub := v.Get(key)
	if sub == nil {
		return "", false
	}
	switch sub.Type() {
	case fastjson.TypeString:
		b, _ := sub.StringBytes()
		return string(b), true
	case fastjson.TypeObject:
		return getString(sub, "id")
	case fastjson.TypeArray:
		items, _ := sub.Array()
		if len(items) == 0 {
			return "", false
		}
		if items[0].Type() == fastjson.TypeString {
			b, _ := items[0].StringBytes()
			return string(b), true
		}
		return getString(items[0], "id")
	default:
		return "", false
	}
}

// stringOrIDArray normalizes a to/cc/bcc/tag-shaped field (string, object
// with id, or array of either) into a flat slice of IRIs.
func stringOrIDArray(v *fastjson.Value, key string) []string {
	sub := v.Get(key)
	if sub == nil {
		return nil
	}
	var out []string
	for _, item := range asArray(sub) {
		switch item.Type() {
		case fastjson.TypeString:
			b, _ := item.StringBytes()
			out = append(out, string(b))
		case fastjson.TypeObject:
			if id, ok := getString(item, "id"); ok {
				out = append(out, id)
			}
		}
	}
	return out
}

// asArray normalizes a value that may be a bare scalar/object or an array
// into a slice, so callers don't special-case the singular form.
func asArray(v *fastjson.Value) []*fastjson.Value {
	if v == nil {
		return nil
	}
	if v.Type() == fastjson.TypeArray {
		items, _ := v.Array()
		return items
	}
	return []*fastjson.Value{v}
}

func getTime(v *fastjson.Value, key string) (time.Time, bool) {
	s, ok := getString(v, key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FieldError wraps a malformed-field error with extra context, used by
// callers that want to name the containing type in a log line.
func FieldError(typ, field string) error {
	return fmt.Errorf("%s: %w", typ, apperr.Malformedf(field))
}

// IsPublic reports whether any of the given addressing targets is the
// well-known public URI.
func IsPublic(targets ...string) bool {
	for _, t := range targets {
		if t == PublicURI {
			return true
		}
	}
	return false
}

// IsFollowersURL reports whether target is exactly followersURL, an actor's
// followers collection URL; an empty followersURL never matches.
func IsFollowersURL(target, followersURL string) bool {
	return followersURL != "" && target == followersURL
}

// HasSuffix is a small helper kept local so callers needn't import strings
// for this one check.
func HasSuffix(s, suffix string) bool { return strings.HasSuffix(s, suffix) }
