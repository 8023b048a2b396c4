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

// Package fetch implements the Fetcher (§4.c): dereferencing a remote IRI
// with a signed GET, classifying the result, and recursively resolving the
// actor/object/reply-thread context an activity needs before it can be
// normalized and addressed. Grounded on go-fed-apcore's transport.go for
// the signed-request shape and the original upub Context's Fetcher trait
// for the pull/resolve recursion.
package fetch

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fastjson"

	"github.com/upub-fed/core/internal/apjson"
	"github.com/upub-fed/core/internal/apperr"
	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/httpsig"
	"github.com/upub-fed/core/internal/model"
)

const activityStreamsContentType = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

// Normalizer is the narrow surface the Fetcher needs from internal/normalize,
// declared here (not imported) so the two packages don't form an import
// cycle: normalize in turn depends on a narrow Fetcher-shaped interface of
// its own to resolve mentions.
type Normalizer interface {
	InsertActivity(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Activity, error)
	InsertObject(ctx context.Context, tx *sql.Tx, doc *apjson.Doc) (*model.Object, error)
}

// Addresser is the narrow surface the Fetcher needs from internal/address.
type Addresser interface {
	Address(ctx context.Context, tx *sql.Tx, activity, object *int64, to, bto, cc, bcc []string, audience *string) error
}

// Pull tags a dereferenced document with its structural classification, the
// Go analogue of the original's Pull<T> enum.
type Pull struct {
	Kind apjson.Kind
	Doc  *apjson.Doc
}

// Actor unwraps a Pull expected to be an actor document.
func (p Pull) Actor() (*apjson.Doc, error) {
	if p.Kind != apjson.KindActor {
		return nil, apperr.Unprocessablef("expected actor, dereferenced %v", p.Kind)
	}
	return p.Doc, nil
}

// Activity unwraps a Pull expected to be an activity document.
func (p Pull) Activity() (*apjson.Doc, error) {
	if p.Kind != apjson.KindActivity {
		return nil, apperr.Unprocessablef("expected activity, dereferenced %v", p.Kind)
	}
	return p.Doc, nil
}

// Object unwraps a Pull expected to be a plain object document.
func (p Pull) Object() (*apjson.Doc, error) {
	if p.Kind != apjson.KindObject {
		return nil, apperr.Unprocessablef("expected object, dereferenced %v", p.Kind)
	}
	return p.Doc, nil
}

// Fetcher dereferences and resolves remote ActivityPub resources.
type Fetcher struct {
	Ctx        *ctxcore.Context
	Normalizer Normalizer
	Addresser  Addresser
	Client     *http.Client
}

// New builds a Fetcher bound to ctx, with a default timeout client sized
// from the configured request_timeout (§6).
func New(ctx *ctxcore.Context, normalizer Normalizer, addresser Addresser) *Fetcher {
	timeout := time.Duration(ctx.Config.Security.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		Ctx:        ctx,
		Normalizer: normalizer,
		Addresser:  addresser,
		Client:     &http.Client{Timeout: timeout},
	}
}

// request issues a signed GET to url using the application actor's key.
func (f *Fetcher) request(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Databasef(err)
	}
	req.Header.Set("Accept", activityStreamsContentType)
	req.Header.Set("Accept-Charset", "utf-8")
	req.Header.Set("User-Agent", fmt.Sprintf("upub-fed-core (%s)", f.Ctx.Domain))
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", ctxcore.Server(url))

	keyID := f.Ctx.Actor.APID + "#main-key"
	if err := httpsig.SignGet(req, f.Ctx.PrivKey, keyID); err != nil {
		return nil, apperr.HTTPSignaturef("signing dereference request: %s", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, apperr.Pullf(0, err.Error())
	}
	return resp, nil
}

// Pull dereferences id and classifies the result (§4.c step 1-4).
func (f *Fetcher) Pull(ctx context.Context, id string) (Pull, error) {
	return f.pullDepth(ctx, id, 0)
}

func (f *Fetcher) pullDepth(ctx context.Context, id string, depth int) (Pull, error) {
	if _, err := f.FetchDomain(ctx, ctxcore.Server(id)); err != nil {
		return Pull{}, err
	}

	resp, err := f.request(ctx, id)
	if err != nil {
		return Pull{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Pull{}, apperr.Pullf(resp.StatusCode, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return Pull{}, apperr.Pullf(resp.StatusCode, string(body))
	}

	doc, err := apjson.Parse(body)
	if err != nil {
		return Pull{}, err
	}

	docID, err := doc.ID()
	if err != nil {
		return Pull{}, err
	}
	if docID != id {
		if depth >= f.Ctx.Config.Security.MaxIDRedirects {
			return Pull{}, apperr.Incompletef("too many redirects resolving %s", id)
		}
		return f.pullDepth(ctx, docID, depth+1)
	}

	switch k := doc.Kind(); k {
	case apjson.KindCollection, apjson.KindCollectionPage:
		return Pull{}, apperr.Unprocessablef("expected a single resource, dereferenced a collection")
	case apjson.KindTombstone:
		return Pull{}, apperr.Tombstonef("resource %s is a tombstone", id)
	default:
		return Pull{Kind: k, Doc: doc}, nil
	}
}

// Webfinger resolves an acct:user@host handle to its canonical actor IRI
// (§4.c). It returns ("", nil) rather than an error when the responder's
// subject doesn't match what was asked for, matching the original's
// defensive "log and return None" behavior.
func (f *Fetcher) Webfinger(ctx context.Context, user, host string) (string, error) {
	return f.webfingerAt("https://"+host, user, host)
}

// webfingerAt is Webfinger with the scheme+host of the webfinger endpoint
// split out from the acct: subject's host, so tests can point it at an
// httptest server while still exercising real subject/resource formatting.
func (f *Fetcher) webfingerAt(base, user, host string) (string, error) {
	subject := fmt.Sprintf("acct:%s@%s", user, host)
	url := fmt.Sprintf("%s/.well-known/webfinger?resource=%s", base, subject)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", apperr.Databasef(err)
	}
	req.Header.Set("Accept", "application/jrd+json")
	req.Header.Set("User-Agent", fmt.Sprintf("upub-fed-core (%s)", f.Ctx.Domain))

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", apperr.Pullf(0, err.Error())
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Pullf(resp.StatusCode, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperr.Pullf(resp.StatusCode, string(body))
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return "", apperr.Malformedf("webfinger response")
	}

	gotSubject := string(v.GetStringBytes("subject"))
	if gotSubject != subject {
		return "", nil
	}

	var firstAlias string
	for i, alias := range v.GetArray("aliases") {
		if i == 0 {
			firstAlias = string(alias.StringOrZero())
		}
	}
	for _, link := range v.GetArray("links") {
		rel := string(link.GetStringBytes("rel"))
		href := string(link.GetStringBytes("href"))
		if rel == "self" && href != "" {
			return href, nil
		}
	}
	return firstAlias, nil
}

// FetchDomain returns the known Instance row for domain, creating a shell
// row (best-effort enriched from the domain's actor document and NodeInfo)
// if this is the first time we've seen it.
func (f *Fetcher) FetchDomain(ctx context.Context, domain string) (*model.Instance, error) {
	var existing *model.Instance
	err := f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		inst, err := f.Ctx.Store.Instances.GetByDomain(ctx, tx, domain)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		existing = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	inst := &model.Instance{Domain: domain, Published: time.Now().UTC(), Updated: time.Now().UTC()}
	f.enrichFromActorDocument(ctx, domain, inst)
	f.enrichFromNodeInfo(ctx, domain, inst)

	var internal int64
	err = f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var insertErr error
		internal, insertErr = f.Ctx.Store.Instances.Insert(ctx, tx, inst)
		return insertErr
	})
	if err != nil {
		return nil, apperr.Databasef(err)
	}
	inst.Internal = internal
	return inst, nil
}

func (f *Fetcher) enrichFromActorDocument(ctx context.Context, domain string, inst *model.Instance) {
	resp, err := f.request(ctx, "https://"+domain)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return
	}
	doc, err := apjson.Parse(body)
	if err != nil {
		return
	}
	if name, ok := doc.Name(); ok {
		inst.Name = &name
	}
	if icon, ok := doc.Icon(); ok {
		inst.Icon = &icon
	}
}

func (f *Fetcher) enrichFromNodeInfo(ctx context.Context, domain string, inst *model.Instance) {
	wellKnown, err := http.Get("https://" + domain + "/.well-known/nodeinfo")
	if err != nil {
		return
	}
	defer wellKnown.Body.Close()
	if wellKnown.StatusCode != http.StatusOK {
		return
	}
	body, err := io.ReadAll(wellKnown.Body)
	if err != nil {
		return
	}
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return
	}
	var href string
	for _, link := range v.GetArray("links") {
		href = string(link.GetStringBytes("href"))
	}
	if href == "" {
		return
	}
	niResp, err := http.Get(href)
	if err != nil {
		return
	}
	defer niResp.Body.Close()
	if niResp.StatusCode != http.StatusOK {
		return
	}
	var ni fastjson.Parser
	niBody, err := io.ReadAll(niResp.Body)
	if err != nil {
		return
	}
	niVal, err := ni.ParseBytes(niBody)
	if err != nil {
		return
	}
	software := string(niVal.GetStringBytes("software", "name"))
	version := string(niVal.GetStringBytes("software", "version"))
	if software != "" {
		inst.Software = &software
	}
	if version != "" {
		inst.Version = &version
	}
	if total := niVal.Get("usage", "users", "total"); total != nil {
		n, err := total.Int()
		if err == nil {
			inst.Users = &n
		}
	}
	if posts := niVal.Get("usage", "localPosts"); posts != nil {
		n, err := posts.Int()
		if err == nil {
			inst.Posts = &n
		}
	}
}

// FetchUser returns the local row for id, pulling and normalizing it from
// the network if it isn't already known.
func (f *Fetcher) FetchUser(ctx context.Context, id string) (*model.Actor, error) {
	var existing *model.Actor
	err := f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := f.Ctx.Store.Actors.GetByAPID(ctx, tx, id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		existing = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	pulled, err := f.Pull(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := pulled.Actor()
	if err != nil {
		return nil, err
	}
	return f.ResolveUser(ctx, doc)
}

// ResolveUser best-effort pulls an already-fetched actor document's
// followers/following collections to extract totalItems, then normalizes
// and stores the actor.
func (f *Fetcher) ResolveUser(ctx context.Context, doc *apjson.Doc) (*model.Actor, error) {
	var followersCount, followingCount *int
	if followersURL, ok := doc.Followers(); ok {
		if pulled, err := f.Pull(ctx, followersURL); err == nil {
			if n, ok := pulled.Doc.TotalItems(); ok {
				followersCount = &n
			}
		}
	}
	if followingURL, ok := doc.Following(); ok {
		if pulled, err := f.Pull(ctx, followingURL); err == nil {
			if n, ok := pulled.Doc.TotalItems(); ok {
				followingCount = &n
			}
		}
	}

	var actor *model.Actor
	err := f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		a, insertErr := f.insertActorDoc(ctx, tx, doc, followersCount, followingCount)
		if insertErr != nil {
			return insertErr
		}
		actor = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actor, nil
}

// insertActorDoc maps a remote actor document to an Actor row. It never
// writes a private key (§4.d: "never writes private_key from the wire").
// followersCount/followingCount come from a best-effort collection pull and
// may be nil if the endpoint didn't answer or omitted totalItems.
func (f *Fetcher) insertActorDoc(ctx context.Context, tx *sql.Tx, doc *apjson.Doc, followersCount, followingCount *int) (*model.Actor, error) {
	id, err := doc.ID()
	if err != nil {
		return nil, err
	}
	preferred, err := doc.PreferredUsername()
	if err != nil {
		return nil, err
	}
	inbox, err := doc.Inbox()
	if err != nil {
		return nil, err
	}

	inst, err := f.FetchDomain(ctx, ctxcore.Server(id))
	if err != nil {
		return nil, err
	}

	actor := &model.Actor{
		APID:          id,
		ActorType:     model.ActorType(doc.TypeString()),
		Domain:        inst.Internal,
		PreferredUser: preferred,
		Inbox:         &inbox,
		Published:     time.Now().UTC(),
		Updated:       time.Now().UTC(),
	}
	if name, ok := doc.Name(); ok {
		actor.Name = &name
	}
	if summary, ok := doc.Summary(); ok {
		actor.Summary = &summary
	}
	if icon, ok := doc.Icon(); ok {
		actor.Icon = &icon
	}
	if image, ok := doc.Image(); ok {
		actor.Image = &image
	}
	if outbox, ok := doc.Outbox(); ok {
		actor.Outbox = &outbox
	}
	if following, ok := doc.Following(); ok {
		actor.Following = &following
	}
	if followers, ok := doc.Followers(); ok {
		actor.Followers = &followers
	}
	if shared, ok := doc.SharedInbox(); ok {
		actor.SharedInbox = &shared
	}
	if moved, ok := doc.MovedTo(); ok {
		actor.MovedTo = &moved
	}
	actor.AlsoKnownAs = doc.AlsoKnownAs()
	if pk, ok := doc.PublicKey(); ok {
		if pem, err := pk.PEM(); err == nil {
			actor.PublicKeyPEM = pem
		}
	}
	internal, err := f.Ctx.Store.Actors.Insert(ctx, tx, actor)
	if err != nil {
		return nil, apperr.Databasef(err)
	}
	actor.Internal = internal

	if followersCount != nil && *followersCount > 0 {
		if err := f.Ctx.Store.Actors.IncrementFollowersCount(ctx, tx, internal, *followersCount); err != nil {
			return nil, apperr.Databasef(err)
		}
		actor.FollowersCount = *followersCount
	}
	if followingCount != nil && *followingCount > 0 {
		if err := f.Ctx.Store.Actors.IncrementFollowingCount(ctx, tx, internal, *followingCount); err != nil {
			return nil, apperr.Databasef(err)
		}
		actor.FollowingCount = *followingCount
	}
	return actor, nil
}

// FetchActivity returns the local row for id, pulling and normalizing it
// from the network if necessary.
func (f *Fetcher) FetchActivity(ctx context.Context, id string) (*model.Activity, error) {
	var existing *model.Activity
	err := f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := f.Ctx.Store.Activities.GetByAPID(ctx, tx, id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		existing = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	pulled, err := f.Pull(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := pulled.Activity()
	if err != nil {
		return nil, err
	}
	return f.ResolveActivity(ctx, doc)
}

// ResolveActivity best-effort resolves an activity's actor and object, then
// normalizes and addresses it within a single transaction.
func (f *Fetcher) ResolveActivity(ctx context.Context, doc *apjson.Doc) (*model.Activity, error) {
	if actorIRI, err := doc.ActorIRI(); err == nil {
		if _, err := f.FetchUser(ctx, actorIRI); err != nil {
			// best-effort: the original logs and continues.
			_ = err
		}
	}
	if objectIRI, ok := doc.ObjectIRI(); ok {
		if _, err := f.FetchObject(ctx, objectIRI); err != nil {
			_ = err
		}
	} else if objectDoc, ok := doc.ObjectDoc(); ok {
		if _, err := f.ResolveObjectDepth(ctx, objectDoc, 0); err != nil {
			_ = err
		}
	}

	var activity *model.Activity
	err := f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var insertErr error
		activity, insertErr = f.Normalizer.InsertActivity(ctx, tx, doc)
		if insertErr != nil {
			return insertErr
		}

		var audience *string
		if a, ok := doc.Audience(); ok {
			audience = &a
		}
		return f.Addresser.Address(ctx, tx, &activity.Internal, nil, doc.To(), doc.BTo(), doc.CC(), doc.BCC(), audience)
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// FetchObject returns the local row for id, recursively resolving the reply
// chain up to cfg.thread_crawl_depth (§4.c).
func (f *Fetcher) FetchObject(ctx context.Context, id string) (*model.Object, error) {
	return f.fetchObjectDepth(ctx, id, 0)
}

func (f *Fetcher) fetchObjectDepth(ctx context.Context, id string, depth int) (*model.Object, error) {
	var existing *model.Object
	err := f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := f.Ctx.Store.Objects.GetByAPID(ctx, tx, id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		existing = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	pulled, err := f.Pull(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := pulled.Object()
	if err != nil {
		return nil, err
	}
	return f.ResolveObjectDepth(ctx, doc, depth)
}

// ResolveObjectDepth best-effort resolves the author and (bounded) reply
// chain of an already-dereferenced object document, then normalizes and
// addresses it.
func (f *Fetcher) ResolveObjectDepth(ctx context.Context, doc *apjson.Doc, depth int) (*model.Object, error) {
	if _, err := doc.ID(); err != nil {
		return nil, err
	}

	if attrib, ok := doc.AttributedTo(); ok {
		if _, err := f.FetchUser(ctx, attrib); err != nil {
			_ = err
		}
	}

	if reply, ok := doc.InReplyTo(); ok {
		if depth <= f.Ctx.Config.Security.ThreadCrawlDepth {
			if _, err := f.fetchObjectDepth(ctx, reply, depth+1); err != nil {
				_ = err
			}
		}
	}

	var object *model.Object
	err := f.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var insertErr error
		object, insertErr = f.Normalizer.InsertObject(ctx, tx, doc)
		if insertErr != nil {
			return insertErr
		}

		var audience *string
		if a, ok := doc.Audience(); ok {
			audience = &a
		}
		return f.Addresser.Address(ctx, tx, nil, &object.Internal, doc.To(), doc.BTo(), doc.CC(), doc.BCC(), audience)
	})
	if err != nil {
		return nil, err
	}
	return object, nil
}
