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

// Package bootstrap wires every component into a running process: it opens
// the store, migrates the schema, ensures the instance row and its signing
// actor exist, then constructs the Fetcher/Normalizer/Addresser/Processor/
// Outbox Builder/Session Manager/Dispatcher graph those components can't
// construct themselves (internal/fetch, internal/normalize and
// internal/address each depend on a narrow interface of the other two, so
// nothing else in the tree is allowed to import all three at once without
// forming a cycle).
package bootstrap

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"

	"github.com/upub-fed/core/internal/address"
	"github.com/upub-fed/core/internal/config"
	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/fetch"
	"github.com/upub-fed/core/internal/model"
	"github.com/upub-fed/core/internal/normalize"
	"github.com/upub-fed/core/internal/outbox"
	"github.com/upub-fed/core/internal/process"
	"github.com/upub-fed/core/internal/query"
	"github.com/upub-fed/core/internal/queue"
	"github.com/upub-fed/core/internal/session"
	"github.com/upub-fed/core/internal/store"
)

// rsaKeySize matches the teacher's own minimum-enforcing key generator
// (go-fed-apcore's keys.go forbids anything below 1024 bits; this server
// never asks for less than 2048).
const rsaKeySize = 2048

// instanceActorPath is the well-known path convention (shared by Mastodon
// and go-fed-apcore-style servers) for the actor that signs requests made
// on the server's own behalf, rather than a specific local user's.
const instanceActorPath = "/actor"

// Engine holds every wired component a running process needs: an HTTP
// layer (out of this package's scope) drives Processor/Outbox/Sessions
// directly, while Dispatcher runs its own poll loop in the background.
type Engine struct {
	Ctx        *ctxcore.Context
	Fetcher    *fetch.Fetcher
	Normalizer *normalize.Normalizer
	Addresser  *address.Addresser
	Processor  *process.Processor
	Outbox     *outbox.Builder
	Selector   *query.Selector
	Sessions   *session.Manager
	Dispatcher *queue.Dispatcher
}

// New opens the store, migrates it, ensures the instance row and its
// signing actor exist, and wires every component together.
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	st, err := store.Open(cfg.Datasource.ConnectionString, cfg.Datasource.MaxConnections, cfg.Datasource.MinConnections)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	instance, actor, privKey, err := ensureInstance(ctx, st, cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ensuring instance actor: %w", err)
	}

	core := ctxcore.New(st, &cfg, cfg.Instance.Domain, actor, instance, privKey)
	return wire(core), nil
}

// wire assembles the component graph around an already-built Context. It's
// split out from New so tests can hand it a Context backed by a fake store
// without going through a real Postgres connection.
func wire(core *ctxcore.Context) *Engine {
	// fetch.Fetcher needs a Normalizer and an Addresser at construction,
	// but normalize.Normalizer and address.Addresser each need the
	// Fetcher itself (to resolve actors they don't yet have rows for).
	// Build the Fetcher first with both fields nil, construct the other
	// two against it, then back-fill: New never dereferences either
	// field before a real call arrives.
	fetcher := fetch.New(core, nil, nil)
	normalizer := normalize.New(core, fetcher)
	addresser := address.New(core, fetcher)
	fetcher.Normalizer = normalizer
	fetcher.Addresser = addresser

	processor := process.New(core, fetcher, normalizer, addresser)
	ob := outbox.New(core, fetcher, normalizer, addresser)
	dispatcher := queue.New(core, processor, ob)

	return &Engine{
		Ctx:        core,
		Fetcher:    fetcher,
		Normalizer: normalizer,
		Addresser:  addresser,
		Processor:  processor,
		Outbox:     ob,
		Selector:   query.New(core),
		Sessions:   session.New(core),
		Dispatcher: dispatcher,
	}
}

// Run starts the job dispatcher's poll loop; it blocks until ctx is
// canceled.
func (e *Engine) Run(ctx context.Context) error {
	return e.Dispatcher.Run(ctx)
}

// Close releases the store's connection pool and prepared statements.
func (e *Engine) Close() {
	e.Ctx.Store.Close()
}

// ensureInstance loads the local Instance row and its signing Actor,
// creating both (plus a fresh RSA keypair) on first run.
func ensureInstance(ctx context.Context, st *store.Store, cfg config.Config) (*model.Instance, *model.Actor, *rsa.PrivateKey, error) {
	var instance *model.Instance
	var actor *model.Actor
	var privKey *rsa.PrivateKey

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := st.Instances.GetByDomain(ctx, tx, cfg.Instance.Domain)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if existing != nil {
			instance = existing
		} else {
			instance, err = createInstance(ctx, tx, st, cfg)
			if err != nil {
				return err
			}
		}

		apid := baseURL(cfg) + instanceActorPath
		existingActor, err := st.Actors.GetByAPID(ctx, tx, apid)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if existingActor != nil {
			actor = existingActor
			privKey, err = parsePrivateKey(actor)
			return err
		}

		actor, privKey, err = createInstanceActor(ctx, tx, st, cfg, instance, apid)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return instance, actor, privKey, nil
}

func createInstance(ctx context.Context, tx *sql.Tx, st *store.Store, cfg config.Config) (*model.Instance, error) {
	in := &model.Instance{Domain: cfg.Instance.Domain}
	if cfg.Instance.Name != "" {
		in.Name = &cfg.Instance.Name
	}
	internal, err := st.Instances.Insert(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	in.Internal = internal
	return in, nil
}

func createInstanceActor(ctx context.Context, tx *sql.Tx, st *store.Store, cfg config.Config, instance *model.Instance, apid string) (*model.Actor, *rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("generating instance key: %w", err)
	}
	pubPEM, err := marshalPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	privPEM, err := marshalPrivateKey(key)
	if err != nil {
		return nil, nil, err
	}

	base := baseURL(cfg)
	actor := &model.Actor{
		APID:          apid,
		ActorType:     model.ActorService,
		Domain:        instance.Internal,
		PreferredUser: "instance",
		Inbox:         strPtr(base + instanceActorPath + "/inbox"),
		Outbox:        strPtr(base + instanceActorPath + "/outbox"),
		PublicKeyPEM:  pubPEM,
		PrivateKeyPEM: &privPEM,
	}
	internal, err := st.Actors.Insert(ctx, tx, actor)
	if err != nil {
		return nil, nil, err
	}
	actor.Internal = internal
	return actor, key, nil
}

// parsePrivateKey recovers the rsa.PrivateKey an already-persisted instance
// actor's PEM encodes, the inverse of marshalPrivateKey, grounded the same
// way go-fed-apcore's keys.go round-trips PKCS8 on every restart.
func parsePrivateKey(actor *model.Actor) (*rsa.PrivateKey, error) {
	if actor.PrivateKeyPEM == nil {
		return nil, fmt.Errorf("instance actor %s has no private key", actor.APID)
	}
	block, _ := pem.Decode([]byte(*actor.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("instance actor %s private key is not valid PEM", actor.APID)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing instance actor private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("instance actor private key is not RSA")
	}
	return rsaKey, nil
}

func marshalPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func marshalPrivateKey(key *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

func baseURL(cfg config.Config) string {
	if cfg.Instance.Domain == "" {
		return ""
	}
	if hasScheme(cfg.Instance.Domain) {
		return cfg.Instance.Domain
	}
	return "https://" + cfg.Instance.Domain
}

func hasScheme(s string) bool {
	return len(s) >= 7 && (s[:7] == "http://" || (len(s) >= 8 && s[:8] == "https://"))
}

func strPtr(s string) *string { return &s }
