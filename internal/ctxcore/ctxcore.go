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

// Package ctxcore holds the immutable process handle every other package
// takes as their first argument: the database pool, the loaded config, the
// application actor and its keys, and a channel to wake the job dispatcher.
// It plays the role the teacher's app.Framework plays for a request, but
// scoped to the whole process rather than one HTTP request.
package ctxcore

import (
	"crypto/rsa"
	"strings"

	"github.com/upub-fed/core/internal/config"
	"github.com/upub-fed/core/internal/model"
	"github.com/upub-fed/core/internal/store"
)

// Context is the process-wide handle. It is built once at startup by
// internal/bootstrap and shared as a *Context across goroutines (its fields
// are pointers or values set once by New).
type Context struct {
	Store    *store.Store
	Config   *config.Config
	Domain   string
	Protocol string // "http://" only when domain was given with an explicit http:// prefix, else "https://"
	Actor    *model.Actor
	Instance *model.Instance
	PrivKey  *rsa.PrivateKey

	// Wake is sent on whenever a new Job is enqueued, so the dispatcher's
	// poll loop doesn't have to rely on its backoff timer alone.
	Wake chan struct{}
}

// New builds a Context for domain, wrapping an already-open Store and a
// verified Config. The application actor and instance row are expected to
// already exist (internal/bootstrap creates them on first run).
func New(st *store.Store, cfg *config.Config, domain string, actor *model.Actor, instance *model.Instance, privKey *rsa.PrivateKey) *Context {
	protocol := "https://"
	if strings.HasPrefix(domain, "http://") {
		protocol = "http://"
		domain = strings.TrimPrefix(domain, "http://")
	} else {
		domain = strings.TrimPrefix(domain, "https://")
	}
	domain = strings.TrimSuffix(domain, "/")
	return &Context{
		Store:    st,
		Config:   cfg,
		Domain:   domain,
		Protocol: protocol,
		Actor:    actor,
		Instance: instance,
		PrivKey:  privKey,
		Wake:     make(chan struct{}, 1),
	}
}

// Base returns this server's own origin, e.g. "https://example.com".
func (c *Context) Base() string { return c.Protocol + c.Domain }

// IsLocal reports whether id belongs to this server.
func (c *Context) IsLocal(id string) bool { return strings.HasPrefix(id, c.Base()) }

// UserIRI builds this server's canonical actor IRI for a local username.
func (c *Context) UserIRI(username string) string { return c.Base() + "/users/" + username }

// ObjectIRI builds this server's canonical object IRI for a local id.
func (c *Context) ObjectIRI(id string) string { return c.Base() + "/objects/" + id }

// ActivityIRI builds this server's canonical activity IRI for a local id.
func (c *Context) ActivityIRI(id string) string { return c.Base() + "/activities/" + id }

// WakeDispatcher signals the job queue's poll loop that new work is
// available, without blocking if nobody is listening yet.
func (c *Context) WakeDispatcher() {
	select {
	case c.Wake <- struct{}{}:
	default:
	}
}

// Server extracts the bare host from an IRI, e.g.
// "https://example.com/users/alice" -> "example.com".
func Server(id string) string {
	s := strings.TrimPrefix(id, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
