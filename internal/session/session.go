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

// Package session implements §6 Authentication: local Credential
// verification and bearer Session issuance/validation. Password hashing is
// grounded on go-fed-apcore's services/crypto.go (salt-then-bcrypt,
// salt kept alongside the hash rather than relying on bcrypt's own embedded
// salt, so the salt size isn't tied to bcrypt's format). Bearer token
// minting reuses go-fed/oauth2's access token generator
// (framework/oauth2/oauth.go's CreateProxyCredentials) without the
// authorization-code/client-registration machinery around it: this spec has
// no HTTP routing layer or login UI (§1 non-goals), so there is no
// redirect-based grant to support, only first-party bearer sessions.
package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-fed/oauth2"
	"github.com/go-fed/oauth2/generates"
	oam "github.com/go-fed/oauth2/models"
	"golang.org/x/crypto/bcrypt"

	"github.com/upub-fed/core/internal/apperr"
	"github.com/upub-fed/core/internal/ctxcore"
	"github.com/upub-fed/core/internal/model"
)

const saltSize = 16

// Manager issues and validates local sessions.
type Manager struct {
	Ctx       *ctxcore.Context
	generator *generates.AccessGenerate
}

// New builds a Manager bound to ctx.
func New(ctx *ctxcore.Context) *Manager {
	return &Manager{Ctx: ctx, generator: generates.NewAccessGenerate()}
}

// newSalt mirrors go-fed-apcore's services/crypto.go: the smallest accepted
// salt is 16 bytes.
func newSalt(size int) ([]byte, error) {
	if size < saltSize {
		size = saltSize
	}
	b := make([]byte, size)
	n, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("salt generation: crypto/rand only read %d of %d bytes", n, size)
	}
	return b, nil
}

func hashPassword(pass string, salt []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(append([]byte(pass), salt...), bcrypt.DefaultCost)
}

func passwordEquals(pass string, salt, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, append([]byte(pass), salt...)) == nil
}

// CreateCredential registers a local login/password pair for actorInternal.
func (m *Manager) CreateCredential(ctx context.Context, actorInternal int64, login, password string) error {
	salt, err := newSalt(saltSize)
	if err != nil {
		return apperr.Unauthorizedf("generating salt: %v", err)
	}
	hash, err := hashPassword(password, salt)
	if err != nil {
		return apperr.Unauthorizedf("hashing password: %v", err)
	}
	return m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := m.Ctx.Store.Credentials.Insert(ctx, tx, &model.Credential{
			Actor: actorInternal, Login: login, PassHash: hash, Salt: salt, Active: true,
		})
		if err != nil {
			return apperr.Databasef(err)
		}
		return nil
	})
}

// Authenticate verifies login/password and returns the owning Actor.
func (m *Manager) Authenticate(ctx context.Context, login, password string) (*model.Actor, error) {
	var cred *model.Credential
	err := m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		c, err := m.Ctx.Store.Credentials.GetByLogin(ctx, tx, login)
		if err == sql.ErrNoRows {
			return apperr.Unauthorizedf("invalid credentials")
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		cred = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !cred.Active {
		return nil, apperr.Unauthorizedf("credential is disabled")
	}
	if !passwordEquals(password, cred.Salt, cred.PassHash) {
		return nil, apperr.Unauthorizedf("invalid credentials")
	}

	var actor *model.Actor
	err = m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := m.Ctx.Store.Actors.GetByInternal(ctx, tx, cred.Actor)
		if err != nil {
			return apperr.Databasef(err)
		}
		actor = a
		return nil
	})
	return actor, err
}

// IssueSession mints an opaque bearer token for actor, valid for
// Security.SessionDurationHours (§6), and stores it as a Session row.
func (m *Manager) IssueSession(ctx context.Context, actor *model.Actor) (string, time.Time, error) {
	now := time.Now().UTC()
	data := &oauth2.GenerateBasic{
		Client:   &oam.Client{ID: actor.APID, Domain: m.Ctx.Domain},
		UserID:   actor.APID,
		CreateAt: now,
	}
	access, _, err := m.generator.Token(ctx, data, false)
	if err != nil {
		return "", time.Time{}, apperr.Unauthorizedf("minting session token: %v", err)
	}

	expires := now.Add(time.Duration(m.Ctx.Config.Security.SessionDurationHours) * time.Hour)
	err = m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := m.Ctx.Store.Sessions.Insert(ctx, tx, actor.Internal, access, expires)
		return err
	})
	if err != nil {
		return "", time.Time{}, apperr.Databasef(err)
	}
	return access, expires, nil
}

// ValidateBearer resolves a Bearer token to its owning Actor, rejecting and
// evicting an expired Session (§6).
func (m *Manager) ValidateBearer(ctx context.Context, token string) (*model.Actor, error) {
	var sess *model.Session
	err := m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := m.Ctx.Store.Sessions.GetBySecret(ctx, tx, token)
		if err == sql.ErrNoRows {
			return apperr.Unauthorizedf("unknown session token")
		}
		if err != nil {
			return apperr.Databasef(err)
		}
		sess = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	if time.Now().After(sess.Expires) {
		_ = m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
			return m.Ctx.Store.Sessions.DeleteBySecret(ctx, tx, token)
		})
		return nil, apperr.Unauthorizedf("session token expired")
	}

	var actor *model.Actor
	err = m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := m.Ctx.Store.Actors.GetByInternal(ctx, tx, sess.Actor)
		if err != nil {
			return apperr.Databasef(err)
		}
		actor = a
		return nil
	})
	return actor, err
}

// Logout revokes token immediately, ahead of its natural expiry.
func (m *Manager) Logout(ctx context.Context, token string) error {
	return m.Ctx.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return m.Ctx.Store.Sessions.DeleteBySecret(ctx, tx, token)
	})
}
